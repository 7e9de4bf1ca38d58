package sftp

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Option 定义配置函数的类型
type Option func(*Client)

func WithConcurrentFiles(con int) Option {
	return func(c *Client) {
		if con > 0 {
			c.config.ConcurrentFiles = con
		}
	}
}

func WithThreadsPerFile(t int) Option {
	return func(c *Client) {
		if t > 0 {
			c.config.ThreadsPerFile = t
		}
	}
}

func WithChunkSize(size int64) Option {
	return func(c *Client) {
		if size > 0 {
			c.config.ChunkSize = size
		}
	}
}

// Client 包装了 sftp.Client
type Client struct {
	sftpClient *sftp.Client
	config     TransferConfig
}

// NewClient 在已有的 SSH 连接上打开 sftp 子系统
func NewClient(conn *ssh.Client, opts ...Option) (*Client, error) {
	client, err := sftp.NewClient(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create sftp subsystem: %w", err)
	}
	return wrap(client, opts...), nil
}

func wrap(client *sftp.Client, opts ...Option) *Client {
	c := &Client{
		sftpClient: client,
		config:     DefaultTransferConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MkdirAll 递归创建远程目录，已存在时不报错
func (c *Client) MkdirAll(dir string) error {
	if err := c.sftpClient.MkdirAll(dir); err != nil {
		return fmt.Errorf("failed to create remote directory '%s': %w", dir, err)
	}
	return nil
}

// Close 关闭 SFTP 会话，不关闭底层 SSH 连接
func (c *Client) Close() error {
	return c.sftpClient.Close()
}

// Exists 相对路径相对于登录用户的家目录
func (c *Client) Exists(path string) (bool, error) {
	_, err := c.sftpClient.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Open 以只读方式打开远程文件
func (c *Client) Open(path string) (io.ReadCloser, error) {
	return c.sftpClient.Open(path)
}

// JoinPath 远程路径拼接 (SFTP 协议强制使用 forward slash)
func (c *Client) JoinPath(elem ...string) string {
	return c.sftpClient.Join(elem...)
}
