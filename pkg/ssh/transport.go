package ssh

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/wentf9/xops-underlay/pkg/logger"
	"github.com/wentf9/xops-underlay/pkg/models"
	"github.com/wentf9/xops-underlay/pkg/sftp"
)

// SSHTransport 基于 golang.org/x/crypto/ssh 的 Transport 实现
type SSHTransport struct {
	dialer     *net.Dialer
	timeout    time.Duration
	keepAlive  time.Duration
	sftpOpts   []sftp.Option
	hostKeyCbk ssh.HostKeyCallback
	log        logger.Logger
}

type TransportOption func(*SSHTransport)

// WithTimeout TCP 连接和 SSH 握手的超时时间
func WithTimeout(d time.Duration) TransportOption {
	return func(t *SSHTransport) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithKeepAlive 大于 0 时为每个连接开启心跳
func WithKeepAlive(d time.Duration) TransportOption {
	return func(t *SSHTransport) {
		t.keepAlive = d
	}
}

// WithHostKeyCallback 替换默认的不校验 host key 行为，nil 被忽略
func WithHostKeyCallback(cb ssh.HostKeyCallback) TransportOption {
	return func(t *SSHTransport) {
		if cb != nil {
			t.hostKeyCbk = cb
		}
	}
}

// WithSFTPOptions 每个会话打开 sftp 子系统时使用的参数
func WithSFTPOptions(opts ...sftp.Option) TransportOption {
	return func(t *SSHTransport) {
		t.sftpOpts = append(t.sftpOpts, opts...)
	}
}

func WithTransportLogger(l logger.Logger) TransportOption {
	return func(t *SSHTransport) {
		if l != nil {
			t.log = l
		}
	}
}

func NewTransport(opts ...TransportOption) *SSHTransport {
	t := &SSHTransport{
		timeout: 15 * time.Second,
		// 测试环境的节点会反复重建，不校验 host key
		hostKeyCbk: ssh.InsecureIgnoreHostKey(),
		log:        logger.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.dialer = &net.Dialer{Timeout: t.timeout}
	return t
}

// Connect 建立 TCP 连接并完成 SSH 握手
func (t *SSHTransport) Connect(ctx context.Context, p Params) (Session, error) {
	auth, err := authMethods(p)
	if err != nil {
		return nil, err
	}
	port := p.Port
	if port == 0 {
		port = models.DefaultPort
	}
	cfg := &ssh.ClientConfig{
		User:            p.Login,
		Auth:            auth,
		HostKeyCallback: t.hostKeyCbk,
		Timeout:         t.timeout,
		BannerCallback:  func(string) error { return nil },
	}

	addr := net.JoinHostPort(p.Host, strconv.Itoa(port))
	conn, err := t.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial '%s': %w", addr, err)
	}
	if t.timeout > 0 {
		// 握手阶段的超时，完成后清除
		conn.SetDeadline(time.Now().Add(t.timeout))
	}
	ncc, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake failed for '%s': %w", addr, err)
	}
	conn.SetDeadline(time.Time{})
	client := ssh.NewClient(ncc, chans, reqs)

	s := &sshSession{
		client:   client,
		password: p.Password,
		addr:     addr,
		sftpOpts: t.sftpOpts,
		done:     make(chan struct{}),
	}
	if t.keepAlive > 0 {
		StartKeepAlive(client, t.keepAlive, s.done, func(err error) {
			t.log.Warn("keepalive failed, connection closed", logger.String("addr", addr), logger.Err(err))
		})
	}
	t.log.Debug("ssh session opened", logger.String("addr", addr), logger.String("login", p.Login))
	return s, nil
}
