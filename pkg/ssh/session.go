package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/wentf9/xops-underlay/pkg/models"
	"github.com/wentf9/xops-underlay/pkg/sftp"
)

// sshSession 一个 SSH 连接，每条命令使用独立的 ssh.Session
type sshSession struct {
	client   *ssh.Client
	password string
	addr     string
	sftpOpts []sftp.Option

	sftpOnce sync.Once
	sftp     *sftp.Client
	sftpErr  error

	closeOnce sync.Once
	done      chan struct{}
}

func (s *sshSession) Execute(ctx context.Context, cmd string) (models.Result, error) {
	return s.run(ctx, cmd, "")
}

// ExecuteSudo 使用 sudo -S 从 stdin 读取密码
// -p '' 将提示符设为空字符串，这样输出里不会有 "Password:" 之类的杂质
func (s *sshSession) ExecuteSudo(ctx context.Context, cmd string) (models.Result, error) {
	return s.run(ctx, SudoCommand(cmd), s.password)
}

// SudoCommand 将命令包装为 sudo 执行，复合命令放到 sh -c 里
func SudoCommand(cmd string) string {
	return fmt.Sprintf("sudo -S -p '' sh -c %s", shellQuote(cmd))
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// cancelDrainTimeout 取消后等待会话收尾的上限
const cancelDrainTimeout = 5 * time.Second

func (s *sshSession) run(ctx context.Context, cmd, stdin string) (models.Result, error) {
	session, err := s.client.NewSession()
	if err != nil {
		return models.Result{}, fmt.Errorf("new session on '%s': %w", s.addr, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if stdin != "" {
		session.Stdin = strings.NewReader(stdin + "\n")
	}

	if err := session.Start(cmd); err != nil {
		return models.Result{}, fmt.Errorf("failed to start command on '%s': %w", s.addr, err)
	}
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		// 上下文取消，终止远程命令并关闭通道，等输出拷贝协程退出后才能读缓冲区
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		select {
		case <-done:
		case <-time.After(cancelDrainTimeout):
			// 对端无响应，缓冲区仍可能被写入，不读取
			return models.Result{}, ctx.Err()
		}
		return models.Result{
			Stdout: models.SplitLines(stdout.String()),
			Stderr: models.SplitLines(stderr.String()),
		}, ctx.Err()
	}

	res := models.Result{
		Stdout: models.SplitLines(stdout.String()),
		Stderr: models.SplitLines(stderr.String()),
	}
	if waitErr != nil {
		var exitErr *ssh.ExitError
		if !errors.As(waitErr, &exitErr) {
			return res, fmt.Errorf("command on '%s' did not complete: %w", s.addr, waitErr)
		}
		res.ExitCode = exitErr.ExitStatus()
	}
	return res, nil
}

func (s *sshSession) sftpClient() (*sftp.Client, error) {
	s.sftpOnce.Do(func() {
		s.sftp, s.sftpErr = sftp.NewClient(s.client, s.sftpOpts...)
	})
	return s.sftp, s.sftpErr
}

func (s *sshSession) Upload(ctx context.Context, localPath, remotePath string, progress sftp.ProgressCallback) error {
	c, err := s.sftpClient()
	if err != nil {
		return err
	}
	return c.Upload(ctx, localPath, remotePath, progress)
}

func (s *sshSession) Exists(path string) (bool, error) {
	c, err := s.sftpClient()
	if err != nil {
		return false, err
	}
	return c.Exists(path)
}

func (s *sshSession) Open(path string) (io.ReadCloser, error) {
	c, err := s.sftpClient()
	if err != nil {
		return nil, err
	}
	return c.Open(path)
}

// Close 关闭 sftp 子系统和 SSH 连接，可以重复调用
func (s *sshSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.sftp != nil {
			s.sftp.Close()
		}
		err = s.client.Close()
	})
	return err
}
