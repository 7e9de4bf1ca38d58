// Package fakessh 内存中的 ssh.Transport，测试用
package fakessh

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"io"
	"io/fs"
	"sync"

	"github.com/wentf9/xops-underlay/pkg/models"
	"github.com/wentf9/xops-underlay/pkg/sftp"
	"github.com/wentf9/xops-underlay/pkg/ssh"
)

// Call 一次命令执行记录
type Call struct {
	Host string
	Cmd  string
	Sudo bool
}

// Upload 一次上传记录
type Upload struct {
	Host   string
	Local  string
	Remote string
}

// Handler 自定义命令处理
type Handler func(cmd string, sudo bool) (models.Result, error)

// Host 一个模拟主机
type Host struct {
	Addr       string
	Files      map[string][]byte
	ConnectErr error
	Handler    Handler

	replies map[string][]models.Result
	errs    map[string]error
}

// Reply 为命令设置依次返回的结果，用完后重复最后一个
func (h *Host) Reply(cmd string, results ...models.Result) *Host {
	h.replies[cmd] = append(h.replies[cmd], results...)
	return h
}

// Fail 命令执行时返回传输层错误
func (h *Host) Fail(cmd string, err error) *Host {
	h.errs[cmd] = err
	return h
}

func (h *Host) exec(cmd string, sudo bool) (models.Result, error) {
	if h.Handler != nil {
		return h.Handler(cmd, sudo)
	}
	if err, ok := h.errs[cmd]; ok {
		return models.Result{}, err
	}
	q := h.replies[cmd]
	switch len(q) {
	case 0:
		return models.Result{Stdout: []string{}, Stderr: []string{}}, nil
	case 1:
		return q[0], nil
	default:
		h.replies[cmd] = q[1:]
		return q[0], nil
	}
}

// Transport 实现 ssh.Transport
type Transport struct {
	mu       sync.Mutex
	hosts    map[string]*Host
	connects []ssh.Params
	calls    []Call
	uploads  []Upload
	open     int
	closed   int
}

func New() *Transport {
	return &Transport{hosts: map[string]*Host{}}
}

// AddHost 注册一个可以连接的主机
func (t *Transport) AddHost(addr string) *Host {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := &Host{
		Addr:    addr,
		Files:   map[string][]byte{},
		replies: map[string][]models.Result{},
		errs:    map[string]error{},
	}
	t.hosts[addr] = h
	return h
}

func (t *Transport) Connect(_ context.Context, p ssh.Params) (ssh.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connects = append(t.connects, p)
	h, ok := t.hosts[p.Host]
	if !ok {
		return nil, errors.New("connection refused")
	}
	if h.ConnectErr != nil {
		return nil, h.ConnectErr
	}
	t.open++
	return &session{t: t, host: h}, nil
}

// Connects 所有连接请求的参数
func (t *Transport) Connects() []ssh.Params {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ssh.Params(nil), t.connects...)
}

// Calls 所有执行过的命令
func (t *Transport) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Call(nil), t.calls...)
}

// Commands 在某个主机上执行过的命令
func (t *Transport) Commands(host string) []string {
	var out []string
	for _, c := range t.Calls() {
		if c.Host == host {
			out = append(out, c.Cmd)
		}
	}
	return out
}

func (t *Transport) Uploads() []Upload {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Upload(nil), t.uploads...)
}

// OpenSessions 尚未关闭的会话数
func (t *Transport) OpenSessions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

// ClosedSessions 已经关闭的会话数
func (t *Transport) ClosedSessions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type session struct {
	t      *Transport
	host   *Host
	closed bool
}

func (s *session) record(cmd string, sudo bool) (models.Result, error) {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	if s.closed {
		return models.Result{}, errors.New("session closed")
	}
	s.t.calls = append(s.t.calls, Call{Host: s.host.Addr, Cmd: cmd, Sudo: sudo})
	return s.host.exec(cmd, sudo)
}

func (s *session) Execute(_ context.Context, cmd string) (models.Result, error) {
	return s.record(cmd, false)
}

func (s *session) ExecuteSudo(_ context.Context, cmd string) (models.Result, error) {
	return s.record(cmd, true)
}

func (s *session) Upload(_ context.Context, localPath, remotePath string, progress sftp.ProgressCallback) error {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	s.t.uploads = append(s.t.uploads, Upload{Host: s.host.Addr, Local: localPath, Remote: remotePath})
	if progress != nil {
		progress(1)
	}
	return nil
}

func (s *session) Exists(path string) (bool, error) {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	_, ok := s.host.Files[path]
	return ok, nil
}

func (s *session) Open(path string) (io.ReadCloser, error) {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	data, ok := s.host.Files[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *session) Close() error {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.t.open--
		s.t.closed++
	}
	return nil
}

// NewPrivateKey 生成一个 PEM 格式的 ed25519 私钥
func NewPrivateKey() string {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic(err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		panic(err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

// Ok 退出码为 0 的结果
func Ok(stdout ...string) models.Result {
	return models.Result{Stdout: stdout, Stderr: []string{}}
}

// Exit 指定退出码的结果
func Exit(code int, stdout ...string) models.Result {
	return models.Result{Stdout: stdout, Stderr: []string{}, ExitCode: code}
}
