// Package underlay 把注册表、会话工厂和命令执行组装在一起，
// 提供测试框架中常用的节点操作
package underlay

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/wentf9/xops-underlay/pkg/config"
	"github.com/wentf9/xops-underlay/pkg/logger"
	"github.com/wentf9/xops-underlay/pkg/models"
	"github.com/wentf9/xops-underlay/pkg/runner"
	"github.com/wentf9/xops-underlay/pkg/sftp"
	"github.com/wentf9/xops-underlay/pkg/ssh"
)

const (
	SaltMaster = "salt-master"
	SaltMinion = "salt-minion"
)

// ErrNoNodes 注册表为空
var ErrNoNodes = errors.New("no nodes registered")

type options struct {
	transport ssh.Transport
	log       logger.Logger
}

type Option func(*options)

// WithTransport 替换默认的 SSH 传输层
func WithTransport(t ssh.Transport) Option {
	return func(o *options) { o.transport = t }
}

func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// Manager 节点操作的入口
type Manager struct {
	cfg       *config.Configuration
	registry  *config.Registry
	connector *ssh.Connector
	runner    *runner.Runner
	log       logger.Logger
}

// New 根据配置创建 Manager 并注册配置中的所有节点
func New(ctx context.Context, cfg *config.Configuration, opts ...Option) (*Manager, error) {
	if cfg == nil {
		cfg = config.DefaultConfiguration()
	}
	o := options{log: logger.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.transport == nil {
		topts, err := transportOptions(cfg.SSH, o.log)
		if err != nil {
			return nil, err
		}
		o.transport = ssh.NewTransport(topts...)
	}

	registry := config.NewRegistry(config.WithRegistryLogger(o.log))
	connOpts := []ssh.ConnectorOption{ssh.WithLogger(o.log)}
	if b := cfg.SSH.Breaker; b.Enabled {
		connOpts = append(connOpts, ssh.WithBreaker(b.MaxFailures, b.OpenTimeout))
	}
	connector := ssh.NewConnector(registry, o.transport, connOpts...)
	registry.UseKeyFetcher(connector)

	m := &Manager{
		cfg:       cfg,
		registry:  registry,
		connector: connector,
		log:       o.log,
	}
	m.runner = runner.New(connector, m.runnerOptions()...)

	if err := registry.Add(ctx, cfg.Underlay.SSH...); err != nil {
		return nil, fmt.Errorf("failed to register nodes: %w", err)
	}
	return m, nil
}

// transportOptions 把 ssh 配置段转换为传输层参数
func transportOptions(c config.SSHConfig, log logger.Logger) ([]ssh.TransportOption, error) {
	opts := []ssh.TransportOption{
		ssh.WithTimeout(c.ConnectTimeout),
		ssh.WithKeepAlive(c.KeepAlive),
		ssh.WithTransportLogger(log),
		ssh.WithSFTPOptions(c.SFTP.Options()...),
	}
	if c.KnownHosts != "" {
		cb, err := knownhosts.New(c.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts '%s': %w", c.KnownHosts, err)
		}
		opts = append(opts, ssh.WithHostKeyCallback(cb))
	}
	return opts, nil
}

func (m *Manager) runnerOptions() []runner.Option {
	opts := []runner.Option{
		runner.WithLogger(m.log),
		runner.WithSettle(m.cfg.Runner.Settle),
	}
	salt := m.cfg.Salt
	if salt.FailedMarkerEnabled() {
		opts = append(opts, runner.WithPredicate(runner.SaltFailedPredicate()))
	}
	if salt.SaltChecksEnabled() {
		opts = append(opts, runner.WithHealthChecks(
			m.serviceCheck(SaltMaster, salt.MasterHost, "salt-call pillar.items", salt.RunningState),
			m.serviceCheck(SaltMinion, salt.MasterHost, "salt 'cfg01*' pillar.items", salt.RunningState),
		))
	}
	return opts
}

func (m *Manager) serviceCheck(service, host, verifyCmd, state string) runner.ServiceCheck {
	return runner.ServiceCheck{
		Service:      service,
		Target:       models.HostTarget(host),
		RunningState: state,
		VerifyCmd:    verifyCmd,
		Log:          m.log,
	}
}

func (m *Manager) Registry() *config.Registry    { return m.registry }
func (m *Manager) Connector() *ssh.Connector     { return m.connector }
func (m *Manager) Runner() *runner.Runner        { return m.runner }
func (m *Manager) Config() *config.Configuration { return m.cfg }

// AddEntries 注册新的节点，支持从已有节点复制密钥
func (m *Manager) AddEntries(ctx context.Context, entries ...models.CredentialEntry) error {
	return m.registry.Add(ctx, entries...)
}

func (m *Manager) RemoveEntries(entries ...models.CredentialEntry) error {
	return m.registry.Remove(entries...)
}

func (m *Manager) NodeNames() []string {
	return m.registry.NodeNames()
}

func (m *Manager) HostByNodeName(nodeName, addressPool string) (string, error) {
	return m.registry.HostByNodeName(nodeName, addressPool)
}

// RandomNodeName 随机返回一个节点名
func (m *Manager) RandomNodeName() (string, error) {
	names := m.registry.NodeNames()
	if len(names) == 0 {
		return "", ErrNoNodes
	}
	return names[rand.IntN(len(names))], nil
}

// Remote 打开到节点的会话，调用方负责 Close
func (m *Manager) Remote(ctx context.Context, target models.Target) (ssh.Session, error) {
	return m.connector.Open(ctx, target)
}

// CheckCall 执行命令，退出码不在预期内时返回 *runner.UnexpectedExitCodeError
func (m *Manager) CheckCall(ctx context.Context, cmd string, target models.Target, opts ...runner.RunOption) (models.Result, error) {
	return m.runner.Run(ctx, cmd, target, opts...)
}

// SudoCheckCall 以 root 身份执行的 CheckCall
func (m *Manager) SudoCheckCall(ctx context.Context, cmd string, target models.Target, opts ...runner.RunOption) (models.Result, error) {
	return m.runner.Sudo(ctx, cmd, target, opts...)
}

// ExecuteCommands 执行命令序列，salt 相关的检查按配置启用
func (m *Manager) ExecuteCommands(ctx context.Context, steps []runner.Step, label string) error {
	return m.runner.RunSequence(ctx, steps, label)
}

// DirUpload 上传本地文件或目录到节点
func (m *Manager) DirUpload(ctx context.Context, nodeName, source, destination string, progress sftp.ProgressCallback) error {
	sess, err := m.connector.Open(ctx, models.Node(nodeName))
	if err != nil {
		return err
	}
	defer sess.Close()
	if err := sess.Upload(ctx, source, destination, progress); err != nil {
		return fmt.Errorf("failed to upload %s to %s:%s: %w", source, nodeName, destination, err)
	}
	return nil
}

// EnsureRunningService 检查 host 上的服务，未运行时尝试重启
func (m *Manager) EnsureRunningService(ctx context.Context, service, host, checkCmd, runningState string) error {
	if runningState == "" {
		runningState = m.cfg.Salt.RunningState
	}
	return m.serviceCheck(service, host, checkCmd, runningState).Check(ctx, m.connector)
}
