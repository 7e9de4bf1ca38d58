package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wentf9/xops-underlay/pkg/logger"
	"github.com/wentf9/xops-underlay/pkg/models"
	"github.com/wentf9/xops-underlay/pkg/utils/concurrent"
)

// DefaultKeyPath 复制密钥时读取的私钥，相对于登录用户的家目录
const DefaultKeyPath = ".ssh/id_rsa"

// Resolver 根据查找条件返回认证信息，由 config.Registry 实现
type Resolver interface {
	Lookup(target models.Target) (models.CredentialEntry, error)
}

// Connector 根据注册表中的认证信息创建会话
// 不缓存连接：每次 Open 都是一个新的会话，由调用方负责 Close
type Connector struct {
	resolver  Resolver
	transport Transport
	log       logger.Logger

	breakerSettings *gobreaker.Settings
	breakers        *concurrent.Map[string, *gobreaker.CircuitBreaker]
}

type ConnectorOption func(*Connector)

func WithLogger(l logger.Logger) ConnectorOption {
	return func(c *Connector) {
		if l != nil {
			c.log = l
		}
	}
}

// WithBreaker 对每个主机启用熔断：连续失败 maxFailures 次后，
// openTimeout 内的连接请求直接返回 ConnectionError
func WithBreaker(maxFailures uint32, openTimeout time.Duration) ConnectorOption {
	return func(c *Connector) {
		c.breakerSettings = &gobreaker.Settings{
			MaxRequests: 1,
			Timeout:     openTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
		}
	}
}

// NewConnector 创建一个新的 Connector
func NewConnector(resolver Resolver, transport Transport, opts ...ConnectorOption) *Connector {
	c := &Connector{
		resolver:  resolver,
		transport: transport,
		log:       logger.Default(),
		breakers:  concurrent.NewMap[string, *gobreaker.CircuitBreaker](concurrent.HashString),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open 查找认证信息并建立会话
// 查找失败原样返回 *config.NotFoundError，连接失败返回 *ConnectionError
func (c *Connector) Open(ctx context.Context, target models.Target) (Session, error) {
	entry, err := c.resolver.Lookup(target)
	if err != nil {
		return nil, err
	}
	return c.OpenEntry(ctx, entry)
}

// OpenEntry 直接使用一条认证信息建立会话
func (c *Connector) OpenEntry(ctx context.Context, entry models.CredentialEntry) (Session, error) {
	p := ParamsFor(entry)
	connect := func() (Session, error) {
		return c.transport.Connect(ctx, p)
	}
	if c.breakerSettings != nil {
		cb := c.breaker(p)
		connect = func() (Session, error) {
			res, err := cb.Execute(func() (interface{}, error) {
				return c.transport.Connect(ctx, p)
			})
			if err != nil {
				return nil, err
			}
			return res.(Session), nil
		}
	}

	sess, err := connect()
	if err != nil {
		c.log.Error("connect failed",
			logger.String("node", entry.NodeName),
			logger.String("host", p.Host),
			logger.Int("port", p.Port),
			logger.Err(err))
		return nil, &ConnectionError{Host: p.Host, Port: p.Port, Err: err}
	}
	return sess, nil
}

func (c *Connector) breaker(p Params) *gobreaker.CircuitBreaker {
	key := fmt.Sprintf("%s:%d", p.Host, p.Port)
	return c.breakers.GetOrCreate(key, func() *gobreaker.CircuitBreaker {
		st := *c.breakerSettings
		st.Name = key
		st.OnStateChange = func(name string, from, to gobreaker.State) {
			c.log.Warn("connection breaker state changed",
				logger.String("host", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		}
		return gobreaker.NewCircuitBreaker(st)
	})
}

// ParamsFor 将认证信息转换为连接参数，端口缺省为 22
func ParamsFor(e models.CredentialEntry) Params {
	port := e.Port
	if port == 0 {
		port = models.DefaultPort
	}
	return Params{
		Host:     e.Host,
		Port:     port,
		Login:    e.Login,
		Password: e.Password,
		Keys:     append([]string{}, e.Keys...),
	}
}

// FetchKeys 读取节点上的默认私钥 ~/.ssh/id_rsa，文件不存在时返回空
func (c *Connector) FetchKeys(ctx context.Context, entry models.CredentialEntry) ([]string, error) {
	sess, err := c.OpenEntry(ctx, entry)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	ok, err := sess.Exists(DefaultKeyPath)
	if err != nil {
		return nil, fmt.Errorf("check '%s' on '%s': %w", DefaultKeyPath, entry.NodeName, err)
	}
	if !ok {
		c.log.Warn("no default private key on key source node", logger.String("node", entry.NodeName))
		return []string{}, nil
	}
	f, err := sess.Open(DefaultKeyPath)
	if err != nil {
		return nil, fmt.Errorf("open '%s' on '%s': %w", DefaultKeyPath, entry.NodeName, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read '%s' on '%s': %w", DefaultKeyPath, entry.NodeName, err)
	}
	if err := ValidatePrivateKey(data); err != nil {
		return nil, errors.Join(fmt.Errorf("invalid private key '%s' on '%s'", DefaultKeyPath, entry.NodeName), err)
	}
	return []string{string(data)}, nil
}
