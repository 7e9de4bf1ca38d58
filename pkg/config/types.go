package config

import (
	"time"

	"github.com/wentf9/xops-underlay/pkg/models"
	"github.com/wentf9/xops-underlay/pkg/sftp"
)

// Configuration 对应 yaml 文件的顶层结构
type Configuration struct {
	Log      LogConfig      `yaml:"log"`
	Underlay UnderlayConfig `yaml:"underlay"`
	Runner   RunnerConfig   `yaml:"runner"`
	SSH      SSHConfig      `yaml:"ssh"`
	Salt     SaltConfig     `yaml:"salt"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`
}

// UnderlayConfig 节点认证信息列表，顺序即注册顺序
type UnderlayConfig struct {
	SSH []models.CredentialEntry `yaml:"ssh" validate:"dive"`
}

type RunnerConfig struct {
	// Settle 每次执行命令前的等待时间，让上一步的异步影响稳定下来
	Settle time.Duration `yaml:"settle"`
}

type SSHConfig struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	KeepAlive      time.Duration `yaml:"keepalive"`
	// KnownHosts 非空时按 known_hosts 文件校验 host key，否则不校验
	KnownHosts string              `yaml:"known_hosts,omitempty" validate:"omitempty,file"`
	Breaker    BreakerConfig       `yaml:"breaker"`
	SFTP       sftp.TransferConfig `yaml:"sftp"`
}

// BreakerConfig 连接熔断，连续失败 MaxFailures 次后 OpenTimeout 内直接失败
type BreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures" validate:"required_if=Enabled true"`
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// SaltConfig salt 相关的兼容处理
type SaltConfig struct {
	// MasterHost 为空或 0.0.0.0 时不检查 salt-master/salt-minion 服务
	MasterHost   string `yaml:"master_host"`
	RunningState string `yaml:"running_state"`
	// FailedMarker 为 false 时不解析输出中的 "Failed:" 行
	FailedMarker *bool `yaml:"failed_marker,omitempty"`
}

// DefaultConfiguration 默认配置
func DefaultConfiguration() *Configuration {
	return &Configuration{
		Log:    LogConfig{Level: "info", Format: "console"},
		Runner: RunnerConfig{Settle: 3 * time.Second},
		SSH: SSHConfig{
			ConnectTimeout: 15 * time.Second,
			Breaker:        BreakerConfig{MaxFailures: 5, OpenTimeout: 30 * time.Second},
		},
		Salt: SaltConfig{MasterHost: "0.0.0.0", RunningState: "active (running)"},
	}
}

// SaltChecksEnabled salt-master 地址有效时才做服务检查
func (s SaltConfig) SaltChecksEnabled() bool {
	return s.MasterHost != "" && s.MasterHost != "0.0.0.0"
}

// FailedMarkerEnabled 默认开启
func (s SaltConfig) FailedMarkerEnabled() bool {
	return s.FailedMarker == nil || *s.FailedMarker
}
