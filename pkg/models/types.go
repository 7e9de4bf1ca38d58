package models

import (
	"fmt"
	"slices"
	"strings"
)

// DefaultPort 未配置端口时使用的 SSH 端口
const DefaultPort = 22

// CredentialEntry 描述如何连接到一个节点
// 同一个节点可以在不同的地址池(网卡)下各有一条记录
type CredentialEntry struct {
	NodeName    string `yaml:"node_name" validate:"required"`
	AddressPool string `yaml:"address_pool,omitempty"`
	Host        string `yaml:"host" validate:"required"` // IP 或 域名
	Port        int    `yaml:"port,omitempty" validate:"gte=0,lte=65535"`
	Login       string `yaml:"login" validate:"required"`
	Password    string `yaml:"password,omitempty"`
	// Keys 私钥内容(PEM)，按顺序尝试
	Keys []string `yaml:"keys,omitempty"`
	// KeysSourceHost 注册时从该节点复制 ~/.ssh/id_rsa，只在注册阶段使用
	KeysSourceHost string   `yaml:"keys_source_host,omitempty"`
	Roles          []string `yaml:"roles,omitempty"` // 仅作标记
}

// Normalize 填充可选字段的默认值，返回新的副本
func (e CredentialEntry) Normalize() CredentialEntry {
	n := e
	n.KeysSourceHost = ""
	if n.Port == 0 {
		n.Port = DefaultPort
	}
	n.Keys = append([]string{}, e.Keys...)
	n.Roles = []string{}
	for _, r := range e.Roles {
		if !slices.Contains(n.Roles, r) {
			n.Roles = append(n.Roles, r)
		}
	}
	return n
}

// Clone 深拷贝，保证注册表里的记录不会被外部修改
func (e CredentialEntry) Clone() CredentialEntry {
	c := e
	c.Keys = slices.Clone(e.Keys)
	c.Roles = slices.Clone(e.Roles)
	return c
}

// Equal 比较两条已规范化的记录，Roles 按集合比较
func (e CredentialEntry) Equal(o CredentialEntry) bool {
	if e.NodeName != o.NodeName || e.AddressPool != o.AddressPool ||
		e.Host != o.Host || e.Port != o.Port ||
		e.Login != o.Login || e.Password != o.Password {
		return false
	}
	if !slices.Equal(e.Keys, o.Keys) {
		return false
	}
	if len(e.Roles) != len(o.Roles) {
		return false
	}
	for _, r := range e.Roles {
		if !slices.Contains(o.Roles, r) {
			return false
		}
	}
	return true
}

// HasRole 是否带有指定标记
func (e CredentialEntry) HasRole(role string) bool {
	return slices.Contains(e.Roles, role)
}

func (e CredentialEntry) String() string {
	if e.AddressPool == "" {
		return fmt.Sprintf("%s(%s@%s:%d)", e.NodeName, e.Login, e.Host, e.Port)
	}
	return fmt.Sprintf("%s/%s(%s@%s:%d)", e.NodeName, e.AddressPool, e.Login, e.Host, e.Port)
}

// Target 查找节点的条件
// Host 优先；否则按 NodeName 查找，AddressPool 为空时取第一条匹配
type Target struct {
	NodeName    string `yaml:"node_name,omitempty"`
	Host        string `yaml:"host,omitempty"`
	AddressPool string `yaml:"address_pool,omitempty"`
}

// Node 便捷构造
func Node(name string) Target {
	return Target{NodeName: name}
}

// HostTarget 便捷构造
func HostTarget(host string) Target {
	return Target{Host: host}
}

func (t Target) IsZero() bool {
	return t.NodeName == "" && t.Host == ""
}

func (t Target) String() string {
	switch {
	case t.Host != "":
		return t.Host
	case t.AddressPool != "":
		return t.NodeName + "/" + t.AddressPool
	default:
		return t.NodeName
	}
}

// Result 一次远程命令的执行结果
type Result struct {
	Stdout   []string
	Stderr   []string
	ExitCode int
	// Failure 在关闭报错(NoRaise)时记录退出码不符合预期的错误
	Failure error
}

// StdoutString 将标准输出拼接成一个字符串
func (r Result) StdoutString() string {
	return strings.Join(r.Stdout, "\n")
}

// StderrString 将标准错误拼接成一个字符串
func (r Result) StderrString() string {
	return strings.Join(r.Stderr, "\n")
}

// SplitLines 将命令输出切分为行，去掉末尾的空行
func SplitLines(out string) []string {
	out = strings.TrimRight(out, "\r\n")
	if out == "" {
		return []string{}
	}
	lines := strings.Split(out, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
