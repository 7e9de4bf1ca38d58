package config

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/wentf9/xops-underlay/pkg/logger"
	"github.com/wentf9/xops-underlay/pkg/models"
)

// KeyFetcher 从已注册节点上读取默认私钥
// 由 ssh.Connector 实现，注册表只依赖这个接口
type KeyFetcher interface {
	FetchKeys(ctx context.Context, entry models.CredentialEntry) ([]string, error)
}

// Registry 节点认证信息注册表
// 按注册顺序保存记录，所有查找都是线性的。不是并发安全的，调用方需自行串行化
type Registry struct {
	entries []models.CredentialEntry
	fetcher KeyFetcher
	log     logger.Logger
}

type RegistryOption func(*Registry)

func WithKeyFetcher(f KeyFetcher) RegistryOption {
	return func(r *Registry) {
		r.fetcher = f
	}
}

func WithRegistryLogger(l logger.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		entries: []models.CredentialEntry{},
		log:     logger.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// UseKeyFetcher 设置密钥来源
// Connector 依赖 Registry，所以只能在两者都创建之后再注入
func (r *Registry) UseKeyFetcher(f KeyFetcher) {
	r.fetcher = f
}

// Add 规范化并追加记录
// 配置了 KeysSourceHost 时，会从该节点复制 ~/.ssh/id_rsa 到新记录的 Keys 中
func (r *Registry) Add(ctx context.Context, entries ...models.CredentialEntry) error {
	for _, in := range entries {
		entry := in.Normalize()
		if in.KeysSourceHost != "" {
			keys, err := r.sourceKeys(ctx, in.KeysSourceHost)
			if err != nil {
				return fmt.Errorf("copy keys for '%s' from '%s': %w", entry.NodeName, in.KeysSourceHost, err)
			}
			entry.Keys = append(entry.Keys, keys...)
		}
		r.entries = append(r.entries, entry)
		r.log.Debug("node registered",
			logger.String("node", entry.NodeName),
			logger.String("address_pool", entry.AddressPool),
			logger.String("host", entry.Host),
			logger.Int("keys", len(entry.Keys)))
	}
	return nil
}

// sourceKeys 先按节点名查找密钥来源，找不到再按主机地址查找
func (r *Registry) sourceKeys(ctx context.Context, source string) ([]string, error) {
	src, err := r.Lookup(models.Node(source))
	if err != nil {
		var nf *NotFoundError
		if !errors.As(err, &nf) {
			return nil, err
		}
		src, err = r.Lookup(models.HostTarget(source))
		if err != nil {
			return nil, err
		}
	}
	if r.fetcher == nil {
		return nil, errors.New("no key fetcher configured")
	}
	return r.fetcher.FetchKeys(ctx, src)
}

// Remove 删除第一条完全匹配的记录
func (r *Registry) Remove(entries ...models.CredentialEntry) error {
	for _, in := range entries {
		entry := in.Normalize()
		idx := slices.IndexFunc(r.entries, entry.Equal)
		if idx < 0 {
			return &NotFoundError{Entry: &entry}
		}
		r.entries = slices.Delete(r.entries, idx, idx+1)
		r.log.Debug("node removed", logger.String("node", entry.NodeName), logger.String("host", entry.Host))
	}
	return nil
}

// NodeNames 返回去重后的节点名，保持首次注册的顺序
func (r *Registry) NodeNames() []string {
	names := []string{}
	for _, e := range r.entries {
		if !slices.Contains(names, e.NodeName) {
			names = append(names, e.NodeName)
		}
	}
	return names
}

// Lookup 查找认证信息
//   - Host 非空: 返回第一条 Host 相同的记录，忽略 NodeName/AddressPool
//   - 否则按 NodeName 查找；AddressPool 非空时同时匹配地址池，
//     为空时返回第一条同名记录(不论地址池)
func (r *Registry) Lookup(target models.Target) (models.CredentialEntry, error) {
	switch {
	case target.Host != "":
		for _, e := range r.entries {
			if e.Host == target.Host {
				return e.Clone(), nil
			}
		}
	case target.NodeName != "":
		for _, e := range r.entries {
			if e.NodeName != target.NodeName {
				continue
			}
			if target.AddressPool == "" || target.AddressPool == e.AddressPool {
				return e.Clone(), nil
			}
		}
	}
	return models.CredentialEntry{}, &NotFoundError{Target: target}
}

// HostByNodeName 返回节点在指定地址池下的地址
func (r *Registry) HostByNodeName(nodeName, addressPool string) (string, error) {
	e, err := r.Lookup(models.Target{NodeName: nodeName, AddressPool: addressPool})
	if err != nil {
		return "", err
	}
	return e.Host, nil
}

// Entries 返回所有记录的副本
func (r *Registry) Entries() []models.CredentialEntry {
	out := make([]models.CredentialEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Clone())
	}
	return out
}

// WithRole 返回带有指定标记的记录
func (r *Registry) WithRole(role string) []models.CredentialEntry {
	var out []models.CredentialEntry
	for _, e := range r.entries {
		if e.HasRole(role) {
			out = append(out, e.Clone())
		}
	}
	return out
}

func (r *Registry) Len() int {
	return len(r.entries)
}
