// Package concurrent 分片加锁的并发 Map
package concurrent

import "sync"

// DefaultShardCount 分片数量
const DefaultShardCount = 16

// Map K 必须可比较，hashFunc 决定 Key 落在哪个分片
type Map[K comparable, V any] struct {
	shards   [DefaultShardCount]*shard[K, V]
	hashFunc func(K) uint32
}

type shard[K comparable, V any] struct {
	sync.RWMutex
	items map[K]V
}

func NewMap[K comparable, V any](hashFunc func(K) uint32) *Map[K, V] {
	m := &Map[K, V]{hashFunc: hashFunc}
	for i := range m.shards {
		m.shards[i] = &shard[K, V]{items: make(map[K]V)}
	}
	return m
}

func (m *Map[K, V]) getShard(key K) *shard[K, V] {
	return m.shards[m.hashFunc(key)%DefaultShardCount]
}

// GetOrCreate Key 不存在时在分片锁内调用 create 并写入，保证每个 Key 只创建一次
func (m *Map[K, V]) GetOrCreate(key K, create func() V) V {
	s := m.getShard(key)
	s.RLock()
	val, ok := s.items[key]
	s.RUnlock()
	if ok {
		return val
	}

	s.Lock()
	defer s.Unlock()
	if val, ok := s.items[key]; ok {
		return val
	}
	val = create()
	s.items[key] = val
	return val
}
