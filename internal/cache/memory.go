package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory envuelve go-cache. Suficiente para single-node; para múltiples
// réplicas usar el backend redis.
type Memory struct{ c *gocache.Cache }

func NewMemory(defaultTTL time.Duration) *Memory {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &Memory{c: gocache.New(defaultTTL, 2*defaultTTL)}
}

func (m *Memory) Get(key string) ([]byte, bool) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

func (m *Memory) Set(key string, val []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	m.c.Set(key, val, ttl)
}

func (m *Memory) Delete(key string) { m.c.Delete(key) }
