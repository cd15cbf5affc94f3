package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis implementa Cache sobre un redis compartido. Los errores de red se
// tratan como miss: el caller decide si re-autentica o re-consulta.
type Redis struct {
	rdb        *redis.Client
	defaultTTL time.Duration
}

func NewRedis(rdb *redis.Client, defaultTTL time.Duration) *Redis {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &Redis{rdb: rdb, defaultTTL: defaultTTL}
}

func (r *Redis) Get(key string) ([]byte, bool) {
	b, err := r.rdb.Get(context.Background(), key).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (r *Redis) Set(key string, val []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	r.rdb.Set(context.Background(), key, val, ttl)
}

func (r *Redis) Delete(key string) {
	r.rdb.Del(context.Background(), key)
}
