// Package rate implementa rate limiting de ventana fija. El request-totp se
// limita por email (7 por 10 minutos) además del guard de "un código vivo":
// sin esto, un atacante puede convertir el endpoint en un cañón de spam.
package rate

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Result describe el veredicto para un request.
type Result struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

type Limiter interface {
	// Allow consume un slot de la ventana para la key. Fail-open ante errores
	// de backend: bloquear logins porque redis parpadeó es peor que dejar
	// pasar una ráfaga.
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (Result, error)
}

// ───────────────────────── redis ─────────────────────────

// RedisLimiter: ventana fija con INCR + EXPIRE. El EXPIRE se setea sólo en el
// primer hit de la ventana.
type RedisLimiter struct{ rdb *redis.Client }

func NewRedisLimiter(rdb *redis.Client) *RedisLimiter { return &RedisLimiter{rdb: rdb} }

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (Result, error) {
	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	ttl := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{Allowed: true, Remaining: limit}, err
	}

	n := incr.Val()
	retry := ttl.Val()
	if retry < 0 {
		retry = window
	}
	if n > limit {
		return Result{Allowed: false, Remaining: 0, RetryAfter: retry}, nil
	}
	return Result{Allowed: true, Remaining: limit - n, RetryAfter: retry}, nil
}

// ───────────────────────── memoria ─────────────────────────

type window struct {
	count   int64
	resetAt time.Time
}

// MemoryLimiter replica la semántica de ventana fija in-process. Driver de
// desarrollo y de tests.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{windows: make(map[string]*window)}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string, limit int64, windowDur time.Duration) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(windowDur)}
		l.windows[key] = w
	}
	w.count++
	retry := time.Until(w.resetAt)
	if w.count > limit {
		return Result{Allowed: false, Remaining: 0, RetryAfter: retry}, nil
	}
	return Result{Allowed: true, Remaining: limit - w.count, RetryAfter: retry}, nil
}
