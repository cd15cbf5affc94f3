// Package cache define el cache de corto plazo del servicio: sesiones,
// grants de autorización pendientes y deduplicación de lookups. Los valores
// son bytes opacos; la serialización es responsabilidad del caller.
package cache

import "time"

type Cache interface {
	// Get retorna el valor y true si la key existe y no expiró.
	Get(key string) ([]byte, bool)
	// Set guarda el valor con el TTL dado. ttl <= 0 usa el default del backend.
	Set(key string, val []byte, ttl time.Duration)
	Delete(key string)
}
