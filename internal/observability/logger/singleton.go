package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu       sync.Mutex
	instance *zap.Logger
)

// Init construye el logger del proceso. La primera llamada gana; las
// siguientes no tienen efecto, así los paquetes pueden loguear durante el
// arranque sin pelearse por la configuración.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if instance == nil {
		instance = build(cfg)
	}
}

// L retorna el logger del proceso. Antes de Init entrega uno de desarrollo
// para no perder los logs del bootstrap.
func L() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if instance == nil {
		instance = build(Config{Env: "dev", Level: "info"})
	}
	return instance
}

// Named cuelga un sub-logger con nombre de componente.
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// Sync drena los buffers pendientes; para el defer de main.
func Sync() error {
	return L().Sync()
}
