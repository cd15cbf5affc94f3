package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey struct{}

// ToContext cuelga un logger del contexto. El middleware de requests lo usa
// para propagar uno ya decorado con request_id, método y path.
func ToContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From recupera el logger del contexto, o el del proceso si no hay ninguno.
// Cualquier capa puede llamar From(ctx) sin saber si el middleware corrió.
func From(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
			return l
		}
	}
	return L()
}
