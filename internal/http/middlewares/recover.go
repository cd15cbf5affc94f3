package middlewares

import (
	"net/http"

	apperr "github.com/onepass-id/onepass/internal/http/errors"
	"github.com/onepass-id/onepass/internal/observability/logger"
	"go.uber.org/zap"
)

// WithRecover convierte panics en 500 en lugar de tumbar el proceso.
func WithRecover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.From(r.Context()).Error("panic recovered",
						zap.Any("panic", rec), zap.Stack("stack"))
					apperr.WriteError(w, apperr.ErrInternal)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
