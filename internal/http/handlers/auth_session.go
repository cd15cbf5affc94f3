package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/onepass-id/onepass/internal/app"
	httpx "github.com/onepass-id/onepass/internal/http"
	apperr "github.com/onepass-id/onepass/internal/http/errors"
	"github.com/onepass-id/onepass/internal/http/middlewares"
	"github.com/onepass-id/onepass/internal/observability/logger"
	"github.com/onepass-id/onepass/internal/store/core"
)

// NewSessionHandler responde quién está logueado. Corre detrás de
// RequireSession.
func NewSessionHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := middlewares.GetSession(r.Context())
		if p == nil {
			apperr.WriteError(w, apperr.ErrAuthRequired)
			return
		}
		u, err := c.Store.GetUserByID(r.Context(), p.UserID)
		if err != nil {
			apperr.WriteError(w, apperr.ErrAuthRequired)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"user": sessionUserView(u),
		})
	}
}

// NewLogoutHandler destruye la sesión. Idempotente.
func NewLogoutHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.Sessions.Destroy(w, r)
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"message": "Sesión cerrada."})
	}
}

// recordActivity escribe en el feed sin bloquear el request.
func recordActivity(repo core.Repository, a *core.Activity) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := repo.CreateActivity(ctx, a); err != nil {
		logger.Named("activity").Warn("record_failed", logger.UserID(a.UserID), logger.Err(err))
	}
}
