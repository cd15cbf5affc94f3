package handlers

import (
	"net/http"

	"github.com/onepass-id/onepass/internal/app"
	httpx "github.com/onepass-id/onepass/internal/http"
	apperr "github.com/onepass-id/onepass/internal/http/errors"
	"github.com/onepass-id/onepass/internal/http/middlewares"
)

// NewClientMeHandler devuelve la identidad y el uso acumulado del client
// autenticado por API key. Corre detrás de RequireAPIKey.
func NewClientMeHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client := middlewares.GetClient(r.Context())
		if client == nil {
			apperr.WriteError(w, apperr.ErrInvalidAPIKey)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"clientId":   client.ClientID,
			"name":       client.Name,
			"scopes":     client.Scopes,
			"usageCount": client.UsageCount,
			"lastUsedAt": client.LastUsedAt,
			"createdAt":  client.CreatedAt,
		})
	}
}
