package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/onepass-id/onepass/internal/app"
	httpx "github.com/onepass-id/onepass/internal/http"
	apperr "github.com/onepass-id/onepass/internal/http/errors"
	"github.com/onepass-id/onepass/internal/http/middlewares"
	"github.com/onepass-id/onepass/internal/oauth"
	"github.com/onepass-id/onepass/internal/store/core"
)

// NewUserInfoHandler proyecta el perfil del dueño del token según los scopes
// otorgados. Corre detrás de RequireAccessToken.
func NewUserInfoHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := middlewares.GetClaims(r.Context())
		if claims == nil {
			apperr.WriteError(w, apperr.ErrMissingToken)
			return
		}
		publicID, err := strconv.ParseUint(claims.Sub, 10, 64)
		if err != nil {
			apperr.WriteError(w, apperr.ErrTokenInvalid)
			return
		}
		u, err := c.Store.GetUserByPublicID(r.Context(), publicID)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				apperr.WriteError(w, apperr.ErrNotFound.WithDetail("usuario no encontrado"))
				return
			}
			apperr.WriteError(w, apperr.ErrInternal.WithCause(err))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, oauth.ResolveUserInfo(u, claims.Scope))
	}
}
