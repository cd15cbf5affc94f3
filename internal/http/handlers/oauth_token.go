package handlers

import (
	"net/http"
	"strings"

	"github.com/onepass-id/onepass/internal/app"
	httpx "github.com/onepass-id/onepass/internal/http"
	apperr "github.com/onepass-id/onepass/internal/http/errors"
)

// NewOAuthTokenHandler canjea un authorization code por un access token.
// Acepta application/x-www-form-urlencoded (OAuth2 clásico) y JSON.
func NewOAuthTokenHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var grantType, code, clientID, clientSecret, redirectURI string

		ct := strings.ToLower(r.Header.Get("Content-Type"))
		if strings.Contains(ct, "application/json") {
			var req struct {
				GrantType    string `json:"grant_type"`
				Code         string `json:"code"`
				ClientID     string `json:"client_id"`
				ClientSecret string `json:"client_secret"`
				RedirectURI  string `json:"redirect_uri"`
			}
			if !httpx.ReadJSON(w, r, &req) {
				return
			}
			grantType, code = req.GrantType, req.Code
			clientID, clientSecret = req.ClientID, req.ClientSecret
			redirectURI = req.RedirectURI
		} else {
			r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
			if err := r.ParseForm(); err != nil {
				apperr.WriteError(w, apperr.ErrBadRequest.WithDetail("form inválido"))
				return
			}
			grantType = strings.TrimSpace(r.PostForm.Get("grant_type"))
			code = strings.TrimSpace(r.PostForm.Get("code"))
			clientID = strings.TrimSpace(r.PostForm.Get("client_id"))
			clientSecret = strings.TrimSpace(r.PostForm.Get("client_secret"))
			redirectURI = strings.TrimSpace(r.PostForm.Get("redirect_uri"))
		}

		resp, err := c.OAuth.Exchange(r.Context(), grantType, code, clientID, clientSecret, redirectURI)
		if err != nil {
			apperr.WriteError(w, err)
			return
		}

		// Tokens no se cachean.
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		httpx.WriteJSON(w, http.StatusOK, resp)
	}
}
