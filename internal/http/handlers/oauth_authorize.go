package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/onepass-id/onepass/internal/app"
	httpx "github.com/onepass-id/onepass/internal/http"
	apperr "github.com/onepass-id/onepass/internal/http/errors"
	"github.com/onepass-id/onepass/internal/http/middlewares"
	"github.com/onepass-id/onepass/internal/oauth"
	"github.com/onepass-id/onepass/internal/security/token"
)

// pendingGrant es el flujo de autorización parqueado entre el authorize y la
// decisión de consentimiento. Vive en cache con el mismo TTL que un code.
type pendingGrant struct {
	UserID      int64     `json:"userId"`
	ClientID    string    `json:"clientId"`
	ClientName  string    `json:"clientName"`
	LogoURL     string    `json:"logoUrl,omitempty"`
	RedirectURI string    `json:"redirectUri"`
	Scope       string    `json:"scope"`
	State       string    `json:"state,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func grantKey(id string) string { return "oauth:grant:" + token.SHA256Base64URL(id) }

// NewOAuthAuthorizeHandler valida el request de autorización y parquea el
// flujo para la pantalla de consentimiento. Corre detrás de RequireSession:
// sin login primero no hay consentimiento.
func NewOAuthAuthorizeHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		sess := middlewares.GetSession(r.Context())
		if sess == nil {
			apperr.WriteError(w, apperr.ErrAuthRequired)
			return
		}

		client, err := c.OAuth.ValidateAuthorizationRequest(r.Context(),
			q.Get("response_type"), q.Get("client_id"), q.Get("redirect_uri"), q.Get("scope"))
		if err != nil {
			apperr.WriteError(w, err)
			return
		}

		grantID, err := token.GenerateOpaqueToken(24)
		if err != nil {
			apperr.WriteError(w, apperr.ErrInternal.WithCause(err))
			return
		}
		logo := ""
		if client.LogoURL != nil {
			logo = *client.LogoURL
		}
		pg := pendingGrant{
			UserID:      sess.UserID,
			ClientID:    client.ClientID,
			ClientName:  client.Name,
			LogoURL:     logo,
			RedirectURI: q.Get("redirect_uri"),
			Scope:       q.Get("scope"),
			State:       q.Get("state"),
			CreatedAt:   time.Now(),
		}
		b, _ := json.Marshal(pg)
		c.Cache.Set(grantKey(grantID), b, oauth.CodeTTL)

		http.Redirect(w, r, "/consent?grant_id="+url.QueryEscape(grantID), http.StatusFound)
	}
}

// NewConsentDetailsHandler alimenta la pantalla de consentimiento: qué client
// pide qué scopes.
func NewConsentDetailsHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		grantID := r.URL.Query().Get("grant_id")
		pg, ok := loadGrant(c, grantID)
		if !ok {
			apperr.WriteError(w, apperr.ErrOAuthSessionExpired)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"clientName": pg.ClientName,
			"logoUrl":    pg.LogoURL,
			"scopes":     oauth.SplitScope(pg.Scope),
		})
	}
}

// NewConsentDecisionHandler resuelve el consentimiento. Aprobado, emite el
// authorization code y devuelve adonde redirigir; denegado, redirige con
// error=access_denied según RFC 6749 §4.1.2.1.
func NewConsentDecisionHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			GrantID  string `json:"grant_id"`
			Approved bool   `json:"approved"`
		}
		if !httpx.ReadJSON(w, r, &req) {
			return
		}
		sess := middlewares.GetSession(r.Context())
		if sess == nil {
			apperr.WriteError(w, apperr.ErrAuthRequired)
			return
		}

		pg, ok := loadGrant(c, req.GrantID)
		if !ok {
			apperr.WriteError(w, apperr.ErrOAuthSessionExpired)
			return
		}
		// El grant se consume pase lo que pase: una decisión por flujo.
		c.Cache.Delete(grantKey(req.GrantID))

		if pg.UserID != sess.UserID {
			apperr.WriteError(w, apperr.ErrOAuthSessionExpired)
			return
		}

		redirect, err := url.Parse(pg.RedirectURI)
		if err != nil {
			apperr.WriteError(w, apperr.ErrOAuthInvalidRedirectURI)
			return
		}
		qs := redirect.Query()

		if !req.Approved {
			qs.Set("error", "access_denied")
			if pg.State != "" {
				qs.Set("state", pg.State)
			}
			redirect.RawQuery = qs.Encode()
			httpx.WriteJSON(w, http.StatusOK, map[string]any{"redirect_to": redirect.String()})
			return
		}

		client, err := c.Store.GetClientByClientID(r.Context(), pg.ClientID)
		if err != nil {
			apperr.WriteError(w, apperr.ErrOAuthInvalidClient)
			return
		}
		code, aerr := c.OAuth.IssueCode(r.Context(), pg.UserID, client, pg.RedirectURI, pg.Scope)
		if aerr != nil {
			apperr.WriteError(w, aerr)
			return
		}

		qs.Set("code", code)
		if pg.State != "" {
			qs.Set("state", pg.State)
		}
		redirect.RawQuery = qs.Encode()
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"redirect_to": redirect.String()})
	}
}

func loadGrant(c *app.Container, grantID string) (*pendingGrant, bool) {
	grantID = strings.TrimSpace(grantID)
	if grantID == "" {
		return nil, false
	}
	b, ok := c.Cache.Get(grantKey(grantID))
	if !ok {
		return nil, false
	}
	var pg pendingGrant
	if err := json.Unmarshal(b, &pg); err != nil {
		return nil, false
	}
	return &pg, true
}
