// Package router cablea rutas, handlers y guards.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onepass-id/onepass/internal/app"
	"github.com/onepass-id/onepass/internal/http/handlers"
	mw "github.com/onepass-id/onepass/internal/http/middlewares"
	"github.com/onepass-id/onepass/internal/oauth"
)

// New construye el router completo del servicio.
func New(c *app.Container) http.Handler {
	r := chi.NewRouter()

	base := []mw.Middleware{
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithLogging(),
		mw.WithCORS(c.Cfg.Server.CORSAllowedOrigins),
	}
	with := func(h http.HandlerFunc, extra ...mw.Middleware) http.Handler {
		return mw.ChainFunc(h, append(append([]mw.Middleware{}, base...), extra...)...)
	}

	sessionGuard := mw.RequireSession(c.Sessions, c.Cfg.Auth.LoginURL)

	// Infra
	r.Method(http.MethodGet, "/healthz", with(handlers.NewHealthzHandler()))
	r.Method(http.MethodGet, "/readyz", with(handlers.NewReadyzHandler(c)))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Cuenta y login sin contraseña
	r.Method(http.MethodPost, "/auth/register", with(handlers.NewRegisterHandler(c)))
	r.Method(http.MethodGet, "/auth/verify-email", with(handlers.NewVerifyEmailHandler(c)))
	r.Method(http.MethodPost, "/auth/send-verification-email", with(handlers.NewResendVerificationHandler(c)))
	r.Method(http.MethodPost, "/auth/request-totp", with(handlers.NewRequestTOTPHandler(c)))
	r.Method(http.MethodPost, "/auth/verify-totp", with(handlers.NewVerifyTOTPHandler(c)))
	r.Method(http.MethodGet, "/auth/session", with(handlers.NewSessionHandler(c), sessionGuard))
	r.Method(http.MethodPost, "/auth/logout", with(handlers.NewLogoutHandler(c)))

	// Flujo OAuth
	r.Method(http.MethodGet, "/oauth/authorize", with(handlers.NewOAuthAuthorizeHandler(c), sessionGuard))
	r.Method(http.MethodGet, "/oauth/consent-details", with(handlers.NewConsentDetailsHandler(c), sessionGuard))
	r.Method(http.MethodPost, "/oauth/consent", with(handlers.NewConsentDecisionHandler(c), sessionGuard))
	r.Method(http.MethodPost, "/oauth/token", with(handlers.NewOAuthTokenHandler(c)))
	r.Method(http.MethodGet, "/oauth/userinfo",
		with(handlers.NewUserInfoHandler(c), mw.RequireAccessToken(c.Issuer, "")))

	// Recursos protegidos por access token
	r.Method(http.MethodGet, "/user/profile",
		with(handlers.NewUserInfoHandler(c), mw.RequireAccessToken(c.Issuer, oauth.ScopeReadUser)))

	// Server-to-server con API key
	r.Method(http.MethodGet, "/api/me",
		with(handlers.NewClientMeHandler(c), mw.RequireAPIKey(c.Store, "")))

	return r
}
