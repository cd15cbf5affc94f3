package middlewares

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	apperr "github.com/onepass-id/onepass/internal/http/errors"
	jwtx "github.com/onepass-id/onepass/internal/jwt"
	"github.com/onepass-id/onepass/internal/oauth"
	"github.com/onepass-id/onepass/internal/observability/logger"
	"github.com/onepass-id/onepass/internal/session"
	"github.com/onepass-id/onepass/internal/store/core"
)

type sessionCtxKey struct{}
type claimsCtxKey struct{}
type clientCtxKey struct{}

// GetSession retorna la sesión inyectada por RequireSession, o nil.
func GetSession(ctx context.Context) *session.Payload {
	v, _ := ctx.Value(sessionCtxKey{}).(*session.Payload)
	return v
}

// GetClaims retorna los claims del access token validado, o nil.
func GetClaims(ctx context.Context) *jwtx.AccessClaims {
	v, _ := ctx.Value(claimsCtxKey{}).(*jwtx.AccessClaims)
	return v
}

// GetClient retorna el client autenticado por API key, o nil.
func GetClient(ctx context.Context) *core.Client {
	v, _ := ctx.Value(clientCtxKey{}).(*core.Client)
	return v
}

// wantsHTML distingue navegación de navegador de llamadas API para decidir
// entre redirect a login y 401.
func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// RequireSession exige una sesión de navegador activa. Para requests API
// responde 401; para navegaciones redirige a login preservando el destino
// original en ?next= para volver después del login.
func RequireSession(sm *session.Manager, loginURL string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := sm.Get(r)
			if !ok {
				if wantsHTML(r) {
					target := loginURL + "?next=" + url.QueryEscape(r.URL.RequestURI())
					http.Redirect(w, r, target, http.StatusFound)
					return
				}
				apperr.WriteError(w, apperr.ErrAuthRequired)
				return
			}
			ctx := context.WithValue(r.Context(), sessionCtxKey{}, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// RequireAccessToken valida un Bearer access token y, si se pide, un scope.
// Expirado e inválido se reportan con códigos distintos: el cliente decide
// entre refrescar el flujo y descartar el token.
func RequireAccessToken(issuer *jwtx.Issuer, requiredScope string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				apperr.WriteError(w, apperr.ErrMissingToken)
				return
			}
			claims, err := issuer.ParseAccess(raw)
			if err != nil {
				if errors.Is(err, jwtx.ErrTokenExpired) {
					apperr.WriteError(w, apperr.ErrTokenExpired)
					return
				}
				apperr.WriteError(w, apperr.ErrTokenInvalid)
				return
			}
			if requiredScope != "" && !oauth.HasScope(claims.Scope, requiredScope) {
				apperr.WriteError(w, apperr.ErrInsufficientTokenScope.WithDetail(
					"se requiere el scope "+requiredScope))
				return
			}
			ctx := context.WithValue(r.Context(), claimsCtxKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// clientLookups deduplica lookups concurrentes del mismo client_id: una
// ráfaga de requests con la misma API key hace un solo viaje al storage.
var clientLookups singleflight.Group

// RequireAPIKey autentica requests server-to-server donde el Bearer es el
// client_id. El contador de uso se actualiza fuera del request path.
func RequireAPIKey(repo core.Repository, requiredScope string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, ok := bearerToken(r)
			if !ok {
				apperr.WriteError(w, apperr.ErrMissingToken)
				return
			}

			// El lookup se comparte entre requests concurrentes: se desacopla
			// del contexto del primer caller para que su cancelación no
			// tumbe a los demás.
			v, err, _ := clientLookups.Do(key, func() (any, error) {
				ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 3*time.Second)
				defer cancel()
				return repo.GetClientByClientID(ctx, key)
			})
			if err != nil {
				if errors.Is(err, core.ErrNotFound) {
					apperr.WriteError(w, apperr.ErrInvalidAPIKey)
					return
				}
				apperr.WriteError(w, apperr.ErrInternal.WithCause(err))
				return
			}
			client := v.(*core.Client)

			if requiredScope != "" && !oauth.ScopeAllowed(requiredScope, client.Scopes) {
				apperr.WriteError(w, apperr.ErrInsufficientScope.WithDetail(
					"la API key no tiene el scope "+requiredScope))
				return
			}

			// Contabilidad de uso fire-and-forget.
			go func(clientID string) {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := repo.TouchClientUsage(ctx, clientID, time.Now()); err != nil {
					logger.Named("apikey").Warn("usage_touch_failed",
						logger.ClientID(clientID), logger.Err(err))
				}
			}(client.ClientID)

			ctx := context.WithValue(r.Context(), clientCtxKey{}, client)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
