package middlewares

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onepass-id/onepass/internal/cache"
	jwtx "github.com/onepass-id/onepass/internal/jwt"
	"github.com/onepass-id/onepass/internal/session"
	"github.com/onepass-id/onepass/internal/store/core"
	"github.com/onepass-id/onepass/internal/store/memory"
)

func okHandler(t *testing.T, hit *bool) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hit = true
		w.WriteHeader(http.StatusOK)
	})
}

// ───────────────────────── sesión ─────────────────────────

func TestRequireSessionSinCookie(t *testing.T) {
	sm := session.NewManager(cache.NewMemory(time.Minute), "sid", time.Hour)
	var hit bool
	h := RequireSession(sm, "/login")(okHandler(t, &hit))

	t.Run("request API recibe 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
		req.Header.Set("Accept", "application/json")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, hit)
	})

	t.Run("navegación redirige a login con next", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/dashboard?tab=apps", nil)
		req.Header.Set("Accept", "text/html,application/xhtml+xml")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/login?next=%2Fdashboard%3Ftab%3Dapps", rec.Header().Get("Location"))
		assert.False(t, hit)
	})
}

func TestRequireSessionConSesionActiva(t *testing.T) {
	sm := session.NewManager(cache.NewMemory(time.Minute), "sid", time.Hour)

	// Creamos la sesión con el manager real y reusamos la cookie.
	setup := httptest.NewRecorder()
	_, err := sm.Create(setup, 42, "user@example.com")
	require.NoError(t, err)
	cookie := setup.Result().Cookies()[0]

	var gotUserID int64
	h := RequireSession(sm, "/login")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = GetSession(r.Context()).UserID
	}))

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 42, gotUserID)
}

// ───────────────────────── access token ─────────────────────────

func TestRequireAccessToken(t *testing.T) {
	issuer, err := jwtx.NewIssuer("onepass", []byte("s"), time.Hour)
	require.NoError(t, err)

	call := func(mw Middleware, authz string) *httptest.ResponseRecorder {
		var hit bool
		h := mw(okHandler(t, &hit))
		req := httptest.NewRequest(http.MethodGet, "/user/profile", nil)
		if authz != "" {
			req.Header.Set("Authorization", authz)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	t.Run("sin header 401", func(t *testing.T) {
		rec := call(RequireAccessToken(issuer, ""), "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "MISSING_TOKEN")
	})

	t.Run("token inválido", func(t *testing.T) {
		rec := call(RequireAccessToken(issuer, ""), "Bearer basura")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "TOKEN_INVALID")
	})

	t.Run("token expirado se distingue de inválido", func(t *testing.T) {
		shortLived, err := jwtx.NewIssuer("onepass", []byte("s"), time.Millisecond)
		require.NoError(t, err)
		raw, _, err := shortLived.IssueAccess("1", "c", "")
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)

		rec := call(RequireAccessToken(issuer, ""), "Bearer "+raw)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "TOKEN_EXPIRED")
	})

	t.Run("scope insuficiente 403", func(t *testing.T) {
		raw, _, err := issuer.IssueAccess("1", "c", "read:user")
		require.NoError(t, err)
		rec := call(RequireAccessToken(issuer, "read:user:email"), "Bearer "+raw)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "INSUFFICIENT_TOKEN_SCOPE")
	})

	t.Run("token válido inyecta claims", func(t *testing.T) {
		raw, _, err := issuer.IssueAccess("777", "client-x", "read:user")
		require.NoError(t, err)

		var sub string
		h := RequireAccessToken(issuer, "read:user")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sub = GetClaims(r.Context()).Sub
		}))
		req := httptest.NewRequest(http.MethodGet, "/user/profile", nil)
		req.Header.Set("Authorization", "Bearer "+raw)
		h.ServeHTTP(httptest.NewRecorder(), req)

		assert.Equal(t, "777", sub)
	})
}

// ───────────────────────── API key ─────────────────────────

func TestRequireAPIKey(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	owner := &core.User{Email: "o@example.com", PublicID: 1, IsVerified: true}
	require.NoError(t, repo.CreateUser(ctx, owner))
	cl := &core.Client{ClientID: "key-abc", Name: "Integración", HashedSecret: "x",
		Scopes: []string{"read:user"}, OwnerUserID: owner.ID}
	require.NoError(t, repo.CreateClient(ctx, cl))

	t.Run("key inexistente 401", func(t *testing.T) {
		var hit bool
		h := RequireAPIKey(repo, "")(okHandler(t, &hit))
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.Header.Set("Authorization", "Bearer fantasma")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("scope no otorgado a la key 403", func(t *testing.T) {
		var hit bool
		h := RequireAPIKey(repo, "read:user:email")(okHandler(t, &hit))
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.Header.Set("Authorization", "Bearer key-abc")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("key válida inyecta client y contabiliza uso", func(t *testing.T) {
		var gotName string
		h := RequireAPIKey(repo, "read:user")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotName = GetClient(r.Context()).Name
		}))
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.Header.Set("Authorization", "Bearer key-abc")
		h.ServeHTTP(httptest.NewRecorder(), req)

		assert.Equal(t, "Integración", gotName)

		// El touch de uso es async.
		assert.Eventually(t, func() bool {
			got, err := repo.GetClientByClientID(ctx, "key-abc")
			return err == nil && got.UsageCount == 1
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("la cancelación del caller no tumba el lookup compartido", func(t *testing.T) {
		canceled, cancel := context.WithCancel(context.Background())
		cancel()

		var hit bool
		h := RequireAPIKey(&ctxStrictRepo{Repository: repo}, "")(okHandler(t, &hit))
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil).WithContext(canceled)
		req.Header.Set("Authorization", "Bearer key-abc")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, hit)
	})
}

// ctxStrictRepo rechaza lookups cuyo contexto ya fue cancelado, como haría un
// driver real de base de datos.
type ctxStrictRepo struct {
	core.Repository
}

func (s *ctxStrictRepo) GetClientByClientID(ctx context.Context, id string) (*core.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Repository.GetClientByClientID(ctx, id)
}
