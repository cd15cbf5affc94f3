package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onepass-id/onepass/internal/app"
	"github.com/onepass-id/onepass/internal/cache"
	"github.com/onepass-id/onepass/internal/config"
	"github.com/onepass-id/onepass/internal/email"
	"github.com/onepass-id/onepass/internal/http/router"
	jwtx "github.com/onepass-id/onepass/internal/jwt"
	"github.com/onepass-id/onepass/internal/oauth"
	"github.com/onepass-id/onepass/internal/otp"
	"github.com/onepass-id/onepass/internal/rate"
	"github.com/onepass-id/onepass/internal/security/password"
	"github.com/onepass-id/onepass/internal/session"
	"github.com/onepass-id/onepass/internal/store/core"
	"github.com/onepass-id/onepass/internal/store/memory"
)

type nullSender struct{}

func (n *nullSender) Send(to, subject, htmlBody, textBody string) error { return nil }

type testEnv struct {
	h     http.Handler
	store *memory.Store
	c     *app.Container
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.JWT.Secret = "test-secret"

	issuer, err := jwtx.NewIssuer(cfg.JWT.Issuer, []byte(cfg.JWT.Secret), time.Hour)
	require.NoError(t, err)

	store := memory.New()
	ca := cache.NewMemory(time.Minute)

	q := email.NewQueue(&nullSender{}, 16)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	q.Start(ctx)

	c := &app.Container{
		Cfg:      cfg,
		Store:    store,
		Cache:    ca,
		Issuer:   issuer,
		Sessions: session.NewManager(ca, cfg.Auth.Session.CookieName, time.Hour),
		Limiter:  rate.NewMemoryLimiter(),
		Mail:     q,
		OTP:      otp.NewEngine(store, q),
		OAuth:    oauth.NewService(store, issuer),
	}
	return &testEnv{h: router.New(c), store: store, c: c}
}

func (e *testEnv) postJSON(t *testing.T, path string, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) get(t *testing.T, path string, headers map[string]string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

// login completa el flujo request+verify y devuelve la cookie de sesión.
func (e *testEnv) login(t *testing.T, emailAddr string) *http.Cookie {
	t.Helper()
	rec := e.postJSON(t, "/auth/request-totp", `{"email":"`+emailAddr+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	u, err := e.store.GetUserByEmail(context.Background(), emailAddr)
	require.NoError(t, err)
	require.NotNil(t, u.OTPCode)

	rec = e.postJSON(t, "/auth/verify-totp", `{"email":"`+emailAddr+`","code":"`+*u.OTPCode+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies[0]
}

func (e *testEnv) seedClient(t *testing.T, ownerID int64, secret string) *core.Client {
	t.Helper()
	hashed, err := password.Hash(password.Default, secret)
	require.NoError(t, err)
	cl := &core.Client{
		ClientID:     "client-1",
		Name:         "MiApp",
		HashedSecret: hashed,
		RedirectURIs: []string{"https://miapp.example.com/cb"},
		Scopes:       []string{"read:user", "read:user:email"},
		OwnerUserID:  ownerID,
	}
	require.NoError(t, e.store.CreateClient(context.Background(), cl))
	return cl
}

func TestRegistroYVerificacionDeEmail(t *testing.T) {
	e := newEnv(t)

	rec := e.postJSON(t, "/auth/register", `{"email":"nueva@example.com","username":"nueva"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Sin verificar, el login se rechaza con 403.
	rec = e.postJSON(t, "/auth/request-totp", `{"email":"nueva@example.com"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "AUTH_NOT_VERIFIED", decode(t, rec)["code"])

	u, err := e.store.GetUserByEmail(context.Background(), "nueva@example.com")
	require.NoError(t, err)
	require.NotNil(t, u.VerificationToken)
	assert.NotNil(t, u.VirtualEmail)
	assert.NotZero(t, u.PublicID)

	rec = e.get(t, "/auth/verify-email?token="+*u.VerificationToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Token de verificación es single-use.
	rec = e.get(t, "/auth/verify-email?token="+*u.VerificationToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Ya verificada, el request-totp pasa.
	rec = e.postJSON(t, "/auth/request-totp", `{"email":"nueva@example.com"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Email duplicado en register.
	rec = e.postJSON(t, "/auth/register", `{"email":"nueva@example.com"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReenvioDeVerificacion(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	rec := e.postJSON(t, "/auth/register", `{"email":"lenta@example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	u, err := e.store.GetUserByEmail(ctx, "lenta@example.com")
	require.NoError(t, err)
	oldToken := *u.VerificationToken

	// El reenvío rota el token: el viejo muere.
	rec = e.postJSON(t, "/auth/send-verification-email", `{"email":"lenta@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.get(t, "/auth/verify-email?token="+oldToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	u, err = e.store.GetUserByEmail(ctx, "lenta@example.com")
	require.NoError(t, err)
	rec = e.get(t, "/auth/verify-email?token="+*u.VerificationToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Verificada, el reenvío se rechaza.
	rec = e.postJSON(t, "/auth/send-verification-email", `{"email":"lenta@example.com"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "AUTH_ALREADY_VERIFIED", decode(t, rec)["code"])

	rec = e.postJSON(t, "/auth/send-verification-email", `{"email":"nadie@example.com"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEscenarioOTPCompleto(t *testing.T) {
	e := newEnv(t)
	u := &core.User{Email: "user@example.com", PublicID: 11, IsVerified: true}
	require.NoError(t, e.store.CreateUser(context.Background(), u))

	// request → 200
	rec := e.postJSON(t, "/auth/request-totp", `{"email":"user@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// request inmediato de nuevo → 429 con remainingSeconds ≈ 90
	rec = e.postJSON(t, "/auth/request-totp", `{"email":"user@example.com"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decode(t, rec)
	assert.InDelta(t, 90, body["remainingSeconds"], 1)

	// código correcto → 200 con sesión
	stored, err := e.store.GetUserByEmail(context.Background(), "user@example.com")
	require.NoError(t, err)
	code := *stored.OTPCode
	rec = e.postJSON(t, "/auth/verify-totp", `{"email":"user@example.com","code":"`+code+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Result().Cookies())

	// mismo código otra vez → 400
	rec = e.postJSON(t, "/auth/verify-totp", `{"email":"user@example.com","code":"`+code+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSesionYLogout(t *testing.T) {
	e := newEnv(t)
	u := &core.User{Email: "user@example.com", PublicID: 11, IsVerified: true}
	require.NoError(t, e.store.CreateUser(context.Background(), u))

	ck := e.login(t, "user@example.com")

	rec := e.get(t, "/auth/session", nil, ck)
	require.Equal(t, http.StatusOK, rec.Code)
	user := decode(t, rec)["user"].(map[string]any)
	assert.Equal(t, "user@example.com", user["email"])

	// Sin cookie, 401.
	rec = e.get(t, "/auth/session", map[string]string{"Accept": "application/json"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Logout invalida la sesión server-side.
	rec = e.postJSON(t, "/auth/logout", `{}`, ck)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = e.get(t, "/auth/session", map[string]string{"Accept": "application/json"}, ck)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestFlujoOAuthCompleto(t *testing.T) {
	e := newEnv(t)
	u := &core.User{Email: "user@example.com", PublicID: 998877, IsVerified: true}
	require.NoError(t, e.store.CreateUser(context.Background(), u))

	const secret = "secreto-del-client"
	e.seedClient(t, u.ID, secret)
	ck := e.login(t, "user@example.com")

	// authorize → redirect a consent con grant_id
	authzURL := "/oauth/authorize?response_type=code&client_id=client-1" +
		"&redirect_uri=" + url.QueryEscape("https://miapp.example.com/cb") +
		"&scope=" + url.QueryEscape("read:user") + "&state=xyz"
	rec := e.get(t, authzURL, nil, ck)
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	grantID := loc.Query().Get("grant_id")
	require.NotEmpty(t, grantID)

	// detalles de consentimiento
	rec = e.get(t, "/oauth/consent-details?grant_id="+url.QueryEscape(grantID), nil, ck)
	require.Equal(t, http.StatusOK, rec.Code)
	details := decode(t, rec)
	assert.Equal(t, "MiApp", details["clientName"])

	// aprobar → redirect_to con code y state
	rec = e.postJSON(t, "/oauth/consent",
		`{"grant_id":"`+grantID+`","approved":true}`, ck)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	redirectTo, err := url.Parse(decode(t, rec)["redirect_to"].(string))
	require.NoError(t, err)
	code := redirectTo.Query().Get("code")
	require.NotEmpty(t, code)
	assert.Equal(t, "xyz", redirectTo.Query().Get("state"))

	// canjear el code (form-urlencoded)
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {"client-1"},
		"client_secret": {secret},
		"redirect_uri":  {"https://miapp.example.com/cb"},
	}
	req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	tokenRec := httptest.NewRecorder()
	e.h.ServeHTTP(tokenRec, req)
	require.Equal(t, http.StatusOK, tokenRec.Code, tokenRec.Body.String())
	tokenBody := decode(t, tokenRec)
	accessToken := tokenBody["access_token"].(string)
	assert.Equal(t, "Bearer", tokenBody["token_type"])
	assert.EqualValues(t, 3600, tokenBody["expires_in"])

	// el code es single-use
	req = httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	reuse := httptest.NewRecorder()
	e.h.ServeHTTP(reuse, req)
	assert.Equal(t, http.StatusBadRequest, reuse.Code)

	// perfil con el access token
	rec = e.get(t, "/user/profile", map[string]string{"Authorization": "Bearer " + accessToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	profile := decode(t, rec)
	assert.Equal(t, "998877", profile["sub"])
	assert.Equal(t, "user", profile["username"])
	assert.Equal(t, true, profile["email_verified"])

	// sin token → 401
	rec = e.get(t, "/user/profile", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConsentDenegado(t *testing.T) {
	e := newEnv(t)
	u := &core.User{Email: "user@example.com", PublicID: 5, IsVerified: true}
	require.NoError(t, e.store.CreateUser(context.Background(), u))
	e.seedClient(t, u.ID, "s")
	ck := e.login(t, "user@example.com")

	authzURL := "/oauth/authorize?response_type=code&client_id=client-1" +
		"&redirect_uri=" + url.QueryEscape("https://miapp.example.com/cb")
	rec := e.get(t, authzURL, nil, ck)
	require.Equal(t, http.StatusFound, rec.Code)
	loc, _ := url.Parse(rec.Header().Get("Location"))
	grantID := loc.Query().Get("grant_id")

	rec = e.postJSON(t, "/oauth/consent", `{"grant_id":"`+grantID+`","approved":false}`, ck)
	require.Equal(t, http.StatusOK, rec.Code)
	redirectTo, err := url.Parse(decode(t, rec)["redirect_to"].(string))
	require.NoError(t, err)
	assert.Equal(t, "access_denied", redirectTo.Query().Get("error"))
	assert.Empty(t, redirectTo.Query().Get("code"))

	// El grant se consumió con la decisión.
	rec = e.postJSON(t, "/oauth/consent", `{"grant_id":"`+grantID+`","approved":true}`, ck)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthorizeRechazos(t *testing.T) {
	e := newEnv(t)
	u := &core.User{Email: "user@example.com", PublicID: 5, IsVerified: true}
	require.NoError(t, e.store.CreateUser(context.Background(), u))
	e.seedClient(t, u.ID, "s")
	ck := e.login(t, "user@example.com")

	// Sin sesión, API recibe 401.
	rec := e.get(t, "/oauth/authorize?response_type=code&client_id=client-1&redirect_uri=x",
		map[string]string{"Accept": "application/json"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// redirect_uri no registrado.
	rec = e.get(t, "/oauth/authorize?response_type=code&client_id=client-1"+
		"&redirect_uri="+url.QueryEscape("https://evil.example.com/cb"), nil, ck)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// scope que el client no tiene.
	rec = e.get(t, "/oauth/authorize?response_type=code&client_id=client-1"+
		"&redirect_uri="+url.QueryEscape("https://miapp.example.com/cb")+
		"&scope=admin", nil, ck)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAPIKeyGuard(t *testing.T) {
	e := newEnv(t)
	u := &core.User{Email: "o@example.com", PublicID: 3, IsVerified: true}
	require.NoError(t, e.store.CreateUser(context.Background(), u))
	cl := e.seedClient(t, u.ID, "s")

	rec := e.get(t, "/api/me", map[string]string{"Authorization": "Bearer " + cl.ClientID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "client-1", body["clientId"])
	assert.Equal(t, "MiApp", body["name"])

	rec = e.get(t, "/api/me", map[string]string{"Authorization": "Bearer nadie"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVentanaDeEmisionPorEmail(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := &core.User{Email: "spam@example.com", PublicID: 11, IsVerified: true}
	require.NoError(t, e.store.CreateUser(ctx, u))

	// Cada emisión libera el slot quemando los intentos, así la ventana por
	// email es lo único que queda frenando al emisor.
	burnSlot := func() {
		got, err := e.store.GetUserByEmail(ctx, "spam@example.com")
		require.NoError(t, err)
		require.NotNil(t, got.OTPCode)
		wrong := "000000"
		if wrong == *got.OTPCode {
			wrong = "000001"
		}
		for j := 0; j < otp.MaxAttempts; j++ {
			e.postJSON(t, "/auth/verify-totp", `{"email":"spam@example.com","code":"`+wrong+`"}`)
		}
	}

	for i := 0; i < e.c.Cfg.Rate.RequestCode.Limit; i++ {
		rec := e.postJSON(t, "/auth/request-totp", `{"email":"spam@example.com"}`)
		require.Equal(t, http.StatusOK, rec.Code, "emisión %d: %s", i+1, rec.Body.String())
		burnSlot()
	}

	rec := e.postJSON(t, "/auth/request-totp", `{"email":"spam@example.com"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "RATE_LIMITED", body["code"])
	assert.Greater(t, body["remainingSeconds"].(float64), float64(0))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Otro email no comparte la ventana.
	otro := &core.User{Email: "otra@example.com", PublicID: 12, IsVerified: true}
	require.NoError(t, e.store.CreateUser(ctx, otro))
	rec = e.postJSON(t, "/auth/request-totp", `{"email":"otra@example.com"}`)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
