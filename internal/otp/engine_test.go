package otp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onepass-id/onepass/internal/email"
	apperr "github.com/onepass-id/onepass/internal/http/errors"
	"github.com/onepass-id/onepass/internal/store/core"
	"github.com/onepass-id/onepass/internal/store/memory"
)

// captureSender acumula los correos enviados para los asserts.
type captureSender struct {
	mu   sync.Mutex
	sent []string // destinatarios
}

func (c *captureSender) Send(to, subject, htmlBody, textBody string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, to)
	return nil
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func newTestEngine(t *testing.T) (*Engine, *memory.Store, *captureSender) {
	t.Helper()
	repo := memory.New()
	sender := &captureSender{}
	q := email.NewQueue(sender, 16)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	q.Start(ctx)

	return NewEngine(repo, q), repo, sender
}

func seedVerified(t *testing.T, repo *memory.Store, addr string) *core.User {
	t.Helper()
	u := &core.User{Email: addr, PublicID: 7, IsVerified: true}
	require.NoError(t, repo.CreateUser(context.Background(), u))
	return u
}

func appErrOf(t *testing.T, err error) *apperr.AppError {
	t.Helper()
	ae, ok := err.(*apperr.AppError)
	require.True(t, ok, "se esperaba *AppError, llegó %T", err)
	return ae
}

func TestRequestCodeUsuarioInexistente(t *testing.T) {
	e, _, _ := newTestEngine(t)
	err := e.RequestCode(context.Background(), "nadie@example.com")
	assert.Equal(t, "AUTH_USER_NOT_FOUND", appErrOf(t, err).Code)
}

func TestRequestCodeNoVerificado(t *testing.T) {
	e, repo, _ := newTestEngine(t)
	u := &core.User{Email: "raw@example.com", PublicID: 9}
	require.NoError(t, repo.CreateUser(context.Background(), u))

	err := e.RequestCode(context.Background(), "raw@example.com")
	assert.Equal(t, "AUTH_NOT_VERIFIED", appErrOf(t, err).Code)
}

func TestRequestCodeEmiteYManda(t *testing.T) {
	e, repo, sender := newTestEngine(t)
	u := seedVerified(t, repo, "user@example.com")

	require.NoError(t, e.RequestCode(context.Background(), u.Email))

	got, err := repo.GetUserByID(context.Background(), u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.OTPSecret, "el secreto se genera en el primer request")
	require.NotNil(t, got.OTPCode)
	assert.Regexp(t, `^\d{6}$`, *got.OTPCode)
	assert.Equal(t, MaxAttempts, got.OTPAttempts)
	assert.WithinDuration(t, time.Now().Add(90*time.Second), *got.OTPExpiresAt, 2*time.Second)

	// Exactamente un correo por request exitoso.
	assert.Eventually(t, func() bool { return sender.count() == 1 },
		time.Second, 10*time.Millisecond)
}

func TestRequestCodeConCodigoVivoEs429(t *testing.T) {
	e, repo, _ := newTestEngine(t)
	u := seedVerified(t, repo, "user@example.com")
	ctx := context.Background()

	require.NoError(t, e.RequestCode(ctx, u.Email))

	err := e.RequestCode(ctx, u.Email)
	ae := appErrOf(t, err)
	assert.Equal(t, "AUTH_CODE_ALREADY_SENT", ae.Code)
	assert.Equal(t, 429, ae.HTTPStatus)

	secs, ok := ae.Meta["remainingSeconds"].(int)
	require.True(t, ok)
	assert.InDelta(t, 90, secs, 1, "remainingSeconds ≈ expiry - now")
}

// racingRepo simula un armado concurrente: otro request gana el slot entre el
// snapshot del usuario y el ArmOTP propio.
type racingRepo struct {
	*memory.Store
}

func (r *racingRepo) ArmOTP(ctx context.Context, userID int64, code string, expiresAt time.Time, attempts int) error {
	if err := r.Store.ArmOTP(ctx, userID, "999999", time.Now().Add(90*time.Second), attempts); err != nil {
		return err
	}
	return core.ErrConflict
}

func TestRequestCodeConflictoConcurrenteReportaSegundosReales(t *testing.T) {
	repo := &racingRepo{Store: memory.New()}
	q := email.NewQueue(&captureSender{}, 16)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	q.Start(ctx)
	e := NewEngine(repo, q)

	u := &core.User{Email: "user@example.com", PublicID: 7, IsVerified: true}
	require.NoError(t, repo.CreateUser(context.Background(), u))

	// El snapshot del engine no tiene expiry (el slot se armó "después"), pero
	// el 429 igual reporta los segundos del código que vive.
	err := e.RequestCode(context.Background(), u.Email)
	ae := appErrOf(t, err)
	assert.Equal(t, "AUTH_CODE_ALREADY_SENT", ae.Code)
	secs, ok := ae.Meta["remainingSeconds"].(int)
	require.True(t, ok)
	assert.InDelta(t, 90, secs, 2)
}

func TestVerifyCodeOKEsSingleUse(t *testing.T) {
	e, repo, _ := newTestEngine(t)
	u := seedVerified(t, repo, "user@example.com")
	ctx := context.Background()

	require.NoError(t, e.RequestCode(ctx, u.Email))
	got, err := repo.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	code := *got.OTPCode

	verified, err := e.VerifyCode(ctx, u.Email, code)
	require.NoError(t, err)
	assert.Equal(t, u.ID, verified.ID)

	// Mismo código de nuevo: el slot ya se limpió.
	_, err = e.VerifyCode(ctx, u.Email, code)
	assert.Equal(t, "AUTH_NO_VALID_TOTP", appErrOf(t, err).Code)
}

func TestVerifyCodeAgotaIntentos(t *testing.T) {
	e, repo, sender := newTestEngine(t)
	u := seedVerified(t, repo, "user@example.com")
	ctx := context.Background()

	require.NoError(t, e.RequestCode(ctx, u.Email))
	got, err := repo.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	realCode := *got.OTPCode

	wrong := "000000"
	if wrong == realCode {
		wrong = "000001"
	}

	// Intentos 1 y 2: INVALID_TOTP con remainingAttempts decreciente.
	_, err = e.VerifyCode(ctx, u.Email, wrong)
	ae := appErrOf(t, err)
	assert.Equal(t, "INVALID_TOTP", ae.Code)
	assert.Equal(t, 2, ae.Meta["remainingAttempts"])

	_, err = e.VerifyCode(ctx, u.Email, wrong)
	ae = appErrOf(t, err)
	assert.Equal(t, "INVALID_TOTP", ae.Code)
	assert.Equal(t, 1, ae.Meta["remainingAttempts"])

	// Tercer fallo: código cancelado, resultado distinto de un mismatch común.
	_, err = e.VerifyCode(ctx, u.Email, wrong)
	ae = appErrOf(t, err)
	assert.Equal(t, "OTP_CANCELLED", ae.Code)

	// El código real ya no sirve: hay que pedir uno nuevo.
	_, err = e.VerifyCode(ctx, u.Email, realCode)
	assert.Equal(t, "AUTH_NO_VALID_TOTP", appErrOf(t, err).Code)

	// Se mandó el OTP y el aviso de seguridad.
	assert.Eventually(t, func() bool { return sender.count() == 2 },
		time.Second, 10*time.Millisecond)

	// Y el slot libre permite emitir de nuevo sin 429.
	assert.NoError(t, e.RequestCode(ctx, u.Email))
}

func TestVerifyCodeExpirado(t *testing.T) {
	e, repo, _ := newTestEngine(t)
	u := seedVerified(t, repo, "user@example.com")
	ctx := context.Background()

	require.NoError(t, e.RequestCode(ctx, u.Email))
	got, err := repo.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	code := *got.OTPCode

	// Forzamos la expiración rearmando el slot con expiry en el pasado.
	require.NoError(t, repo.ClearOTP(ctx, u.ID))
	require.NoError(t, repo.ArmOTP(ctx, u.ID, code, time.Now().Add(-time.Second), MaxAttempts))

	_, err = e.VerifyCode(ctx, u.Email, code)
	assert.Equal(t, "AUTH_TOTP_EXPIRED", appErrOf(t, err).Code)
}

func TestVerifyCodeSinSlot(t *testing.T) {
	e, repo, _ := newTestEngine(t)
	u := seedVerified(t, repo, "user@example.com")

	_, err := e.VerifyCode(context.Background(), u.Email, "123456")
	assert.Equal(t, "AUTH_NO_VALID_TOTP", appErrOf(t, err).Code)
}
