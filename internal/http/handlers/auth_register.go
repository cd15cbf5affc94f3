package handlers

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/onepass-id/onepass/internal/app"
	"github.com/onepass-id/onepass/internal/email"
	httpx "github.com/onepass-id/onepass/internal/http"
	apperr "github.com/onepass-id/onepass/internal/http/errors"
	"github.com/onepass-id/onepass/internal/metrics"
	"github.com/onepass-id/onepass/internal/observability/logger"
	"github.com/onepass-id/onepass/internal/store/core"
	"github.com/onepass-id/onepass/internal/validation"
)

// randomPublicID genera el identificador público del usuario: aleatorio en
// [1, 2^63) para que entre en un BIGINT. La unicidad la garantiza el índice;
// ante colisión se reintenta con otro valor.
func randomPublicID() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(b[:]) >> 1 // 63 bits
	if v == 0 {
		v = 1
	}
	return v, nil
}

// virtualAlias arma el alias desechable que ven los clients como "email" del
// usuario bajo read:user.
func virtualAlias(emailAddr string) string {
	local := emailAddr
	if i := strings.IndexByte(emailAddr, '@'); i > 0 {
		local = emailAddr[:i]
	}
	return fmt.Sprintf("%s.%s@mail.onepass.id", local, uuid.NewString()[:8])
}

// NewRegisterHandler crea la cuenta y manda el correo de verificación. La
// cuenta queda inutilizable para login hasta verificar el email.
func NewRegisterHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Username string `json:"username"`
		}
		if !httpx.ReadJSON(w, r, &req) {
			return
		}
		req.Email = strings.TrimSpace(strings.ToLower(req.Email))
		if req.Email == "" {
			apperr.WriteError(w, apperr.ErrMissingFields.WithDetail("email es requerido"))
			return
		}
		if !validation.ValidEmail(req.Email) {
			apperr.WriteError(w, apperr.ErrInvalidFormat.WithDetail("email inválido"))
			return
		}

		verifyToken := uuid.NewString()
		alias := virtualAlias(req.Email)
		u := &core.User{
			Email:             req.Email,
			VirtualEmail:      &alias,
			VerificationToken: &verifyToken,
		}
		if req.Username != "" {
			u.Username = &req.Username
		}

		// Loop corto por si el publicId aleatorio colisiona.
		var err error
		for i := 0; i < 3; i++ {
			u.PublicID, err = randomPublicID()
			if err != nil {
				apperr.WriteError(w, apperr.ErrInternal.WithCause(err))
				return
			}
			err = c.Store.CreateUser(r.Context(), u)
			if err == nil || !errors.Is(err, core.ErrConflict) {
				break
			}
			// Conflicto por email ya registrado, no por publicId
			if _, lookupErr := c.Store.GetUserByEmail(r.Context(), req.Email); lookupErr == nil {
				apperr.WriteError(w, apperr.ErrEmailExists)
				return
			}
		}
		if err != nil {
			if errors.Is(err, core.ErrConflict) {
				apperr.WriteError(w, apperr.ErrEmailExists)
				return
			}
			apperr.WriteError(w, apperr.ErrInternal.WithCause(err))
			return
		}

		link := c.Cfg.Server.BaseURL + "/auth/verify-email?token=" + verifyToken
		c.Mail.Enqueue(email.VerificationMessage(u.Email, link))
		metrics.EmailsEnqueued.WithLabelValues("verification").Inc()
		logger.From(r.Context()).Info("user_registered", logger.UserID(u.ID))

		httpx.WriteJSON(w, http.StatusCreated, map[string]any{
			"message": "Cuenta creada. Revisá tu correo para verificarla.",
		})
	}
}

// NewResendVerificationHandler reemite el correo de verificación con un token
// nuevo; el anterior deja de servir.
func NewResendVerificationHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email string `json:"email"`
		}
		if !httpx.ReadJSON(w, r, &req) {
			return
		}
		req.Email = strings.TrimSpace(strings.ToLower(req.Email))
		if !validation.ValidEmail(req.Email) {
			apperr.WriteError(w, apperr.ErrInvalidFormat.WithDetail("email inválido"))
			return
		}

		u, err := c.Store.GetUserByEmail(r.Context(), req.Email)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				apperr.WriteError(w, apperr.ErrUserNotFound)
				return
			}
			apperr.WriteError(w, apperr.ErrInternal.WithCause(err))
			return
		}
		if u.IsVerified {
			apperr.WriteError(w, apperr.ErrAlreadyVerified)
			return
		}

		verifyToken := uuid.NewString()
		if err := c.Store.SetVerificationToken(r.Context(), u.ID, verifyToken); err != nil {
			apperr.WriteError(w, apperr.ErrInternal.WithCause(err))
			return
		}
		link := c.Cfg.Server.BaseURL + "/auth/verify-email?token=" + verifyToken
		c.Mail.Enqueue(email.VerificationMessage(u.Email, link))
		metrics.EmailsEnqueued.WithLabelValues("verification").Inc()

		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"message": "Correo de verificación reenviado.",
		})
	}
}

// NewVerifyEmailHandler consume el token de verificación.
func NewVerifyEmailHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimSpace(r.URL.Query().Get("token"))
		if tok == "" {
			apperr.WriteError(w, apperr.ErrMissingFields.WithDetail("token es requerido"))
			return
		}
		u, err := c.Store.GetUserByVerificationToken(r.Context(), tok)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				apperr.WriteError(w, apperr.ErrInvalidVerificationToken)
				return
			}
			apperr.WriteError(w, apperr.ErrInternal.WithCause(err))
			return
		}
		if err := c.Store.MarkUserVerified(r.Context(), u.ID); err != nil {
			apperr.WriteError(w, apperr.ErrInternal.WithCause(err))
			return
		}
		logger.From(r.Context()).Info("email_verified", logger.UserID(u.ID))
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"message": "Cuenta verificada. Ya podés iniciar sesión.",
		})
	}
}
