// Package otp implementa el flujo de login sin contraseña: emisión de códigos
// de un solo uso por email y su verificación con presupuesto de intentos.
package otp

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/onepass-id/onepass/internal/email"
	apperr "github.com/onepass-id/onepass/internal/http/errors"
	"github.com/onepass-id/onepass/internal/metrics"
	"github.com/onepass-id/onepass/internal/observability/logger"
	otpsec "github.com/onepass-id/onepass/internal/security/otp"
	"github.com/onepass-id/onepass/internal/store/core"
)

// MaxAttempts es el presupuesto de intentos por código emitido.
const MaxAttempts = 3

type Engine struct {
	repo core.Repository
	mail *email.Queue

	// TTL del código. Coincide con el período del derivador: un código vale
	// exactamente una ventana.
	ttl time.Duration
}

func NewEngine(repo core.Repository, mail *email.Queue) *Engine {
	return &Engine{repo: repo, mail: mail, ttl: otpsec.Period}
}

// RequestCode emite un código para el usuario y lo manda por email.
//
// Invariante: a lo sumo un código vivo por usuario. Si ya hay uno, responde
// 429 con los segundos restantes; el cooldown natural es la expiración del
// código vigente, sin timer aparte.
func (e *Engine) RequestCode(ctx context.Context, emailAddr string) error {
	u, err := e.repo.GetUserByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return apperr.ErrUserNotFound
		}
		return apperr.ErrInternal.WithCause(err)
	}
	if !u.IsVerified {
		return apperr.ErrNotVerified
	}

	// El secreto de largo plazo se genera una sola vez, en el primer request.
	secret := u.OTPSecret
	if secret == nil {
		s, err := otpsec.GenerateSecret()
		if err != nil {
			return apperr.ErrInternal.WithCause(err)
		}
		if err := e.repo.SetOTPSecret(ctx, u.ID, s); err != nil {
			return apperr.ErrInternal.WithCause(err)
		}
		secret = &s
	}

	now := time.Now()
	code, err := otpsec.Derive(*secret, now)
	if err != nil {
		return apperr.ErrInternal.WithCause(err)
	}

	expiresAt := now.Add(e.ttl)
	if err := e.repo.ArmOTP(ctx, u.ID, code, expiresAt, MaxAttempts); err != nil {
		if errors.Is(err, core.ErrConflict) {
			// El snapshot puede ser anterior al armado que ganó: se relee
			// para reportar los segundos del código que realmente vive.
			exp := u.OTPExpiresAt
			if fresh, ferr := e.repo.GetUserByID(ctx, u.ID); ferr == nil {
				exp = fresh.OTPExpiresAt
			}
			metrics.OTPIssued.WithLabelValues("conflict").Inc()
			return apperr.ErrCodeAlreadySent.WithMeta("remainingSeconds", remainingSeconds(exp, now))
		}
		return apperr.ErrInternal.WithCause(err)
	}

	e.mail.Enqueue(email.OTPMessage(u.Email, code))
	metrics.OTPIssued.WithLabelValues("ok").Inc()
	metrics.EmailsEnqueued.WithLabelValues("otp").Inc()
	logger.From(ctx).Info("otp_issued", logger.UserID(u.ID))
	return nil
}

// VerifyCode canjea el código. El compare-and-clear vive en el repositorio:
// dos requests simultáneos con el código correcto no pueden ganar los dos.
func (e *Engine) VerifyCode(ctx context.Context, emailAddr, code string) (*core.User, error) {
	u, err := e.repo.GetUserByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, apperr.ErrUserNotFound
		}
		return nil, apperr.ErrInternal.WithCause(err)
	}
	if u.OTPSecret == nil || u.OTPCode == nil {
		metrics.OTPVerified.WithLabelValues("invalid").Inc()
		return nil, apperr.ErrNoValidCode
	}

	switch err := e.repo.ConsumeOTP(ctx, u.ID, code, time.Now()); {
	case err == nil:
		metrics.OTPVerified.WithLabelValues("ok").Inc()
		metrics.Logins.Inc()
		logger.From(ctx).Info("otp_verified", logger.UserID(u.ID))
		return u, nil

	case errors.Is(err, core.ErrExpired):
		metrics.OTPVerified.WithLabelValues("expired").Inc()
		return nil, apperr.ErrCodeExpired

	case errors.Is(err, core.ErrNotFound):
		metrics.OTPVerified.WithLabelValues("invalid").Inc()
		return nil, apperr.ErrNoValidCode

	case errors.Is(err, core.ErrInvalid):
		remaining, ferr := e.repo.FailOTPAttempt(ctx, u.ID)
		if ferr != nil && !errors.Is(ferr, core.ErrNotFound) {
			return nil, apperr.ErrInternal.WithCause(ferr)
		}
		if remaining > 0 {
			metrics.OTPVerified.WithLabelValues("invalid").Inc()
			return nil, apperr.ErrInvalidCode.WithMeta("remainingAttempts", remaining)
		}
		// Presupuesto agotado: el slot quedó limpio, hace falta un código
		// nuevo. Avisamos por email.
		metrics.OTPVerified.WithLabelValues("cancelled").Inc()
		e.mail.Enqueue(email.SecurityAlertMessage(u.Email,
			"Se canceló tu código de acceso por demasiados intentos fallidos."))
		metrics.EmailsEnqueued.WithLabelValues("security_alert").Inc()
		logger.From(ctx).Warn("otp_cancelled", logger.UserID(u.ID))
		return nil, apperr.ErrCodeCancelled.WithMeta("remainingAttempts", 0)

	default:
		return nil, apperr.ErrInternal.WithCause(err)
	}
}

// remainingSeconds redondea hacia arriba: con 89.2s restantes el cliente ve
// 90, nunca 0 con un código todavía vivo.
func remainingSeconds(expiresAt *time.Time, now time.Time) int {
	if expiresAt == nil {
		return 0
	}
	d := expiresAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
