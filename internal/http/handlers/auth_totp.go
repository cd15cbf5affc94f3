package handlers

import (
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/onepass-id/onepass/internal/app"
	"github.com/onepass-id/onepass/internal/email"
	httpx "github.com/onepass-id/onepass/internal/http"
	apperr "github.com/onepass-id/onepass/internal/http/errors"
	"github.com/onepass-id/onepass/internal/http/middlewares"
	"github.com/onepass-id/onepass/internal/metrics"
	"github.com/onepass-id/onepass/internal/observability/logger"
	"github.com/onepass-id/onepass/internal/store/core"
	"github.com/onepass-id/onepass/internal/validation"
)

// NewRequestTOTPHandler emite un código de un solo uso por email.
//
// Dos límites distintos protegen el endpoint: el invariante de un código vivo
// (en el engine) y una ventana fija por email que frena el spam de correos
// aunque los códigos vayan expirando.
func NewRequestTOTPHandler(c *app.Container) http.HandlerFunc {
	limit := int64(c.Cfg.Rate.RequestCode.Limit)
	window, _ := time.ParseDuration(c.Cfg.Rate.RequestCode.Window)

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

		if !c.Cfg.Rate.Disabled {
			res, err := c.Limiter.Allow(r.Context(), "otp:req:"+req.Email, limit, window)
			if err != nil {
				logger.From(r.Context()).Warn("rate_backend_error", logger.Err(err))
			}
			if !res.Allowed {
				metrics.OTPIssued.WithLabelValues("rate_limited").Inc()
				apperr.WriteError(w, apperr.ErrTooManyRequests.WithMeta(
					"remainingSeconds", int(math.Ceil(res.RetryAfter.Seconds()))))
				return
			}
		}

		if err := c.OTP.RequestCode(r.Context(), req.Email); err != nil {
			apperr.WriteError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"message": "Código enviado. Revisá tu correo.",
		})
	}
}

// NewVerifyTOTPHandler canjea el código y crea la sesión de navegador.
func NewVerifyTOTPHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email string `json:"email"`
			Code  string `json:"code"`
		}
		if !httpx.ReadJSON(w, r, &req) {
			return
		}
		req.Email = strings.TrimSpace(strings.ToLower(req.Email))
		if !validation.ValidEmail(req.Email) || !validation.ValidOTPCode(req.Code) {
			apperr.WriteError(w, apperr.ErrInvalidFormat.WithDetail("email o código con formato inválido"))
			return
		}

		u, err := c.OTP.VerifyCode(r.Context(), req.Email, req.Code)
		if err != nil {
			apperr.WriteError(w, err)
			return
		}

		if _, err := c.Sessions.Create(w, u.ID, u.Email); err != nil {
			apperr.WriteError(w, apperr.ErrInternal.WithCause(err))
			return
		}

		// Efectos del login, fire-and-forget.
		ip := middlewares.ClientIP(r)
		go recordActivity(c.Store, &core.Activity{
			UserID:    u.ID,
			Type:      "login",
			Title:     "Inicio de sesión",
			IPAddress: ip,
			UserAgent: r.UserAgent(),
		})
		c.Mail.Enqueue(email.LoginNotificationMessage(u.Email, ip, r.UserAgent()))
		metrics.EmailsEnqueued.WithLabelValues("login_alert").Inc()

		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"user": sessionUserView(u),
		})
	}
}

func sessionUserView(u *core.User) map[string]any {
	username := ""
	if u.Username != nil {
		username = *u.Username
	}
	return map[string]any{
		"email":    u.Email,
		"username": username,
		"verified": u.IsVerified,
	}
}
