package app

import (
	"github.com/onepass-id/onepass/internal/cache"
	"github.com/onepass-id/onepass/internal/config"
	"github.com/onepass-id/onepass/internal/email"
	jwtx "github.com/onepass-id/onepass/internal/jwt"
	"github.com/onepass-id/onepass/internal/oauth"
	"github.com/onepass-id/onepass/internal/otp"
	"github.com/onepass-id/onepass/internal/rate"
	"github.com/onepass-id/onepass/internal/session"
	"github.com/onepass-id/onepass/internal/store/core"
)

// Container es el contenedor DI simple que usamos en los handlers.
type Container struct {
	Cfg      *config.Config
	Store    core.Repository
	Cache    cache.Cache
	Issuer   *jwtx.Issuer
	Sessions *session.Manager
	Limiter  rate.Limiter
	Mail     *email.Queue

	OTP   *otp.Engine
	OAuth *oauth.Service
}
