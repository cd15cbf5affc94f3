// Package metrics registra los contadores Prometheus del servicio.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// result: ok | conflict | rate_limited
	OTPIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "onepass_otp_issued_total",
		Help: "Emisiones de código de un solo uso, por resultado.",
	}, []string{"result"})

	// result: ok | invalid | expired | cancelled
	OTPVerified = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "onepass_otp_verified_total",
		Help: "Verificaciones de código, por resultado.",
	}, []string{"result"})

	// result: ok | invalid_client | invalid_grant | invalid_request
	TokenExchanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "onepass_token_exchanges_total",
		Help: "Canjes de authorization code, por resultado.",
	}, []string{"result"})

	Logins = promauto.NewCounter(prometheus.CounterOpts{
		Name: "onepass_logins_total",
		Help: "Sesiones iniciadas con éxito.",
	})

	AuthCodesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "onepass_authorization_codes_issued_total",
		Help: "Authorization codes emitidos.",
	})

	AuthCodesSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "onepass_authorization_codes_swept_total",
		Help: "Authorization codes vencidos barridos por el GC.",
	})

	EmailsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "onepass_emails_enqueued_total",
		Help: "Correos encolados, por tipo.",
	}, []string{"kind"})
)
