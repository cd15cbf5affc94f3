package oauth

import (
	"context"
	"errors"
	"strconv"
	"time"

	apperr "github.com/onepass-id/onepass/internal/http/errors"
	"github.com/onepass-id/onepass/internal/metrics"
	"github.com/onepass-id/onepass/internal/observability/logger"
	"github.com/onepass-id/onepass/internal/security/password"
	"github.com/onepass-id/onepass/internal/store/core"
)

// TokenResponse es el cuerpo de POST /oauth/token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope"`
}

// Exchange canjea un authorization code por un access token.
//
// El code se consume ANTES de validar binding y expiry: un code tocado queda
// quemado aunque el canje falle después. Con el DELETE atómico del storage,
// dos canjes concurrentes del mismo code dejan exactamente un ganador.
func (s *Service) Exchange(ctx context.Context, grantType, code, clientID, clientSecret, redirectURI string) (*TokenResponse, error) {
	if grantType != "authorization_code" {
		metrics.TokenExchanges.WithLabelValues("invalid_request").Inc()
		return nil, apperr.ErrOAuthInvalidGrantType
	}
	if code == "" || clientID == "" || clientSecret == "" || redirectURI == "" {
		metrics.TokenExchanges.WithLabelValues("invalid_request").Inc()
		return nil, apperr.ErrMissingFields
	}

	client, err := s.repo.GetClientByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			metrics.TokenExchanges.WithLabelValues("invalid_client").Inc()
			return nil, apperr.ErrOAuthInvalidClientCredentials
		}
		return nil, apperr.ErrInternal.WithCause(err)
	}
	if !password.Verify(clientSecret, client.HashedSecret) {
		metrics.TokenExchanges.WithLabelValues("invalid_client").Inc()
		logger.From(ctx).Warn("token_exchange_bad_secret", logger.ClientID(clientID))
		return nil, apperr.ErrOAuthInvalidClientCredentials
	}

	ac, err := s.repo.ConsumeAuthorizationCode(ctx, code)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			metrics.TokenExchanges.WithLabelValues("invalid_grant").Inc()
			return nil, apperr.ErrOAuthInvalidCode
		}
		return nil, apperr.ErrInternal.WithCause(err)
	}

	if ac.ClientID != clientID {
		metrics.TokenExchanges.WithLabelValues("invalid_grant").Inc()
		return nil, apperr.ErrOAuthInvalidCode
	}
	if ac.RedirectURI != redirectURI {
		metrics.TokenExchanges.WithLabelValues("invalid_grant").Inc()
		return nil, apperr.ErrOAuthInvalidRedirectURI
	}
	if time.Now().After(ac.ExpiresAt) {
		metrics.TokenExchanges.WithLabelValues("invalid_grant").Inc()
		return nil, apperr.ErrOAuthCodeExpired
	}

	user, err := s.repo.GetUserByID(ctx, ac.UserID)
	if err != nil {
		return nil, apperr.ErrInternal.WithCause(err)
	}

	// El sub del token es el publicId, nunca el id interno.
	sub := strconv.FormatUint(user.PublicID, 10)
	accessToken, _, err := s.issuer.IssueAccess(sub, clientID, ac.Scope)
	if err != nil {
		return nil, apperr.ErrInternal.WithCause(err)
	}

	// Efecto del dashboard, fire-and-forget: un fallo acá no bloquea el login.
	go s.recordLinkedSite(user, client)

	metrics.TokenExchanges.WithLabelValues("ok").Inc()
	logger.From(ctx).Info("token_exchange_ok",
		logger.ClientID(clientID), logger.UserID(user.ID))

	return &TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.issuer.AccessTTL.Seconds()),
		Scope:       ac.Scope,
	}, nil
}

func (s *Service) recordLinkedSite(user *core.User, client *core.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	siteURL := ""
	if len(client.RedirectURIs) > 0 {
		siteURL = client.RedirectURIs[0]
	}
	emailShown := "N/A"
	if user.VirtualEmail != nil {
		emailShown = *user.VirtualEmail
	}
	err := s.repo.UpsertLinkedSite(ctx, &core.LinkedSite{
		UserID:       user.ID,
		Name:         client.Name,
		URL:          siteURL,
		Email:        emailShown,
		LastActivity: time.Now(),
	})
	if err != nil {
		logger.Named("oauth").Warn("linked_site_upsert_failed",
			logger.UserID(user.ID), logger.ClientID(client.ClientID), logger.Err(err))
	}
}
