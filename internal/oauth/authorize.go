// Package oauth implementa el flujo authorization-code: validación del
// request de autorización, emisión de codes de un solo uso y su canje por un
// access token.
package oauth

import (
	"context"
	"errors"
	"time"

	apperr "github.com/onepass-id/onepass/internal/http/errors"
	"github.com/onepass-id/onepass/internal/jwt"
	"github.com/onepass-id/onepass/internal/metrics"
	"github.com/onepass-id/onepass/internal/observability/logger"
	"github.com/onepass-id/onepass/internal/security/token"
	"github.com/onepass-id/onepass/internal/store/core"
	"github.com/onepass-id/onepass/internal/validation"
)

// CodeTTL es la vida útil de un authorization code.
const CodeTTL = 10 * time.Minute

type Service struct {
	repo   core.Repository
	issuer *jwt.Issuer
}

func NewService(repo core.Repository, issuer *jwt.Issuer) *Service {
	return &Service{repo: repo, issuer: issuer}
}

// ValidateAuthorizationRequest valida los parámetros de GET /oauth/authorize
// antes de mostrar la pantalla de consentimiento. El redirect_uri se compara
// por igualdad exacta contra los registrados; acá no hay normalización.
func (s *Service) ValidateAuthorizationRequest(ctx context.Context, responseType, clientID, redirectURI, scope string) (*core.Client, error) {
	if responseType != "code" {
		return nil, apperr.ErrOAuthInvalidResponseType
	}
	if clientID == "" || redirectURI == "" {
		return nil, apperr.ErrOAuthMissingParams
	}

	client, err := s.repo.GetClientByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, apperr.ErrOAuthInvalidClient
		}
		return nil, apperr.ErrInternal.WithCause(err)
	}

	if !containsExact(client.RedirectURIs, redirectURI) {
		logger.From(ctx).Warn("authorize_redirect_mismatch", logger.ClientID(clientID))
		return nil, apperr.ErrOAuthInvalidRedirectURI
	}

	for _, sc := range SplitScope(scope) {
		if !validation.ValidScopeName(sc) {
			return nil, apperr.ErrInvalidFormat.WithDetail("scope con formato inválido: " + sc)
		}
	}
	// La validación de scopes pasa acá, en la emisión, no recién en el canje:
	// un client no puede pedir consentimiento por permisos que no tiene.
	if scope != "" && !ScopeAllowed(scope, client.Scopes) {
		return nil, apperr.ErrOAuthInsufficientScope
	}

	return client, nil
}

// IssueCode crea un authorization code opaco de un solo uso tras el
// consentimiento del usuario.
func (s *Service) IssueCode(ctx context.Context, userID int64, client *core.Client, redirectURI, scope string) (string, error) {
	code, err := token.GenerateOpaqueToken(32)
	if err != nil {
		return "", apperr.ErrInternal.WithCause(err)
	}
	ac := &core.AuthorizationCode{
		Code:        code,
		ExpiresAt:   time.Now().Add(CodeTTL),
		RedirectURI: redirectURI,
		Scope:       scope,
		ClientID:    client.ClientID,
		UserID:      userID,
	}
	if err := s.repo.CreateAuthorizationCode(ctx, ac); err != nil {
		return "", apperr.ErrInternal.WithCause(err)
	}
	metrics.AuthCodesIssued.Inc()
	logger.From(ctx).Info("authorization_code_issued",
		logger.ClientID(client.ClientID), logger.UserID(userID))
	return code, nil
}

// SweepExpired borra codes vencidos. Corre periódicamente desde main; los
// codes vencidos ya no canjean igual (el canje chequea expiry), esto sólo
// evita que la tabla crezca sin límite.
func (s *Service) SweepExpired(ctx context.Context) {
	n, err := s.repo.DeleteExpiredAuthorizationCodes(ctx, time.Now())
	if err != nil {
		logger.Named("oauth").Warn("code_sweep_failed", logger.Err(err))
		return
	}
	if n > 0 {
		metrics.AuthCodesSwept.Add(float64(n))
	}
}

func containsExact(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}
