package pg

import (
	"context"
	"time"

	"github.com/onepass-id/onepass/internal/store/core"
)

// ───────────────────────── clients ─────────────────────────

func (s *Store) CreateClient(ctx context.Context, c *core.Client) error {
	const q = `INSERT INTO clients
		(client_id, name, logo_url, hashed_secret, redirect_uris, scopes, owner_user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`
	err := s.pool.QueryRow(ctx, q,
		c.ClientID, c.Name, c.LogoURL, c.HashedSecret, c.RedirectURIs, c.Scopes,
		c.OwnerUserID).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) GetClientByClientID(ctx context.Context, clientID string) (*core.Client, error) {
	const q = `SELECT id, client_id, name, logo_url, hashed_secret, redirect_uris,
		scopes, owner_user_id, usage_count, last_used_at, created_at
		FROM clients WHERE client_id = $1`
	var c core.Client
	err := s.pool.QueryRow(ctx, q, clientID).Scan(&c.ID, &c.ClientID, &c.Name,
		&c.LogoURL, &c.HashedSecret, &c.RedirectURIs, &c.Scopes, &c.OwnerUserID,
		&c.UsageCount, &c.LastUsedAt, &c.CreatedAt)
	if err != nil {
		if noRows(err) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) TouchClientUsage(ctx context.Context, clientID string, when time.Time) error {
	const q = `UPDATE clients
		SET usage_count = usage_count + 1, last_used_at = $2
		WHERE client_id = $1`
	tag, err := s.pool.Exec(ctx, q, clientID, when)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// ───────────────────────── authorization codes ─────────────────────────

func (s *Store) CreateAuthorizationCode(ctx context.Context, ac *core.AuthorizationCode) error {
	const q = `INSERT INTO authorization_codes
		(code, expires_at, redirect_uri, scope, client_id, user_id)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.pool.Exec(ctx, q,
		ac.Code, ac.ExpiresAt, ac.RedirectURI, ac.Scope, ac.ClientID, ac.UserID)
	if err != nil && isUniqueViolation(err) {
		return core.ErrConflict
	}
	return err
}

// ConsumeAuthorizationCode: DELETE ... RETURNING garantiza que a lo sumo un
// caller concurrente observa el código; los demás ven ErrNotFound.
func (s *Store) ConsumeAuthorizationCode(ctx context.Context, code string) (*core.AuthorizationCode, error) {
	const q = `DELETE FROM authorization_codes WHERE code = $1
		RETURNING code, expires_at, redirect_uri, scope, client_id, user_id`
	var ac core.AuthorizationCode
	err := s.pool.QueryRow(ctx, q, code).Scan(&ac.Code, &ac.ExpiresAt,
		&ac.RedirectURI, &ac.Scope, &ac.ClientID, &ac.UserID)
	if err != nil {
		if noRows(err) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	return &ac, nil
}

func (s *Store) DeleteExpiredAuthorizationCodes(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM authorization_codes WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ───────────────────────── efectos dashboard ─────────────────────────

func (s *Store) UpsertLinkedSite(ctx context.Context, ls *core.LinkedSite) error {
	const q = `INSERT INTO linked_sites (user_id, name, url, email, last_activity)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, name) DO UPDATE SET last_activity = EXCLUDED.last_activity`
	_, err := s.pool.Exec(ctx, q, ls.UserID, ls.Name, ls.URL, ls.Email, ls.LastActivity)
	return err
}

func (s *Store) CreateActivity(ctx context.Context, a *core.Activity) error {
	const q = `INSERT INTO activities
		(user_id, type, title, description, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.pool.Exec(ctx, q,
		a.UserID, a.Type, a.Title, a.Description, a.IPAddress, a.UserAgent)
	return err
}
