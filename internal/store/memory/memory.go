// Package memory implementa core.Repository en memoria. Se usa como driver
// "memory" para desarrollo y como fake transaccional en tests: todas las
// operaciones se serializan bajo un mutex, que juega el rol del row-lock de
// un storage real.
package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/onepass-id/onepass/internal/store/core"
)

type Store struct {
	mu sync.Mutex

	nextUserID int64
	users      map[int64]*core.User

	nextClientID int64
	clients      map[string]*core.Client // key: client_id público

	codes map[string]*core.AuthorizationCode

	links      map[string]*core.LinkedSite // key: userID|name
	activities []core.Activity
}

func New() *Store {
	return &Store{
		users:   make(map[int64]*core.User),
		clients: make(map[string]*core.Client),
		codes:   make(map[string]*core.AuthorizationCode),
		links:   make(map[string]*core.LinkedSite),
	}
}

func (s *Store) Ping(ctx context.Context) error { return nil }

// ───────────────────────── usuarios ─────────────────────────

func (s *Store) CreateUser(ctx context.Context, u *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range s.users {
		if ex.Email == u.Email || ex.PublicID == u.PublicID {
			return core.ErrConflict
		}
	}
	s.nextUserID++
	u.ID = s.nextUserID
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByPublicID(ctx context.Context, publicID uint64) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.PublicID == publicID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) GetUserByVerificationToken(ctx context.Context, token string) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.VerificationToken != nil && *u.VerificationToken == token {
			cp := *u
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) MarkUserVerified(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.ErrNotFound
	}
	u.IsVerified = true
	u.VerificationToken = nil
	return nil
}

func (s *Store) SetVerificationToken(ctx context.Context, id int64, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.ErrNotFound
	}
	u.VerificationToken = &token
	return nil
}

func (s *Store) SetOTPSecret(ctx context.Context, id int64, secretB32 string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.ErrNotFound
	}
	u.OTPSecret = &secretB32
	return nil
}

// ───────────────────────── slot OTP ─────────────────────────

func (s *Store) ArmOTP(ctx context.Context, userID int64, code string, expiresAt time.Time, attempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return core.ErrNotFound
	}
	if u.OTPCode != nil && u.OTPExpiresAt != nil && time.Now().Before(*u.OTPExpiresAt) {
		return core.ErrConflict
	}
	u.OTPCode = &code
	u.OTPExpiresAt = &expiresAt
	u.OTPAttempts = attempts
	return nil
}

func (s *Store) ConsumeOTP(ctx context.Context, userID int64, code string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return core.ErrNotFound
	}
	if u.OTPCode == nil || u.OTPExpiresAt == nil {
		return core.ErrNotFound
	}
	if now.After(*u.OTPExpiresAt) {
		clearOTP(u)
		return core.ErrExpired
	}
	if *u.OTPCode != code {
		return core.ErrInvalid
	}
	clearOTP(u)
	return nil
}

func (s *Store) FailOTPAttempt(ctx context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return 0, core.ErrNotFound
	}
	if u.OTPCode == nil {
		return 0, core.ErrNotFound
	}
	u.OTPAttempts--
	if u.OTPAttempts <= 0 {
		clearOTP(u)
		return 0, nil
	}
	return u.OTPAttempts, nil
}

func (s *Store) ClearOTP(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return core.ErrNotFound
	}
	clearOTP(u)
	return nil
}

func clearOTP(u *core.User) {
	u.OTPCode = nil
	u.OTPExpiresAt = nil
	u.OTPAttempts = 0
}

// ───────────────────────── clients ─────────────────────────

func (s *Store) CreateClient(ctx context.Context, c *core.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.ClientID]; ok {
		return core.ErrConflict
	}
	s.nextClientID++
	c.ID = s.nextClientID
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	cp := *c
	cp.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	cp.Scopes = append([]string(nil), c.Scopes...)
	s.clients[c.ClientID] = &cp
	return nil
}

func (s *Store) GetClientByClientID(ctx context.Context, clientID string) (*core.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[clientID]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *c
	cp.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	cp.Scopes = append([]string(nil), c.Scopes...)
	return &cp, nil
}

func (s *Store) TouchClientUsage(ctx context.Context, clientID string, when time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[clientID]
	if !ok {
		return core.ErrNotFound
	}
	c.UsageCount++
	w := when
	c.LastUsedAt = &w
	return nil
}

// ───────────────────────── authorization codes ─────────────────────────

func (s *Store) CreateAuthorizationCode(ctx context.Context, ac *core.AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[ac.Code]; ok {
		return core.ErrConflict
	}
	cp := *ac
	s.codes[ac.Code] = &cp
	return nil
}

func (s *Store) ConsumeAuthorizationCode(ctx context.Context, code string) (*core.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ac, ok := s.codes[code]
	if !ok {
		return nil, core.ErrNotFound
	}
	delete(s.codes, code)
	cp := *ac
	return &cp, nil
}

func (s *Store) DeleteExpiredAuthorizationCodes(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, ac := range s.codes {
		if now.After(ac.ExpiresAt) {
			delete(s.codes, k)
			n++
		}
	}
	return n, nil
}

// ───────────────────────── efectos dashboard ─────────────────────────

func (s *Store) UpsertLinkedSite(ctx context.Context, ls *core.LinkedSite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := linkKey(ls.UserID, ls.Name)
	if ex, ok := s.links[key]; ok {
		ex.LastActivity = ls.LastActivity
		return nil
	}
	cp := *ls
	s.links[key] = &cp
	return nil
}

func (s *Store) CreateActivity(ctx context.Context, a *core.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.activities = append(s.activities, cp)
	return nil
}

// Activities expone el feed para asserts en tests.
func (s *Store) Activities() []core.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Activity(nil), s.activities...)
}

// LinkedSites expone los sitios vinculados para asserts en tests.
func (s *Store) LinkedSites() []core.LinkedSite {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.LinkedSite, 0, len(s.links))
	for _, v := range s.links {
		out = append(out, *v)
	}
	return out
}

func linkKey(userID int64, name string) string {
	return strconv.FormatInt(userID, 10) + "|" + name
}
