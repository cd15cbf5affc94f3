// Package session maneja las sesiones de navegador: cookie opaca + registro
// en cache. La key del cache es el sha256 del sid, así un dump del cache no
// regala cookies utilizables.
package session

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/onepass-id/onepass/internal/cache"
	"github.com/onepass-id/onepass/internal/security/token"
)

const keyPrefix = "sess:"

// Payload es lo que se guarda en cache por sesión activa.
type Payload struct {
	UserID   int64     `json:"userId"`
	Email    string    `json:"email"`
	IssuedAt time.Time `json:"issuedAt"`
}

type Manager struct {
	Cache      cache.Cache
	TTL        time.Duration
	CookieName string
	Domain     string
	Secure     bool
	SameSite   http.SameSite
}

func NewManager(c cache.Cache, cookieName string, ttl time.Duration) *Manager {
	if cookieName == "" {
		cookieName = "onepass_sid"
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Manager{
		Cache:      c,
		TTL:        ttl,
		CookieName: cookieName,
		SameSite:   http.SameSiteLaxMode,
	}
}

// Create emite un sid nuevo, registra la sesión y setea la cookie.
func (m *Manager) Create(w http.ResponseWriter, userID int64, email string) (string, error) {
	sid, err := token.GenerateOpaqueToken(32)
	if err != nil {
		return "", err
	}
	p := Payload{UserID: userID, Email: email, IssuedAt: time.Now()}
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	m.Cache.Set(keyPrefix+token.SHA256Base64URL(sid), b, m.TTL)

	http.SetCookie(w, &http.Cookie{
		Name:     m.CookieName,
		Value:    sid,
		Path:     "/",
		Domain:   m.Domain,
		MaxAge:   int(m.TTL.Seconds()),
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: m.SameSite,
	})
	return sid, nil
}

// Get resuelve la sesión del request. (nil, false) si no hay cookie o la
// sesión expiró.
func (m *Manager) Get(r *http.Request) (*Payload, bool) {
	ck, err := r.Cookie(m.CookieName)
	if err != nil || ck.Value == "" {
		return nil, false
	}
	b, ok := m.Cache.Get(keyPrefix + token.SHA256Base64URL(ck.Value))
	if !ok {
		return nil, false
	}
	var p Payload
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, false
	}
	return &p, true
}

// Destroy invalida la sesión y borra la cookie.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) {
	if ck, err := r.Cookie(m.CookieName); err == nil && ck.Value != "" {
		m.Cache.Delete(keyPrefix + token.SHA256Base64URL(ck.Value))
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.CookieName,
		Value:    "",
		Path:     "/",
		Domain:   m.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: m.SameSite,
	})
}
