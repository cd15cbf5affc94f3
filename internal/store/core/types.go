package core

import "time"

// User es el registro de identidad. El ID interno (secuencial) nunca se
// expone fuera del proceso; PublicID es el identificador estable que viaja
// como "sub" en los tokens.
type User struct {
	ID           int64
	PublicID     uint64 // aleatorio, único, inmutable
	Email        string // único
	Username     *string
	VirtualEmail *string // alias desechable; el "email" que ven los clients
	IsVerified   bool

	// Token de verificación de cuenta (uuid), nil una vez verificada.
	VerificationToken *string

	// Slot OTP: a lo sumo un código vivo por usuario.
	// Invariante: OTPCode != nil implica OTPExpiresAt != nil.
	OTPSecret    *string // base32, persistente, generado una sola vez
	OTPCode      *string // efímero; se limpia al usarse/expirar/cancelarse
	OTPExpiresAt *time.Time
	OTPAttempts  int // intentos restantes del código vigente

	CreatedAt time.Time
}

// Client es una aplicación de terceros registrada (la entidad ApiKey del
// dashboard). HashedSecret es argon2id, nunca recuperable.
type Client struct {
	ID           int64
	ClientID     string // público, único
	Name         string
	LogoURL      *string
	HashedSecret string
	RedirectURIs []string
	Scopes       []string
	OwnerUserID  int64

	UsageCount int64
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// AuthorizationCode es un grant de consentimiento en vuelo. Single-use: se
// borra transaccionalmente al canjearse.
type AuthorizationCode struct {
	Code        string // PK, opaco
	ExpiresAt   time.Time
	RedirectURI string
	Scope       string
	ClientID    string
	UserID      int64
}

// LinkedSite registra "este usuario inició sesión en este sitio" para el
// dashboard. Efecto fire-and-forget del token exchange.
type LinkedSite struct {
	UserID       int64
	Name         string
	URL          string
	Email        string
	LastActivity time.Time
}

// Activity es una entrada del feed de actividad (login, security_alert, ...).
type Activity struct {
	UserID      int64
	Type        string
	Title       string
	Description string
	IPAddress   string
	UserAgent   string
	CreatedAt   time.Time
}
