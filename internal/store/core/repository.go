package core

import (
	"context"
	"time"
)

// Repository es el puerto de storage que consumen los engines. Las
// operaciones sobre estado compartido mutable (slot OTP, authorization codes)
// son atómicas a nivel de storage: requests para el mismo usuario/código
// pueden llegar en procesos distintos, así que la serialización no puede
// vivir en locks in-process.
type Repository interface {
	Ping(ctx context.Context) error

	// Usuarios
	CreateUser(ctx context.Context, u *User) error // ErrConflict si email/publicId ya existen
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id int64) (*User, error)
	GetUserByPublicID(ctx context.Context, publicID uint64) (*User, error)
	GetUserByVerificationToken(ctx context.Context, token string) (*User, error)
	MarkUserVerified(ctx context.Context, id int64) error
	SetVerificationToken(ctx context.Context, id int64, token string) error
	SetOTPSecret(ctx context.Context, id int64, secretB32 string) error

	// Slot OTP (atómico).
	//
	// ArmOTP instala {code, expiresAt, attempts} sólo si no hay un código
	// vivo; si lo hay retorna ErrConflict (el engine lo traduce a 429 con
	// remaining seconds).
	ArmOTP(ctx context.Context, userID int64, code string, expiresAt time.Time, attempts int) error

	// ConsumeOTP es el compare-and-clear: si el código coincide y está vivo,
	// limpia el slot y retorna nil. Exactamente un caller concurrente puede
	// ganar. ErrExpired si el slot venció (y lo limpia), ErrInvalid si no
	// coincide, ErrNotFound si no hay slot.
	ConsumeOTP(ctx context.Context, userID int64, code string, now time.Time) error

	// FailOTPAttempt descuenta un intento; al llegar a cero limpia el slot
	// completo. Retorna los intentos restantes tras el descuento.
	FailOTPAttempt(ctx context.Context, userID int64) (remaining int, err error)
	ClearOTP(ctx context.Context, userID int64) error

	// Clients
	CreateClient(ctx context.Context, c *Client) error
	GetClientByClientID(ctx context.Context, clientID string) (*Client, error)
	TouchClientUsage(ctx context.Context, clientID string, when time.Time) error

	// Authorization codes
	CreateAuthorizationCode(ctx context.Context, ac *AuthorizationCode) error

	// ConsumeAuthorizationCode es el read-and-delete atómico: a lo sumo un
	// caller concurrente observa el código como presente. ErrNotFound para
	// el resto. La validación de expiry/binding queda en el caller: el
	// borrado es incondicional para que un código tocado quede quemado.
	ConsumeAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)
	DeleteExpiredAuthorizationCodes(ctx context.Context, now time.Time) (int64, error)

	// Efectos secundarios del dashboard (fire-and-forget en los callers)
	UpsertLinkedSite(ctx context.Context, ls *LinkedSite) error
	CreateActivity(ctx context.Context, a *Activity) error
}
