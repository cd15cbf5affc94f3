package jwt

import (
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// Issuer firma access tokens HS256 con el secreto de la aplicación.
// Los tokens son stateless: no hay store server-side ni revocación; el TTL
// corto (1h) acota el riesgo residual.
type Issuer struct {
	Iss       string
	AccessTTL time.Duration

	secret []byte
}

var (
	// ErrNoSecret: firmar sin secreto no puede proceder. main trata esto como fatal.
	ErrNoSecret = errors.New("jwt: signing secret is empty")

	ErrTokenExpired = errors.New("jwt: token expired")
	ErrTokenInvalid = errors.New("jwt: token invalid")
)

func NewIssuer(iss string, secret []byte, accessTTL time.Duration) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}
	if accessTTL <= 0 {
		accessTTL = time.Hour
	}
	return &Issuer{Iss: iss, AccessTTL: accessTTL, secret: secret}, nil
}

// AccessClaims es la proyección de claims que consumen guard y userinfo.
type AccessClaims struct {
	Sub       string // publicId del usuario, en decimal
	Aud       string // client_id
	Scope     string // scopes otorgados, separados por espacio
	ExpiresAt time.Time
}

// IssueAccess emite un access token {iss, sub, aud, scope, iat, nbf, exp}.
func (i *Issuer) IssueAccess(sub, aud, scope string) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(i.AccessTTL)

	claims := jwtv5.MapClaims{
		"iss":   i.Iss,
		"sub":   sub,
		"aud":   aud,
		"scope": scope,
		"iat":   now.Unix(),
		"nbf":   now.Unix(),
		"exp":   exp.Unix(),
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	tk.Header["typ"] = "JWT"

	signed, err := tk.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ParseAccess valida firma, issuer y expiración. Distingue expirado de
// inválido para que el guard pueda responder TOKEN_EXPIRED vs TOKEN_INVALID.
func (i *Issuer) ParseAccess(raw string) (*AccessClaims, error) {
	tk, err := jwtv5.Parse(raw, func(t *jwtv5.Token) (any, error) {
		return i.secret, nil
	}, jwtv5.WithValidMethods([]string{"HS256"}), jwtv5.WithIssuer(i.Iss))
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	mc, ok := tk.Claims.(jwtv5.MapClaims)
	if !ok || !tk.Valid {
		return nil, ErrTokenInvalid
	}

	out := &AccessClaims{}
	out.Sub, _ = mc["sub"].(string)
	out.Scope, _ = mc["scope"].(string)
	switch aud := mc["aud"].(type) {
	case string:
		out.Aud = aud
	case []any:
		if len(aud) > 0 {
			out.Aud, _ = aud[0].(string)
		}
	}
	if expNum, ok := mc["exp"].(float64); ok {
		out.ExpiresAt = time.Unix(int64(expNum), 0)
	}
	if out.Sub == "" {
		return nil, ErrTokenInvalid
	}
	return out, nil
}
