package otp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base32"
	"fmt"
	"math"
	"strings"
	"time"
)

// Period es el paso de tiempo del código de login por email. Coincide con la
// ventana de validez que se persiste junto al código (90s).
const Period = 90 * time.Second

// Digits del código. Fijo por política, no negociable.
const Digits = 6

// GenerateSecret retorna 20 bytes base32 sin padding (RFC 3548).
// El secreto es por-usuario y persistente: el mismo secreto podría respaldar
// más adelante un segundo factor de app authenticator.
func GenerateSecret() (string, error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw), nil
}

// Derive deriva el código de 6 dígitos para el instante t a partir del
// secreto base32 (HOTP con contador = t/Period, RFC 4226 / 6238).
func Derive(secretB32 string, t time.Time) (string, error) {
	raw, err := DecodeSecret(secretB32)
	if err != nil {
		return "", err
	}
	return gen(raw, t.Unix()/int64(Period.Seconds())), nil
}

// DecodeSecret decodifica un secreto base32 (con o sin padding, mayúsculas o no).
func DecodeSecret(secretB32 string) ([]byte, error) {
	s := strings.ToUpper(strings.TrimRight(strings.TrimSpace(secretB32), "="))
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("otp: secreto base32 inválido: %w", err)
	}
	return raw, nil
}

func gen(secretRaw []byte, counter int64) string {
	// HOTP(K, C) con HMAC-SHA1 (RFC 4226)
	var msg [8]byte
	for i := 7; i >= 0; i-- {
		msg[i] = byte(counter & 0xff)
		counter >>= 8
	}
	m := hmac.New(sha1.New, secretRaw)
	_, _ = m.Write(msg[:])
	sum := m.Sum(nil)
	offset := int(sum[len(sum)-1] & 0x0f)
	bin := (int(sum[offset])&0x7f)<<24 | int(sum[offset+1])<<16 | int(sum[offset+2])<<8 | int(sum[offset+3])
	return fmt.Sprintf("%0*d", Digits, bin%int(math.Pow10(Digits)))
}
