// Package token genera material opaco: identificadores que no codifican nada
// y sólo sirven como handle de una entrada en storage o cache.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// GenerateOpaqueToken genera nBytes aleatorios en base64url sin padding. Se
// usa para authorization codes, grant ids y session ids.
func GenerateOpaqueToken(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SHA256Base64URL deriva la key de lookup a partir del valor crudo. El sid o
// code que viaja al cliente nunca se usa directo como key: un dump del cache
// o de la tabla no regala valores canjeables.
func SHA256Base64URL(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
