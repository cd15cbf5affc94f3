package validation

import "regexp"

// Reglas mínimas de entrada para los endpoints de auth. La validación fuerte
// (existencia, estado) ocurre en los engines; acá sólo forma.

var (
	emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	codeRe  = regexp.MustCompile(`^\d{6}$`)
)

// ValidEmail retorna true si el string tiene forma de email.
func ValidEmail(s string) bool {
	return len(s) <= 254 && emailRe.MatchString(s)
}

// ValidOTPCode retorna true si el string es exactamente 6 dígitos.
func ValidOTPCode(s string) bool {
	return codeRe.MatchString(s)
}
