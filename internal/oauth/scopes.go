package oauth

import (
	"strconv"
	"strings"
	"time"

	"github.com/onepass-id/onepass/internal/store/core"
)

// Scopes soportados. La tabla de claims es estática: cada scope conocido
// aporta un conjunto fijo de campos y los desconocidos se ignoran.
const (
	ScopeReadUser      = "read:user"
	ScopeReadUserEmail = "read:user:email"
)

// SplitScope separa un scope string en sus tokens (separador: espacio).
func SplitScope(scope string) []string { return strings.Fields(scope) }

// ScopeAllowed verifica que todo scope solicitado esté entre los permitidos.
func ScopeAllowed(requested string, allowed []string) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, s := range allowed {
		set[s] = struct{}{}
	}
	for _, s := range SplitScope(requested) {
		if _, ok := set[s]; !ok {
			return false
		}
	}
	return true
}

// HasScope reporta si el scope string otorgado contiene el scope pedido.
func HasScope(granted, want string) bool {
	for _, s := range SplitScope(granted) {
		if s == want {
			return true
		}
	}
	return false
}

// ResolveUserInfo proyecta el perfil según los scopes otorgados.
//
// Sin scopes reconocidos sólo viaja "sub". Con read:user, el "email" que ve
// el client es el alias virtual del usuario, no su dirección real; sólo
// read:user:email lo reemplaza por la real. El username cae al local-part
// del email si el usuario nunca eligió uno.
func ResolveUserInfo(u *core.User, scope string) map[string]any {
	info := map[string]any{
		"sub": strconv.FormatUint(u.PublicID, 10),
	}

	if HasScope(scope, ScopeReadUser) {
		username := ""
		if u.Username != nil {
			username = *u.Username
		}
		if username == "" {
			if i := strings.IndexByte(u.Email, '@'); i > 0 {
				username = u.Email[:i]
			}
		}
		var emailOut any
		if u.VirtualEmail != nil {
			emailOut = *u.VirtualEmail
		}
		info["username"] = username
		info["email"] = emailOut
		info["email_verified"] = u.IsVerified
		info["created_at"] = u.CreatedAt.UTC().Format(time.RFC3339)
	}

	if HasScope(scope, ScopeReadUserEmail) {
		info["email"] = u.Email
	}

	return info
}
