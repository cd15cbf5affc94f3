package errors

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// WriteError escribe la respuesta HTTP para el error dado. Los campos de Meta
// se serializan al nivel superior del JSON junto a code/message, así el
// cliente lee remainingSeconds/remainingAttempts sin desanidar nada.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)

	resp := map[string]any{
		"code":    appErr.Code,
		"message": appErr.Message,
	}
	if appErr.Detail != "" {
		resp["detail"] = appErr.Detail
	}
	for k, v := range appErr.Meta {
		resp[k] = v
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if appErr.HTTPStatus == http.StatusTooManyRequests {
		if secs, ok := appErr.Meta["remainingSeconds"].(int); ok && secs > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
	}
	w.WriteHeader(appErr.HTTPStatus)

	_ = json.NewEncoder(w).Encode(resp)
}
