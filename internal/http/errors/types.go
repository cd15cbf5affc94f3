package errors

import (
	"fmt"
	"net/http"
)

// AppError define la estructura estándar para errores de la aplicación
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Detail     string         `json:"detail,omitempty"`
	Meta       map[string]any `json:"-"` // campos extra machine-readable (remainingSeconds, remainingAttempts)
	HTTPStatus int            `json:"-"` // No se serializa, usado para el header
	Err        error          `json:"-"` // Causa original, útil para logs, no se expone al cliente
}

// Error implementa la interfaz error
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap permite acceder al error original
func (e *AppError) Unwrap() error {
	return e.Err
}

// New crea un nuevo AppError
func New(status int, code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: status,
	}
}

// FromError intenta convertir un error genérico en un AppError.
// Si no lo es, devuelve un error interno genérico conservando la causa.
func FromError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return ErrInternal.WithCause(err)
}

// WithDetail agrega detalle adicional. Devuelve una COPIA del error para no
// mutar las variables globales base.
func (e *AppError) WithDetail(detail string) *AppError {
	newErr := *e
	newErr.Detail = detail
	return &newErr
}

// WithCause agrega la causa original. Devuelve una COPIA del error.
func (e *AppError) WithCause(err error) *AppError {
	newErr := *e
	newErr.Err = err
	return &newErr
}

// WithMeta agrega un campo machine-readable a la respuesta. Devuelve una COPIA.
func (e *AppError) WithMeta(key string, val any) *AppError {
	newErr := *e
	newErr.Meta = make(map[string]any, len(e.Meta)+1)
	for k, v := range e.Meta {
		newErr.Meta[k] = v
	}
	newErr.Meta[key] = val
	return &newErr
}

// =================================================================================
// LISTA DE ERRORES PREDEFINIDOS
// =================================================================================

// Genéricos
var (
	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "La solicitud contiene sintaxis inválida o parámetros faltantes.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidJSON = &AppError{
		Code:       "INVALID_JSON",
		Message:    "El cuerpo de la solicitud no es un JSON válido.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrMissingFields = &AppError{
		Code:       "MISSING_FIELDS",
		Message:    "Faltan campos requeridos en la solicitud.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidFormat = &AppError{
		Code:       "INVALID_FORMAT",
		Message:    "El formato de uno o más campos es inválido.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "El recurso solicitado no existe.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrInternal = &AppError{
		Code:       "SERVER_ERROR",
		Message:    "Error interno del servidor.",
		HTTPStatus: http.StatusInternalServerError,
	}
)

// Flujo de cuenta y OTP
var (
	ErrEmailExists = &AppError{
		Code:       "AUTH_EMAIL_EXISTS",
		Message:    "El email ya está registrado.",
		HTTPStatus: http.StatusConflict,
	}

	ErrUserNotFound = &AppError{
		Code:       "AUTH_USER_NOT_FOUND",
		Message:    "El email no está registrado.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrNotVerified = &AppError{
		Code:       "AUTH_NOT_VERIFIED",
		Message:    "La cuenta debe verificarse antes de iniciar sesión.",
		HTTPStatus: http.StatusForbidden,
	}

	ErrAlreadyVerified = &AppError{
		Code:       "AUTH_ALREADY_VERIFIED",
		Message:    "La cuenta ya está verificada.",
		HTTPStatus: http.StatusConflict,
	}

	ErrInvalidVerificationToken = &AppError{
		Code:       "AUTH_INVALID_TOKEN",
		Message:    "El token de verificación es inválido o expiró.",
		HTTPStatus: http.StatusNotFound,
	}

	// El cliente recibe remainingSeconds en Meta para renderizar el countdown.
	ErrCodeAlreadySent = &AppError{
		Code:       "AUTH_CODE_ALREADY_SENT",
		Message:    "Ya hay un código vigente para este usuario.",
		HTTPStatus: http.StatusTooManyRequests,
	}

	ErrTooManyRequests = &AppError{
		Code:       "RATE_LIMITED",
		Message:    "Demasiadas solicitudes. Esperá antes de reintentar.",
		HTTPStatus: http.StatusTooManyRequests,
	}

	ErrNoValidCode = &AppError{
		Code:       "AUTH_NO_VALID_TOTP",
		Message:    "No hay un código pendiente para este usuario.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrCodeExpired = &AppError{
		Code:       "AUTH_TOTP_EXPIRED",
		Message:    "El código expiró. Solicitá uno nuevo.",
		HTTPStatus: http.StatusBadRequest,
	}

	// Código incorrecto con intentos restantes: Meta lleva remainingAttempts.
	ErrInvalidCode = &AppError{
		Code:       "INVALID_TOTP",
		Message:    "Código incorrecto.",
		HTTPStatus: http.StatusBadRequest,
	}

	// Intentos agotados: el slot se limpió y hay que pedir un código nuevo.
	// Distinto de INVALID_TOTP para que el cliente muestre "pedí otro código".
	ErrCodeCancelled = &AppError{
		Code:       "OTP_CANCELLED",
		Message:    "Demasiados intentos fallidos. Solicitá un código nuevo.",
		HTTPStatus: http.StatusBadRequest,
	}
)

// Flujo OAuth
var (
	ErrOAuthInvalidResponseType = &AppError{
		Code:       "OAUTH_INVALID_RESPONSE_TYPE",
		Message:    "response_type inválido. Sólo se soporta \"code\".",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrOAuthMissingParams = &AppError{
		Code:       "OAUTH_MISSING_PARAMS",
		Message:    "client_id y redirect_uri son requeridos.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrOAuthInvalidClient = &AppError{
		Code:       "OAUTH_INVALID_CLIENT",
		Message:    "client_id inválido.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrOAuthInvalidRedirectURI = &AppError{
		Code:       "OAUTH_INVALID_REDIRECT_URI",
		Message:    "redirect_uri no coincide con los registrados.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrOAuthInsufficientScope = &AppError{
		Code:       "OAUTH_INSUFFICIENT_SCOPE",
		Message:    "El client no tiene permitidos los scopes solicitados.",
		HTTPStatus: http.StatusForbidden,
	}

	ErrOAuthInvalidGrantType = &AppError{
		Code:       "OAUTH_INVALID_GRANT_TYPE",
		Message:    "grant_type inválido.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrOAuthInvalidClientCredentials = &AppError{
		Code:       "OAUTH_INVALID_CLIENT_CREDENTIALS",
		Message:    "Credenciales de client inválidas.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrOAuthInvalidCode = &AppError{
		Code:       "OAUTH_INVALID_CODE",
		Message:    "Authorization code inválido.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrOAuthCodeExpired = &AppError{
		Code:       "OAUTH_CODE_EXPIRED",
		Message:    "El authorization code expiró.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrOAuthSessionExpired = &AppError{
		Code:       "OAUTH_SESSION_EXPIRED",
		Message:    "No hay un flujo OAuth activo en la sesión.",
		HTTPStatus: http.StatusBadRequest,
	}
)

// Guards
var (
	ErrAuthRequired = &AppError{
		Code:       "AUTH_REQUIRED",
		Message:    "Se requiere autenticación.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrMissingToken = &AppError{
		Code:       "MISSING_TOKEN",
		Message:    "Falta el header Authorization con Bearer token.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrTokenExpired = &AppError{
		Code:       "TOKEN_EXPIRED",
		Message:    "El access token expiró.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrTokenInvalid = &AppError{
		Code:       "TOKEN_INVALID",
		Message:    "El access token es inválido.",
		HTTPStatus: http.StatusUnauthorized,
	}

	// INSUFFICIENT_SCOPE es para API keys; INSUFFICIENT_TOKEN_SCOPE para
	// access tokens. El cliente resuelve distinto: reprovisionar la key vs
	// repetir el flujo de autorización pidiendo más scopes.
	ErrInsufficientScope = &AppError{
		Code:       "INSUFFICIENT_SCOPE",
		Message:    "La API key no tiene el scope requerido.",
		HTTPStatus: http.StatusForbidden,
	}

	ErrInsufficientTokenScope = &AppError{
		Code:       "INSUFFICIENT_TOKEN_SCOPE",
		Message:    "El access token no tiene el scope requerido.",
		HTTPStatus: http.StatusForbidden,
	}

	ErrInvalidAPIKey = &AppError{
		Code:       "INVALID_API_KEY",
		Message:    "La API key es inválida.",
		HTTPStatus: http.StatusUnauthorized,
	}
)
