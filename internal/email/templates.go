package email

import (
	"bytes"
	"fmt"
	"html/template"
)

// Message es un correo ya renderizado, listo para el dispatcher.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

var otpHTML = template.Must(template.New("otp").Parse(`<!doctype html>
<html><body style="font-family:sans-serif">
<h2>Tu código de acceso</h2>
<p>Usá este código para iniciar sesión. Vence en {{.Minutes}} minuto(s) y medio:</p>
<p style="font-size:32px;letter-spacing:6px;font-weight:bold">{{.Code}}</p>
<p>Si no pediste este código, ignorá este correo.</p>
</body></html>`))

var verifyHTML = template.Must(template.New("verify").Parse(`<!doctype html>
<html><body style="font-family:sans-serif">
<h2>Confirmá tu cuenta</h2>
<p>Hacé click en el enlace para verificar tu dirección:</p>
<p><a href="{{.Link}}">{{.Link}}</a></p>
</body></html>`))

var alertHTML = template.Must(template.New("alert").Parse(`<!doctype html>
<html><body style="font-family:sans-serif">
<h2>Aviso de seguridad</h2>
<p>{{.Detail}}</p>
<p>Si fuiste vos, no hace falta hacer nada. Si no, contactanos.</p>
</body></html>`))

// OTPMessage renderiza el correo con el código de un solo uso.
func OTPMessage(to, code string) Message {
	var buf bytes.Buffer
	_ = otpHTML.Execute(&buf, map[string]any{"Code": code, "Minutes": 1})
	return Message{
		To:       to,
		Subject:  "Tu código de acceso",
		HTMLBody: buf.String(),
		TextBody: fmt.Sprintf("Tu código de acceso es %s. Vence en 90 segundos.", code),
	}
}

// VerificationMessage renderiza el correo de verificación de cuenta.
func VerificationMessage(to, link string) Message {
	var buf bytes.Buffer
	_ = verifyHTML.Execute(&buf, map[string]any{"Link": link})
	return Message{
		To:       to,
		Subject:  "Confirmá tu cuenta",
		HTMLBody: buf.String(),
		TextBody: "Verificá tu cuenta abriendo este enlace: " + link,
	}
}

var loginHTML = template.Must(template.New("login").Parse(`<!doctype html>
<html><body style="font-family:sans-serif">
<h2>Nuevo inicio de sesión</h2>
<p>Se inició sesión en tu cuenta desde {{.IP}} ({{.UserAgent}}).</p>
<p>Si no fuiste vos, pedí un código nuevo y contactanos.</p>
</body></html>`))

// LoginNotificationMessage avisa de un inicio de sesión exitoso.
func LoginNotificationMessage(to, ip, userAgent string) Message {
	if ip == "" {
		ip = "una dirección desconocida"
	}
	if userAgent == "" {
		userAgent = "cliente desconocido"
	}
	var buf bytes.Buffer
	_ = loginHTML.Execute(&buf, map[string]any{"IP": ip, "UserAgent": userAgent})
	return Message{
		To:       to,
		Subject:  "Nuevo inicio de sesión",
		HTMLBody: buf.String(),
		TextBody: fmt.Sprintf("Se inició sesión en tu cuenta desde %s (%s).", ip, userAgent),
	}
}

// SecurityAlertMessage renderiza un aviso de seguridad (código cancelado por
// intentos agotados, login desde un sitio nuevo, etc.).
func SecurityAlertMessage(to, detail string) Message {
	var buf bytes.Buffer
	_ = alertHTML.Execute(&buf, map[string]any{"Detail": detail})
	return Message{
		To:       to,
		Subject:  "Aviso de seguridad",
		HTMLBody: buf.String(),
		TextBody: detail,
	}
}
