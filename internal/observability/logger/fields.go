package logger

import "go.uber.org/zap"

// Campos estándar para mantener nombres consistentes en todos los logs.

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field    { return zap.String("method", v) }
func Path(v string) zap.Field      { return zap.String("path", v) }
func Status(v int) zap.Field       { return zap.Int("status", v) }
func DurationMs(v int64) zap.Field { return zap.Int64("duration_ms", v) }
func Bytes(v int) zap.Field        { return zap.Int("bytes", v) }
func ClientIP(v string) zap.Field  { return zap.String("client_ip", v) }

func UserID(v int64) zap.Field    { return zap.Int64("user_id", v) }
func ClientID(v string) zap.Field { return zap.String("client_id", v) }

// Email: usar con cuidado en prod.
func Email(v string) zap.Field { return zap.String("email", v) }

func Component(v string) zap.Field { return zap.String("component", v) }
func Err(err error) zap.Field      { return zap.Error(err) }
