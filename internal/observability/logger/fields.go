package logger

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS ESTÁNDAR - HTTP
// =================================================================================

// RequestID crea un campo para el ID del request.
func RequestID(v string) zap.Field { return zap.String("request_id", v) }

// Method crea un campo para el método HTTP.
func Method(v string) zap.Field { return zap.String("method", v) }

// Path crea un campo para el path del request.
func Path(v string) zap.Field { return zap.String("path", v) }

// Status crea un campo para el status code HTTP.
func Status(v int) zap.Field { return zap.Int("status", v) }

// DurationMs crea un campo para la duración en milisegundos.
func DurationMs(v int64) zap.Field { return zap.Int64("duration_ms", v) }

// Duration crea un campo para una duración.
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

// =================================================================================
// CAMPOS ESTÁNDAR - LOGIN SOCIAL
// =================================================================================

// Provider crea un campo para el nombre del proveedor (google, twitter, ...).
func Provider(v string) zap.Field { return zap.String("provider", v) }

// UserID crea un campo para el ID de la cuenta local.
func UserID(v string) zap.Field { return zap.String("user_id", v) }

// ExternalID crea un campo para el ID del usuario en el proveedor.
func ExternalID(v string) zap.Field { return zap.String("external_id", v) }

// Outcome crea un campo para el resultado de un intento de login.
func Outcome(v string) zap.Field { return zap.String("outcome", v) }

// Code crea un campo para un código de error de negocio.
func Code(v string) zap.Field { return zap.String("code", v) }

// Email crea un campo con el email enmascarado.
func Email(v string) zap.Field { return zap.String("email_masked", MaskEmail(v)) }

// URL crea un campo para una URL de proveedor.
func URL(v string) zap.Field { return zap.String("url", v) }

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field { return zap.String("component", v) }

// Op crea un campo para la operación actual.
func Op(v string) zap.Field { return zap.String("op", v) }

// Layer crea un campo para la capa (handler, service, store).
func Layer(v string) zap.Field { return zap.String("layer", v) }

// Err crea un campo para un error.
func Err(err error) zap.Field { return zap.Error(err) }

// Any crea un campo genérico para cualquier tipo.
func Any(key string, v any) zap.Field { return zap.Any(key, v) }

// String crea un campo string genérico.
func String(key, v string) zap.Field { return zap.String(key, v) }

// Int crea un campo int genérico.
func Int(key string, v int) zap.Field { return zap.Int(key, v) }

// Bool crea un campo bool genérico.
func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }

// MaskEmail enmascara un email para logs (primeros 2 chars + @dominio).
func MaskEmail(email string) string {
	if len(email) < 3 {
		return "***"
	}
	at := strings.IndexByte(email, '@')
	if at < 2 {
		return email[:2] + "***"
	}
	return email[:2] + "***" + email[at:]
}
