// Package migrations embeds SQL migration files.
package migrations

import "embed"

// FS contiene las migraciones del schema principal, ordenadas por prefijo
// numérico.
//
//go:embed *.sql
var FS embed.FS
