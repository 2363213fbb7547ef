// Package migrations embeds the goose SQL migrations for the fieldops schema.
package migrations

import "embed"

// FS holds every *.sql migration file in this directory.
//
//go:embed *.sql
var FS embed.FS
