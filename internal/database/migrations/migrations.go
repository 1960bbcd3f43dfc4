// Package migrations embeds the SQL schema so the binary can migrate itself.
package migrations

import "embed"

// FS holds the numbered up/down migration files.
//
//go:embed *.sql
var FS embed.FS
