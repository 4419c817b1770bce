// Package migrations embeds the SQL schema migrations into the binary.
//
// Files follow database migration naming:
// YYYYMMDD_HHMMSS_description.up.sql with a matching .down.sql.
package migrations

import "embed"

// FS holds every .sql file in this directory at its root.
//
//go:embed *.sql
var FS embed.FS
