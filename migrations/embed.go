// Package migrations embeds the goose SQL migrations for the relational backends.
// The schema is written in the common subset of SQLite and PostgreSQL.
package migrations

import "embed"

// FS holds all migration files.
//
//go:embed *.sql
var FS embed.FS
