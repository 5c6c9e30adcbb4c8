package migrations

import "embed"

// FS contains embedded SQLite migrations for narrator storage.
//
//go:embed *.sql
var FS embed.FS
