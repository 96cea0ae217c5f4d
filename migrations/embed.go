// Package migrations embeds the localectl SQL migrations into the binary.
package migrations

import (
	"embed"
)

// FS holds the *.up.sql and *.down.sql files. Pass it to database.DB.Migrate.
//
//go:embed *.sql
var FS embed.FS
