// Package database provides the SQLite connection that stores locale change
// history.
//
// It manages:
//   - Opening the database with WAL mode and a busy timeout
//   - Versioned schema migrations read from an fs.FS (see package migrations)
//   - Connection lifecycle and health checks
//
// The database file is created with 0600 permissions and every query uses
// parameterised statements.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns are NULLABLE or carry a DEFAULT, and
// each YYYYMMDD_HHMMSS_name.up.sql has a matching .down.sql.
package database
