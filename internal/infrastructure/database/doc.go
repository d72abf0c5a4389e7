// Package database provides the SQLite connection behind the relay's event
// journal.
//
// Open configures WAL mode and a busy timeout so the HTTP API can read while
// the journal writer inserts, restricts the file to 0600 and verifies the
// connection. Migrate applies embedded, forward-only migrations recorded in
// schema_migrations.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Journal.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.FS, "."); err != nil {
//	    return err
//	}
//
// All timestamps are stored as TEXT in TimeLayout so range predicates and
// ORDER BY work on the raw column.
package database
