// Package database provides SQLite persistence for roycemorebot.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Embedded, additive-only schema migrations
//   - Connection lifecycle (open at startup, close at shutdown)
//
// The lifecycle manager is the only owner of the connection. Extensions and
// repositories receive the *sql.DB handle but never close it.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: "db.sqlite3", WALMode: true})
//	if err != nil {
//	    return err // wraps ErrStorageConnection
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
