// Package database provides SQLite connectivity for leapbridge.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Embedded schema migrations (registered by the migrations package)
//   - A preferences table for opaque configuration blobs such as the
//     linked-device rule set
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration Strategy:
//
// Migrations are additive-only; each file pair is named
// YYYYMMDD_HHMMSS_description.up.sql / .down.sql.
package database
