// Package migration applies versioned SQL files to a SQLite database.
//
// Files follow the {version}_{description}.sql naming convention and are read
// from an fs.FS, usually an embedded directory. Applied versions and their
// checksums are tracked in the schema_migrations table; an applied file whose
// content later changes is reported as ErrChecksumMismatch instead of being
// silently skipped.
//
// Example usage:
//
//	manager := NewManager(NewScanner(migrationsFS, "migrations"), NewSQLiteExecutor(db), logger)
//	if err := manager.Run(ctx); err != nil {
//		return fmt.Errorf("migrate: %w", err)
//	}
package migration
