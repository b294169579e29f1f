package db

import (
	"embed"
	"io/fs"
	"os"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DevMode selects the on-disk migrations directory instead of the embedded
// copy, so schema work does not require a rebuild per edit.
var DevMode = false

// getMigrationsFS returns the migrations filesystem with the .sql files at
// its root, embedded in production and read from disk in DevMode.
func getMigrationsFS() (fs.FS, error) {
	if DevMode {
		return os.DirFS("internal/db/migrations"), nil
	}
	return fs.Sub(migrationsFS, "migrations")
}
