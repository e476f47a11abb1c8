package migrate

import (
	"database/sql"
	"embed"
	"io/fs"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

//go:embed seeds/*.sql
var seedFiles embed.FS

// Migrations returns the schema migrations shipped with the binary.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "sql")
	if err != nil {
		panic(err)
	}
	return sub
}

// Seeds returns the seed files shipped with the binary.
func Seeds() fs.FS {
	sub, err := fs.Sub(seedFiles, "seeds")
	if err != nil {
		panic(err)
	}
	return sub
}

// NewEmbedded builds a Manager over the embedded migrations and seeds.
func NewEmbedded(db *sql.DB, opts ...Option) *Manager {
	return NewManager(db, Migrations(), Seeds(), opts...)
}
