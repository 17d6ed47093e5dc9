package migrate

import (
	"embed"
	"io/fs"
)

// SourceDir is where new migrations are scaffolded, relative to the repo root.
const SourceDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Schema is the storefront schema baked into every binary, so the api and
// workers can migrate without the source tree on disk.
func Schema() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}
