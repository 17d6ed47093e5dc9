package migrate

import (
	"fmt"
	"io/fs"
	"regexp"
	"strings"
)

const versionLayout = "20060102150405"

var migrationName = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// Validate checks file naming, unique versions and that every migration can
// be rolled back with balanced statement blocks.
func Validate(fsys fs.FS) error {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("no migrations found")
	}
	seen := make(map[string]string, len(names))
	for _, name := range names {
		m := migrationName.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("%s: expected YYYYMMDDHHMMSS_name.sql", name)
		}
		if prev, dup := seen[m[1]]; dup {
			return fmt.Errorf("%s: version %s already used by %s", name, m[1], prev)
		}
		seen[m[1]] = name

		raw, err := fs.ReadFile(fsys, name)
		if err != nil {
			return err
		}
		body := string(raw)
		up := strings.Index(body, "-- +goose Up")
		down := strings.Index(body, "-- +goose Down")
		if up < 0 || down < 0 || down < up {
			return fmt.Errorf("%s: needs an Up section followed by a Down section", name)
		}
		if strings.Count(body, "-- +goose StatementBegin") != strings.Count(body, "-- +goose StatementEnd") {
			return fmt.Errorf("%s: unbalanced StatementBegin/StatementEnd", name)
		}
	}
	return nil
}
