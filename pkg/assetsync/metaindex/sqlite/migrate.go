package sqlite

import (
	"context"
	"fmt"
	"strings"
)

// Migrate creates the metadata table and its indexes if they do not exist.
func (x *Index) Migrate(ctx context.Context) error {
	base := strings.ReplaceAll(x.name, ".", "_")
	ident := func(suffix string) string {
		return quoteIdentifier(base + "_" + suffix)
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			file_key TEXT NOT NULL UNIQUE,
			file_path TEXT NOT NULL,
			public_url TEXT NOT NULL DEFAULT '',
			content_type TEXT NOT NULL DEFAULT '',
			size INTEGER NOT NULL DEFAULT 0,
			owner_id TEXT,
			folder TEXT,
			additional_data TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`, x.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (owner_id)`, ident("owner_id_idx"), x.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (folder)`, ident("folder_idx"), x.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (created_at)`, ident("created_at_idx"), x.table),
	}

	for _, stmt := range statements {
		if _, err := x.db.ExecContext(ctx, stmt); err != nil {
			return wrap("migrate", "", err)
		}
	}
	return nil
}
