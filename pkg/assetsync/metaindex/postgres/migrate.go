package postgres

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Migrate creates the metadata table and its indexes if they do not exist.
// Text columns use the "C" collation so comparisons, ordering and LIKE
// prefix scans follow byte order.
func (x *Index) Migrate(ctx context.Context) error {
	base := strings.ReplaceAll(x.name, ".", "_")
	ident := func(suffix string) string {
		return pgx.Identifier{base + "_" + suffix}.Sanitize()
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS ` + x.table + ` (
			id UUID PRIMARY KEY,
			file_key TEXT COLLATE "C" NOT NULL,
			file_path TEXT COLLATE "C" NOT NULL,
			public_url TEXT COLLATE "C" NOT NULL DEFAULT '',
			content_type TEXT COLLATE "C" NOT NULL DEFAULT '',
			size BIGINT NOT NULL DEFAULT 0,
			owner_id TEXT COLLATE "C",
			folder TEXT COLLATE "C",
			additional_data JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			CONSTRAINT ` + ident("file_key_key") + ` UNIQUE (file_key)
		)`,
		`CREATE INDEX IF NOT EXISTS ` + ident("owner_id_idx") + ` ON ` + x.table + ` (owner_id)`,
		`CREATE INDEX IF NOT EXISTS ` + ident("folder_idx") + ` ON ` + x.table + ` (folder)`,
		`CREATE INDEX IF NOT EXISTS ` + ident("created_at_idx") + ` ON ` + x.table + ` (created_at)`,
		`CREATE INDEX IF NOT EXISTS ` + ident("additional_data_idx") + ` ON ` + x.table + ` USING GIN (additional_data jsonb_path_ops)`,
	}

	for _, stmt := range statements {
		if _, err := x.db.Exec(ctx, stmt); err != nil {
			return handlePostgresError("migrate", "", err)
		}
	}
	return nil
}
