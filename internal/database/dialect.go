package database

import (
	"errors"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// dialect captures the SQL differences between the supported drivers.
type dialect struct {
	name   string
	schema []string
}

var sqliteDialect = dialect{
	name: "sqlite3",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS folders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			parent_id INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
			UNIQUE(name, parent_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_folders_parent ON folders(parent_id)`,
		`CREATE TABLE IF NOT EXISTS images (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			data BLOB NOT NULL,
			folder_id INTEGER NOT NULL DEFAULT 0,
			image_order INTEGER,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_images_folder_order ON images(folder_id, image_order)`,
		`CREATE TABLE IF NOT EXISTS thumbnails (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			image_id INTEGER NOT NULL REFERENCES images(id) ON DELETE CASCADE,
			tier TEXT NOT NULL,
			data BLOB NOT NULL,
			thumbnail_order INTEGER,
			UNIQUE(image_id, tier)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_thumbnails_tier_order ON thumbnails(tier, thumbnail_order)`,
	},
}

var postgresDialect = dialect{
	name: "postgres",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS folders (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			parent_id BIGINT NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM now())::BIGINT,
			UNIQUE(name, parent_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_folders_parent ON folders(parent_id)`,
		`CREATE TABLE IF NOT EXISTS images (
			id BIGSERIAL PRIMARY KEY,
			data BYTEA NOT NULL,
			folder_id BIGINT NOT NULL DEFAULT 0,
			image_order BIGINT,
			created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM now())::BIGINT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_images_folder_order ON images(folder_id, image_order)`,
		`CREATE TABLE IF NOT EXISTS thumbnails (
			id BIGSERIAL PRIMARY KEY,
			image_id BIGINT NOT NULL REFERENCES images(id) ON DELETE CASCADE,
			tier TEXT NOT NULL,
			data BYTEA NOT NULL,
			thumbnail_order BIGINT,
			UNIQUE(image_id, tier)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_thumbnails_tier_order ON thumbnails(tier, thumbnail_order)`,
	},
}

// rebind rewrites ? placeholders to $n for postgres.
func (d dialect) rebind(query string) string {
	if d.name != "postgres" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// idsFilter returns a "column IN (...)" style clause and its arguments.
// Postgres binds the whole slice as one array parameter.
func (d dialect) idsFilter(column string, ids []int64) (string, []any) {
	if d.name == "postgres" {
		return column + " = ANY(?)", []any{pq.Array(ids)}
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return column + " IN (" + strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + ")", args
}

// isUniqueViolation reports a unique constraint failure from either driver.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
