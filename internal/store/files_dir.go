package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
)

// FilesInDirectory returns the ids of files directly inside dir (workspace-relative,
// no trailing slash), not its subdirectories — the file set a workspace-map entry
// resolves to when an import names a package/module directory rather than one file.
func FilesInDirectory(ctx context.Context, tx *sql.Tx, dir string) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, path FROM files WHERE path LIKE ?`, dir+"/%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		var path string
		if err := rows.Scan(&id, &path); err != nil {
			return nil, err
		}
		if filepath.ToSlash(filepath.Dir(path)) == strings.TrimSuffix(dir, "/") {
			out = append(out, id)
		}
	}
	return out, rows.Err()
}
