package store

import (
	"context"
	"database/sql"
	"time"

	"codeindex/internal/model"
)

// KnownFile mirrors detect.KnownFile without importing internal/detect, keeping store
// free of a dependency on the detector.
type KnownFile struct {
	Path string
	Hash string
}

// KnownFiles returns the path/hash baseline the Change Detector compares the working
// tree against.
func (s *Store) KnownFiles(ctx context.Context) ([]KnownFile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path, hash FROM files`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []KnownFile
	for rows.Next() {
		var k KnownFile
		if err := rows.Scan(&k.Path, &k.Hash); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// UpsertFile inserts or updates a file row by path, returning its id.
func UpsertFile(ctx context.Context, tx *sql.Tx, f model.File) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO files (path, language, hash, size, mtime) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET language = excluded.language, hash = excluded.hash,
			size = excluded.size, mtime = excluded.mtime`,
		f.Path, f.Language, f.Hash, f.Size, f.MTime)
	if err != nil {
		return 0, err
	}
	return fileIDByPath(ctx, tx, f.Path, res)
}

func fileIDByPath(ctx context.Context, tx *sql.Tx, path string, res sql.Result) (int64, error) {
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		return id, nil
	}
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM files WHERE path = ?`, path).Scan(&id)
	return id, err
}

// FileIDByPath looks up a file's id, returning 0 and no error if it is not tracked.
func FileIDByPath(ctx context.Context, tx *sql.Tx, path string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM files WHERE path = ?`, path).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return id, err
}

// DeleteFile removes a file row; ON DELETE CASCADE takes every dependent definition,
// reference, symbol and usage with it.
func DeleteFile(ctx context.Context, tx *sql.Tx, id int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	return err
}

// GetFile fetches one file row by id.
func GetFile(ctx context.Context, tx *sql.Tx, id int64) (model.File, error) {
	var f model.File
	var mtime time.Time
	err := tx.QueryRowContext(ctx, `SELECT id, path, language, hash, size, mtime FROM files WHERE id = ?`, id).
		Scan(&f.ID, &f.Path, &f.Language, &f.Hash, &f.Size, &mtime)
	f.MTime = mtime
	return f, err
}
