package store

import (
	"context"
	"database/sql"
)

// GhostRow identifies a row left dangling after a definition or file disappeared: a
// symbol that still carries a now-nonexistent definition_id, or a reference whose
// to_file_id points nowhere. Phase 7 (dangling-cleanup) of the sync pipeline resolves
// these by clearing the dangling pointer rather than deleting the owning row, so a
// later re-add of the same name can re-resolve it without re-parsing unrelated files.
type GhostRow struct {
	Table string // "symbols" or "references"
	ID    int64
}

// FindGhostSymbols returns symbols whose definition_id no longer resolves to a live row.
func FindGhostSymbols(ctx context.Context, tx *sql.Tx) ([]GhostRow, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT s.id FROM symbols s
		WHERE s.definition_id IS NOT NULL
		AND NOT EXISTS (SELECT 1 FROM definitions d WHERE d.id = s.definition_id)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GhostRow
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, GhostRow{Table: "symbols", ID: id})
	}
	return out, rows.Err()
}

// FindGhostReferences returns references whose to_file_id no longer resolves.
func FindGhostReferences(ctx context.Context, tx *sql.Tx) ([]GhostRow, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT r.id FROM "references" r
		WHERE r.to_file_id IS NOT NULL
		AND NOT EXISTS (SELECT 1 FROM files f WHERE f.id = r.to_file_id)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GhostRow
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, GhostRow{Table: "references", ID: id})
	}
	return out, rows.Err()
}

// ClearGhostSymbol nils out a dangling symbol's definition_id.
func ClearGhostSymbol(ctx context.Context, tx *sql.Tx, id int64) error {
	_, err := tx.ExecContext(ctx, `UPDATE symbols SET definition_id = NULL WHERE id = ?`, id)
	return err
}

// ClearGhostReference nils out a dangling reference's to_file_id.
func ClearGhostReference(ctx context.Context, tx *sql.Tx, id int64) error {
	_, err := tx.ExecContext(ctx, `UPDATE "references" SET to_file_id = NULL WHERE id = ?`, id)
	return err
}
