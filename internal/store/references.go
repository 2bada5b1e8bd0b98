package store

import (
	"context"
	"database/sql"

	"codeindex/internal/model"
)

// InsertReference records one import-like construct from a file. References are not
// upserted by identity the way definitions are: the Sync Engine deletes all of a
// modified file's references before re-inserting the freshly parsed set (spec.md §4.2
// phase 2/3), since there is no stable cross-parse identity for a reference beyond its
// owning file.
func InsertReference(ctx context.Context, tx *sql.Tx, r model.Reference) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO "references" (from_file_id, to_file_id, kind, source, external, type_only)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.FromFileID, r.ToFileID, string(r.Kind), r.Source, boolToInt(r.External), boolToInt(r.TypeOnly))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// DeleteReferencesByFile removes every reference owned by a file (cascades to symbols
// and usages), in preparation for re-insertion on modification.
func DeleteReferencesByFile(ctx context.Context, tx *sql.Tx, fileID int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM "references" WHERE from_file_id = ?`, fileID)
	return err
}

// ReferencesByFile returns every reference a file declares.
func ReferencesByFile(ctx context.Context, tx *sql.Tx, fileID int64) ([]model.Reference, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, from_file_id, to_file_id, kind, source, external, type_only
		FROM "references" WHERE from_file_id = ?`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Reference
	for rows.Next() {
		var r model.Reference
		var kind string
		var external, typeOnly int
		if err := rows.Scan(&r.ID, &r.FromFileID, &r.ToFileID, &kind, &r.Source, &external, &typeOnly); err != nil {
			return nil, err
		}
		r.Kind = model.ReferenceKind(kind)
		r.External = external != 0
		r.TypeOnly = typeOnly != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// UnresolvedReferencesToSource finds every reference whose import source string equals
// source and whose to_file_id is not yet resolved (spec.md §4.2 phase 5).
func UnresolvedReferencesToSource(ctx context.Context, tx *sql.Tx, source string) ([]model.Reference, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, from_file_id, to_file_id, kind, source, external, type_only
		FROM "references" WHERE source = ? AND to_file_id IS NULL`, source)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Reference
	for rows.Next() {
		var r model.Reference
		var kind string
		var external, typeOnly int
		if err := rows.Scan(&r.ID, &r.FromFileID, &r.ToFileID, &kind, &r.Source, &external, &typeOnly); err != nil {
			return nil, err
		}
		r.Kind = model.ReferenceKind(kind)
		r.External = external != 0
		r.TypeOnly = typeOnly != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetReferenceTarget resolves a reference's to_file_id once the target file is known.
func SetReferenceTarget(ctx context.Context, tx *sql.Tx, referenceID int64, toFileID int64) error {
	_, err := tx.ExecContext(ctx, `UPDATE "references" SET to_file_id = ? WHERE id = ?`, toFileID, referenceID)
	return err
}

// ClearReferenceTarget nils out to_file_id when the referenced file disappears, letting
// the reference fall back to dangling/external rather than deleting it outright.
func ClearReferenceTarget(ctx context.Context, tx *sql.Tx, toFileID int64) error {
	_, err := tx.ExecContext(ctx, `UPDATE "references" SET to_file_id = NULL WHERE to_file_id = ?`, toFileID)
	return err
}

// ReferencesByTarget returns every reference resolved to a given file, i.e. its
// incoming dependents — used by phase 6 (re-resolve dependents) when a file's exports
// change shape.
func ReferencesByTarget(ctx context.Context, tx *sql.Tx, fileID int64) ([]model.Reference, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, from_file_id, to_file_id, kind, source, external, type_only
		FROM "references" WHERE to_file_id = ?`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Reference
	for rows.Next() {
		var r model.Reference
		var kind string
		var external, typeOnly int
		if err := rows.Scan(&r.ID, &r.FromFileID, &r.ToFileID, &kind, &r.Source, &external, &typeOnly); err != nil {
			return nil, err
		}
		r.Kind = model.ReferenceKind(kind)
		r.External = external != 0
		r.TypeOnly = typeOnly != 0
		out = append(out, r)
	}
	return out, rows.Err()
}
