package store

import (
	"context"
	"database/sql"

	"codeindex/internal/model"
)

// UpsertRelationship inserts or strengthens a (from_def, to_def) relationship
// annotation, applying the upgrade policy in model.StrongerRelationship so a later
// "uses" edge never silently demotes a previously recorded extends/implements edge.
func UpsertRelationship(ctx context.Context, tx *sql.Tx, fromDef, toDef int64, relType model.RelationshipType, semantic string) (int64, error) {
	var id int64
	var existing, existingSemantic string
	err := tx.QueryRowContext(ctx, `
		SELECT id, type, semantic FROM relationship_annotations WHERE from_def = ? AND to_def = ?`,
		fromDef, toDef).Scan(&id, &existing, &existingSemantic)

	switch {
	case err == sql.ErrNoRows:
		res, insErr := tx.ExecContext(ctx, `
			INSERT INTO relationship_annotations (from_def, to_def, type, semantic)
			VALUES (?, ?, ?, ?)`, fromDef, toDef, string(relType), semantic)
		if insErr != nil {
			return 0, insErr
		}
		return res.LastInsertId()
	case err != nil:
		return 0, err
	default:
		resolved := model.StrongerRelationship(model.RelationshipType(existing), relType)
		newSemantic := semantic
		if resolved == model.RelationshipType(existing) && resolved != relType {
			// Incoming type lost the upgrade comparison: keep the existing narration too.
			newSemantic = ""
		}
		if newSemantic == model.PendingAnnotation && model.RelationshipType(existing) == relType && existingSemantic != "" {
			// Re-deriving an edge of the same type keeps the narration already recorded.
			newSemantic = ""
		}
		_, updErr := tx.ExecContext(ctx, `
			UPDATE relationship_annotations SET type = ?, semantic = CASE WHEN ? = '' THEN semantic ELSE ? END
			WHERE id = ?`, string(resolved), newSemantic, newSemantic, id)
		return id, updErr
	}
}

// RelationshipsFrom returns every relationship annotation originating at a definition.
func RelationshipsFrom(ctx context.Context, tx *sql.Tx, fromDef int64) ([]model.RelationshipAnnotation, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, from_def, to_def, type, semantic FROM relationship_annotations WHERE from_def = ?`, fromDef)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRelationships(rows)
}

// RelationshipsTo returns every relationship annotation terminating at a definition,
// the incoming half of a definition's peer relationships for the enhanced relationship
// context (spec.md §6).
func RelationshipsTo(ctx context.Context, tx *sql.Tx, toDef int64) ([]model.RelationshipAnnotation, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, from_def, to_def, type, semantic FROM relationship_annotations WHERE to_def = ?`, toDef)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRelationships(rows)
}

// UnannotatedRelationships returns every relationship still carrying the pending
// placeholder, the query the LLM orchestration boundary polls (spec.md §6).
func UnannotatedRelationships(ctx context.Context, tx *sql.Tx, limit int) ([]model.RelationshipAnnotation, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, from_def, to_def, type, semantic FROM relationship_annotations
		WHERE semantic = ? LIMIT ?`, model.PendingAnnotation, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRelationships(rows)
}

// SetRelationshipAnnotation is the callback the LLM orchestration boundary uses to
// replace a pending placeholder with a narrated semantic string.
func SetRelationshipAnnotation(ctx context.Context, tx *sql.Tx, id int64, semantic string) error {
	_, err := tx.ExecContext(ctx, `UPDATE relationship_annotations SET semantic = ? WHERE id = ?`, semantic, id)
	return err
}

func scanRelationships(rows *sql.Rows) ([]model.RelationshipAnnotation, error) {
	var out []model.RelationshipAnnotation
	for rows.Next() {
		var r model.RelationshipAnnotation
		var relType string
		if err := rows.Scan(&r.ID, &r.FromDef, &r.ToDef, &relType, &r.Semantic); err != nil {
			return nil, err
		}
		r.Type = model.RelationshipType(relType)
		out = append(out, r)
	}
	return out, rows.Err()
}
