package store

import (
	"context"
	"database/sql"

	"codeindex/internal/model"
)

// MarkDirty appends one hint row for a downstream enrichment layer to pick up. Batched
// callers should wrap repeated calls in their own loop — spec.md §4.2 calls for
// batched IN (...) lookups, not one-row-at-a-time marking, so this is deliberately the
// smallest primitive and callers choose the batching shape.
func MarkDirty(ctx context.Context, tx *sql.Tx, layer model.DirtyLayer, entityID int64, reason model.DirtyReason) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sync_dirty (layer, entity_id, reason) VALUES (?, ?, ?)`,
		string(layer), entityID, string(reason))
	return err
}

// DirtyByLayer returns every pending hint row for one enrichment layer.
func DirtyByLayer(ctx context.Context, tx *sql.Tx, layer model.DirtyLayer) ([]model.SyncDirtyEntry, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, layer, entity_id, reason FROM sync_dirty WHERE layer = ?`, string(layer))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SyncDirtyEntry
	for rows.Next() {
		var e model.SyncDirtyEntry
		var layerStr, reason string
		if err := rows.Scan(&e.ID, &layerStr, &e.EntityID, &reason); err != nil {
			return nil, err
		}
		e.Layer = model.DirtyLayer(layerStr)
		e.Reason = model.DirtyReason(reason)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ClearLayer deletes every pending hint row for a layer once its enrichment pass has
// consumed them, per the final phase of the dirty-propagation pipeline.
func ClearLayer(ctx context.Context, tx *sql.Tx, layer model.DirtyLayer) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM sync_dirty WHERE layer = ?`, string(layer))
	return err
}
