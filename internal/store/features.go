package store

import (
	"context"
	"database/sql"

	"codeindex/internal/model"
)

// UpsertFeature inserts or updates a named grouping of flows.
func UpsertFeature(ctx context.Context, tx *sql.Tx, f model.Feature) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO features (slug, display_name, description) VALUES (?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET display_name = excluded.display_name, description = excluded.description`,
		f.Slug, f.DisplayName, f.Description)
	if err != nil {
		return 0, err
	}
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		return id, nil
	}
	var id int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM features WHERE slug = ?`, f.Slug).Scan(&id)
	return id, err
}

// LinkFeatureFlow associates a flow with a feature grouping.
func LinkFeatureFlow(ctx context.Context, tx *sql.Tx, featureID, flowID int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO feature_flows (feature_id, flow_id) VALUES (?, ?)`, featureID, flowID)
	return err
}

// FlowsByFeature returns every flow id grouped under a feature.
func FlowsByFeature(ctx context.Context, tx *sql.Tx, featureID int64) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, `SELECT flow_id FROM feature_flows WHERE feature_id = ?`, featureID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// AllFeatures returns every stored feature.
func AllFeatures(ctx context.Context, tx *sql.Tx) ([]model.Feature, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, slug, display_name, description FROM features`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Feature
	for rows.Next() {
		var f model.Feature
		if err := rows.Scan(&f.ID, &f.Slug, &f.DisplayName, &f.Description); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
