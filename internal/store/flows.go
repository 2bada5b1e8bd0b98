package store

import (
	"context"
	"database/sql"

	"codeindex/internal/model"
)

// InsertFlow records a traced flow, upserting by slug: a flow whose slug is already
// stored keeps its id and has its other columns replaced.
func InsertFlow(ctx context.Context, tx *sql.Tx, f model.Flow) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO flows (slug, display_name, entry_definition_id, entry_module_id,
			stakeholder, action, target_entity, tier, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET display_name = excluded.display_name,
			entry_definition_id = excluded.entry_definition_id, entry_module_id = excluded.entry_module_id,
			stakeholder = excluded.stakeholder, action = excluded.action,
			target_entity = excluded.target_entity, tier = excluded.tier, description = excluded.description`,
		f.Slug, f.DisplayName, f.EntryDefinitionID, f.EntryModuleID, f.Stakeholder,
		string(f.Action), f.TargetEntity, int(f.Tier), f.Description)
	if err != nil {
		return 0, err
	}
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		return id, nil
	}
	var id int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM flows WHERE slug = ?`, f.Slug).Scan(&id)
	return id, err
}

// DeleteFlowSteps clears a flow's steps before re-inserting a freshly traced sequence.
func DeleteFlowSteps(ctx context.Context, tx *sql.Tx, flowID int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM flow_steps WHERE flow_id = ?`, flowID)
	return err
}

// InsertFlowStep appends one ordered step to a flow.
func InsertFlowStep(ctx context.Context, tx *sql.Tx, step model.FlowStep) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO flow_steps (flow_id, step_order, kind, interaction_id, from_def, to_def, subflow_id, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		step.FlowID, step.Order, string(step.Kind), step.InteractionID, step.FromDef,
		step.ToDef, step.SubflowID, string(step.Source))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// StepsByFlow returns a flow's steps in order.
func StepsByFlow(ctx context.Context, tx *sql.Tx, flowID int64) ([]model.FlowStep, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, flow_id, step_order, kind, interaction_id, from_def, to_def, subflow_id, source
		FROM flow_steps WHERE flow_id = ? ORDER BY step_order`, flowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.FlowStep
	for rows.Next() {
		var s model.FlowStep
		var kind, source string
		if err := rows.Scan(&s.ID, &s.FlowID, &s.Order, &kind, &s.InteractionID, &s.FromDef,
			&s.ToDef, &s.SubflowID, &source); err != nil {
			return nil, err
		}
		s.Kind = model.FlowStepKind(kind)
		s.Source = model.InteractionSource(source)
		out = append(out, s)
	}
	return out, rows.Err()
}

// AllFlows returns every stored flow, used by dirty propagation, the Flow Tracer's
// BuildContext and the browse subcommand.
func AllFlows(ctx context.Context, tx *sql.Tx) ([]model.Flow, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, slug, display_name, entry_definition_id, entry_module_id, stakeholder,
			action, target_entity, tier, description FROM flows`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Flow
	for rows.Next() {
		var f model.Flow
		var action string
		var tier int
		if err := rows.Scan(&f.ID, &f.Slug, &f.DisplayName, &f.EntryDefinitionID, &f.EntryModuleID,
			&f.Stakeholder, &action, &f.TargetEntity, &tier, &f.Description); err != nil {
			return nil, err
		}
		f.Action = model.ActionType(action)
		f.Tier = model.FlowTier(tier)
		out = append(out, f)
	}
	return out, rows.Err()
}

// DeleteFlow removes a flow and its steps (cascade).
func DeleteFlow(ctx context.Context, tx *sql.Tx, id int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM flows WHERE id = ?`, id)
	return err
}
