package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"codeindex/internal/model"
)

// UpsertInteraction inserts or merges one module-pair edge. Re-derivation (spec.md §4.3)
// fully replaces AST-sourced interactions each sync, but LLM-inferred and
// contract-matched interactions persist across syncs and are merged rather than
// clobbered, so the upsert adds weight and widens the symbol list instead of overwriting.
func UpsertInteraction(ctx context.Context, tx *sql.Tx, i model.Interaction) (int64, error) {
	symbolsJSON, err := json.Marshal(i.Symbols)
	if err != nil {
		return 0, err
	}

	var id int64
	var existingWeight int
	var existingSymbolsJSON, existingSource string
	err = tx.QueryRowContext(ctx, `
		SELECT id, weight, symbols, source FROM interactions WHERE from_module = ? AND to_module = ?`,
		i.FromModule, i.ToModule).Scan(&id, &existingWeight, &existingSymbolsJSON, &existingSource)

	switch {
	case err == sql.ErrNoRows:
		res, insErr := tx.ExecContext(ctx, `
			INSERT INTO interactions (from_module, to_module, direction, weight, pattern, semantic,
				source, confidence, symbols)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			i.FromModule, i.ToModule, string(i.Direction), i.Weight, string(i.Pattern), i.Semantic,
			string(i.Source), i.Confidence, string(symbolsJSON))
		if insErr != nil {
			return 0, insErr
		}
		return res.LastInsertId()
	case err != nil:
		return 0, err
	default:
		var existingSymbols []string
		if existingSymbolsJSON != "" {
			_ = json.Unmarshal([]byte(existingSymbolsJSON), &existingSymbols)
		}
		merged := mergeSymbolLists(existingSymbols, i.Symbols)
		mergedJSON, mErr := json.Marshal(merged)
		if mErr != nil {
			return 0, mErr
		}
		source := i.Source
		if source == model.SourceAST && model.InteractionSource(existingSource) != model.SourceAST {
			// An AST edge merging into an LLM-inferred or contract-matched row keeps that source.
			source = model.InteractionSource(existingSource)
		}
		_, updErr := tx.ExecContext(ctx, `
			UPDATE interactions SET direction = ?, weight = ?, pattern = ?, source = ?,
				confidence = ?, symbols = ? WHERE id = ?`,
			string(i.Direction), existingWeight+i.Weight, string(i.Pattern), string(source),
			i.Confidence, string(mergedJSON), id)
		return id, updErr
	}
}

func mergeSymbolLists(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// DeleteASTInteractions removes every AST-sourced interaction, the first step of each
// derivation pass before recomputing them from the current call graph.
func DeleteASTInteractions(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM interactions WHERE source = ?`, string(model.SourceAST))
	return err
}

// InteractionByModulePair looks up the single edge between two modules, if any.
func InteractionByModulePair(ctx context.Context, tx *sql.Tx, from, to int64) (model.Interaction, bool, error) {
	i, err := scanInteractionRow(tx.QueryRowContext(ctx, `
		SELECT id, from_module, to_module, direction, weight, pattern, semantic, source, confidence, symbols
		FROM interactions WHERE from_module = ? AND to_module = ?`, from, to))
	if err == sql.ErrNoRows {
		return model.Interaction{}, false, nil
	}
	return i, err == nil, err
}

// InteractionsFromModule returns every interaction touching a module as source or
// target. Used by dirty propagation to find interactions "touching module" (spec.md
// §4.2's dirty-propagation diagram) and by the browse subcommand.
func InteractionsFromModule(ctx context.Context, tx *sql.Tx, moduleID int64) ([]model.Interaction, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, from_module, to_module, direction, weight, pattern, semantic, source, confidence, symbols
		FROM interactions WHERE from_module = ? OR to_module = ?`, moduleID, moduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInteractions(rows)
}

// AllInteractions returns every interaction, used by DeriveAtomicFlows and by the Flow
// Tracer's BuildContext.
func AllInteractions(ctx context.Context, tx *sql.Tx) ([]model.Interaction, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, from_module, to_module, direction, weight, pattern, semantic, source, confidence, symbols
		FROM interactions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInteractions(rows)
}

func scanInteractions(rows *sql.Rows) ([]model.Interaction, error) {
	var out []model.Interaction
	for rows.Next() {
		i, err := scanInteractionFields(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func scanInteractionFields(s scanner) (model.Interaction, error) {
	var i model.Interaction
	var direction, pattern, source, symbolsJSON string
	if err := s.Scan(&i.ID, &i.FromModule, &i.ToModule, &direction, &i.Weight, &pattern,
		&i.Semantic, &source, &i.Confidence, &symbolsJSON); err != nil {
		return i, err
	}
	i.Direction = model.InteractionDirection(direction)
	i.Pattern = model.InteractionPattern(pattern)
	i.Source = model.InteractionSource(source)
	if symbolsJSON != "" {
		_ = json.Unmarshal([]byte(symbolsJSON), &i.Symbols)
	}
	return i, nil
}

func scanInteractionRow(row *sql.Row) (model.Interaction, error) {
	return scanInteractionFields(row)
}

// UpsertInteractionDefinitionLink narrows an interaction to a specific definition pair.
func UpsertInteractionDefinitionLink(ctx context.Context, tx *sql.Tx, l model.InteractionDefinitionLink) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO interaction_definition_links (interaction_id, from_def, to_def, source)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(interaction_id, from_def, to_def) DO UPDATE SET source = excluded.source`,
		l.InteractionID, l.FromDef, l.ToDef, string(l.Source))
	if err != nil {
		return 0, err
	}
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		return id, nil
	}
	var id int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM interaction_definition_links WHERE interaction_id = ? AND from_def = ? AND to_def = ?`,
		l.InteractionID, l.FromDef, l.ToDef).Scan(&id)
	return id, err
}

// DeleteASTInteractionLinks removes AST-sourced definition links before recomputation.
func DeleteASTInteractionLinks(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM interaction_definition_links WHERE source = ?`, string(model.SourceAST))
	return err
}

// LinksByInteraction returns every definition-level link narrowing a module-pair edge —
// the Flow Tracer prefers these over the module-level fallback when bridging at a leaf.
func LinksByInteraction(ctx context.Context, tx *sql.Tx, interactionID int64) ([]model.InteractionDefinitionLink, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, interaction_id, from_def, to_def, source FROM interaction_definition_links
		WHERE interaction_id = ?`, interactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.InteractionDefinitionLink
	for rows.Next() {
		var l model.InteractionDefinitionLink
		var source string
		if err := rows.Scan(&l.ID, &l.InteractionID, &l.FromDef, &l.ToDef, &source); err != nil {
			return nil, err
		}
		l.Source = model.InteractionSource(source)
		out = append(out, l)
	}
	return out, rows.Err()
}

// LinksByFromDef returns every definition-level link originating at a definition,
// regardless of which interaction it belongs to — used to find bridges at a leaf.
func LinksByFromDef(ctx context.Context, tx *sql.Tx, fromDef int64) ([]model.InteractionDefinitionLink, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, interaction_id, from_def, to_def, source FROM interaction_definition_links
		WHERE from_def = ?`, fromDef)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.InteractionDefinitionLink
	for rows.Next() {
		var l model.InteractionDefinitionLink
		var source string
		if err := rows.Scan(&l.ID, &l.InteractionID, &l.FromDef, &l.ToDef, &source); err != nil {
			return nil, err
		}
		l.Source = model.InteractionSource(source)
		out = append(out, l)
	}
	return out, rows.Err()
}

// AllInteractionDefinitionLinks returns every definition-level link, used once per
// Flow Tracer run to build the from_def -> target_module -> to_def bridge index
// (spec.md §4.4).
func AllInteractionDefinitionLinks(ctx context.Context, tx *sql.Tx) ([]model.InteractionDefinitionLink, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, interaction_id, from_def, to_def, source FROM interaction_definition_links`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.InteractionDefinitionLink
	for rows.Next() {
		var l model.InteractionDefinitionLink
		var source string
		if err := rows.Scan(&l.ID, &l.InteractionID, &l.FromDef, &l.ToDef, &source); err != nil {
			return nil, err
		}
		l.Source = model.InteractionSource(source)
		out = append(out, l)
	}
	return out, rows.Err()
}
