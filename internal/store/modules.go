package store

import (
	"context"
	"database/sql"

	"codeindex/internal/model"
)

// UpsertModule inserts or updates a module node by (parent_id, slug), the identity the
// hierarchical grouping tree keys on.
func UpsertModule(ctx context.Context, tx *sql.Tx, m model.Module) (int64, error) {
	var id int64
	var err error
	if m.ParentID == nil {
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM modules WHERE parent_id IS NULL AND slug = ?`, m.Slug).Scan(&id)
	} else {
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM modules WHERE parent_id = ? AND slug = ?`, *m.ParentID, m.Slug).Scan(&id)
	}

	switch {
	case err == sql.ErrNoRows:
		res, insErr := tx.ExecContext(ctx, `
			INSERT INTO modules (parent_id, slug, full_path, display_name, depth, is_test)
			VALUES (?, ?, ?, ?, ?, ?)`,
			m.ParentID, m.Slug, m.FullPath, m.DisplayName, m.Depth, boolToInt(m.IsTest))
		if insErr != nil {
			return 0, insErr
		}
		return res.LastInsertId()
	case err != nil:
		return 0, err
	default:
		_, updErr := tx.ExecContext(ctx, `
			UPDATE modules SET full_path = ?, display_name = ?, depth = ?, is_test = ? WHERE id = ?`,
			m.FullPath, m.DisplayName, m.Depth, boolToInt(m.IsTest), id)
		return id, updErr
	}
}

// ModuleByPath looks up a module by its full dotted path.
func ModuleByPath(ctx context.Context, tx *sql.Tx, fullPath string) (model.Module, bool, error) {
	m, err := scanModuleRow(tx.QueryRowContext(ctx, `
		SELECT id, parent_id, slug, full_path, display_name, depth, is_test
		FROM modules WHERE full_path = ?`, fullPath))
	if err == sql.ErrNoRows {
		return model.Module{}, false, nil
	}
	return m, err == nil, err
}

// SetModuleMember assigns a definition to exactly one module, replacing any prior
// assignment.
func SetModuleMember(ctx context.Context, tx *sql.Tx, definitionID, moduleID int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO module_members (definition_id, module_id) VALUES (?, ?)
		ON CONFLICT(definition_id) DO UPDATE SET module_id = excluded.module_id`,
		definitionID, moduleID)
	return err
}

// ModuleOfDefinition returns the module id a definition belongs to, or 0 if unassigned.
func ModuleOfDefinition(ctx context.Context, tx *sql.Tx, definitionID int64) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT module_id FROM module_members WHERE definition_id = ?`, definitionID).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return id, err
}

// MembersOfModule returns every definition id assigned to a module.
func MembersOfModule(ctx context.Context, tx *sql.Tx, moduleID int64) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, `SELECT definition_id FROM module_members WHERE module_id = ?`, moduleID)
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

// GetModule returns a single module row by id, used by callers that need one module's
// full path rather than the whole tree (e.g. the LLM orchestration boundary's enhanced
// relationship context).
func GetModule(ctx context.Context, tx *sql.Tx, id int64) (model.Module, error) {
	var m model.Module
	err := tx.QueryRowContext(ctx, `
		SELECT id, parent_id, slug, full_path, display_name, depth, is_test FROM modules WHERE id = ?`,
		id).Scan(&m.ID, &m.ParentID, &m.Slug, &m.FullPath, &m.DisplayName, &m.Depth, &m.IsTest)
	return m, err
}

// AllModules returns every module row, used by derivation passes that project the
// definition-level call graph through module membership.
func AllModules(ctx context.Context, tx *sql.Tx) ([]model.Module, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, parent_id, slug, full_path, display_name, depth, is_test FROM modules`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Module
	for rows.Next() {
		m, err := scanModuleFields(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanModuleFields(s scanner) (model.Module, error) {
	var m model.Module
	var isTest int
	if err := s.Scan(&m.ID, &m.ParentID, &m.Slug, &m.FullPath, &m.DisplayName, &m.Depth, &isTest); err != nil {
		return m, err
	}
	m.IsTest = isTest != 0
	return m, nil
}

func scanModuleRow(row *sql.Row) (model.Module, error) {
	return scanModuleFields(row)
}
