package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"codeindex/internal/model"
)

// UpsertDefinition inserts or updates a definition keyed by the (file, name, kind)
// identity spec.md §4.1/§9 defines as stable. A rename or kind change is treated as a
// new definition by the caller (it deletes the old row first), matching the simplicity
// tradeoff the spec calls out over fuzzy matching.
func UpsertDefinition(ctx context.Context, tx *sql.Tx, d model.Definition) (int64, error) {
	implJSON, err := json.Marshal(d.Implements)
	if err != nil {
		return 0, err
	}

	var id int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM definitions WHERE file_id = ? AND name = ? AND kind = ?`,
		d.FileID, d.Name, string(d.Kind)).Scan(&id)

	switch {
	case err == sql.ErrNoRows:
		res, insErr := tx.ExecContext(ctx, `
			INSERT INTO definitions (file_id, name, kind, start_line, start_column, end_line,
				end_column, declaration_end_line, declaration_end_column, exported,
				default_export, extends, implements)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.FileID, d.Name, string(d.Kind), d.StartLine, d.StartColumn, d.EndLine, d.EndColumn,
			d.DeclarationEndLine, d.DeclarationEndColumn, boolToInt(d.Exported), boolToInt(d.DefaultExport),
			d.Extends, string(implJSON))
		if insErr != nil {
			return 0, insErr
		}
		return res.LastInsertId()
	case err != nil:
		return 0, err
	default:
		_, updErr := tx.ExecContext(ctx, `
			UPDATE definitions SET start_line=?, start_column=?, end_line=?, end_column=?,
				declaration_end_line=?, declaration_end_column=?, exported=?, default_export=?,
				extends=?, implements=? WHERE id=?`,
			d.StartLine, d.StartColumn, d.EndLine, d.EndColumn, d.DeclarationEndLine,
			d.DeclarationEndColumn, boolToInt(d.Exported), boolToInt(d.DefaultExport),
			d.Extends, string(implJSON), id)
		return id, updErr
	}
}

// DefinitionsByFile returns every definition currently stored for a file, used by the
// Sync Engine's reconcile phase to diff against freshly parsed definitions.
func DefinitionsByFile(ctx context.Context, tx *sql.Tx, fileID int64) ([]model.Definition, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, file_id, name, kind, start_line, start_column, end_line, end_column,
			declaration_end_line, declaration_end_column, exported, default_export, extends, implements
		FROM definitions WHERE file_id = ?`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDefinitions(rows)
}

// GetDefinition fetches one definition by id.
func GetDefinition(ctx context.Context, tx *sql.Tx, id int64) (model.Definition, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, file_id, name, kind, start_line, start_column, end_line, end_column,
			declaration_end_line, declaration_end_column, exported, default_export, extends, implements
		FROM definitions WHERE id = ?`, id)
	return scanDefinitionRow(row)
}

// DeleteDefinition removes a definition row; cascades to module_members,
// relationship_annotations and interaction_definition_links, and clears definition_id
// on symbols that resolved to it (those symbols and their usages stay).
func DeleteDefinition(ctx context.Context, tx *sql.Tx, id int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM definitions WHERE id = ?`, id)
	return err
}

// DefinitionsByName finds every definition sharing a name, used when resolving extends/
// implements names to ids for inheritance derivation (spec.md §4.3).
func DefinitionsByName(ctx context.Context, tx *sql.Tx, name string) ([]model.Definition, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, file_id, name, kind, start_line, start_column, end_line, end_column,
			declaration_end_line, declaration_end_column, exported, default_export, extends, implements
		FROM definitions WHERE name = ?`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDefinitions(rows)
}

func scanDefinitions(rows *sql.Rows) ([]model.Definition, error) {
	var out []model.Definition
	for rows.Next() {
		d, err := scanDefinitionFields(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDefinitionFields(s scanner) (model.Definition, error) {
	var d model.Definition
	var kind, implJSON string
	var exported, defaultExport int
	if err := s.Scan(&d.ID, &d.FileID, &d.Name, &kind, &d.StartLine, &d.StartColumn,
		&d.EndLine, &d.EndColumn, &d.DeclarationEndLine, &d.DeclarationEndColumn,
		&exported, &defaultExport, &d.Extends, &implJSON); err != nil {
		return d, err
	}
	d.Kind = model.DefinitionKind(kind)
	d.Exported = exported != 0
	d.DefaultExport = defaultExport != 0
	if implJSON != "" {
		_ = json.Unmarshal([]byte(implJSON), &d.Implements)
	}
	return d, nil
}

func scanDefinitionRow(row *sql.Row) (model.Definition, error) {
	return scanDefinitionFields(row)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
