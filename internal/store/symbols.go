package store

import (
	"context"
	"database/sql"

	"codeindex/internal/model"
)

// InsertSymbol records one named thing crossing a reference (ReferenceID set) or used
// internally within a file (FileID set) — exactly one of the two per spec.md §3.
func InsertSymbol(ctx context.Context, tx *sql.Tx, sym model.Symbol) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO symbols (reference_id, file_id, definition_id, exported_name, local_alias, kind)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sym.ReferenceID, sym.FileID, sym.DefinitionID, sym.ExportedName, sym.LocalAlias, string(sym.Kind))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ResolveSymbol sets a symbol's definition_id once its target definition is located.
func ResolveSymbol(ctx context.Context, tx *sql.Tx, symbolID int64, definitionID int64) error {
	_, err := tx.ExecContext(ctx, `UPDATE symbols SET definition_id = ? WHERE id = ?`, definitionID, symbolID)
	return err
}

// UnresolveSymbolsByDefinition nils out definition_id for every symbol that pointed at a
// definition which just disappeared, so the dangling-cleanup phase can find them.
func UnresolveSymbolsByDefinition(ctx context.Context, tx *sql.Tx, definitionID int64) error {
	_, err := tx.ExecContext(ctx, `UPDATE symbols SET definition_id = NULL WHERE definition_id = ?`, definitionID)
	return err
}

// SymbolsByReference returns every symbol carried by a reference.
func SymbolsByReference(ctx context.Context, tx *sql.Tx, referenceID int64) ([]model.Symbol, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, reference_id, file_id, definition_id, exported_name, local_alias, kind
		FROM symbols WHERE reference_id = ?`, referenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSymbols(rows)
}

// SymbolsByExportedName returns the exported definitions named name in one file, used
// to resolve an import against a target file's definitions (spec.md §4.2 phase 5).
func SymbolsByExportedName(ctx context.Context, tx *sql.Tx, fileID int64, name string) ([]model.Definition, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, file_id, name, kind, start_line, start_column, end_line, end_column,
			declaration_end_line, declaration_end_column, exported, default_export, extends, implements
		FROM definitions WHERE file_id = ? AND name = ? AND exported = 1`, fileID, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDefinitions(rows)
}

// DanglingSymbols returns every symbol whose definition_id is still unresolved, the
// ghost rows phase 7 cleans up or retries.
func DanglingSymbols(ctx context.Context, tx *sql.Tx) ([]model.Symbol, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, reference_id, file_id, definition_id, exported_name, local_alias, kind
		FROM symbols WHERE definition_id IS NULL AND reference_id IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSymbols(rows)
}

func scanSymbols(rows *sql.Rows) ([]model.Symbol, error) {
	var out []model.Symbol
	for rows.Next() {
		var sym model.Symbol
		var kind string
		if err := rows.Scan(&sym.ID, &sym.ReferenceID, &sym.FileID, &sym.DefinitionID,
			&sym.ExportedName, &sym.LocalAlias, &kind); err != nil {
			return nil, err
		}
		sym.Kind = model.SymbolKind(kind)
		out = append(out, sym)
	}
	return out, rows.Err()
}
