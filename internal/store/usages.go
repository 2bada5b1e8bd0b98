package store

import (
	"context"
	"database/sql"

	"codeindex/internal/model"
)

// InsertUsage records one concrete occurrence of a symbol, the raw material the call
// graph derivation (spec.md §4.3) scans within definition body ranges.
func InsertUsage(ctx context.Context, tx *sql.Tx, u model.Usage) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO usages (symbol_id, line, column, context) VALUES (?, ?, ?, ?)`,
		u.SymbolID, u.Line, u.Column, string(u.Context))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UsagesInRange returns every usage (joined through its symbol to a resolved
// definition) whose line falls within [startLine, endLine] of a file — the call graph's
// per-definition scan window.
type ResolvedUsage struct {
	Usage        model.Usage
	DefinitionID int64 // the resolved target definition of the symbol carrying this usage
}

func UsagesInRange(ctx context.Context, tx *sql.Tx, fileID int64, startLine, endLine int) ([]ResolvedUsage, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT u.id, u.symbol_id, u.line, u.column, u.context, s.definition_id
		FROM usages u
		JOIN symbols s ON s.id = u.symbol_id
		JOIN "references" r ON r.id = s.reference_id
		WHERE r.from_file_id = ? AND u.line BETWEEN ? AND ? AND s.definition_id IS NOT NULL`,
		fileID, startLine, endLine)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ResolvedUsage
	for rows.Next() {
		var ru ResolvedUsage
		var ctxStr string
		if err := rows.Scan(&ru.Usage.ID, &ru.Usage.SymbolID, &ru.Usage.Line, &ru.Usage.Column, &ctxStr, &ru.DefinitionID); err != nil {
			return nil, err
		}
		ru.Usage.Context = model.UsageContext(ctxStr)
		out = append(out, ru)
	}
	return out, rows.Err()
}

// InternalUsagesInRange mirrors UsagesInRange for usages carried by a file-scoped
// symbol (an internal, same-file call) rather than an import-scoped one.
func InternalUsagesInRange(ctx context.Context, tx *sql.Tx, fileID int64, startLine, endLine int) ([]ResolvedUsage, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT u.id, u.symbol_id, u.line, u.column, u.context, s.definition_id
		FROM usages u
		JOIN symbols s ON s.id = u.symbol_id
		WHERE s.file_id = ? AND u.line BETWEEN ? AND ? AND s.definition_id IS NOT NULL`,
		fileID, startLine, endLine)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ResolvedUsage
	for rows.Next() {
		var ru ResolvedUsage
		var ctxStr string
		if err := rows.Scan(&ru.Usage.ID, &ru.Usage.SymbolID, &ru.Usage.Line, &ru.Usage.Column, &ctxStr, &ru.DefinitionID); err != nil {
			return nil, err
		}
		ru.Usage.Context = model.UsageContext(ctxStr)
		out = append(out, ru)
	}
	return out, rows.Err()
}
