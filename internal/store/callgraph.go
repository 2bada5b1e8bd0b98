package store

import (
	"context"
	"database/sql"
)

// CallEdge is one definition-to-definition call or instantiation edge, the raw material
// for both the definition-level call graph and its module-level projection (spec.md
// §4.3). Self-edges (from == to) are excluded by the query, not by a post-filter.
type CallEdge struct {
	FromDef int64
	ToDef   int64
	Weight  int
}

// CallGraphEdges aggregates usages.context IN ('call','new') within a definition's own
// body range into FromDef -> ToDef edges with a usage-count weight. Join order here
// mirrors the teacher's own call-graph aggregation in internal/world/dataflow.go: find
// the enclosing definition of each usage, then group by (enclosing, resolved target).
func CallGraphEdges(ctx context.Context, tx *sql.Tx) ([]CallEdge, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT encl.id AS from_def, s.definition_id AS to_def, COUNT(*) AS weight
		FROM usages u
		JOIN symbols s ON s.id = u.symbol_id
		LEFT JOIN "references" r ON r.id = s.reference_id
		JOIN definitions encl
			ON encl.file_id = COALESCE(r.from_file_id, s.file_id)
			AND u.line BETWEEN encl.start_line AND encl.end_line
		WHERE u.context IN ('call', 'new')
			AND s.definition_id IS NOT NULL
			AND s.definition_id != encl.id
		GROUP BY encl.id, s.definition_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallEdge
	for rows.Next() {
		var e CallEdge
		if err := rows.Scan(&e.FromDef, &e.ToDef, &e.Weight); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ModuleCallEdge is a CallEdge projected through module_members, with self-loops
// (both endpoints in the same module) already collapsed out.
type ModuleCallEdge struct {
	FromModule int64
	ToModule   int64
	Weight     int
}

// ModuleCallGraphEdges projects CallGraphEdges through module membership, excluding
// edges where both endpoints land in the same module (spec.md §4.3: "self-loops
// collapsed").
func ModuleCallGraphEdges(ctx context.Context, tx *sql.Tx) ([]ModuleCallEdge, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT fm.module_id AS from_module, tm.module_id AS to_module, SUM(ce.weight) AS weight
		FROM (
			SELECT encl.id AS from_def, s.definition_id AS to_def, COUNT(*) AS weight
			FROM usages u
			JOIN symbols s ON s.id = u.symbol_id
			LEFT JOIN "references" r ON r.id = s.reference_id
			JOIN definitions encl
				ON encl.file_id = COALESCE(r.from_file_id, s.file_id)
				AND u.line BETWEEN encl.start_line AND encl.end_line
			WHERE u.context IN ('call', 'new')
				AND s.definition_id IS NOT NULL
				AND s.definition_id != encl.id
			GROUP BY encl.id, s.definition_id
		) ce
		JOIN module_members fm ON fm.definition_id = ce.from_def
		JOIN module_members tm ON tm.definition_id = ce.to_def
		WHERE fm.module_id != tm.module_id
		GROUP BY fm.module_id, tm.module_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModuleCallEdge
	for rows.Next() {
		var e ModuleCallEdge
		if err := rows.Scan(&e.FromModule, &e.ToModule, &e.Weight); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UnannotatedCallEdges returns call-graph edges with no relationship_annotations row at
// all, the "unannotated relationships" half of the LLM orchestration boundary's polling
// query (spec.md §6) — distinct from inheritance edges, which already exist as
// PENDING_LLM_ANNOTATION placeholders and are read via UnannotatedRelationships.
func UnannotatedCallEdges(ctx context.Context, tx *sql.Tx, limit int) ([]CallEdge, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT encl.id AS from_def, s.definition_id AS to_def, COUNT(*) AS weight
		FROM usages u
		JOIN symbols s ON s.id = u.symbol_id
		LEFT JOIN "references" r ON r.id = s.reference_id
		JOIN definitions encl
			ON encl.file_id = COALESCE(r.from_file_id, s.file_id)
			AND u.line BETWEEN encl.start_line AND encl.end_line
		WHERE u.context IN ('call', 'new')
			AND s.definition_id IS NOT NULL
			AND s.definition_id != encl.id
			AND NOT EXISTS (
				SELECT 1 FROM relationship_annotations ra
				WHERE ra.from_def = encl.id AND ra.to_def = s.definition_id
			)
		GROUP BY encl.id, s.definition_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallEdge
	for rows.Next() {
		var e CallEdge
		if err := rows.Scan(&e.FromDef, &e.ToDef, &e.Weight); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetCallsites returns every definition id that a given definition calls or
// instantiates — the outgoing edge set the Flow Tracer's DFS walks.
func GetCallsites(ctx context.Context, tx *sql.Tx, definitionID int64) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT DISTINCT s.definition_id
		FROM usages u
		JOIN symbols s ON s.id = u.symbol_id
		LEFT JOIN "references" r ON r.id = s.reference_id
		JOIN definitions encl
			ON encl.file_id = COALESCE(r.from_file_id, s.file_id)
			AND u.line BETWEEN encl.start_line AND encl.end_line
		WHERE encl.id = ? AND u.context IN ('call', 'new') AND s.definition_id IS NOT NULL AND s.definition_id != encl.id`,
		definitionID)
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

// GetIncoming returns every definition id that calls or instantiates a given
// definition — the reverse of GetCallsites' edge set.
func GetIncoming(ctx context.Context, tx *sql.Tx, definitionID int64) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT DISTINCT encl.id
		FROM usages u
		JOIN symbols s ON s.id = u.symbol_id
		LEFT JOIN "references" r ON r.id = s.reference_id
		JOIN definitions encl
			ON encl.file_id = COALESCE(r.from_file_id, s.file_id)
			AND u.line BETWEEN encl.start_line AND encl.end_line
		WHERE s.definition_id = ? AND u.context IN ('call', 'new') AND encl.id != ?`,
		definitionID, definitionID)
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
