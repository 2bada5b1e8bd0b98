// Package graph computes the Derivations (spec.md §4.3): the call graph, its
// module-level projection, inheritance edges, and AST-sourced interactions. These are
// pure, deterministic passes over the store's current state, run as the last phase of
// every sync. Direct relational joins do the work here rather than a rules engine —
// DESIGN.md records why a Datalog-style kernel was considered and rejected.
package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"codeindex/internal/logging"
	"codeindex/internal/model"
	"codeindex/internal/store"
)

// DeriveInheritanceEdges scans every definition's stored extends/implements names and
// inserts a pending-annotation RelationshipAnnotation for each resolved target
// (spec.md §4.3). Re-running is idempotent: UpsertRelationship keys on (from, to) and
// never clobbers a stronger existing type.
func DeriveInheritanceEdges(ctx context.Context, tx *sql.Tx) error {
	timer := logging.StartTimer(logging.CategoryGraph, "DeriveInheritanceEdges")
	defer timer.Stop()

	rows, err := tx.QueryContext(ctx, `SELECT id, file_id, extends, implements FROM definitions WHERE extends != '' OR implements != '[]'`)
	if err != nil {
		return err
	}
	type pending struct {
		id         int64
		fileID     int64
		extends    string
		implements string
	}
	var defs []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.fileID, &p.extends, &p.implements); err != nil {
			rows.Close()
			return err
		}
		defs = append(defs, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, d := range defs {
		if d.extends != "" {
			if err := resolveAndAnnotate(ctx, tx, d.id, d.fileID, d.extends, model.RelationExtends); err != nil {
				return err
			}
		}
		for _, name := range parseJSONStringArray(d.implements) {
			if err := resolveAndAnnotate(ctx, tx, d.id, d.fileID, name, model.RelationImplements); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveAndAnnotate looks up a named parent/interface, preferring an exported
// definition and, among ties, one in the same file as the referencing definition
// (spec.md §4.3: "disambiguate by exported-ness, then by file proximity").
func resolveAndAnnotate(ctx context.Context, tx *sql.Tx, fromDef, fromFile int64, name string, relType model.RelationshipType) error {
	candidates, err := store.DefinitionsByName(ctx, tx, name)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil // unresolved inheritance name; not fatal, simply uncaptured
	}

	var best model.Definition
	bestScore := -1
	found := false
	for _, c := range candidates {
		if c.ID == fromDef {
			continue
		}
		score := 0
		if c.Exported {
			score += 2
		}
		if c.FileID == fromFile {
			score++
		}
		if score > bestScore {
			bestScore = score
			best = c
			found = true
		}
	}
	if !found {
		return nil
	}

	_, err = store.UpsertRelationship(ctx, tx, fromDef, best.ID, relType, model.PendingAnnotation)
	return err
}

// DeriveCallGraphInteractions recomputes every AST-sourced module-pair interaction from
// the current call graph (spec.md §4.3 "Interactions from call graph"). It deletes the
// prior AST-sourced set first so removed call edges don't leave stale interactions
// behind; llm-inferred and contract-matched interactions are untouched. It then backfills
// an interaction for any cross-module extends/implements annotation the call graph alone
// didn't produce (ensureInheritanceInteractions), since inheritance rarely shows up as a
// call edge but spec.md §3 still requires the Interaction row to exist.
func DeriveCallGraphInteractions(ctx context.Context, tx *sql.Tx) error {
	timer := logging.StartTimer(logging.CategoryGraph, "DeriveCallGraphInteractions")
	defer timer.Stop()

	if err := store.DeleteASTInteractionLinks(ctx, tx); err != nil {
		return err
	}
	if err := store.DeleteASTInteractions(ctx, tx); err != nil {
		return err
	}

	memberModule, err := moduleMembership(ctx, tx)
	if err != nil {
		return err
	}
	edges, err := store.CallGraphEdges(ctx, tx)
	if err != nil {
		return err
	}

	type pairKey struct{ from, to int64 }
	linksByPair := map[pairKey][]model.InteractionDefinitionLink{}
	for _, e := range edges {
		fromMod, toMod := memberModule[e.FromDef], memberModule[e.ToDef]
		if fromMod == 0 || toMod == 0 || fromMod == toMod {
			continue
		}
		key := pairKey{fromMod, toMod}
		linksByPair[key] = append(linksByPair[key], model.InteractionDefinitionLink{FromDef: e.FromDef, ToDef: e.ToDef})
	}

	moduleEdges, err := store.ModuleCallGraphEdges(ctx, tx)
	if err != nil {
		return err
	}

	for _, e := range moduleEdges {
		links := linksByPair[pairKey{e.FromModule, e.ToModule}]
		symbols, err := representativeSymbols(ctx, tx, links)
		if err != nil {
			return err
		}

		interactionID, err := store.UpsertInteraction(ctx, tx, model.Interaction{
			FromModule: e.FromModule,
			ToModule:   e.ToModule,
			Direction:  model.DirectionUni,
			Weight:     e.Weight,
			Source:     model.SourceAST,
			Confidence: 1.0,
			Symbols:    symbols,
		})
		if err != nil {
			return err
		}

		for _, l := range links {
			if _, err := store.UpsertInteractionDefinitionLink(ctx, tx, model.InteractionDefinitionLink{
				InteractionID: interactionID,
				FromDef:       l.FromDef,
				ToDef:         l.ToDef,
				Source:        model.SourceAST,
			}); err != nil {
				return err
			}
		}
	}

	return ensureInheritanceInteractions(ctx, tx, memberModule)
}

// ensureInheritanceInteractions upserts a module-pair Interaction for every cross-module
// extends/implements RelationshipAnnotation that the call-graph pass above didn't already
// cover, satisfying spec.md §3's post-sync invariant: "For any RelationshipAnnotation
// (from, to) with type in {extends, implements}, an Interaction(from.module, to.module)
// exists (for cross-module pairs) after post-sync" — even when the child never calls
// the parent/interface (the common case: inheritance isn't expressed as a call edge).
func ensureInheritanceInteractions(ctx context.Context, tx *sql.Tx, memberModule map[int64]int64) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT from_def, to_def FROM relationship_annotations WHERE type IN (?, ?)`,
		string(model.RelationExtends), string(model.RelationImplements))
	if err != nil {
		return err
	}
	type pair struct{ from, to int64 }
	var pairs []pair
	for rows.Next() {
		var p pair
		if err := rows.Scan(&p.from, &p.to); err != nil {
			rows.Close()
			return err
		}
		pairs = append(pairs, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, p := range pairs {
		fromMod, toMod := memberModule[p.from], memberModule[p.to]
		if fromMod == 0 || toMod == 0 || fromMod == toMod {
			continue
		}
		_, ok, err := store.InteractionByModulePair(ctx, tx, fromMod, toMod)
		if err != nil {
			return err
		}
		if ok {
			continue // already covered by a call-graph edge on this pair
		}
		if _, err := store.UpsertInteraction(ctx, tx, model.Interaction{
			FromModule: fromMod,
			ToModule:   toMod,
			Direction:  model.DirectionUni,
			Weight:     1,
			Source:     model.SourceAST,
			Confidence: 1.0,
		}); err != nil {
			return err
		}
	}
	return nil
}

// moduleMembership returns a definition_id -> module_id lookup for every assigned
// definition.
func moduleMembership(ctx context.Context, tx *sql.Tx) (map[int64]int64, error) {
	modules, err := store.AllModules(ctx, tx)
	if err != nil {
		return nil, err
	}
	out := map[int64]int64{}
	for _, m := range modules {
		members, err := store.MembersOfModule(ctx, tx, m.ID)
		if err != nil {
			return nil, err
		}
		for _, defID := range members {
			out[defID] = m.ID
		}
	}
	return out, nil
}

// representativeSymbols returns a compact, display-friendly list of symbol names
// crossing a module pair, capped to keep the stored JSON list small.
func representativeSymbols(ctx context.Context, tx *sql.Tx, links []model.InteractionDefinitionLink) ([]string, error) {
	const limit = 10
	var names []string
	seen := map[string]bool{}
	for _, l := range links {
		d, err := store.GetDefinition(ctx, tx, l.ToDef)
		if err != nil {
			continue
		}
		if !seen[d.Name] {
			seen[d.Name] = true
			names = append(names, d.Name)
		}
		if len(names) >= limit {
			break
		}
	}
	return names, nil
}

func parseJSONStringArray(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

// CoverageBuckets classifies every stored relationship by whether its module pair has
// an interaction backing it (spec.md §4.3 "Interaction coverage").
type CoverageBuckets struct {
	Covered    int // cross-module, interaction exists
	SameModule int
	Orphaned   int // cross-module, no interaction
}

// ComputeCoverage buckets every relationship_annotations row whose two definitions both
// belong to a module; rows with an unassigned end are not counted in any bucket.
func ComputeCoverage(ctx context.Context, tx *sql.Tx) (CoverageBuckets, error) {
	var cb CoverageBuckets

	memberModule, err := moduleMembership(ctx, tx)
	if err != nil {
		return cb, err
	}

	rows, err := tx.QueryContext(ctx, `SELECT from_def, to_def FROM relationship_annotations`)
	if err != nil {
		return cb, err
	}
	defer rows.Close()

	for rows.Next() {
		var from, to int64
		if err := rows.Scan(&from, &to); err != nil {
			return cb, err
		}
		fromMod, toMod := memberModule[from], memberModule[to]
		if fromMod == 0 || toMod == 0 {
			continue
		}
		if fromMod == toMod {
			cb.SameModule++
			continue
		}
		_, ok, err := store.InteractionByModulePair(ctx, tx, fromMod, toMod)
		if err != nil {
			return cb, err
		}
		if ok {
			cb.Covered++
		} else {
			cb.Orphaned++
		}
	}
	return cb, rows.Err()
}

// DeriveAtomicFlows ensures a tier-0 atomic Flow exists for every stored interaction
// (spec.md §4.4/glossary: "Atomic flow — a flow of tier 0 covering exactly one
// interaction"). Without this, the tracer's atomicByInteraction index (context.go) has
// nothing to find and a composite flow's SubflowSlugs can never resolve to anything.
// Idempotent: the slug is derived from the module pair, so InsertFlow's upsert-by-slug
// never creates a second row for the same interaction across re-derivations.
func DeriveAtomicFlows(ctx context.Context, tx *sql.Tx) error {
	timer := logging.StartTimer(logging.CategoryGraph, "DeriveAtomicFlows")
	defer timer.Stop()

	interactions, err := store.AllInteractions(ctx, tx)
	if err != nil {
		return err
	}
	modules, err := store.AllModules(ctx, tx)
	if err != nil {
		return err
	}
	pathByModule := make(map[int64]string, len(modules))
	for _, m := range modules {
		pathByModule[m.ID] = m.FullPath
	}

	for _, i := range interactions {
		fromPath, toPath := pathByModule[i.FromModule], pathByModule[i.ToModule]
		if fromPath == "" || toPath == "" {
			continue // module vanished since the interaction was derived; next sync scrubs it
		}

		flowID, err := store.InsertFlow(ctx, tx, model.Flow{
			Slug:        atomicFlowSlug(fromPath, toPath),
			DisplayName: fromPath + " to " + toPath,
			Tier:        model.TierAtomic,
		})
		if err != nil {
			return err
		}
		if err := store.DeleteFlowSteps(ctx, tx, flowID); err != nil {
			return err
		}
		interactionID := i.ID
		if _, err := store.InsertFlowStep(ctx, tx, model.FlowStep{
			FlowID:        flowID,
			Order:         0,
			Kind:          model.StepInteraction,
			InteractionID: &interactionID,
			Source:        i.Source,
		}); err != nil {
			return err
		}
	}
	return nil
}

// atomicFlowSlug derives a stable, unique slug from an interaction's module pair —
// module pairs are unique per the interactions table, so this never collides.
func atomicFlowSlug(fromPath, toPath string) string {
	return strings.ReplaceAll(fromPath, ".", "-") + "-to-" + strings.ReplaceAll(toPath, ".", "-") + "-flow"
}
