package llm

import (
	"context"
	"database/sql"
	"fmt"

	"codeindex/internal/config"
	"codeindex/internal/model"
	"codeindex/internal/store"
	"codeindex/internal/tracer"
)

// ResolveEntryPoints turns configured entry-point names into tracer.EntryPoint values,
// grouping members by module. A member whose module or definition can't be found is
// skipped with an error collected for the caller to log, rather than aborting the
// whole resolution.
func ResolveEntryPoints(ctx context.Context, tx *sql.Tx, configured []config.EntryPointConfig) ([]tracer.EntryPoint, []error) {
	byModule := make(map[int64]*tracer.EntryPoint)
	var order []int64
	var errs []error

	for _, ec := range configured {
		mod, ok, err := store.ModuleByPath(ctx, tx, ec.ModuleSlug)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			errs = append(errs, fmt.Errorf("entry point: module %q not found", ec.ModuleSlug))
			continue
		}

		defs, err := store.DefinitionsByName(ctx, tx, ec.DefinitionName)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		var resolved *model.Definition
		for i := range defs {
			if owner, err := store.ModuleOfDefinition(ctx, tx, defs[i].ID); err == nil && owner == mod.ID {
				resolved = &defs[i]
				break
			}
		}
		if resolved == nil {
			errs = append(errs, fmt.Errorf("entry point: definition %q not found in module %q", ec.DefinitionName, ec.ModuleSlug))
			continue
		}

		ep, ok := byModule[mod.ID]
		if !ok {
			ep = &tracer.EntryPoint{ModuleID: mod.ID}
			byModule[mod.ID] = ep
			order = append(order, mod.ID)
		}
		ep.Members = append(ep.Members, tracer.EntryMember{
			DefinitionID: resolved.ID,
			Name:         resolved.Name,
			Action:       model.ActionType(ec.Action),
			TraceFrom:    ec.TraceFrom,
			TargetEntity: ec.TargetEntity,
			Stakeholder:  ec.Stakeholder,
		})
	}

	out := make([]tracer.EntryPoint, 0, len(order))
	for _, id := range order {
		out = append(out, *byModule[id])
	}
	return out, errs
}

// TraceAndPersist resolves configured entry points, runs the Flow Tracer, deduplicates
// the result, and persists the surviving flows — the full path from configuration to
// stored flow rows (spec.md §4.4, §4.5, §6).
func TraceAndPersist(ctx context.Context, tx *sql.Tx, configured []config.EntryPointConfig) ([]int64, []error) {
	entryPoints, resolveErrs := ResolveEntryPoints(ctx, tx, configured)
	if len(entryPoints) == 0 {
		return nil, resolveErrs
	}

	entryModules := make([]int64, len(entryPoints))
	for i, ep := range entryPoints {
		entryModules[i] = ep.ModuleID
	}

	tracerCtx, err := tracer.BuildContext(ctx, tx, entryModules)
	if err != nil {
		return nil, append(resolveErrs, err)
	}

	suggestions := tracer.Dedup(tracer.Trace(tracerCtx, entryPoints))
	ids, err := PersistFlowSuggestions(ctx, tx, suggestions)
	if err != nil {
		return nil, append(resolveErrs, err)
	}
	return ids, resolveErrs
}
