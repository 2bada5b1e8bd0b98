package llm

import (
	"context"
	"database/sql"
	"strings"

	"codeindex/internal/logging"
	"codeindex/internal/model"
	"codeindex/internal/store"
)

// RelationshipContext carries the enhanced context (spec.md §6) a narration prompt
// needs: source/target identity, their peer relationships on each side, and whatever
// domain tags the two definitions' modules share.
type RelationshipContext struct {
	FromName, ToName     string
	FromModule, ToModule string
	ExistingType         model.RelationshipType
	PeersFrom, PeersTo   []model.RelationshipAnnotation
	SharedTags           []string
}

// BuildContext assembles the enhanced relationship context for one (fromDef, toDef)
// pair, reading the definitions' names, owning modules, and existing peer
// relationships on both sides.
func BuildContext(ctx context.Context, tx *sql.Tx, fromDef, toDef int64, existing model.RelationshipType) (RelationshipContext, error) {
	from, err := store.GetDefinition(ctx, tx, fromDef)
	if err != nil {
		return RelationshipContext{}, err
	}
	to, err := store.GetDefinition(ctx, tx, toDef)
	if err != nil {
		return RelationshipContext{}, err
	}

	fromModuleID, err := store.ModuleOfDefinition(ctx, tx, fromDef)
	if err != nil {
		return RelationshipContext{}, err
	}
	toModuleID, err := store.ModuleOfDefinition(ctx, tx, toDef)
	if err != nil {
		return RelationshipContext{}, err
	}
	fromModule, err := store.GetModule(ctx, tx, fromModuleID)
	if err != nil {
		return RelationshipContext{}, err
	}
	toModule, err := store.GetModule(ctx, tx, toModuleID)
	if err != nil {
		return RelationshipContext{}, err
	}

	peersFrom, err := store.RelationshipsFrom(ctx, tx, fromDef)
	if err != nil {
		return RelationshipContext{}, err
	}
	peersTo, err := store.RelationshipsTo(ctx, tx, toDef)
	if err != nil {
		return RelationshipContext{}, err
	}

	return RelationshipContext{
		FromName:     from.Name,
		ToName:       to.Name,
		FromModule:   fromModule.FullPath,
		ToModule:     toModule.FullPath,
		ExistingType: existing,
		PeersFrom:    peersFrom,
		PeersTo:      peersTo,
		SharedTags:   sharedPathSegments(fromModule.FullPath, toModule.FullPath),
	}, nil
}

// sharedPathSegments returns the dotted module-path segments two full paths have in
// common, a cheap proxy for "shared domain tags" until modules carry real tags.
func sharedPathSegments(a, b string) []string {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	set := make(map[string]bool, len(bs))
	for _, s := range bs {
		set[s] = true
	}
	var shared []string
	for _, s := range as {
		if set[s] {
			shared = append(shared, s)
		}
	}
	return shared
}

// AnnotateBatch narrates up to limit pending inheritance placeholders and up to limit
// unannotated call edges, persisting each through the store's existing callbacks. It
// returns the number of relationships it annotated; failures on individual
// relationships are logged and skipped rather than aborting the whole batch, since one
// bad prompt or flaky response should not block the rest.
func (c *Client) AnnotateBatch(ctx context.Context, tx *sql.Tx, limit int) (int, error) {
	annotated := 0

	pending, err := store.UnannotatedRelationships(ctx, tx, limit)
	if err != nil {
		return annotated, err
	}
	for _, r := range pending {
		rc, err := BuildContext(ctx, tx, r.FromDef, r.ToDef, r.Type)
		if err != nil {
			logging.LLMWarn("skip relationship %d: %v", r.ID, err)
			continue
		}
		semantic, err := c.Narrate(ctx, rc)
		if err != nil {
			logging.LLMWarn("narrate relationship %d failed: %v", r.ID, err)
			continue
		}
		if err := store.SetRelationshipAnnotation(ctx, tx, r.ID, semantic); err != nil {
			return annotated, err
		}
		annotated++
	}

	edges, err := store.UnannotatedCallEdges(ctx, tx, limit)
	if err != nil {
		return annotated, err
	}
	for _, e := range edges {
		rc, err := BuildContext(ctx, tx, e.FromDef, e.ToDef, model.RelationUses)
		if err != nil {
			logging.LLMWarn("skip call edge %d->%d: %v", e.FromDef, e.ToDef, err)
			continue
		}
		semantic, err := c.Narrate(ctx, rc)
		if err != nil {
			logging.LLMWarn("narrate call edge %d->%d failed: %v", e.FromDef, e.ToDef, err)
			continue
		}
		if _, err := store.UpsertRelationship(ctx, tx, e.FromDef, e.ToDef, model.RelationUses, semantic); err != nil {
			return annotated, err
		}
		annotated++
	}

	return annotated, nil
}
