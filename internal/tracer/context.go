package tracer

import (
	"context"
	"database/sql"
	"sort"

	"codeindex/internal/model"
	"codeindex/internal/store"
)

// moduleRef names the module a definition belongs to, for step/bridge bookkeeping.
type moduleRef struct {
	ID   int64
	Path string
}

// pairKey orders a module pair for lookups keyed by (from, to).
type pairKey struct{ from, to int64 }

// Context is the pre-built traversal input the Flow Tracer needs (spec.md §4.4): the
// definition call graph as adjacency, definition -> module lookup, interaction lookup
// by ordered module pair, bridgeable interactions by source module, definition-level
// bridge links by from_def, and the entry-point module boundary.
type Context struct {
	callGraph           map[int64][]int64
	defModule           map[int64]moduleRef
	defName             map[int64]string
	interactionByPair   map[pairKey]model.Interaction
	bridgeableFrom      map[int64][]pairKey // source module -> ordered (from,to) pairs, stable order
	bridgeTargets       map[int64]bool      // module ids reached by some bridgeable interaction
	linksByFromDef      map[int64]map[int64]int64
	entryPointModules   map[int64]bool
	atomicByInteraction map[int64][]model.Flow
	moduleMembers       map[int64][]int64
}

// BuildContext assembles a Context from the store's current state. It performs no
// mutation and is safe to call from a read-only transaction or snapshot.
func BuildContext(ctx context.Context, tx *sql.Tx, entryPointModules []int64) (*Context, error) {
	c := &Context{
		callGraph:           map[int64][]int64{},
		defModule:           map[int64]moduleRef{},
		defName:             map[int64]string{},
		interactionByPair:   map[pairKey]model.Interaction{},
		bridgeableFrom:      map[int64][]pairKey{},
		bridgeTargets:       map[int64]bool{},
		linksByFromDef:      map[int64]map[int64]int64{},
		entryPointModules:   map[int64]bool{},
		atomicByInteraction: map[int64][]model.Flow{},
		moduleMembers:       map[int64][]int64{},
	}
	for _, m := range entryPointModules {
		c.entryPointModules[m] = true
	}

	modules, err := store.AllModules(ctx, tx)
	if err != nil {
		return nil, err
	}
	pathByModule := make(map[int64]string, len(modules))
	for _, m := range modules {
		pathByModule[m.ID] = m.FullPath
	}
	for _, m := range modules {
		members, err := store.MembersOfModule(ctx, tx, m.ID)
		if err != nil {
			return nil, err
		}
		c.moduleMembers[m.ID] = members
		for _, defID := range members {
			c.defModule[defID] = moduleRef{ID: m.ID, Path: pathByModule[m.ID]}
		}
	}

	edges, err := store.CallGraphEdges(ctx, tx)
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		c.callGraph[e.FromDef] = append(c.callGraph[e.FromDef], e.ToDef)
	}
	for from := range c.callGraph {
		sort.Slice(c.callGraph[from], func(i, j int) bool { return c.callGraph[from][i] < c.callGraph[from][j] })
	}

	seenDefs := map[int64]bool{}
	for defID := range c.defModule {
		seenDefs[defID] = true
	}
	for _, ids := range c.callGraph {
		for _, id := range ids {
			seenDefs[id] = true
		}
	}
	for defID := range seenDefs {
		d, err := store.GetDefinition(ctx, tx, defID)
		if err != nil {
			continue // definition vanished since the call graph was aggregated; skip, not fatal
		}
		c.defName[defID] = d.Name
	}

	interactions, err := store.AllInteractions(ctx, tx)
	if err != nil {
		return nil, err
	}
	for _, i := range interactions {
		key := pairKey{i.FromModule, i.ToModule}
		c.interactionByPair[key] = i
		if i.Source.IsBridgeable() {
			c.bridgeableFrom[i.FromModule] = append(c.bridgeableFrom[i.FromModule], key)
			c.bridgeTargets[i.ToModule] = true
		}
	}
	for from := range c.bridgeableFrom {
		sort.Slice(c.bridgeableFrom[from], func(i, j int) bool {
			return c.bridgeableFrom[from][i].to < c.bridgeableFrom[from][j].to
		})
	}

	links, err := store.AllInteractionDefinitionLinks(ctx, tx)
	if err != nil {
		return nil, err
	}
	for _, l := range links {
		toModule := c.defModule[l.ToDef].ID
		if toModule == 0 {
			continue
		}
		if c.linksByFromDef[l.FromDef] == nil {
			c.linksByFromDef[l.FromDef] = map[int64]int64{}
		}
		c.linksByFromDef[l.FromDef][toModule] = l.ToDef
	}

	flows, err := store.AllFlows(ctx, tx)
	if err != nil {
		return nil, err
	}
	for _, f := range flows {
		if f.Tier != model.TierAtomic {
			continue
		}
		steps, err := store.StepsByFlow(ctx, tx, f.ID)
		if err != nil {
			return nil, err
		}
		for _, s := range steps {
			if s.Kind == model.StepInteraction && s.InteractionID != nil {
				c.atomicByInteraction[*s.InteractionID] = append(c.atomicByInteraction[*s.InteractionID], f)
			}
		}
	}

	return c, nil
}

// successors returns a definition's call-graph targets in stable (sorted) order, so
// traversal results are deterministic up to key ordering (spec.md §8, invariant 6).
func (c *Context) successors(def int64) []int64 { return c.callGraph[def] }

// moduleOf returns the module a definition is assigned to, or 0 if unassigned.
func (c *Context) moduleOf(def int64) int64 { return c.defModule[def].ID }

// isBridgeTarget reports whether a module is reached by some bridgeable interaction.
func (c *Context) isBridgeTarget(module int64) bool { return c.bridgeTargets[module] }

// representativeDef returns the lowest-id member of a module as a stable representative
// definition, or 0 for a module with no members.
func (c *Context) representativeDef(module int64) int64 {
	members := c.moduleMembers[module]
	if len(members) == 0 {
		return 0
	}
	best := members[0]
	for _, m := range members[1:] {
		if m < best {
			best = m
		}
	}
	return best
}
