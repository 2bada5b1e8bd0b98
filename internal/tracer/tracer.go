// Package tracer implements the Flow Tracer (spec.md §4.4): definition-level DFS
// traversal from a set of entry points, producing FlowSuggestion objects the LLM
// orchestration boundary persists. The tracer never writes to the store directly.
package tracer

import (
	"strconv"
	"strings"

	"codeindex/internal/model"
)

// EntryMember is one traceable action on an entry-point module.
type EntryMember struct {
	DefinitionID int64
	Name         string
	Action       model.ActionType
	TraceFrom    string // declared callee name to start mutation traces from
	TargetEntity string
	Stakeholder  string
}

// EntryPoint is a module exposing one or more traceable members.
type EntryPoint struct {
	ModuleID int64
	Members  []EntryMember
}

// DefinitionStep is one recorded d -> succ hop across a module boundary.
type DefinitionStep struct {
	FromDef int64
	ToDef   int64
}

// InferredStep records a bridge crossing at a traversal leaf.
type InferredStep struct {
	FromModule int64
	ToModule   int64
	Source     model.InteractionSource
}

// FlowSuggestion is what the tracer emits for one (entry point, member) trace. It
// carries no store id — the LLM orchestration boundary assigns identity on persist.
type FlowSuggestion struct {
	Slug              string
	DisplayName       string
	EntryDefinitionID int64
	EntryModuleID     int64
	Stakeholder       string
	Action            model.ActionType
	TargetEntity      string
	Tier              model.FlowTier
	InteractionIDs    []int64
	DefinitionSteps   []DefinitionStep
	InferredSteps     []InferredStep
	SubflowSlugs      []string
}

// Trace runs the DFS traversal for every (entry-point module, entry member) pair, in
// the order given, and returns one FlowSuggestion per pair.
func Trace(c *Context, entryPoints []EntryPoint) []FlowSuggestion {
	var out []FlowSuggestion
	for _, ep := range entryPoints {
		for _, m := range ep.Members {
			out = append(out, traceOne(c, ep, m))
		}
	}
	return out
}

// traceOne runs one DFS from a single entry member.
func traceOne(c *Context, ep EntryPoint, m EntryMember) FlowSuggestion {
	start := m.DefinitionID
	if m.Action.IsMutation() && m.TraceFrom != "" {
		for _, succ := range c.successors(m.DefinitionID) {
			if c.defName[succ] == m.TraceFrom {
				start = succ
				break
			}
		}
	}

	tr := &traversal{ctx: c, visited: map[int64]bool{}, bridgeFired: map[string]bool{}, seenInteractions: map[int64]bool{}}
	tr.walk(start)

	fs := FlowSuggestion{
		EntryDefinitionID: m.DefinitionID,
		EntryModuleID:     ep.ModuleID,
		Stakeholder:       m.Stakeholder,
		Action:            m.Action,
		TargetEntity:      m.TargetEntity,
		Tier:              model.TierComposite,
		InteractionIDs:    tr.interactionIDs,
		DefinitionSteps:   tr.definitionSteps,
		InferredSteps:     tr.inferredSteps,
	}
	fs.DisplayName = flowDisplayName(m)
	fs.Slug = slugify(fs.DisplayName)
	fs.SubflowSlugs = subflowSlugs(c, tr.interactionIDs)
	return fs
}

// traversal holds the mutable state of one DFS run.
type traversal struct {
	ctx              *Context
	visited          map[int64]bool
	bridgeFired      map[string]bool // dedups bridges per spec.md §4.4 tie-breaks
	seenInteractions map[int64]bool
	interactionIDs   []int64
	definitionSteps  []DefinitionStep
	inferredSteps    []InferredStep
}

// walk visits d, recording module-boundary steps and recursing per spec.md §4.4 step 2.
func (t *traversal) walk(d int64) {
	if t.visited[d] {
		return
	}
	t.visited[d] = true

	succ := t.ctx.successors(d)
	if len(succ) == 0 {
		t.bridge(d)
		return
	}

	dMod := t.ctx.moduleOf(d)
	for _, s := range succ {
		sMod := t.ctx.moduleOf(s)
		if sMod == dMod || sMod == 0 || dMod == 0 {
			t.walk(s) // intra-module step: recurse without recording
			continue
		}

		if i, ok := t.ctx.interactionByPair[pairKey{dMod, sMod}]; ok {
			t.recordInteraction(i.ID)
		}
		t.definitionSteps = append(t.definitionSteps, DefinitionStep{FromDef: d, ToDef: s})

		if t.ctx.entryPointModules[sMod] && t.ctx.isBridgeTarget(sMod) {
			continue // entry-point boundary: module is also reached as a bridge target elsewhere
		}
		t.walk(s)
	}
}

// bridge handles a leaf definition: every bridgeable interaction leaving d's module
// fires once, preferring a definition-level link's exact target (spec.md §4.4 step 2
// "bridge at leaves only").
func (t *traversal) bridge(d int64) {
	dMod := t.ctx.moduleOf(d)
	if dMod == 0 {
		return
	}
	for _, pk := range t.ctx.bridgeableFrom[dMod] {
		inter := t.ctx.interactionByPair[pk]

		var dedupKey string
		if toDef, ok := t.ctx.linksByFromDef[d][pk.to]; ok {
			// Distinct from_def_id links fire independently even toward the same module.
			dedupKey = dedupKeyForLink(d, toDef)
		} else {
			dedupKey = dedupKeyForModulePair(pk.from, pk.to)
		}
		if t.bridgeFired[dedupKey] {
			continue
		}
		t.bridgeFired[dedupKey] = true

		t.recordInteraction(inter.ID)
		t.inferredSteps = append(t.inferredSteps, InferredStep{FromModule: pk.from, ToModule: pk.to, Source: inter.Source})
	}
}

func (t *traversal) recordInteraction(id int64) {
	if id == 0 || t.seenInteractions[id] {
		return
	}
	t.seenInteractions[id] = true
	t.interactionIDs = append(t.interactionIDs, id)
}

func dedupKeyForLink(fromDef, toDef int64) string {
	return "def:" + strconv.FormatInt(fromDef, 10) + ":" + strconv.FormatInt(toDef, 10)
}

func dedupKeyForModulePair(from, to int64) string {
	return "mod:" + strconv.FormatInt(from, 10) + ":" + strconv.FormatInt(to, 10)
}

// subflowSlugs collects the tier-0 flow slugs whose single interaction appears in the
// traversal, in first-seen order (spec.md §4.4 "flow assembly").
func subflowSlugs(c *Context, interactionIDs []int64) []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range interactionIDs {
		for _, f := range c.atomicByInteraction[id] {
			if !seen[f.Slug] {
				seen[f.Slug] = true
				out = append(out, f.Slug)
			}
		}
	}
	return out
}

// flowDisplayName derives a flow's name from action+target, falling back to the entry
// member's own name (spec.md §4.4 "Naming").
func flowDisplayName(m EntryMember) string {
	if m.Action != "" && m.TargetEntity != "" {
		return titleCase(string(m.Action)) + titleCase(m.TargetEntity) + "Flow"
	}
	return titleCase(m.Name) + "Flow"
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// slugify kebab-cases a PascalCase display name ("CreateCustomerFlow" -> "create-customer-flow").
func slugify(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
