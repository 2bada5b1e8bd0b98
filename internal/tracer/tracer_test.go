package tracer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"codeindex/internal/model"
)

// testContext builds a Context directly, bypassing BuildContext's store plumbing, so
// traversal logic can be exercised against the exact fixtures spec.md §8's scenarios
// describe.
type testContext struct {
	c               *Context
	nextDef         int64
	nextModule      int64
	nextInteraction int64
}

func newTestContext() *testContext {
	return &testContext{
		c: &Context{
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
		},
	}
}

func (tc *testContext) module() int64 {
	tc.nextModule++
	return tc.nextModule
}

func (tc *testContext) def(name string, module int64) int64 {
	tc.nextDef++
	id := tc.nextDef
	tc.c.defName[id] = name
	tc.c.defModule[id] = moduleRef{ID: module}
	tc.c.moduleMembers[module] = append(tc.c.moduleMembers[module], id)
	return id
}

func (tc *testContext) call(from, to int64) {
	tc.c.callGraph[from] = append(tc.c.callGraph[from], to)
}

func (tc *testContext) interaction(from, to int64, source model.InteractionSource) int64 {
	tc.nextInteraction++
	id := tc.nextInteraction
	i := model.Interaction{ID: id, FromModule: from, ToModule: to, Source: source}
	tc.c.interactionByPair[pairKey{from, to}] = i
	if source.IsBridgeable() {
		tc.c.bridgeableFrom[from] = append(tc.c.bridgeableFrom[from], pairKey{from, to})
		tc.c.bridgeTargets[to] = true
	}
	return id
}

func (tc *testContext) definitionLink(fromDef, toModule, toDef int64) {
	if tc.c.linksByFromDef[fromDef] == nil {
		tc.c.linksByFromDef[fromDef] = map[int64]int64{}
	}
	tc.c.linksByFromDef[fromDef][toModule] = toDef
}

func (tc *testContext) entryPoint(module int64) { tc.c.entryPointModules[module] = true }

func (tc *testContext) atomicFlow(slug string, interactionID int64) {
	tc.c.atomicByInteraction[interactionID] = append(tc.c.atomicByInteraction[interactionID],
		model.Flow{Slug: slug, Tier: model.TierAtomic})
}

// Scenario A — simple linear flow.
func TestTraceSimpleLinearFlow(t *testing.T) {
	tc := newTestContext()
	m1, m2, m3 := tc.module(), tc.module(), tc.module()
	d10 := tc.def("D10", m1)
	d20 := tc.def("D20", m2)
	d30 := tc.def("D30", m3)
	tc.call(d10, d20)
	tc.call(d20, d30)
	i100 := tc.interaction(m1, m2, model.SourceAST)
	i101 := tc.interaction(m2, m3, model.SourceAST)
	tc.atomicFlow("f-a", i100)
	tc.atomicFlow("f-b", i101)

	flows := Trace(tc.c, []EntryPoint{{
		ModuleID: m1,
		Members:  []EntryMember{{DefinitionID: d10, Name: "D10", Action: model.ActionCreate, TargetEntity: "customer"}},
	}})

	require.Len(t, flows, 1)
	f := flows[0]
	require.Equal(t, "CreateCustomerFlow", f.DisplayName)
	require.Equal(t, "create-customer-flow", f.Slug)
	require.ElementsMatch(t, []int64{i100, i101}, f.InteractionIDs)
	require.ElementsMatch(t, []string{"f-a", "f-b"}, f.SubflowSlugs)
	require.Equal(t, model.TierComposite, f.Tier)
}

// Scenario B — entry-point boundary stops expansion.
func TestTraceEntryPointBoundaryStopsExpansion(t *testing.T) {
	tc := newTestContext()
	m1, m2, m3, m99 := tc.module(), tc.module(), tc.module(), tc.module()
	d10 := tc.def("D10", m1)
	d20 := tc.def("D20", m2)
	d30 := tc.def("D30", m3)
	tc.call(d10, d20)
	tc.call(d20, d30)
	iM1M2 := tc.interaction(m1, m2, model.SourceAST)
	iM2M3 := tc.interaction(m2, m3, model.SourceAST)
	tc.interaction(m99, m2, model.SourceLLMInferred) // M2 is a bridge target from M99

	tc.entryPoint(m1)
	tc.entryPoint(m2)

	flows := Trace(tc.c, []EntryPoint{{
		ModuleID: m1,
		Members:  []EntryMember{{DefinitionID: d10, Name: "D10", Action: model.ActionView}},
	}})

	require.Len(t, flows, 1)
	require.Contains(t, flows[0].InteractionIDs, iM1M2)
	require.NotContains(t, flows[0].InteractionIDs, iM2M3)
	require.NotContains(t, flows[0].DefinitionSteps, DefinitionStep{FromDef: d20, ToDef: d30})
}

// Scenario C — bridge at leaf with a definition-level link.
func TestTraceBridgeAtLeafPrefersDefinitionLink(t *testing.T) {
	tc := newTestContext()
	m1, m2, m3 := tc.module(), tc.module(), tc.module()
	d10 := tc.def("D10", m1)
	d20 := tc.def("D20", m2) // leaf: no call-graph successors
	d30 := tc.def("D30", m3)
	tc.call(d10, d20)
	i100 := tc.interaction(m1, m2, model.SourceAST)
	i101 := tc.interaction(m2, m3, model.SourceContractMatched)
	tc.definitionLink(d20, m3, d30)

	flows := Trace(tc.c, []EntryPoint{{
		ModuleID: m1,
		Members:  []EntryMember{{DefinitionID: d10, Name: "D10", Action: model.ActionView}},
	}})

	require.Len(t, flows, 1)
	f := flows[0]
	require.ElementsMatch(t, []int64{i100, i101}, f.InteractionIDs)
	require.Len(t, f.InferredSteps, 1)
	require.Equal(t, InferredStep{FromModule: m2, ToModule: m3, Source: model.SourceContractMatched}, f.InferredSteps[0])
	// No recursion into M3's call graph: D30 has no successors recorded and isn't visited as a walk target.
	for _, step := range f.DefinitionSteps {
		require.NotEqual(t, d30, step.FromDef)
	}
}

// Scenario D — no duplicate bridges when definition links are absent.
func TestTraceNoDuplicateBridgesWithoutDefinitionLinks(t *testing.T) {
	tc := newTestContext()
	m1, m2, m3 := tc.module(), tc.module(), tc.module()
	d10 := tc.def("D10", m1)
	d20 := tc.def("D20", m2)
	d21 := tc.def("D21", m2)
	tc.call(d10, d20)
	tc.call(d10, d21)
	tc.interaction(m1, m2, model.SourceAST)
	tc.interaction(m2, m3, model.SourceLLMInferred)

	flows := Trace(tc.c, []EntryPoint{{
		ModuleID: m1,
		Members:  []EntryMember{{DefinitionID: d10, Name: "D10", Action: model.ActionView}},
	}})

	require.Len(t, flows, 1)
	require.Len(t, flows[0].InferredSteps, 1)
}

// Distinct from_def_id bridges to the same target module fire independently when
// definition links exist and differ (spec.md §4.4 tie-breaks).
func TestTraceDistinctDefinitionLinkedBridgesFireIndependently(t *testing.T) {
	tc := newTestContext()
	m1, m2, m3 := tc.module(), tc.module(), tc.module()
	d10 := tc.def("D10", m1)
	d20 := tc.def("D20", m2)
	d21 := tc.def("D21", m2)
	d30 := tc.def("D30", m3)
	d31 := tc.def("D31", m3)
	tc.call(d10, d20)
	tc.call(d10, d21)
	tc.interaction(m1, m2, model.SourceAST)
	tc.interaction(m2, m3, model.SourceContractMatched)
	tc.definitionLink(d20, m3, d30)
	tc.definitionLink(d21, m3, d31)

	flows := Trace(tc.c, []EntryPoint{{
		ModuleID: m1,
		Members:  []EntryMember{{DefinitionID: d10, Name: "D10", Action: model.ActionView}},
	}})

	require.Len(t, flows[0].InferredSteps, 2)
}

func TestTraceMutationActionStartsAtTraceFromCallee(t *testing.T) {
	tc := newTestContext()
	m1, m2 := tc.module(), tc.module()
	entry := tc.def("CreateHandler", m1)
	helper := tc.def("doCreate", m1)
	downstream := tc.def("Persist", m2)
	tc.call(entry, helper)
	tc.call(helper, downstream)
	i := tc.interaction(m1, m2, model.SourceAST)

	flows := Trace(tc.c, []EntryPoint{{
		ModuleID: m1,
		Members: []EntryMember{{
			DefinitionID: entry, Name: "CreateHandler", Action: model.ActionCreate,
			TraceFrom: "doCreate", TargetEntity: "order",
		}},
	}})

	require.Len(t, flows, 1)
	require.Contains(t, flows[0].InteractionIDs, i)
	// Starting at helper means entry->helper is never itself a recorded module-boundary
	// step (both in m1); only helper->downstream should appear.
	require.Equal(t, []DefinitionStep{{FromDef: helper, ToDef: downstream}}, flows[0].DefinitionSteps)
}

func TestTraceCycleIsNotFatal(t *testing.T) {
	tc := newTestContext()
	m1 := tc.module()
	d1 := tc.def("A", m1)
	d2 := tc.def("B", m1)
	tc.call(d1, d2)
	tc.call(d2, d1) // cycle

	flows := Trace(tc.c, []EntryPoint{{
		ModuleID: m1,
		Members:  []EntryMember{{DefinitionID: d1, Name: "A", Action: model.ActionView}},
	}})

	require.Len(t, flows, 1) // must terminate, not hang or error
}
