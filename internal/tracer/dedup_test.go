package tracer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"codeindex/internal/model"
)

// Scenario F — dedup prefers the more focused flow.
func TestDedupPrefersFocusedFlow(t *testing.T) {
	a := FlowSuggestion{
		Slug: "a", Tier: model.TierComposite,
		DefinitionSteps: make([]DefinitionStep, 3),
		InteractionIDs:  []int64{1, 2, 3, 4, 5, 6, 7, 8},
	}
	b := FlowSuggestion{
		Slug: "b", Tier: model.TierComposite,
		DefinitionSteps: make([]DefinitionStep, 3),
		InteractionIDs:  []int64{1, 2, 3},
	}

	survivors := Dedup([]FlowSuggestion{a, b})
	require.Len(t, survivors, 1)
	require.Equal(t, "b", survivors[0].Slug)
}

func TestDedupKeepsSemanticallyDistinctFlowsDespiteOverlap(t *testing.T) {
	a := FlowSuggestion{
		Slug: "create-customer", Action: model.ActionCreate, TargetEntity: "customer",
		InteractionIDs: []int64{1, 2, 3},
	}
	b := FlowSuggestion{
		Slug: "delete-customer", Action: model.ActionDelete, TargetEntity: "customer",
		InteractionIDs: []int64{1, 2, 3},
	}

	survivors := Dedup([]FlowSuggestion{a, b})
	require.Len(t, survivors, 2)
}

func TestDedupIgnoresFlowsWithEmptyInteractionSets(t *testing.T) {
	a := FlowSuggestion{Slug: "a", InteractionIDs: nil}
	b := FlowSuggestion{Slug: "b", InteractionIDs: []int64{1}}

	survivors := Dedup([]FlowSuggestion{a, b})
	require.Len(t, survivors, 2)
}

func TestDedupKeepsHigherTierOnOverlap(t *testing.T) {
	atomic := FlowSuggestion{Slug: "atomic", Tier: model.TierAtomic, InteractionIDs: []int64{1, 2, 3}}
	composite := FlowSuggestion{Slug: "composite", Tier: model.TierComposite, InteractionIDs: []int64{1, 2, 3}}

	survivors := Dedup([]FlowSuggestion{atomic, composite})
	require.Len(t, survivors, 1)
	require.Equal(t, "composite", survivors[0].Slug)
}

func TestOverlapRatioUsesSmallerSetAsDenominator(t *testing.T) {
	require.InDelta(t, 1.0, overlapRatio([]int64{1, 2, 3}, []int64{1, 2, 3, 4, 5, 6}), 1e-9)
	require.InDelta(t, 0.0, overlapRatio([]int64{1, 2}, []int64{3, 4}), 1e-9)
}
