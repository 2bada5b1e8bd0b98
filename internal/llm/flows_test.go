package llm

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"codeindex/internal/model"
	"codeindex/internal/store"
	"codeindex/internal/tracer"
)

func TestPersistFlowSuggestionsWritesFlowAndSteps(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var interactionID, fromDef, toDef, fromModule, toModule int64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		fileID, err := store.UpsertFile(ctx, tx, model.File{Path: "a.go", Language: "go", Hash: "h1", MTime: time.Now()})
		if err != nil {
			return err
		}
		fromDef, err = store.UpsertDefinition(ctx, tx, model.Definition{FileID: fileID, Name: "Handler", Kind: model.KindClass, StartLine: 1, EndLine: 5})
		if err != nil {
			return err
		}
		toDef, err = store.UpsertDefinition(ctx, tx, model.Definition{FileID: fileID, Name: "Repo", Kind: model.KindClass, StartLine: 10, EndLine: 15})
		if err != nil {
			return err
		}

		fromModule, err = store.UpsertModule(ctx, tx, model.Module{Slug: "from", FullPath: "app.from", DisplayName: "From"})
		if err != nil {
			return err
		}
		toModule, err = store.UpsertModule(ctx, tx, model.Module{Slug: "to", FullPath: "app.to", DisplayName: "To"})
		if err != nil {
			return err
		}
		interactionID, err = store.UpsertInteraction(ctx, tx, model.Interaction{
			FromModule: fromModule, ToModule: toModule, Direction: model.DirectionUni,
			Weight: 1, Pattern: model.PatternBusiness, Source: model.SourceAST,
		})
		return err
	})
	require.NoError(t, err)

	suggestion := tracer.FlowSuggestion{
		Slug:            "create-order",
		DisplayName:     "Create Order",
		Action:          model.ActionCreate,
		TargetEntity:    "order",
		Tier:            model.TierComposite,
		DefinitionSteps: []tracer.DefinitionStep{{FromDef: fromDef, ToDef: toDef}},
		InferredSteps:   []tracer.InferredStep{{FromModule: fromModule, ToModule: toModule, Source: model.SourceAST}},
	}

	var ids []int64
	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		ids, err = PersistFlowSuggestions(ctx, tx, []tracer.FlowSuggestion{suggestion})
		return err
	})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	var steps []model.FlowStep
	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		steps, err = store.StepsByFlow(ctx, tx, ids[0])
		return err
	})
	require.NoError(t, err)
	require.Len(t, steps, 2)
	require.Equal(t, model.StepDefinition, steps[0].Kind)
	require.Equal(t, model.StepInteraction, steps[1].Kind)
	require.NotNil(t, steps[1].InteractionID)
	require.Equal(t, interactionID, *steps[1].InteractionID)
}

func TestPersistFlowSuggestionsResolvesSubflowSlugsWithinBatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sub := tracer.FlowSuggestion{Slug: "sub-flow", DisplayName: "Sub Flow", Tier: model.TierAtomic}
	parent := tracer.FlowSuggestion{
		Slug: "parent-flow", DisplayName: "Parent Flow", Tier: model.TierComposite,
		SubflowSlugs: []string{"sub-flow"},
	}

	var ids []int64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		ids, err = PersistFlowSuggestions(ctx, tx, []tracer.FlowSuggestion{sub, parent})
		return err
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	var steps []model.FlowStep
	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		steps, err = store.StepsByFlow(ctx, tx, ids[1])
		return err
	})
	require.NoError(t, err)
	require.Len(t, steps, 1)
	require.Equal(t, model.StepSubflow, steps[0].Kind)
	require.Equal(t, ids[0], *steps[0].SubflowID)
}
