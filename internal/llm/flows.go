package llm

import (
	"context"
	"database/sql"

	"codeindex/internal/model"
	"codeindex/internal/store"
	"codeindex/internal/tracer"
)

// PersistFlowSuggestions writes a batch of traced flow suggestions into the store
// (spec.md §6: "flow-suggestion persistence"). Flows are inserted first so every slug
// in the batch resolves to an id before subflow references are written, since a
// suggestion's SubflowSlugs may point at another suggestion earlier or later in the
// same batch.
func PersistFlowSuggestions(ctx context.Context, tx *sql.Tx, suggestions []tracer.FlowSuggestion) ([]int64, error) {
	ids := make([]int64, len(suggestions))
	bySlug := make(map[string]int64, len(suggestions))

	for i, fs := range suggestions {
		f := model.Flow{
			Slug:         fs.Slug,
			DisplayName:  fs.DisplayName,
			Stakeholder:  fs.Stakeholder,
			Action:       fs.Action,
			TargetEntity: fs.TargetEntity,
			Tier:         fs.Tier,
		}
		if fs.EntryDefinitionID != 0 {
			id := fs.EntryDefinitionID
			f.EntryDefinitionID = &id
		}
		if fs.EntryModuleID != 0 {
			id := fs.EntryModuleID
			f.EntryModuleID = &id
		}

		id, err := store.InsertFlow(ctx, tx, f)
		if err != nil {
			return nil, err
		}
		ids[i] = id
		bySlug[fs.Slug] = id
	}

	for i, fs := range suggestions {
		if err := store.DeleteFlowSteps(ctx, tx, ids[i]); err != nil {
			return nil, err
		}
		if err := persistSteps(ctx, tx, ids[i], fs, bySlug); err != nil {
			return nil, err
		}
	}

	return ids, nil
}

// persistSteps writes one flow's ordered steps: walked definition hops first, then
// bridge crossings resolved back to the interaction row they came from, then subflow
// references resolved by slug.
func persistSteps(ctx context.Context, tx *sql.Tx, flowID int64, fs tracer.FlowSuggestion, bySlug map[string]int64) error {
	order := 0

	for _, ds := range fs.DefinitionSteps {
		fromDef, toDef := ds.FromDef, ds.ToDef
		if _, err := store.InsertFlowStep(ctx, tx, model.FlowStep{
			FlowID:  flowID,
			Order:   order,
			Kind:    model.StepDefinition,
			FromDef: &fromDef,
			ToDef:   &toDef,
		}); err != nil {
			return err
		}
		order++
	}

	for _, is := range fs.InferredSteps {
		var interactionID *int64
		if inter, ok, err := store.InteractionByModulePair(ctx, tx, is.FromModule, is.ToModule); err != nil {
			return err
		} else if ok {
			id := inter.ID
			interactionID = &id
		}
		if _, err := store.InsertFlowStep(ctx, tx, model.FlowStep{
			FlowID:        flowID,
			Order:         order,
			Kind:          model.StepInteraction,
			InteractionID: interactionID,
			Source:        is.Source,
		}); err != nil {
			return err
		}
		order++
	}

	for _, slug := range fs.SubflowSlugs {
		subID, ok := bySlug[slug]
		if !ok {
			continue
		}
		id := subID
		if _, err := store.InsertFlowStep(ctx, tx, model.FlowStep{
			FlowID:    flowID,
			Order:     order,
			Kind:      model.StepSubflow,
			SubflowID: &id,
		}); err != nil {
			return err
		}
		order++
	}

	return nil
}
