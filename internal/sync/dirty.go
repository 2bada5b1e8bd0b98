package sync

import (
	"context"
	"database/sql"

	"codeindex/internal/model"
	"codeindex/internal/store"
)

// propagateDirty populates sync_dirty bottom-up from a sync's touched definitions,
// following the layer order spec.md §4.2 gives: metadata/relationships direct, then
// modules, then interactions touching those modules, then flows stepping on those
// interactions, then features containing those flows. Module ids are walked in chunks of
// batchSize with one interaction query per module; flows and features are scanned in full.
func propagateDirty(ctx context.Context, tx *sql.Tx, touched []touchedDef, batchSize int) error {
	if len(touched) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	moduleIDs := map[int64]bool{}
	for _, t := range touched {
		if err := store.MarkDirty(ctx, tx, model.LayerMetadata, t.id, t.reason); err != nil {
			return err
		}
		if err := store.MarkDirty(ctx, tx, model.LayerRelationships, t.id, t.reason); err != nil {
			return err
		}

		moduleID := t.moduleID
		if moduleID == 0 && t.reason != model.ReasonRemoved {
			m, err := store.ModuleOfDefinition(ctx, tx, t.id)
			if err != nil {
				return err
			}
			moduleID = m
		}
		if moduleID != 0 {
			moduleIDs[moduleID] = true
		}
	}

	if len(moduleIDs) == 0 {
		return nil
	}

	moduleList := make([]int64, 0, len(moduleIDs))
	for id := range moduleIDs {
		moduleList = append(moduleList, id)
		if err := store.MarkDirty(ctx, tx, model.LayerModules, id, model.ReasonParentDirty); err != nil {
			return err
		}
	}

	interactionIDs := map[int64]bool{}
	for _, chunk := range chunkInt64(moduleList, batchSize) {
		for _, moduleID := range chunk {
			interactions, err := store.InteractionsFromModule(ctx, tx, moduleID)
			if err != nil {
				return err
			}
			for _, i := range interactions {
				interactionIDs[i.ID] = true
			}
		}
	}
	for id := range interactionIDs {
		if err := store.MarkDirty(ctx, tx, model.LayerContracts, id, model.ReasonParentDirty); err != nil {
			return err
		}
		if err := store.MarkDirty(ctx, tx, model.LayerInteractions, id, model.ReasonParentDirty); err != nil {
			return err
		}
	}

	if len(interactionIDs) == 0 {
		return nil
	}

	flows, err := store.AllFlows(ctx, tx)
	if err != nil {
		return err
	}
	dirtyFlowIDs := map[int64]bool{}
	for _, f := range flows {
		steps, err := store.StepsByFlow(ctx, tx, f.ID)
		if err != nil {
			return err
		}
		for _, step := range steps {
			if step.InteractionID != nil && interactionIDs[*step.InteractionID] {
				dirtyFlowIDs[f.ID] = true
				break
			}
		}
	}
	for id := range dirtyFlowIDs {
		if err := store.MarkDirty(ctx, tx, model.LayerFlows, id, model.ReasonParentDirty); err != nil {
			return err
		}
	}

	if len(dirtyFlowIDs) == 0 {
		return nil
	}

	features, err := store.AllFeatures(ctx, tx)
	if err != nil {
		return err
	}
	for _, feat := range features {
		flowIDs, err := store.FlowsByFeature(ctx, tx, feat.ID)
		if err != nil {
			return err
		}
		for _, fid := range flowIDs {
			if dirtyFlowIDs[fid] {
				if err := store.MarkDirty(ctx, tx, model.LayerFeatures, feat.ID, model.ReasonParentDirty); err != nil {
					return err
				}
				break
			}
		}
	}

	return nil
}

func chunkInt64(ids []int64, size int) [][]int64 {
	var out [][]int64
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[i:end])
	}
	return out
}
