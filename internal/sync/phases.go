package sync

import (
	"context"
	"database/sql"

	"codeindex/internal/detect"
	"codeindex/internal/model"
	"codeindex/internal/parser"
	"codeindex/internal/store"
)

// phaseDelete cascade-deletes a removed file, first snapshotting the module each of
// its definitions belonged to — module_members rows are gone once the cascade runs,
// so dirty propagation needs that snapshot taken now (spec.md §4.2 phase 1).
func phaseDelete(ctx context.Context, tx *sql.Tx, path string) ([]touchedDef, error) {
	fileID, err := store.FileIDByPath(ctx, tx, path)
	if err != nil || fileID == 0 {
		return nil, err
	}

	defs, err := store.DefinitionsByFile(ctx, tx, fileID)
	if err != nil {
		return nil, err
	}

	var touched []touchedDef
	for _, d := range defs {
		moduleID, err := store.ModuleOfDefinition(ctx, tx, d.ID)
		if err != nil {
			return nil, err
		}
		touched = append(touched, touchedDef{id: d.ID, reason: model.ReasonRemoved, moduleID: moduleID})
	}

	if err := store.DeleteFile(ctx, tx, fileID); err != nil {
		return nil, err
	}
	return touched, nil
}

// phaseReconcileModified diffs a modified file's freshly parsed definitions against
// what's stored, preserving ids for (name, kind) matches (spec.md §4.2 phase 3).
// UpsertDefinition itself performs the name+kind keyed match-or-insert; this function's
// job is finding what disappeared and clearing the file's references for rebuild.
func phaseReconcileModified(ctx context.Context, tx *sql.Tx, c detect.FileChange, pf *parser.ParsedFile) (int64, []touchedDef, error) {
	fileID, err := store.FileIDByPath(ctx, tx, c.Path)
	if err != nil {
		return 0, nil, err
	}

	oldDefs, err := store.DefinitionsByFile(ctx, tx, fileID)
	if err != nil {
		return 0, nil, err
	}
	oldByKey := make(map[string]model.Definition, len(oldDefs))
	for _, d := range oldDefs {
		oldByKey[defKey(d.Name, string(d.Kind))] = d
	}

	var touched []touchedDef
	seen := make(map[string]bool, len(pf.Definitions))
	for _, pd := range pf.Definitions {
		md := toModelDefinition(fileID, pd)
		id, err := store.UpsertDefinition(ctx, tx, md)
		if err != nil {
			return 0, nil, err
		}
		key := defKey(pd.Name, pd.Kind)
		seen[key] = true
		reason := model.ReasonModified
		if _, existed := oldByKey[key]; !existed {
			reason = model.ReasonAdded
		}
		moduleID, _ := store.ModuleOfDefinition(ctx, tx, id)
		touched = append(touched, touchedDef{id: id, reason: reason, moduleID: moduleID})
	}

	for key, old := range oldByKey {
		if seen[key] {
			continue
		}
		moduleID, _ := store.ModuleOfDefinition(ctx, tx, old.ID)
		touched = append(touched, touchedDef{id: old.ID, reason: model.ReasonRemoved, moduleID: moduleID})
		if err := store.DeleteDefinition(ctx, tx, old.ID); err != nil {
			return 0, nil, err
		}
	}

	// References will be rebuilt in phase 5; drop the stale set now so stale symbols
	// and usages (cascaded from "references") don't linger alongside the new ones.
	if err := store.DeleteReferencesByFile(ctx, tx, fileID); err != nil {
		return 0, nil, err
	}

	// Update the file row's recorded hash/size/mtime to the freshly detected values.
	if _, err := store.UpsertFile(ctx, tx, model.File{
		Path: c.Path, Language: c.Language, Hash: c.Hash, Size: c.Size, MTime: c.MTime,
	}); err != nil {
		return 0, nil, err
	}

	return fileID, touched, nil
}

// phaseInsertNew inserts a brand-new file and its definitions (spec.md §4.2 phase 4).
func phaseInsertNew(ctx context.Context, tx *sql.Tx, c detect.FileChange, pf *parser.ParsedFile) (int64, []touchedDef, error) {
	fileID, err := store.UpsertFile(ctx, tx, model.File{
		Path: c.Path, Language: c.Language, Hash: c.Hash, Size: c.Size, MTime: c.MTime,
	})
	if err != nil {
		return 0, nil, err
	}

	var touched []touchedDef
	for _, pd := range pf.Definitions {
		id, err := store.UpsertDefinition(ctx, tx, toModelDefinition(fileID, pd))
		if err != nil {
			return 0, nil, err
		}
		touched = append(touched, touchedDef{id: id, reason: model.ReasonAdded})
	}
	return fileID, touched, nil
}

func defKey(name, kind string) string { return name + "|" + kind }

func toModelDefinition(fileID int64, pd parser.Definition) model.Definition {
	d := model.Definition{
		FileID:        fileID,
		Name:          pd.Name,
		Kind:          model.DefinitionKind(pd.Kind),
		StartLine:     pd.Start.Row + 1,
		StartColumn:   pd.Start.Column,
		EndLine:       pd.End.Row + 1,
		EndColumn:     pd.End.Column,
		Exported:      pd.Exported,
		DefaultExport: pd.DefaultExport,
		Extends:       pd.Extends,
		Implements:    pd.Implements,
	}
	if pd.DeclarationEnd != nil {
		d.DeclarationEndLine = pd.DeclarationEnd.Row + 1
		d.DeclarationEndColumn = pd.DeclarationEnd.Column
	}
	return d
}

// danglingCleanup scrubs ghost rows (spec.md §4.2 phase 7 / §4.1 find_ghost_rows).
func danglingCleanup(ctx context.Context, tx *sql.Tx) error {
	symGhosts, err := store.FindGhostSymbols(ctx, tx)
	if err != nil {
		return err
	}
	for _, g := range symGhosts {
		if err := store.ClearGhostSymbol(ctx, tx, g.ID); err != nil {
			return err
		}
	}

	refGhosts, err := store.FindGhostReferences(ctx, tx)
	if err != nil {
		return err
	}
	for _, g := range refGhosts {
		if err := store.ClearGhostReference(ctx, tx, g.ID); err != nil {
			return err
		}
	}
	return nil
}
