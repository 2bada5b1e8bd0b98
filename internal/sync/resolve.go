package sync

import (
	"context"
	"database/sql"
	"strings"

	"codeindex/internal/model"
	"codeindex/internal/parser"
	"codeindex/internal/store"
)

// resolveReferences inserts a file's parsed references, symbols and usages, resolving
// each imported symbol to a target definition id where possible (spec.md §4.2 phase 5).
func resolveReferences(ctx context.Context, tx *sql.Tx, fileID int64, pf *parser.ParsedFile, workspace parser.WorkspaceMap, modulePath string, reExportDepth int) error {
	for _, fr := range pf.References {
		var toFileID *int64
		dir, internal := resolveImportDir(workspace, modulePath, fr.Source)
		var dirFileIDs []int64
		if internal {
			ids, err := store.FilesInDirectory(ctx, tx, dir)
			if err != nil {
				return err
			}
			dirFileIDs = ids
		}

		refID, err := store.InsertReference(ctx, tx, model.Reference{
			FromFileID: fileID,
			Kind:       model.ReferenceKind(fr.Kind),
			Source:     fr.Source,
			External:   fr.External,
			TypeOnly:   fr.TypeOnly,
		})
		if err != nil {
			return err
		}

		for _, imp := range fr.Imports {
			var defID *int64
			if internal && imp.Kind != "namespace" {
				visited := map[int64]bool{}
				d, err := resolveInDirectory(ctx, tx, dirFileIDs, imp.Name, visited, 0, reExportDepth)
				if err != nil {
					return err
				}
				if d != nil {
					id := d.ID
					defID = &id
					if toFileID == nil {
						tf := d.FileID
						toFileID = &tf
					}
				}
			}

			symID, err := store.InsertSymbol(ctx, tx, model.Symbol{
				ReferenceID:  &refID,
				DefinitionID: defID,
				ExportedName: imp.Name,
				LocalAlias:   imp.LocalName,
				Kind:         model.SymbolKind(imp.Kind),
			})
			if err != nil {
				return err
			}

			for _, u := range imp.Usages {
				if _, err := store.InsertUsage(ctx, tx, model.Usage{
					SymbolID: symID,
					Line:     u.Line + 1,
					Column:   u.Column,
					Context:  model.UsageContext(u.Context),
				}); err != nil {
					return err
				}
			}
		}

		if toFileID != nil {
			if err := store.SetReferenceTarget(ctx, tx, refID, *toFileID); err != nil {
				return err
			}
		}
	}

	// Internal usages (same-file calls) carry a file-scoped symbol rather than an
	// import-scoped one.
	for _, iu := range pf.InternalUsages {
		defs, err := store.DefinitionsByFile(ctx, tx, fileID)
		if err != nil {
			return err
		}
		var defID *int64
		for _, d := range defs {
			if d.Name == iu.DefinitionName {
				id := d.ID
				defID = &id
				break
			}
		}
		symID, err := store.InsertSymbol(ctx, tx, model.Symbol{
			FileID:       &fileID,
			DefinitionID: defID,
			ExportedName: iu.DefinitionName,
			Kind:         model.SymbolNamed,
		})
		if err != nil {
			return err
		}
		if _, err := store.InsertUsage(ctx, tx, model.Usage{
			SymbolID: symID,
			Line:     iu.Line + 1,
			Column:   iu.Column,
			Context:  model.UsageContext(iu.Context),
		}); err != nil {
			return err
		}
	}

	return nil
}

// resolveImportDir maps an import source string to a workspace-relative directory,
// distinguishing internal imports (under modulePath) from external ones.
func resolveImportDir(workspace parser.WorkspaceMap, modulePath, source string) (string, bool) {
	if dir, ok := workspace[source]; ok {
		return dir, true
	}
	if !strings.HasPrefix(source, modulePath) {
		return "", false
	}
	rel := strings.TrimPrefix(source, modulePath)
	rel = strings.TrimPrefix(rel, "/")
	return rel, true
}

// resolveInDirectory looks for an exported definition named name among a set of
// candidate files, falling back to following re-export/export-all references up to
// reExportDepth hops through a visited set (spec.md §4.2 "Re-export chain resolution").
func resolveInDirectory(ctx context.Context, tx *sql.Tx, fileIDs []int64, name string, visited map[int64]bool, depth, reExportDepth int) (*model.Definition, error) {
	if depth > reExportDepth {
		return nil, nil
	}
	for _, fid := range fileIDs {
		if visited[fid] {
			continue
		}
		visited[fid] = true

		defs, err := store.SymbolsByExportedName(ctx, tx, fid, name)
		if err != nil {
			return nil, err
		}
		if len(defs) > 0 {
			d := defs[0]
			return &d, nil
		}

		refs, err := store.ReferencesByFile(ctx, tx, fid)
		if err != nil {
			return nil, err
		}
		for _, r := range refs {
			if r.Kind != model.ReferenceReExport && r.Kind != model.ReferenceExportAll {
				continue
			}
			if r.ToFileID == nil {
				continue
			}
			d, err := resolveInDirectory(ctx, tx, []int64{*r.ToFileID}, name, visited, depth+1, reExportDepth)
			if err != nil {
				return nil, err
			}
			if d != nil {
				return d, nil
			}
		}
	}
	return nil, nil
}
