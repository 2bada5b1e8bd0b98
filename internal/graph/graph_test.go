package graph

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"codeindex/internal/model"
	"codeindex/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := store.Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDeriveInheritanceEdgesPrefersExportedOverSameFile(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var childID int64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		fileID, err := store.UpsertFile(ctx, tx, model.File{Path: "a.go", Language: "go", Hash: "h", MTime: time.Now()})
		if err != nil {
			return err
		}
		otherFileID, err := store.UpsertFile(ctx, tx, model.File{Path: "b.go", Language: "go", Hash: "h2", MTime: time.Now()})
		if err != nil {
			return err
		}

		// Same-file Base is unexported; other-file Base is exported. Exported-ness
		// should win over file proximity per the disambiguation rule.
		if _, err := store.UpsertDefinition(ctx, tx, model.Definition{
			FileID: fileID, Name: "Base", Kind: model.KindClass, StartLine: 1, EndLine: 2, Exported: false,
		}); err != nil {
			return err
		}
		wantTarget, err := store.UpsertDefinition(ctx, tx, model.Definition{
			FileID: otherFileID, Name: "Base", Kind: model.KindClass, StartLine: 1, EndLine: 2, Exported: true,
		})
		if err != nil {
			return err
		}

		childID, err = store.UpsertDefinition(ctx, tx, model.Definition{
			FileID: fileID, Name: "Child", Kind: model.KindClass, StartLine: 4, EndLine: 6, Extends: "Base",
		})
		if err != nil {
			return err
		}

		if err := DeriveInheritanceEdges(ctx, tx); err != nil {
			return err
		}

		rels, err := store.RelationshipsFrom(ctx, tx, childID)
		if err != nil {
			return err
		}
		require.Len(t, rels, 1)
		require.Equal(t, model.RelationExtends, rels[0].Type)
		require.Equal(t, wantTarget, rels[0].ToDef)
		require.Equal(t, model.PendingAnnotation, rels[0].Semantic)
		return nil
	})
	require.NoError(t, err)
}

func TestDeriveInheritanceEdgesIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		fileID, err := store.UpsertFile(ctx, tx, model.File{Path: "a.go", Language: "go", Hash: "h", MTime: time.Now()})
		if err != nil {
			return err
		}
		if _, err := store.UpsertDefinition(ctx, tx, model.Definition{
			FileID: fileID, Name: "Shape", Kind: model.KindInterface, StartLine: 1, EndLine: 2, Exported: true,
		}); err != nil {
			return err
		}
		childID, err := store.UpsertDefinition(ctx, tx, model.Definition{
			FileID: fileID, Name: "Circle", Kind: model.KindClass, StartLine: 4, EndLine: 6,
			Implements: []string{"Shape"},
		})
		if err != nil {
			return err
		}

		if err := DeriveInheritanceEdges(ctx, tx); err != nil {
			return err
		}
		if err := DeriveInheritanceEdges(ctx, tx); err != nil {
			return err
		}

		rels, err := store.RelationshipsFrom(ctx, tx, childID)
		if err != nil {
			return err
		}
		require.Len(t, rels, 1, "re-running derivation must not duplicate the annotation row")
		require.Equal(t, model.RelationImplements, rels[0].Type)
		return nil
	})
	require.NoError(t, err)
}

func TestDeriveInheritanceEdgesUnresolvedNameIsNotFatal(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		fileID, err := store.UpsertFile(ctx, tx, model.File{Path: "a.go", Language: "go", Hash: "h", MTime: time.Now()})
		if err != nil {
			return err
		}
		childID, err := store.UpsertDefinition(ctx, tx, model.Definition{
			FileID: fileID, Name: "Orphan", Kind: model.KindClass, StartLine: 1, EndLine: 2, Extends: "NoSuchParent",
		})
		if err != nil {
			return err
		}

		if err := DeriveInheritanceEdges(ctx, tx); err != nil {
			return err
		}

		rels, err := store.RelationshipsFrom(ctx, tx, childID)
		if err != nil {
			return err
		}
		require.Empty(t, rels)
		return nil
	})
	require.NoError(t, err)
}

func TestDeriveCallGraphInteractionsProjectsAcrossModulesOnly(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		callerFile, err := store.UpsertFile(ctx, tx, model.File{Path: "caller.go", Language: "go", Hash: "h1", MTime: time.Now()})
		if err != nil {
			return err
		}
		calleeFile, err := store.UpsertFile(ctx, tx, model.File{Path: "callee.go", Language: "go", Hash: "h2", MTime: time.Now()})
		if err != nil {
			return err
		}

		callerDef, err := store.UpsertDefinition(ctx, tx, model.Definition{
			FileID: callerFile, Name: "Caller", Kind: model.KindFunction, StartLine: 1, EndLine: 10,
		})
		if err != nil {
			return err
		}
		calleeDef, err := store.UpsertDefinition(ctx, tx, model.Definition{
			FileID: calleeFile, Name: "Callee", Kind: model.KindFunction, StartLine: 1, EndLine: 3, Exported: true,
		})
		if err != nil {
			return err
		}

		moduleA, err := store.UpsertModule(ctx, tx, model.Module{Slug: "a", FullPath: "a", DisplayName: "a", Depth: 0})
		if err != nil {
			return err
		}
		moduleB, err := store.UpsertModule(ctx, tx, model.Module{Slug: "b", FullPath: "b", DisplayName: "b", Depth: 0})
		if err != nil {
			return err
		}
		if err := store.SetModuleMember(ctx, tx, callerDef, moduleA); err != nil {
			return err
		}
		if err := store.SetModuleMember(ctx, tx, calleeDef, moduleB); err != nil {
			return err
		}

		refID, err := store.InsertReference(ctx, tx, model.Reference{FromFileID: callerFile, Kind: model.ReferenceImport, Source: "pkg/callee"})
		if err != nil {
			return err
		}
		symID, err := store.InsertSymbol(ctx, tx, model.Symbol{ReferenceID: &refID, DefinitionID: &calleeDef, ExportedName: "Callee", Kind: model.SymbolNamed})
		if err != nil {
			return err
		}
		if _, err := store.InsertUsage(ctx, tx, model.Usage{SymbolID: symID, Line: 5, Context: model.ContextCall}); err != nil {
			return err
		}

		if err := DeriveCallGraphInteractions(ctx, tx); err != nil {
			return err
		}

		interaction, ok, err := store.InteractionByModulePair(ctx, tx, moduleA, moduleB)
		if err != nil {
			return err
		}
		require.True(t, ok, "cross-module call should produce an AST-sourced interaction")
		require.Equal(t, model.SourceAST, interaction.Source)
		require.Contains(t, interaction.Symbols, "Callee")
		return nil
	})
	require.NoError(t, err)
}

func TestDeriveCallGraphInteractionsIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		callerFile, err := store.UpsertFile(ctx, tx, model.File{Path: "caller.go", Language: "go", Hash: "h1", MTime: time.Now()})
		if err != nil {
			return err
		}
		calleeFile, err := store.UpsertFile(ctx, tx, model.File{Path: "callee.go", Language: "go", Hash: "h2", MTime: time.Now()})
		if err != nil {
			return err
		}
		callerDef, err := store.UpsertDefinition(ctx, tx, model.Definition{FileID: callerFile, Name: "Caller", Kind: model.KindFunction, StartLine: 1, EndLine: 10})
		if err != nil {
			return err
		}
		calleeDef, err := store.UpsertDefinition(ctx, tx, model.Definition{FileID: calleeFile, Name: "Callee", Kind: model.KindFunction, StartLine: 1, EndLine: 3, Exported: true})
		if err != nil {
			return err
		}
		moduleA, err := store.UpsertModule(ctx, tx, model.Module{Slug: "a", FullPath: "a", DisplayName: "a", Depth: 0})
		if err != nil {
			return err
		}
		moduleB, err := store.UpsertModule(ctx, tx, model.Module{Slug: "b", FullPath: "b", DisplayName: "b", Depth: 0})
		if err != nil {
			return err
		}
		if err := store.SetModuleMember(ctx, tx, callerDef, moduleA); err != nil {
			return err
		}
		if err := store.SetModuleMember(ctx, tx, calleeDef, moduleB); err != nil {
			return err
		}
		refID, err := store.InsertReference(ctx, tx, model.Reference{FromFileID: callerFile, Kind: model.ReferenceImport, Source: "pkg/callee"})
		if err != nil {
			return err
		}
		symID, err := store.InsertSymbol(ctx, tx, model.Symbol{ReferenceID: &refID, DefinitionID: &calleeDef, ExportedName: "Callee", Kind: model.SymbolNamed})
		if err != nil {
			return err
		}
		if _, err := store.InsertUsage(ctx, tx, model.Usage{SymbolID: symID, Line: 5, Context: model.ContextCall}); err != nil {
			return err
		}

		if err := DeriveCallGraphInteractions(ctx, tx); err != nil {
			return err
		}
		if err := DeriveCallGraphInteractions(ctx, tx); err != nil {
			return err
		}

		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM interactions WHERE source = 'ast'`).Scan(&count); err != nil {
			return err
		}
		require.Equal(t, 1, count, "re-running derivation must not duplicate the interaction row")
		return nil
	})
	require.NoError(t, err)
}

func TestDeriveCallGraphInteractionsBackfillsInheritanceWithoutCallEdge(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		baseFile, err := store.UpsertFile(ctx, tx, model.File{Path: "base.go", Language: "go", Hash: "h1", MTime: time.Now()})
		if err != nil {
			return err
		}
		childFile, err := store.UpsertFile(ctx, tx, model.File{Path: "child.go", Language: "go", Hash: "h2", MTime: time.Now()})
		if err != nil {
			return err
		}

		baseDef, err := store.UpsertDefinition(ctx, tx, model.Definition{
			FileID: baseFile, Name: "Shape", Kind: model.KindInterface, StartLine: 1, EndLine: 2, Exported: true,
		})
		if err != nil {
			return err
		}
		childDef, err := store.UpsertDefinition(ctx, tx, model.Definition{
			FileID: childFile, Name: "Circle", Kind: model.KindClass, StartLine: 1, EndLine: 4,
			Implements: []string{"Shape"},
		})
		if err != nil {
			return err
		}

		moduleA, err := store.UpsertModule(ctx, tx, model.Module{Slug: "a", FullPath: "a", DisplayName: "a", Depth: 0})
		if err != nil {
			return err
		}
		moduleB, err := store.UpsertModule(ctx, tx, model.Module{Slug: "b", FullPath: "b", DisplayName: "b", Depth: 0})
		if err != nil {
			return err
		}
		if err := store.SetModuleMember(ctx, tx, childDef, moduleA); err != nil {
			return err
		}
		if err := store.SetModuleMember(ctx, tx, baseDef, moduleB); err != nil {
			return err
		}

		// Implements relationship only, no call graph edge (no reference/symbol/usage
		// rows at all) — the common shape for inheritance.
		if err := DeriveInheritanceEdges(ctx, tx); err != nil {
			return err
		}
		if err := DeriveCallGraphInteractions(ctx, tx); err != nil {
			return err
		}

		interaction, ok, err := store.InteractionByModulePair(ctx, tx, moduleA, moduleB)
		if err != nil {
			return err
		}
		require.True(t, ok, "cross-module implements annotation must produce an Interaction even without a call edge")
		require.Equal(t, model.SourceAST, interaction.Source)
		return nil
	})
	require.NoError(t, err)
}

func TestComputeCoverageBucketsSameModuleAndOrphaned(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		fileID, err := store.UpsertFile(ctx, tx, model.File{Path: "a.go", Language: "go", Hash: "h", MTime: time.Now()})
		if err != nil {
			return err
		}
		d1, err := store.UpsertDefinition(ctx, tx, model.Definition{FileID: fileID, Name: "A", Kind: model.KindClass, StartLine: 1, EndLine: 2})
		if err != nil {
			return err
		}
		d2, err := store.UpsertDefinition(ctx, tx, model.Definition{FileID: fileID, Name: "B", Kind: model.KindClass, StartLine: 3, EndLine: 4})
		if err != nil {
			return err
		}

		moduleA, err := store.UpsertModule(ctx, tx, model.Module{Slug: "a", FullPath: "a", DisplayName: "a", Depth: 0})
		if err != nil {
			return err
		}
		if err := store.SetModuleMember(ctx, tx, d1, moduleA); err != nil {
			return err
		}
		if err := store.SetModuleMember(ctx, tx, d2, moduleA); err != nil {
			return err
		}

		if _, err := store.UpsertRelationship(ctx, tx, d1, d2, model.RelationUses, ""); err != nil {
			return err
		}

		cb, err := ComputeCoverage(ctx, tx)
		if err != nil {
			return err
		}
		require.Equal(t, 1, cb.SameModule)
		require.Equal(t, 0, cb.Covered)
		require.Equal(t, 0, cb.Orphaned)
		return nil
	})
	require.NoError(t, err)
}

func TestDeriveAtomicFlowsCreatesOnePerInteractionAndIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		moduleA, err := store.UpsertModule(ctx, tx, model.Module{Slug: "a", FullPath: "a", DisplayName: "a", Depth: 0})
		if err != nil {
			return err
		}
		moduleB, err := store.UpsertModule(ctx, tx, model.Module{Slug: "b", FullPath: "b", DisplayName: "b", Depth: 0})
		if err != nil {
			return err
		}

		interactionID, err := store.UpsertInteraction(ctx, tx, model.Interaction{
			FromModule: moduleA, ToModule: moduleB, Direction: model.DirectionUni,
			Weight: 3, Source: model.SourceAST, Confidence: 1.0,
		})
		if err != nil {
			return err
		}

		if err := DeriveAtomicFlows(ctx, tx); err != nil {
			return err
		}
		if err := DeriveAtomicFlows(ctx, tx); err != nil {
			return err
		}

		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM flows WHERE tier = 0`).Scan(&count); err != nil {
			return err
		}
		require.Equal(t, 1, count, "re-running the derivation must not duplicate the atomic flow")

		flows, err := store.AllFlows(ctx, tx)
		if err != nil {
			return err
		}
		require.Len(t, flows, 1)
		require.Equal(t, model.TierAtomic, flows[0].Tier)

		steps, err := store.StepsByFlow(ctx, tx, flows[0].ID)
		if err != nil {
			return err
		}
		require.Len(t, steps, 1)
		require.Equal(t, model.StepInteraction, steps[0].Kind)
		require.NotNil(t, steps[0].InteractionID)
		require.Equal(t, interactionID, *steps[0].InteractionID)
		return nil
	})
	require.NoError(t, err)
}
