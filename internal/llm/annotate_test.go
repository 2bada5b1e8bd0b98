package llm

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"codeindex/internal/model"
	"codeindex/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), t.TempDir()+"/index.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// seedRelationship creates two definitions in two modules with one relationship
// annotation between them, returning the annotation id.
func seedRelationship(t *testing.T, s *store.Store, semantic string, relType model.RelationshipType) (fromDef, toDef, annotationID int64) {
	t.Helper()
	ctx := context.Background()
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		fileID, err := store.UpsertFile(ctx, tx, model.File{Path: "a.go", Language: "go", Hash: "h1", MTime: time.Now()})
		if err != nil {
			return err
		}

		fromDef, err = store.UpsertDefinition(ctx, tx, model.Definition{FileID: fileID, Name: "Source", Kind: model.KindClass, StartLine: 1, EndLine: 5})
		if err != nil {
			return err
		}
		toDef, err = store.UpsertDefinition(ctx, tx, model.Definition{FileID: fileID, Name: "Target", Kind: model.KindClass, StartLine: 10, EndLine: 15})
		if err != nil {
			return err
		}

		fromModule, err := store.UpsertModule(ctx, tx, model.Module{Slug: "from", FullPath: "app.from", DisplayName: "From"})
		if err != nil {
			return err
		}
		toModule, err := store.UpsertModule(ctx, tx, model.Module{Slug: "to", FullPath: "app.to", DisplayName: "To"})
		if err != nil {
			return err
		}
		if err := store.SetModuleMember(ctx, tx, fromDef, fromModule); err != nil {
			return err
		}
		if err := store.SetModuleMember(ctx, tx, toDef, toModule); err != nil {
			return err
		}

		annotationID, err = store.UpsertRelationship(ctx, tx, fromDef, toDef, relType, semantic)
		return err
	})
	require.NoError(t, err)
	return fromDef, toDef, annotationID
}

func TestBuildContextAssemblesSourceAndTargetModules(t *testing.T) {
	s := openTestStore(t)
	fromDef, toDef, _ := seedRelationship(t, s, model.PendingAnnotation, model.RelationExtends)

	ctx := context.Background()
	var rc RelationshipContext
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		rc, err = BuildContext(ctx, tx, fromDef, toDef, model.RelationExtends)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, "Source", rc.FromName)
	require.Equal(t, "Target", rc.ToName)
	require.Equal(t, "app.from", rc.FromModule)
	require.Equal(t, "app.to", rc.ToModule)
	require.Equal(t, model.RelationExtends, rc.ExistingType)
}

func TestSharedPathSegmentsFindsCommonPrefix(t *testing.T) {
	shared := sharedPathSegments("app.billing.invoices", "app.billing.payments")
	require.Equal(t, []string{"app", "billing"}, shared)
}

func TestSharedPathSegmentsStopsAtFirstDifference(t *testing.T) {
	shared := sharedPathSegments("app.billing", "app.shipping")
	require.Equal(t, []string{"app"}, shared)
}

func TestBuildPromptMentionsPeerCounts(t *testing.T) {
	rc := RelationshipContext{
		FromName: "Source", ToName: "Target",
		FromModule: "app.from", ToModule: "app.to",
		ExistingType: model.RelationUses,
		PeersFrom:    []model.RelationshipAnnotation{{}},
		SharedTags:   []string{"app"},
	}
	prompt := buildPrompt(rc)
	require.Contains(t, prompt, "Source")
	require.Contains(t, prompt, "Target")
	require.Contains(t, prompt, "1 other outgoing relationship")
	require.Contains(t, prompt, "app")
}
