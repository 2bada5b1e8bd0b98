package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"codeindex/internal/config"
	"codeindex/internal/detect"
	"codeindex/internal/parser/goparser"
	"codeindex/internal/store"
)

func newTestSyncer(t *testing.T, root string) *Syncer {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	p := goparser.New()
	t.Cleanup(p.Close)

	opts := detect.Options{LanguageByExt: map[string]string{".go": "go"}}
	return New(st, p, root, "example.com/app", opts, config.SyncConfig{
		ReExportDepthLimit:   4,
		DirtyLookupBatchSize: 100,
	})
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

const callerSrc = `package app

import "example.com/app/callee"

func Caller() {
	callee.Do()
}
`

const calleeSrc = `package callee

func Do() {}
`

func TestRunIndexesNewFiles(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := t.TempDir()
	writeFile(t, root, "caller.go", callerSrc)
	writeFile(t, root, "callee/callee.go", calleeSrc)

	s := newTestSyncer(t, root)
	ctx := context.Background()

	result, err := s.Run(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, result.RunID)
	require.Len(t, result.FilesAdded, 2)
	require.Empty(t, result.Warnings)

	known, err := s.Store.KnownFiles(ctx)
	require.NoError(t, err)
	require.Len(t, known, 2)
}

func TestRunSecondPassWithNoChangesIsNoOp(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := t.TempDir()
	writeFile(t, root, "caller.go", callerSrc)
	writeFile(t, root, "callee/callee.go", calleeSrc)

	s := newTestSyncer(t, root)
	ctx := context.Background()

	_, err := s.Run(ctx)
	require.NoError(t, err)

	result, err := s.Run(ctx)
	require.NoError(t, err)
	require.Empty(t, result.FilesAdded)
	require.Empty(t, result.FilesModified)
	require.Empty(t, result.FilesDeleted)
}

func TestRunDetectsModificationAndDeletion(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := t.TempDir()
	writeFile(t, root, "caller.go", callerSrc)
	writeFile(t, root, "callee/callee.go", calleeSrc)

	s := newTestSyncer(t, root)
	ctx := context.Background()

	_, err := s.Run(ctx)
	require.NoError(t, err)

	writeFile(t, root, "caller.go", callerSrc+"\nfunc Extra() {}\n")
	require.NoError(t, os.Remove(filepath.Join(root, "callee/callee.go")))

	result, err := s.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"caller.go"}, result.FilesModified)
	require.Equal(t, []string{filepath.ToSlash("callee/callee.go")}, result.FilesDeleted)
}
