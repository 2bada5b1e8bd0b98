package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"codeindex/internal/config"
)

func setupWorkspace(t *testing.T) string {
	t.Helper()
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ws, "go.mod"), []byte("module example.com/app\n\ngo 1.24\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(ws, "main.go"), []byte("package main\n\nfunc main() {}\n"), 0644))
	return ws
}

func setupCLIGlobals(t *testing.T, ws string) {
	t.Helper()
	logger = zap.NewNop()
	workspace = ws
	cfg = config.DefaultConfig()
	cfg.WorkspaceRoot = ws
	t.Cleanup(func() {
		workspace = ""
		cfg = nil
	})
}

func TestRunIndexCreatesDatabase(t *testing.T) {
	ws := setupWorkspace(t)
	setupCLIGlobals(t, ws)

	cmd := &cobra.Command{}
	require.NoError(t, runIndex(cmd, nil))

	_, err := os.Stat(cfg.ResolvedDatabasePath())
	require.NoError(t, err)
}

func TestRunSyncRequiresPriorIndex(t *testing.T) {
	ws := setupWorkspace(t)
	setupCLIGlobals(t, ws)

	cmd := &cobra.Command{}
	err := runSync(cmd, nil)
	require.Error(t, err)
	_, isUserErr := err.(userError)
	require.True(t, isUserErr)
}

func TestRunSyncAfterIndexIsNoOp(t *testing.T) {
	ws := setupWorkspace(t)
	setupCLIGlobals(t, ws)

	cmd := &cobra.Command{}
	require.NoError(t, runIndex(cmd, nil))
	require.NoError(t, runSync(cmd, nil))
}

func TestRunAnnotateRequiresLLMEnabled(t *testing.T) {
	ws := setupWorkspace(t)
	setupCLIGlobals(t, ws)

	cmd := &cobra.Command{}
	err := runAnnotate(cmd, nil)
	require.Error(t, err)
	_, isUserErr := err.(userError)
	require.True(t, isUserErr)
}

func TestExitCodeForUserVsIOError(t *testing.T) {
	require.Equal(t, 1, exitCodeFor(newUserError("bad flag")))
	require.Equal(t, 2, exitCodeFor(os.ErrNotExist))
}
