package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, 5, cfg.Sync.ReExportDepthLimit)
	require.Equal(t, 0.7, cfg.Sync.FlowOverlapThreshold)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.WorkspaceRoot = "/workspace"
	cfg.Sync.ReExportDepthLimit = 3

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/workspace", loaded.WorkspaceRoot)
	require.Equal(t, 3, loaded.Sync.ReExportDepthLimit)
}

func TestEnvOverridesApplyOverYAML(t *testing.T) {
	t.Setenv("CODEINDEX_DB", "/tmp/override.db")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, "/tmp/override.db", cfg.DatabasePath)
}

func TestResolvedDatabasePathJoinsWorkspaceRoot(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WorkspaceRoot = "/ws"
	cfg.DatabasePath = ".codeindex/index.db"
	require.Equal(t, filepath.Join("/ws", ".codeindex", "index.db"), cfg.ResolvedDatabasePath())

	cfg.DatabasePath = "/abs/index.db"
	require.Equal(t, "/abs/index.db", cfg.ResolvedDatabasePath())
}
