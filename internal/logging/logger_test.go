package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitializeDisabledIsNoop(t *testing.T) {
	dir := t.TempDir()
	defer CloseAll()

	require.NoError(t, Initialize(dir, Config{DebugMode: false}))
	require.False(t, IsDebugMode())

	l := Get(CategorySync)
	l.Info("should not be written")

	_, err := os.Stat(filepath.Join(dir, ".codeindex", "logs"))
	require.True(t, os.IsNotExist(err))
}

func TestInitializeEnabledWritesLogFile(t *testing.T) {
	dir := t.TempDir()
	defer CloseAll()

	require.NoError(t, Initialize(dir, Config{DebugMode: true, Level: "debug"}))
	require.True(t, IsDebugMode())

	l := Get(CategorySync)
	l.Info("hello %s", "world")
	l.Debug("details")
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(dir, ".codeindex", "logs"))
	require.NoError(t, err)
	require.NotEmpty(t, entries)
}

func TestCategoryDisabledSuppressesOutput(t *testing.T) {
	dir := t.TempDir()
	defer CloseAll()

	require.NoError(t, Initialize(dir, Config{
		DebugMode:  true,
		Level:      "debug",
		Categories: map[string]bool{string(CategorySync): false},
	}))
	require.False(t, IsCategoryEnabled(CategorySync))
	require.True(t, IsCategoryEnabled(CategoryStore))
}

func TestTimerStopWithThreshold(t *testing.T) {
	dir := t.TempDir()
	defer CloseAll()
	require.NoError(t, Initialize(dir, Config{DebugMode: true, Level: "debug"}))

	timer := StartTimer(CategorySync, "unit-test-op")
	d := timer.StopWithThreshold(0)
	require.GreaterOrEqual(t, d.Nanoseconds(), int64(0))
}
