// Package main implements the codeindex CLI - a single binary with subcommands for
// full and incremental indexing, a read-only browse server, and the optional
// annotation boundary.
//
// This file serves as the entry point and command registration hub. The actual
// subcommand implementations are split across cmd_*.go files by concern.
//
// # File Index
//
//   - main.go        - entry point, rootCmd, global flags, init()
//   - cmd_index.go   - indexCmd, full re-index (drops and recreates schema)
//   - cmd_sync.go    - syncCmd, incremental sync
//   - cmd_watch.go   - watchCmd, fsnotify-debounced incremental sync
//   - cmd_browse.go  - browseCmd, read-only HTTP server
//   - cmd_annotate.go - annotateCmd, LLM relationship narration and flow tracing
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"codeindex/internal/config"
	"codeindex/internal/logging"
)

var (
	verbose    bool
	workspace  string
	configPath string
	timeout    time.Duration

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "codeindex",
	Short: "Incremental call-graph and module-flow index for a source tree",
	Long: `codeindex builds and maintains a sqlite-backed index of a codebase's
definitions, references, module membership, call graph, and the module-to-module
interactions and flows derived from it.

Run 'codeindex index' once to build the index, then 'codeindex sync' after changes,
or 'codeindex watch' to sync automatically. 'codeindex browse' serves the index
read-only over HTTP.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}

		ws := resolveWorkspace()

		loaded, err := config.Load(resolveConfigPath(ws))
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if loaded.WorkspaceRoot == "" {
			loaded.WorkspaceRoot = ws
		}
		cfg = loaded

		if err := logging.Initialize(ws, logging.Config{
			DebugMode:  cfg.Logging.DebugMode,
			Categories: cfg.Logging.Categories,
			Level:      cfg.Logging.Level,
			JSONFormat: cfg.Logging.JSONFormat,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

// baseContext returns cmd's context, falling back to Background for commands invoked
// directly in tests rather than through rootCmd.Execute/ExecuteContext.
func baseContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// resolveWorkspace returns the absolute workspace root, defaulting to the current
// directory.
func resolveWorkspace() string {
	ws := workspace
	if ws == "" {
		ws, _ = os.Getwd()
		return ws
	}
	if abs, err := filepath.Abs(ws); err == nil {
		return abs
	}
	return ws
}

// resolveConfigPath returns the workspace config file path, defaulting to
// .codeindex/config.yaml under the workspace root.
func resolveConfigPath(ws string) string {
	if configPath != "" {
		return configPath
	}
	return filepath.Join(ws, ".codeindex", "config.yaml")
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML (default: <workspace>/.codeindex/config.yaml)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "Operation timeout")

	rootCmd.AddCommand(indexCmd, syncCmd, watchCmd, browseCmd, annotateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a command error to spec.md §6's exit codes: 0 success (handled by
// Execute returning nil), 1 user error, 2 I/O error.
func exitCodeFor(err error) int {
	if _, ok := err.(userError); ok {
		return 1
	}
	return 2
}

// userError marks an error as caused by the operator (bad flags, uninitialized
// workspace) rather than the environment, so main can choose exit code 1 over 2.
type userError struct{ error }

func newUserError(format string, args ...interface{}) error {
	return userError{fmt.Errorf(format, args...)}
}
