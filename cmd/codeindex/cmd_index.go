package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"codeindex/internal/detect"
	"codeindex/internal/parser"
	"codeindex/internal/parser/goparser"
	"codeindex/internal/store"
	"codeindex/internal/sync"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build a full index of the workspace (drops and recreates the schema)",
	Long: `Drops and recreates the index schema, then runs a sync over the full
workspace tree as if every file were new. Use this for the first index of a
workspace, or to recover from a corrupted or stale database.`,
	RunE: runIndex,
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(baseContext(cmd), timeout)
	defer cancel()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	logger.Info("resetting schema", zap.String("db", cfg.ResolvedDatabasePath()))
	if err := st.Reset(ctx); err != nil {
		return fmt.Errorf("reset schema: %w", err)
	}

	p := newParser()
	defer closeParser(p)

	s := sync.New(st, p, cfg.WorkspaceRoot, modulePath(), detectOptions(), cfg.Sync)
	result, err := s.Run(ctx)
	if err != nil {
		return fmt.Errorf("index run: %w", err)
	}

	logger.Info("index complete",
		zap.String("run_id", result.RunID),
		zap.Int("added", len(result.FilesAdded)),
		zap.Int("modified", len(result.FilesModified)),
		zap.Int("deleted", len(result.FilesDeleted)),
		zap.Int("warnings", len(result.Warnings)),
	)
	for _, w := range result.Warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}
	return nil
}

// openStore opens the index store at the workspace's configured database path,
// creating parent directories as needed.
func openStore(ctx context.Context) (*store.Store, error) {
	path := cfg.ResolvedDatabasePath()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	return store.Open(ctx, path)
}

// newParser constructs the registered parser for this workspace. Only Go is wired by
// default; additional languages plug in via the same parser.Parser contract.
func newParser() parser.Parser {
	return goparser.New()
}

func closeParser(p parser.Parser) {
	if c, ok := p.(interface{ Close() }); ok {
		c.Close()
	}
}

func detectOptions() detect.Options {
	return detect.Options{
		IgnorePatterns: cfg.Ignore,
		LanguageByExt:  cfg.LanguageByExt,
	}
}

// modulePath identifies internal imports so the sync engine can distinguish them from
// external dependencies. It is read from go.mod at the workspace root.
func modulePath() string {
	data, err := os.ReadFile(filepath.Join(cfg.WorkspaceRoot, "go.mod"))
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), "module "); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}
