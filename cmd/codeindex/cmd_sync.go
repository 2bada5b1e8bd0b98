package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"codeindex/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Incrementally sync the index against the current workspace tree",
	Long: `Detects files added, modified, or deleted since the last sync and brings
the index into agreement with the tree inside one atomic transaction. Run
'codeindex index' first; sync refuses to do useful work against a database that
was never initialized.`,
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(baseContext(cmd), timeout)
	defer cancel()

	if _, err := os.Stat(cfg.ResolvedDatabasePath()); os.IsNotExist(err) {
		return newUserError("no index found at %s; run 'codeindex index' first", cfg.ResolvedDatabasePath())
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	p := newParser()
	defer closeParser(p)

	s := sync.New(st, p, cfg.WorkspaceRoot, modulePath(), detectOptions(), cfg.Sync)
	result, err := runSyncOnce(ctx, s)
	if err != nil {
		return err
	}

	logger.Info("sync complete",
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

// runSyncOnce wraps Syncer.Run with the error wrapping the sync and watch subcommands
// share.
func runSyncOnce(ctx context.Context, s *sync.Syncer) (*sync.Result, error) {
	result, err := s.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync run: %w", err)
	}
	return result, nil
}
