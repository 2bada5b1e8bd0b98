package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"codeindex/internal/sync"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the workspace tree and sync on changes",
	Long: `Watches every source directory under the workspace root and runs an
incremental sync after a quiet period following the last filesystem event,
so changes are picked up without the operator invoking 'sync' by hand.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "Quiet period before a sync is triggered")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(cfg.ResolvedDatabasePath()); os.IsNotExist(err) {
		return newUserError("no index found at %s; run 'codeindex index' first", cfg.ResolvedDatabasePath())
	}

	ctx, cancel := context.WithCancel(baseContext(cmd))
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("watch: shutdown signal received")
		cancel()
	}()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := addWatchDirs(watcher, cfg.WorkspaceRoot, cfg.Ignore); err != nil {
		return fmt.Errorf("watch workspace tree: %w", err)
	}
	logger.Info("watch: started", zap.String("root", cfg.WorkspaceRoot), zap.Duration("debounce", watchDebounce))

	var mu sync.Mutex
	dirty := false
	timer := time.NewTimer(watchDebounce)
	if !timer.Stop() {
		<-timer.C
	}

	triggerSync := func() {
		st, err := openStore(ctx)
		if err != nil {
			logger.Error("watch: open store failed", zap.Error(err))
			return
		}
		defer st.Close()

		p := newParser()
		defer closeParser(p)

		s := sync.New(st, p, cfg.WorkspaceRoot, modulePath(), detectOptions(), cfg.Sync)
		result, err := runSyncOnce(ctx, s)
		if err != nil {
			logger.Error("watch: sync failed", zap.Error(err))
			return
		}
		logger.Info("watch: sync complete",
			zap.String("run_id", result.RunID),
			zap.Int("added", len(result.FilesAdded)),
			zap.Int("modified", len(result.FilesModified)),
			zap.Int("deleted", len(result.FilesDeleted)),
		)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if isIgnoredEvent(event, cfg.Ignore) {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = addWatchDirs(watcher, event.Name, cfg.Ignore)
				}
			}
			mu.Lock()
			dirty = true
			mu.Unlock()
			timer.Reset(watchDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch: fsnotify error", zap.Error(err))

		case <-timer.C:
			mu.Lock()
			wasDirty := dirty
			dirty = false
			mu.Unlock()
			if wasDirty {
				triggerSync()
			}
		}
	}
}

// addWatchDirs registers root and every non-ignored subdirectory with watcher.
// fsnotify watches are not recursive, so each directory must be added explicitly.
func addWatchDirs(watcher *fsnotify.Watcher, root string, ignore []string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		if rel != "." && isIgnoredDir(filepath.ToSlash(rel), d.Name(), ignore) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

func isIgnoredDir(rel, name string, patterns []string) bool {
	if name == ".git" || name == ".codeindex" {
		return true
	}
	for _, p := range patterns {
		if p != "" && strings.Contains(rel, p) {
			return true
		}
	}
	return false
}

func isIgnoredEvent(event fsnotify.Event, patterns []string) bool {
	name := filepath.Base(event.Name)
	if name == ".git" || name == ".codeindex" {
		return true
	}
	for _, p := range patterns {
		if p != "" && strings.Contains(event.Name, p) {
			return true
		}
	}
	return false
}
