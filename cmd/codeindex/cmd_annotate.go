package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"codeindex/internal/llm"
)

var annotateTrace bool

var annotateCmd = &cobra.Command{
	Use:   "annotate",
	Short: "Narrate pending relationships and trace flows through the LLM orchestration boundary",
	Long: `Polls the index for inheritance edges still carrying the pending
placeholder and call edges with no annotation, asks the configured LLM to narrate
each, and writes the result back. With --trace it also runs the Flow Tracer over
the configured entry points and persists the resulting flows. Requires llm.enabled
and llm.api_key (or CODEINDEX_LLM_API_KEY/GEMINI_API_KEY) in config.`,
	RunE: runAnnotate,
}

func init() {
	annotateCmd.Flags().BoolVar(&annotateTrace, "trace", false, "Also trace and persist flows from configured entry points")
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	if !cfg.LLM.Enabled {
		return newUserError("llm.enabled is false in config; nothing to annotate")
	}
	if _, err := os.Stat(cfg.ResolvedDatabasePath()); os.IsNotExist(err) {
		return newUserError("no index found at %s; run 'codeindex index' first", cfg.ResolvedDatabasePath())
	}

	ctx, cancel := context.WithTimeout(baseContext(cmd), timeout)
	defer cancel()

	client, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		return fmt.Errorf("annotate: %w", err)
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	batchSize := cfg.LLM.BatchSize
	if batchSize <= 0 {
		batchSize = 20
	}

	var annotated int
	err = st.WithTx(ctx, func(tx *sql.Tx) error {
		n, err := client.AnnotateBatch(ctx, tx, batchSize)
		annotated = n
		return err
	})
	if err != nil {
		return fmt.Errorf("annotate batch: %w", err)
	}
	logger.Info("annotate: relationships narrated", zap.Int("count", annotated))

	if annotateTrace {
		var flowIDs []int64
		var traceErrs []error
		err = st.WithTx(ctx, func(tx *sql.Tx) error {
			flowIDs, traceErrs = llm.TraceAndPersist(ctx, tx, cfg.EntryPoints)
			return nil
		})
		if err != nil {
			return fmt.Errorf("annotate trace: %w", err)
		}
		for _, e := range traceErrs {
			fmt.Fprintln(os.Stderr, "warning:", e)
		}
		logger.Info("annotate: flows persisted", zap.Int("count", len(flowIDs)))
	}

	return nil
}
