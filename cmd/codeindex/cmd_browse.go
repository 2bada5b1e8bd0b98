package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"codeindex/internal/store"
)

var browseAddr string

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Serve the index read-only over HTTP",
	Long: `Starts a read-only HTTP server over the index database: module list,
per-module interactions, and flows with their steps. The sync engine remains the
only writer (spec.md §5); this server never opens a write transaction.`,
	RunE: runBrowse,
}

func init() {
	browseCmd.Flags().StringVar(&browseAddr, "addr", "127.0.0.1:8080", "Address to listen on")
}

func runBrowse(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(cfg.ResolvedDatabasePath()); os.IsNotExist(err) {
		return newUserError("no index found at %s; run 'codeindex index' first", cfg.ResolvedDatabasePath())
	}

	ctx, cancel := context.WithCancel(baseContext(cmd))
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	srv := &browseServer{store: st}
	mux := http.NewServeMux()
	mux.HandleFunc("/modules", srv.handleModules)
	mux.HandleFunc("/modules/interactions", srv.handleModuleInteractions)
	mux.HandleFunc("/flows", srv.handleFlows)
	mux.HandleFunc("/flows/steps", srv.handleFlowSteps)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	httpSrv := &http.Server{Addr: browseAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = httpSrv.Close()
	}()

	logger.Info("browse: listening", zap.String("addr", browseAddr))
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("browse server: %w", err)
	}
	return nil
}

// browseServer serves read-only index queries over HTTP. Every handler opens its own
// short read transaction; none ever writes.
type browseServer struct {
	store *store.Store
}

func (s *browseServer) withReadTx(w http.ResponseWriter, fn func(tx *sql.Tx) error) {
	tx, err := s.store.DB().BeginTx(context.Background(), &sql.TxOptions{ReadOnly: true})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *browseServer) handleModules(w http.ResponseWriter, r *http.Request) {
	s.withReadTx(w, func(tx *sql.Tx) error {
		modules, err := store.AllModules(r.Context(), tx)
		if err != nil {
			return err
		}
		return writeJSON(w, modules)
	})
}

func (s *browseServer) handleModuleInteractions(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "module_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.withReadTx(w, func(tx *sql.Tx) error {
		interactions, err := store.InteractionsFromModule(r.Context(), tx, id)
		if err != nil {
			return err
		}
		return writeJSON(w, interactions)
	})
}

func (s *browseServer) handleFlows(w http.ResponseWriter, r *http.Request) {
	s.withReadTx(w, func(tx *sql.Tx) error {
		flows, err := store.AllFlows(r.Context(), tx)
		if err != nil {
			return err
		}
		return writeJSON(w, flows)
	})
}

func (s *browseServer) handleFlowSteps(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "flow_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.withReadTx(w, func(tx *sql.Tx) error {
		steps, err := store.StepsByFlow(r.Context(), tx, id)
		if err != nil {
			return err
		}
		return writeJSON(w, steps)
	})
}

func parseIDParam(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, fmt.Errorf("missing query parameter %q", name)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %q: %w", name, err)
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(v)
}
