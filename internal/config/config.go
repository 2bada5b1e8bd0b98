// Package config holds codeindex's configuration: workspace layout, sync tuning, and
// the optional LLM orchestration boundary, loaded from YAML with environment overrides,
// in the teacher's own config.Load/Save idiom.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"codeindex/internal/logging"
)

// Config holds all codeindex configuration.
type Config struct {
	// Workspace root being indexed.
	WorkspaceRoot string `yaml:"workspace_root"`

	// Database path, relative to WorkspaceRoot unless absolute.
	DatabasePath string `yaml:"database_path"`

	// Ignore holds substring patterns matched against workspace-relative paths.
	Ignore []string `yaml:"ignore"`

	// LanguageByExt maps a file extension (with leading dot) to a language id, used to
	// select which registered parser handles a file.
	LanguageByExt map[string]string `yaml:"language_by_ext"`

	// Sync tunes the incremental sync engine and derivation passes.
	Sync SyncConfig `yaml:"sync"`

	// LLM configures the optional annotation orchestration boundary.
	LLM LLMConfig `yaml:"llm"`

	// EntryPoints seeds the Flow Tracer (spec.md §4.4): each names a module and one of
	// its members to start a DFS traversal from. Supplied externally since the core
	// never decides on its own what counts as an entry point.
	EntryPoints []EntryPointConfig `yaml:"entry_points"`

	// Logging mirrors internal/logging's Config, kept separate to avoid an import cycle
	// between config and logging.
	Logging LoggingConfig `yaml:"logging"`
}

// SyncConfig tunes the Sync Engine and Derivations passes (spec.md §4.2-§4.5).
type SyncConfig struct {
	// ReExportDepthLimit bounds transitive re-export chain resolution.
	ReExportDepthLimit int `yaml:"re_export_depth_limit"`

	// DirtyLookupBatchSize is the chunk size in which dirty propagation walks the dirty
	// module ids when looking up their interactions.
	DirtyLookupBatchSize int `yaml:"dirty_lookup_batch_size"`

	// FlowOverlapThreshold holds the minimum |A∩B|/min(|A|,|B|) ratio (spec.md §4.5) for a
	// dedup comparison between two flows. tracer.Dedup does not read it; it compares
	// against a fixed 0.7.
	FlowOverlapThreshold float64 `yaml:"flow_overlap_threshold"`
}

// LLMConfig configures the optional reference LLM orchestration boundary. Core sync,
// store, graph and tracer packages never import this directly — only cmd/codeindex's
// annotate subcommand and internal/llm depend on it.
type LLMConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	Timeout  string `yaml:"timeout"`
	BatchSize int   `yaml:"batch_size"`
}

// EntryPointConfig names one traceable member on one module, resolved against the
// store by module full path (carried in ModuleSlug, e.g. "app.orders") and definition
// name when the annotate subcommand runs a trace.
type EntryPointConfig struct {
	ModuleSlug     string `yaml:"module_slug"`
	DefinitionName string `yaml:"definition_name"`
	Action         string `yaml:"action"`
	TraceFrom      string `yaml:"trace_from"`
	TargetEntity   string `yaml:"target_entity"`
	Stakeholder    string `yaml:"stakeholder"`
}

// LoggingConfig mirrors logging.Config's shape for YAML unmarshalling.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DatabasePath: filepath.Join(".codeindex", "index.db"),
		Ignore:       []string{".git", ".codeindex", "node_modules", "vendor", "dist", "build"},
		LanguageByExt: map[string]string{
			".go": "go",
		},
		Sync: SyncConfig{
			ReExportDepthLimit:   5,
			DirtyLookupBatchSize: 500,
			FlowOverlapThreshold: 0.7,
		},
		LLM: LLMConfig{
			Enabled:   false,
			Provider:  "gemini",
			Model:     "gemini-2.0-flash",
			Timeout:   "60s",
			BatchSize: 20,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a YAML file, falling back to defaults plus environment
// overrides when the file does not exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Store("config file not found, using defaults: %s", path)
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes configuration to a YAML file, creating parent directories as needed.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// applyEnvOverrides lets the LLM API key and database path be supplied without
// committing secrets to the YAML file.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("CODEINDEX_LLM_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = key
	}
	if path := os.Getenv("CODEINDEX_DB"); path != "" {
		c.DatabasePath = path
	}
	if root := os.Getenv("CODEINDEX_WORKSPACE"); root != "" {
		c.WorkspaceRoot = root
	}
}

// ResolvedDatabasePath returns DatabasePath joined to WorkspaceRoot when it is relative.
func (c *Config) ResolvedDatabasePath() string {
	if filepath.IsAbs(c.DatabasePath) {
		return c.DatabasePath
	}
	return filepath.Join(c.WorkspaceRoot, c.DatabasePath)
}
