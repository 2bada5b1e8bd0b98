// Package parser declares the contract between the indexing core and the AST parser.
// The parser itself is an external collaborator (spec.md §1, §6): this package defines
// only the shapes the sync engine consumes. Concrete parsers (e.g. the tree-sitter
// reference implementation in internal/parser/goparser) implement Parser but are never
// imported by internal/sync, internal/store, internal/graph, or internal/tracer —
// those packages depend only on this interface.
package parser

import "context"

// Position is a 0-based row/column, matching the upstream AST tooling convention. The
// store converts to 1-based lines on insert.
type Position struct {
	Row    int
	Column int
}

// Definition is one declared definition extracted from a file.
type Definition struct {
	Name                   string
	Kind                   string // function|class|interface|type|variable|method|enum
	Exported               bool
	DefaultExport          bool
	Start                  Position
	End                    Position
	DeclarationEnd         *Position // optional; nil if the parser doesn't distinguish it
	Extends                string
	Implements             []string
	ExtendsAll             []string // for languages with multiple-inheritance-like extends
}

// UsageRef is one concrete occurrence of an imported symbol inside the importing file.
type UsageRef struct {
	Line    int // 0-based
	Column  int
	Context string // call|new|member|type|...
}

// ImportedSymbol is one name crossing a FileReference.
type ImportedSymbol struct {
	Name      string
	LocalName string
	Kind      string // named|default|namespace
	Usages    []UsageRef
}

// FileReference is one import-like construct found in a file.
type FileReference struct {
	ResolvedPath *string // absolute path, nil if external/unresolved
	Kind         string  // import|re-export|export-all
	Source       string
	External     bool
	TypeOnly     bool
	Imports      []ImportedSymbol
}

// InternalUsage is one occurrence of a symbol defined in the same file being used
// elsewhere in that file (no Reference is involved).
type InternalUsage struct {
	DefinitionName string
	Line           int
	Column         int
	Context        string
}

// ParsedFile is the full result of parsing one file, per spec.md §6.
type ParsedFile struct {
	Content         []byte
	Size            int64
	MTime           int64 // unix seconds
	Language        string
	Definitions     []Definition
	References      []FileReference
	InternalUsages  []InternalUsage
}

// WorkspaceMap resolves a workspace alias (e.g. a tsconfig path mapping or a Go module
// prefix) to a filesystem path, used by a parser to resolve non-relative imports.
type WorkspaceMap map[string]string

// Parser is the contract the sync engine's Phase 2 (Parse) depends on. Implementations
// must be safe for concurrent use across distinct files (Phase 2 parses concurrently),
// but need not be reentrant for a single file.
type Parser interface {
	// ParseFile parses path with the given content, resolving non-relative imports
	// via workspace. known carries the set of files already known to the index, which
	// some parsers use to disambiguate same-named sibling modules.
	ParseFile(ctx context.Context, path string, content []byte, known []string, workspace WorkspaceMap) (*ParsedFile, error)

	// SupportedExtensions lists the file extensions (with leading dot) this parser
	// handles; the caller uses this to route files to the right Parser.
	SupportedExtensions() []string

	// Language returns the short language identifier used in File.Language.
	Language() string
}
