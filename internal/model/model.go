// Package model holds the shared data-model types for the code index: the entities
// described in spec.md §3, keyed by dense integer IDs owned by the store. Relationships
// between entities are always expressed as ID references, never by string identity.
package model

import "time"

// DefinitionKind enumerates the declared-definition kinds the store tracks.
type DefinitionKind string

const (
	KindFunction  DefinitionKind = "function"
	KindClass     DefinitionKind = "class"
	KindInterface DefinitionKind = "interface"
	KindType      DefinitionKind = "type"
	KindVariable  DefinitionKind = "variable"
	KindMethod    DefinitionKind = "method"
	KindEnum      DefinitionKind = "enum"
)

// ReferenceKind enumerates the import-like construct kinds a Reference row can be.
type ReferenceKind string

const (
	ReferenceImport    ReferenceKind = "import"
	ReferenceReExport  ReferenceKind = "re-export"
	ReferenceExportAll ReferenceKind = "export-all"
)

// SymbolKind enumerates how a Symbol binds to its owning reference.
type SymbolKind string

const (
	SymbolNamed     SymbolKind = "named"
	SymbolDefault   SymbolKind = "default"
	SymbolNamespace SymbolKind = "namespace"
)

// UsageContext enumerates the syntactic context of one concrete symbol occurrence.
type UsageContext string

const (
	ContextCall   UsageContext = "call"
	ContextNew    UsageContext = "new"
	ContextMember UsageContext = "member"
	ContextType   UsageContext = "type"
)

// RelationshipType enumerates the narrowing relationship kinds stored on an annotation.
// The upgrade policy in spec.md §4.1/§9 requires extends/implements to beat uses on
// upsert; never reverse this silently.
type RelationshipType string

const (
	RelationUses       RelationshipType = "uses"
	RelationExtends    RelationshipType = "extends"
	RelationImplements RelationshipType = "implements"
)

// relationshipStrength ranks RelationshipType so upsert can keep the stronger value.
var relationshipStrength = map[RelationshipType]int{
	RelationUses:       0,
	RelationExtends:    1,
	RelationImplements: 1,
}

// StrongerRelationship returns whichever of existing, incoming is not weaker, per the
// upgrade policy. extends and implements are considered equally strong and neither
// displaces the other; ties prefer existing so repeated narration doesn't flap.
func StrongerRelationship(existing, incoming RelationshipType) RelationshipType {
	if relationshipStrength[incoming] > relationshipStrength[existing] {
		return incoming
	}
	return existing
}

// PendingAnnotation is the placeholder semantic string inheritance derivation writes
// until the LLM orchestration boundary narrates the edge.
const PendingAnnotation = "PENDING_LLM_ANNOTATION"

// InteractionDirection enumerates whether an Interaction is one-way or reciprocal.
type InteractionDirection string

const (
	DirectionUni InteractionDirection = "uni"
	DirectionBi  InteractionDirection = "bi"
)

// InteractionPattern classifies the character of a module-to-module edge. The spec
// leaves classification to the enrichment pipeline; the core only stores it.
type InteractionPattern string

const (
	PatternBusiness     InteractionPattern = "business"
	PatternUtility       InteractionPattern = "utility"
	PatternTestInternal InteractionPattern = "test-internal"
)

// InteractionSource enumerates where an Interaction's existence was established.
type InteractionSource string

const (
	SourceAST             InteractionSource = "ast"
	SourceLLMInferred     InteractionSource = "llm-inferred"
	SourceContractMatched InteractionSource = "contract-matched"
)

// IsBridgeable reports whether the tracer may use interactions with this source to
// cross a gap the call graph itself does not express.
func (s InteractionSource) IsBridgeable() bool {
	return s == SourceLLMInferred || s == SourceContractMatched
}

// ActionType enumerates the mutation/view actions a flow entry member can perform.
type ActionType string

const (
	ActionCreate ActionType = "create"
	ActionUpdate ActionType = "update"
	ActionDelete ActionType = "delete"
	ActionView   ActionType = "view"
)

// IsMutation reports whether the action follows the trace-from callee rule (§4.4 step 1)
// rather than starting the trace at the entry member itself.
func (a ActionType) IsMutation() bool {
	return a == ActionCreate || a == ActionUpdate || a == ActionDelete
}

// DirtyLayer enumerates the enrichment strata tracked by sync_dirty, in the bottom-up
// propagation order given in spec.md §4.2.
type DirtyLayer string

const (
	LayerMetadata      DirtyLayer = "metadata"
	LayerRelationships DirtyLayer = "relationships"
	LayerModules       DirtyLayer = "modules"
	LayerContracts     DirtyLayer = "contracts"
	LayerInteractions  DirtyLayer = "interactions"
	LayerFlows         DirtyLayer = "flows"
	LayerFeatures      DirtyLayer = "features"
)

// DirtyReason enumerates why an entity id landed in sync_dirty.
type DirtyReason string

const (
	ReasonAdded       DirtyReason = "added"
	ReasonModified    DirtyReason = "modified"
	ReasonRemoved     DirtyReason = "removed"
	ReasonParentDirty DirtyReason = "parent_dirty"
)

// File is a source file tracked by the index.
type File struct {
	ID       int64
	Path     string // workspace-relative
	Language string
	Hash     string // 128+ bit non-cryptographic content hash, hex-encoded
	Size     int64
	MTime    time.Time
}

// Position is a 0-based row/column, matching the parser contract in spec.md §6. The
// store converts to 1-based lines when persisting.
type Position struct {
	Row    int
	Column int
}

// Definition is a named declaration in source.
type Definition struct {
	ID                     int64
	FileID                 int64
	Name                   string
	Kind                   DefinitionKind
	StartLine              int // 1-based
	StartColumn            int
	EndLine                int
	EndColumn              int
	DeclarationEndLine     int // 0 if absent
	DeclarationEndColumn   int
	Exported               bool
	DefaultExport          bool
	Extends                string   // single parent name, empty if none
	Implements             []string // interface/contract names
}

// Reference is an import-like construct connecting two files.
type Reference struct {
	ID         int64
	FromFileID int64
	ToFileID   *int64 // nil: external or unresolved
	Kind       ReferenceKind
	Source     string // the literal import source string
	External   bool
	TypeOnly   bool
}

// Symbol is the named thing crossing a reference, or used internally within a file.
// Exactly one of ReferenceID/FileID is set, matching the store's insert_symbol contract.
type Symbol struct {
	ID             int64
	ReferenceID    *int64
	FileID         *int64 // set when this is an internal usage, not an import
	DefinitionID   *int64 // resolved target, nil if unresolved
	ExportedName   string
	LocalAlias     string
	Kind           SymbolKind
}

// Usage is one concrete occurrence of a symbol.
type Usage struct {
	ID       int64
	SymbolID int64
	Line     int // 1-based
	Column   int
	Context  UsageContext
}

// RelationshipAnnotation narrates a definition-to-definition edge.
type RelationshipAnnotation struct {
	ID       int64
	FromDef  int64
	ToDef    int64
	Type     RelationshipType
	Semantic string
}

// Module is a node in the hierarchical grouping tree imposed over definitions.
type Module struct {
	ID          int64
	ParentID    *int64 // nil for the root
	Slug        string
	FullPath    string // parent.FullPath + "." + Slug
	DisplayName string
	Depth       int
	IsTest      bool
}

// ModuleMember assigns a definition to exactly one module.
type ModuleMember struct {
	DefinitionID int64
	ModuleID     int64
}

// Interaction is one row per ordered module pair, re-derived after sync.
type Interaction struct {
	ID         int64
	FromModule int64
	ToModule   int64
	Direction  InteractionDirection
	Weight     int
	Pattern    InteractionPattern
	Semantic   string
	Source     InteractionSource
	Confidence float64
	Symbols    []string // compact symbol-name list for display
}

// InteractionDefinitionLink narrows a module-pair interaction to specific endpoints.
type InteractionDefinitionLink struct {
	ID            int64
	InteractionID int64
	FromDef       int64
	ToDef         int64
	Source        InteractionSource
}

// FlowTier distinguishes atomic (single-interaction) from composite (traced) flows.
type FlowTier int

const (
	TierAtomic    FlowTier = 0
	TierComposite FlowTier = 1
)

// Flow is an ordered trace of interactions, optionally originating at an entry point.
type Flow struct {
	ID                 int64
	Slug               string
	DisplayName        string
	EntryDefinitionID  *int64
	EntryModuleID      *int64
	Stakeholder        string
	Action             ActionType
	TargetEntity       string
	Tier               FlowTier
	Description        string
}

// FlowStepKind distinguishes which of the three step tables a flow step row belongs to.
type FlowStepKind string

const (
	StepInteraction FlowStepKind = "interaction"
	StepDefinition  FlowStepKind = "definition"
	StepSubflow     FlowStepKind = "subflow"
)

// FlowStep is one ordered step of a flow. Exactly one of InteractionID, (FromDef,ToDef),
// or SubflowID is populated depending on Kind.
type FlowStep struct {
	ID            int64
	FlowID        int64
	Order         int
	Kind          FlowStepKind
	InteractionID *int64
	FromDef       *int64
	ToDef         *int64
	SubflowID     *int64
	Source        InteractionSource // populated for inferred/bridged steps
}

// Feature is a named grouping of flows.
type Feature struct {
	ID          int64
	Slug        string
	DisplayName string
	Description string
}

// SyncDirtyEntry is a hint row enrichment consumes and the next sync clears.
type SyncDirtyEntry struct {
	ID       int64
	Layer    DirtyLayer
	EntityID int64
	Reason   DirtyReason
}
