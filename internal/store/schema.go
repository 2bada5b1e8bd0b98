package store

// CurrentSchemaVersion is bumped whenever schema changes; migrate compares it
// against the value recorded in the metadata table and applies any pending steps.
const CurrentSchemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	path      TEXT NOT NULL UNIQUE,
	language  TEXT NOT NULL,
	hash      TEXT NOT NULL,
	size      INTEGER NOT NULL DEFAULT 0,
	mtime     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS definitions (
	id                       INTEGER PRIMARY KEY AUTOINCREMENT,
	file_id                  INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	name                     TEXT NOT NULL,
	kind                     TEXT NOT NULL,
	start_line               INTEGER NOT NULL,
	start_column             INTEGER NOT NULL DEFAULT 0,
	end_line                 INTEGER NOT NULL,
	end_column               INTEGER NOT NULL DEFAULT 0,
	declaration_end_line     INTEGER NOT NULL DEFAULT 0,
	declaration_end_column   INTEGER NOT NULL DEFAULT 0,
	exported                 INTEGER NOT NULL DEFAULT 0,
	default_export           INTEGER NOT NULL DEFAULT 0,
	extends                  TEXT NOT NULL DEFAULT '',
	implements               TEXT NOT NULL DEFAULT '' -- JSON array
);
CREATE INDEX IF NOT EXISTS idx_definitions_file ON definitions(file_id);
CREATE INDEX IF NOT EXISTS idx_definitions_file_name_kind ON definitions(file_id, name, kind);
CREATE INDEX IF NOT EXISTS idx_definitions_name ON definitions(name);

CREATE TABLE IF NOT EXISTS "references" (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	from_file_id  INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	to_file_id    INTEGER REFERENCES files(id) ON DELETE SET NULL,
	kind          TEXT NOT NULL,
	source        TEXT NOT NULL,
	external      INTEGER NOT NULL DEFAULT 0,
	type_only     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_references_from ON "references"(from_file_id);
CREATE INDEX IF NOT EXISTS idx_references_to ON "references"(to_file_id);

CREATE TABLE IF NOT EXISTS symbols (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	reference_id   INTEGER REFERENCES "references"(id) ON DELETE CASCADE,
	file_id        INTEGER REFERENCES files(id) ON DELETE CASCADE,
	definition_id  INTEGER REFERENCES definitions(id) ON DELETE SET NULL,
	exported_name  TEXT NOT NULL DEFAULT '',
	local_alias    TEXT NOT NULL DEFAULT '',
	kind           TEXT NOT NULL,
	CHECK ((reference_id IS NULL) <> (file_id IS NULL))
);
CREATE INDEX IF NOT EXISTS idx_symbols_reference ON symbols(reference_id);
CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file_id);
CREATE INDEX IF NOT EXISTS idx_symbols_definition ON symbols(definition_id);

CREATE TABLE IF NOT EXISTS usages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol_id  INTEGER NOT NULL REFERENCES symbols(id) ON DELETE CASCADE,
	line       INTEGER NOT NULL,
	column     INTEGER NOT NULL DEFAULT 0,
	context    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usages_symbol ON usages(symbol_id);
CREATE INDEX IF NOT EXISTS idx_usages_line ON usages(line);

CREATE TABLE IF NOT EXISTS relationship_annotations (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	from_def  INTEGER NOT NULL REFERENCES definitions(id) ON DELETE CASCADE,
	to_def    INTEGER NOT NULL REFERENCES definitions(id) ON DELETE CASCADE,
	type      TEXT NOT NULL,
	semantic  TEXT NOT NULL DEFAULT '',
	UNIQUE(from_def, to_def)
);
CREATE INDEX IF NOT EXISTS idx_relationships_from ON relationship_annotations(from_def);
CREATE INDEX IF NOT EXISTS idx_relationships_to ON relationship_annotations(to_def);

CREATE TABLE IF NOT EXISTS modules (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	parent_id     INTEGER REFERENCES modules(id) ON DELETE CASCADE,
	slug          TEXT NOT NULL,
	full_path     TEXT NOT NULL UNIQUE,
	display_name  TEXT NOT NULL DEFAULT '',
	depth         INTEGER NOT NULL DEFAULT 0,
	is_test       INTEGER NOT NULL DEFAULT 0,
	UNIQUE(parent_id, slug)
);

CREATE TABLE IF NOT EXISTS module_members (
	definition_id  INTEGER PRIMARY KEY REFERENCES definitions(id) ON DELETE CASCADE,
	module_id      INTEGER NOT NULL REFERENCES modules(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_module_members_module ON module_members(module_id);

CREATE TABLE IF NOT EXISTS interactions (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	from_module  INTEGER NOT NULL REFERENCES modules(id) ON DELETE CASCADE,
	to_module    INTEGER NOT NULL REFERENCES modules(id) ON DELETE CASCADE,
	direction    TEXT NOT NULL DEFAULT 'uni',
	weight       INTEGER NOT NULL DEFAULT 0,
	pattern      TEXT NOT NULL DEFAULT '',
	semantic     TEXT NOT NULL DEFAULT '',
	source       TEXT NOT NULL,
	confidence   REAL NOT NULL DEFAULT 1.0,
	symbols      TEXT NOT NULL DEFAULT '', -- JSON array
	UNIQUE(from_module, to_module)
);
CREATE INDEX IF NOT EXISTS idx_interactions_from ON interactions(from_module);
CREATE INDEX IF NOT EXISTS idx_interactions_to ON interactions(to_module);

CREATE TABLE IF NOT EXISTS interaction_definition_links (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	interaction_id  INTEGER NOT NULL REFERENCES interactions(id) ON DELETE CASCADE,
	from_def        INTEGER NOT NULL REFERENCES definitions(id) ON DELETE CASCADE,
	to_def          INTEGER NOT NULL REFERENCES definitions(id) ON DELETE CASCADE,
	source          TEXT NOT NULL,
	UNIQUE(interaction_id, from_def, to_def)
);
CREATE INDEX IF NOT EXISTS idx_link_from_def ON interaction_definition_links(from_def);
CREATE INDEX IF NOT EXISTS idx_link_interaction ON interaction_definition_links(interaction_id);

CREATE TABLE IF NOT EXISTS flows (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	slug                 TEXT NOT NULL UNIQUE,
	display_name         TEXT NOT NULL,
	entry_definition_id  INTEGER REFERENCES definitions(id) ON DELETE SET NULL,
	entry_module_id      INTEGER REFERENCES modules(id) ON DELETE SET NULL,
	stakeholder          TEXT NOT NULL DEFAULT '',
	action               TEXT NOT NULL DEFAULT '',
	target_entity        TEXT NOT NULL DEFAULT '',
	tier                 INTEGER NOT NULL DEFAULT 0,
	description          TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS flow_steps (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	flow_id         INTEGER NOT NULL REFERENCES flows(id) ON DELETE CASCADE,
	step_order      INTEGER NOT NULL,
	kind            TEXT NOT NULL,
	interaction_id  INTEGER REFERENCES interactions(id) ON DELETE CASCADE,
	from_def        INTEGER REFERENCES definitions(id) ON DELETE CASCADE,
	to_def          INTEGER REFERENCES definitions(id) ON DELETE CASCADE,
	subflow_id      INTEGER REFERENCES flows(id) ON DELETE CASCADE,
	source          TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_flow_steps_flow ON flow_steps(flow_id, step_order);

CREATE TABLE IF NOT EXISTS features (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	slug          TEXT NOT NULL UNIQUE,
	display_name  TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS feature_flows (
	feature_id  INTEGER NOT NULL REFERENCES features(id) ON DELETE CASCADE,
	flow_id     INTEGER NOT NULL REFERENCES flows(id) ON DELETE CASCADE,
	PRIMARY KEY (feature_id, flow_id)
);

CREATE TABLE IF NOT EXISTS sync_dirty (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	layer       TEXT NOT NULL,
	entity_id   INTEGER NOT NULL,
	reason      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sync_dirty_layer ON sync_dirty(layer);
`
