package database

// schema is applied once per new database file. The FTS5 table has no
// triggers: each writer (Save, Delete, UpdateTitle)
// updates conversation_search itself alongside the base tables.
const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	title TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	private INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS systems (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	content TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	ordinal INTEGER NOT NULL,
	content TEXT NOT NULL,
	provider_id TEXT,
	model_id TEXT,
	temperature REAL,
	top_p REAL,
	max_tokens INTEGER,
	stream INTEGER NOT NULL DEFAULT 0,
	system_index INTEGER,
	response_content TEXT
);

CREATE TABLE IF NOT EXISTS attachments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	location TEXT NOT NULL,
	mime TEXT,
	bytes INTEGER,
	display_name TEXT
);

CREATE TABLE IF NOT EXISTS drafts (
	conversation_id TEXT PRIMARY KEY REFERENCES conversations(id) ON DELETE CASCADE,
	prompt_text TEXT NOT NULL,
	attachments_json TEXT,
	params_json TEXT
);

CREATE VIRTUAL TABLE IF NOT EXISTS conversation_search USING fts5(
	conversation_id UNINDEXED,
	title,
	content
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, ordinal);
CREATE INDEX IF NOT EXISTS idx_systems_conversation ON systems(conversation_id);
CREATE INDEX IF NOT EXISTS idx_attachments_message ON attachments(message_id);
`
