package store

// schemaObject is a table or index that must exist before any repository
// call. Objects are created in order, only when sqlite_master has no entry of
// that type and name.
type schemaObject struct {
	kind string
	name string
	ddl  string
}

const (
	TableCards          = "cards"
	TableBlobs          = "blobs"
	TableSessionArchive = "session_archive"
)

var schema = []schemaObject{
	{
		kind: "table",
		name: TableCards,
		// Tags and sessions are JSON arrays; sessions are part of the card
		// record and rewritten with it. archived_max_tempo is the best tempo
		// among sessions moved to session_archive.
		ddl: `
CREATE TABLE cards (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL DEFAULT '',
    comments TEXT NOT NULL DEFAULT '',
    tags TEXT NOT NULL DEFAULT '[]',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    audio_blob_id TEXT NOT NULL DEFAULT '',
    trim_start REAL NOT NULL,
    trim_end REAL NOT NULL,
    bpm_target INTEGER NOT NULL DEFAULT 0,
    mastery_circle_of_fifths TEXT NOT NULL,
    mastery_chromatic TEXT NOT NULL,
    sessions TEXT NOT NULL DEFAULT '[]',
    archived_max_tempo INTEGER NOT NULL DEFAULT 0,

    CHECK (trim_start >= 0 AND trim_end > trim_start)
)`,
	},
	{
		kind: "table",
		name: TableBlobs,
		// Keyed by the owning card's id; a blob cannot exist without its card.
		ddl: `
CREATE TABLE blobs (
    id TEXT PRIMARY KEY,
    data BLOB NOT NULL,

    FOREIGN KEY(id) REFERENCES cards(id) ON DELETE CASCADE
)`,
	},
	{
		kind: "table",
		name: TableSessionArchive,
		ddl: `
CREATE TABLE session_archive (
    card_id TEXT NOT NULL,
    session_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    body TEXT NOT NULL,
    archived_at TEXT NOT NULL,

    PRIMARY KEY (card_id, session_id),
    FOREIGN KEY(card_id) REFERENCES cards(id) ON DELETE CASCADE
)`,
	},
	{
		kind: "index",
		name: "idx_session_archive_card_position",
		ddl:  `CREATE INDEX idx_session_archive_card_position ON session_archive (card_id, position)`,
	},
}
