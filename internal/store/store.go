// Package store provides the SQLite-backed system of record for the
// retrieval core: documents, chunks, embeddings, vector collections, and
// RAG model configurations. The uniqueness constraints live here — documents
// keyed on (content_hash, folder), chunks on (document_id, chunk_index) —
// and turn duplicate ingestion and insert races into silent no-ops instead
// of errors or duplicated rows.
//
// Collection document/embedding counts are always recomputed from persisted
// rows with aggregate queries, never maintained as in-memory counters, so
// they stay correct under concurrent processing runs.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Store wraps the SQLite database holding all retrieval-core state.
// It is safe for concurrent use.
type Store struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// Document is one ingested physical file. Immutable once stored:
// re-ingesting byte-identical content is a hash-based no-op.
type Document struct {
	// ID is the row ID.
	ID int64
	// Filename is the original file name.
	Filename string
	// Folder is the folder the file was ingested from — the isolation scope.
	Folder string
	// Content is the full normalized text.
	Content string
	// ContentHash is the hex SHA-256 of Content, the idempotency key.
	ContentHash string
	// CreatedAt is when the document was first stored.
	CreatedAt time.Time
}

// Stats holds the global row counts reported by GET /api/stats.
type Stats struct {
	// DocumentCount is the total number of stored documents.
	DocumentCount int64 `json:"document_count"`
	// EmbeddingCount is the total number of stored embeddings.
	EmbeddingCount int64 `json:"embedding_count"`
	// DegradedEmbeddingCount is the number of embeddings produced by the
	// deterministic fallback rather than a real provider.
	DegradedEmbeddingCount int64 `json:"degraded_embedding_count"`
}

// Open opens (or creates) a Store at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*Store, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *Store) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    filename      TEXT    NOT NULL,
    folder        TEXT    NOT NULL,
    content       TEXT    NOT NULL,
    content_hash  TEXT    NOT NULL,
    created_at    INTEGER NOT NULL,  -- Unix timestamp (seconds)
    UNIQUE (content_hash, folder)
);
CREATE INDEX IF NOT EXISTS idx_documents_folder ON documents (folder);

CREATE TABLE IF NOT EXISTS chunks (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    document_id   INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    content_hash  TEXT    NOT NULL,
    chunk_index   INTEGER NOT NULL,
    content       TEXT    NOT NULL,
    created_at    INTEGER NOT NULL,
    UNIQUE (document_id, chunk_index)
);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks (document_id);

CREATE TABLE IF NOT EXISTS embeddings (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    chunk_id    INTEGER NOT NULL UNIQUE REFERENCES chunks(id) ON DELETE CASCADE,
    embedding   BLOB    NOT NULL,
    degraded    INTEGER NOT NULL DEFAULT 0,
    created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS vectors (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    name        TEXT    NOT NULL UNIQUE,
    folder_name TEXT    NOT NULL,
    description TEXT    NOT NULL DEFAULT '',
    state       TEXT    NOT NULL DEFAULT 'empty'
                CHECK(state IN ('empty','processing','ready','failed')),
    is_active   INTEGER NOT NULL DEFAULT 1,
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS rag_models (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    name          TEXT    NOT NULL UNIQUE,
    vector_id     INTEGER NOT NULL REFERENCES vectors(id) ON DELETE CASCADE,
    system_prompt TEXT    NOT NULL,
    context       TEXT    NOT NULL DEFAULT '',
    is_active     INTEGER NOT NULL DEFAULT 1,
    created_at    INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// InsertDocument stores a document if its content hash is not already
// present in the folder. created reports whether a new row was written;
// false means byte-identical content was ingested before and this call was
// a no-op (the returned ID is the existing row's).
func (s *Store) InsertDocument(ctx context.Context, filename, folder, content, contentHash string) (id int64, created bool, err error) {
	const ins = `
INSERT OR IGNORE INTO documents (filename, folder, content, content_hash, created_at)
VALUES (?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, ins, filename, folder, content, contentHash, time.Now().Unix())
	if err != nil {
		return 0, false, fmt.Errorf("store: insert document: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("store: insert document: %w", err)
	}
	if affected > 0 {
		id, err = res.LastInsertId()
		if err != nil {
			return 0, false, fmt.Errorf("store: insert document: %w", err)
		}
		return id, true, nil
	}

	// Duplicate content — resolve to the winning row.
	const sel = `SELECT id FROM documents WHERE content_hash = ? AND folder = ?`
	if err := s.db.QueryRowContext(ctx, sel, contentHash, folder).Scan(&id); err != nil {
		return 0, false, fmt.Errorf("store: lookup duplicate document: %w", err)
	}
	return id, false, nil
}

// InsertChunks stores the ordered chunk texts for a document, indexed
// contiguously from 0. Chunk identity is scoped to the owning document:
// rows violating the (document_id, chunk_index) uniqueness key are
// silently skipped — a concurrent ingester of the same document already
// won that slot. Documents in different folders holding identical content
// therefore each own their own chunk rows. The returned IDs are the
// persisted rows' IDs in chunk order.
func (s *Store) InsertChunks(ctx context.Context, documentID int64, contentHash string, texts []string) ([]int64, error) {
	const ins = `
INSERT OR IGNORE INTO chunks (document_id, content_hash, chunk_index, content, created_at)
VALUES (?, ?, ?, ?, ?)`

	now := time.Now().Unix()
	for i, text := range texts {
		if _, err := s.db.ExecContext(ctx, ins, documentID, contentHash, i, text, now); err != nil {
			return nil, fmt.Errorf("store: insert chunk %d: %w", i, err)
		}
	}

	const sel = `SELECT id FROM chunks WHERE document_id = ? ORDER BY chunk_index ASC`
	rows, err := s.db.QueryContext(ctx, sel, documentID)
	if err != nil {
		return nil, fmt.Errorf("store: select chunks: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: chunk rows: %w", err)
	}
	return ids, nil
}

// InsertEmbedding stores the vector for a chunk. The chunk_id uniqueness
// constraint makes a concurrent double-insert resolve to one winner; the
// loser is a no-op. The vector must be length rag.Dimensions and
// L2-normalized (the search layer computes cosine similarity as a dot
// product).
func (s *Store) InsertEmbedding(ctx context.Context, chunkID int64, vec []float32, degraded bool) error {
	blob, err := encodeVector(vec)
	if err != nil {
		return err
	}

	const ins = `
INSERT OR IGNORE INTO embeddings (chunk_id, embedding, degraded, created_at)
VALUES (?, ?, ?, ?)`
	deg := 0
	if degraded {
		deg = 1
	}
	if _, err := s.db.ExecContext(ctx, ins, chunkID, blob, deg, time.Now().Unix()); err != nil {
		return fmt.Errorf("store: insert embedding: %w", err)
	}
	return nil
}

// HasDocument reports whether content with the given hash is already stored
// in the folder.
func (s *Store) HasDocument(ctx context.Context, contentHash, folder string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM documents WHERE content_hash = ? AND folder = ?)`
	var exists bool
	if err := s.db.QueryRowContext(ctx, q, contentHash, folder).Scan(&exists); err != nil {
		return false, fmt.Errorf("store: has document: %w", err)
	}
	return exists, nil
}

// CountDocuments returns the number of documents in the folder, computed
// from persisted rows.
func (s *Store) CountDocuments(ctx context.Context, folder string) (int64, error) {
	const q = `SELECT COUNT(*) FROM documents WHERE folder = ?`
	var n int64
	if err := s.db.QueryRowContext(ctx, q, folder).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count documents: %w", err)
	}
	return n, nil
}

// CountEmbeddings returns the number of embeddings whose owning chunk's
// document lies in the folder, computed from persisted rows.
func (s *Store) CountEmbeddings(ctx context.Context, folder string) (int64, error) {
	const q = `
SELECT COUNT(*)
FROM   embeddings e
JOIN   chunks c    ON c.id = e.chunk_id
JOIN   documents d ON d.id = c.document_id
WHERE  d.folder = ?`
	var n int64
	if err := s.db.QueryRowContext(ctx, q, folder).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count embeddings: %w", err)
	}
	return n, nil
}

// GlobalStats returns the store-wide document/embedding counts.
func (s *Store) GlobalStats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&st.DocumentCount); err != nil {
		return Stats{}, fmt.Errorf("store: stats: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&st.EmbeddingCount); err != nil {
		return Stats{}, fmt.Errorf("store: stats: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings WHERE degraded = 1`).Scan(&st.DegradedEmbeddingCount); err != nil {
		return Stats{}, fmt.Errorf("store: stats: %w", err)
	}
	return st, nil
}

// Ping checks database reachability for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Name returns the dependency label used in readiness responses.
func (s *Store) Name() string { return "sqlite" }

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
