package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a vector or RAG model lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// VectorState is the lifecycle state of a vector collection.
// Transitions: empty → processing → {ready | failed}, and
// {ready, failed} → processing (reprocessing is always allowed).
type VectorState string

const (
	// VectorStateEmpty is a freshly created collection with no processing run yet.
	VectorStateEmpty VectorState = "empty"
	// VectorStateProcessing means a background ingestion run is in flight.
	VectorStateProcessing VectorState = "processing"
	// VectorStateReady means at least one document produced at least one embedding.
	VectorStateReady VectorState = "ready"
	// VectorStateFailed means a run completed with zero successful documents.
	VectorStateFailed VectorState = "failed"
)

// Vector is a named, folder-scoped collection of documents, chunks, and
// embeddings. DocumentCount and EmbeddingCount are derived from persisted
// rows at read time; they are never authoritative stored state.
type Vector struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	FolderName  string      `json:"folder_name"`
	Description string      `json:"description"`
	State       VectorState `json:"state"`
	IsActive    bool        `json:"is_active"`

	// DocumentCount is the derived number of documents in FolderName.
	DocumentCount int64 `json:"document_count"`
	// EmbeddingCount is the derived number of embeddings in FolderName.
	EmbeddingCount int64 `json:"embedding_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RagModel is a named retrieval configuration binding exactly one vector
// collection plus a system prompt and optional context string. Queries
// issued as a RagModel are scoped to the bound vector's folder.
type RagModel struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	VectorID     int64     `json:"vector_id"`
	SystemPrompt string    `json:"system_prompt"`
	Context      string    `json:"context"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreateVector stores a new collection in the empty state.
func (s *Store) CreateVector(ctx context.Context, name, folderName, description string) (Vector, error) {
	now := time.Now().Unix()
	const ins = `
INSERT INTO vectors (name, folder_name, description, state, created_at, updated_at)
VALUES (?, ?, ?, 'empty', ?, ?)`
	res, err := s.db.ExecContext(ctx, ins, name, folderName, description, now, now)
	if err != nil {
		return Vector{}, fmt.Errorf("store: create vector: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Vector{}, fmt.Errorf("store: create vector: %w", err)
	}
	return s.GetVector(ctx, id)
}

// GetVector returns the collection with derived counts attached.
func (s *Store) GetVector(ctx context.Context, id int64) (Vector, error) {
	const q = `
SELECT id, name, folder_name, description, state, is_active, created_at, updated_at
FROM   vectors WHERE id = ?`
	v, err := s.scanVector(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return Vector{}, err
	}
	return s.attachCounts(ctx, v)
}

// ListVectors returns all collections, newest first, with derived counts.
func (s *Store) ListVectors(ctx context.Context) ([]Vector, error) {
	const q = `
SELECT id, name, folder_name, description, state, is_active, created_at, updated_at
FROM   vectors ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list vectors: %w", err)
	}
	defer rows.Close()

	var out []Vector
	for rows.Next() {
		v, err := s.scanVector(rows)
		if err != nil {
			return nil, err
		}
		v, err = s.attachCounts(ctx, v)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list vectors: %w", err)
	}
	return out, nil
}

// DeleteVector removes the collection. Dependent RAG models are removed by
// the foreign-key cascade. Documents are untouched: folder membership is an
// association, not ownership.
func (s *Store) DeleteVector(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM vectors WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete vector: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete vector: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetVectorState transitions the collection's lifecycle state.
func (s *Store) SetVectorState(ctx context.Context, id int64, state VectorState) error {
	const q = `UPDATE vectors SET state = ?, updated_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, q, string(state), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("store: set vector state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: set vector state: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// TryClaimProcessing atomically transitions the collection into the
// processing state. It returns false when the collection is already
// processing — a second trigger for an in-flight run is rejected, not
// queued. Claims from empty, ready, and failed all succeed (reprocessing is
// always allowed).
func (s *Store) TryClaimProcessing(ctx context.Context, id int64) (bool, error) {
	const q = `
UPDATE vectors SET state = 'processing', updated_at = ?
WHERE  id = ? AND state != 'processing'`
	res, err := s.db.ExecContext(ctx, q, time.Now().Unix(), id)
	if err != nil {
		return false, fmt.Errorf("store: claim processing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: claim processing: %w", err)
	}
	return n > 0, nil
}

// FailOrphanedProcessing marks every collection stuck in the processing
// state as failed and returns how many were reset. A processing row with no
// worker behind it — the previous process crashed or shut down with jobs
// still queued — would otherwise reject every future trigger.
func (s *Store) FailOrphanedProcessing(ctx context.Context) (int64, error) {
	const q = `UPDATE vectors SET state = 'failed', updated_at = ? WHERE state = 'processing'`
	res, err := s.db.ExecContext(ctx, q, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("store: fail orphaned processing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: fail orphaned processing: %w", err)
	}
	return n, nil
}

// CreateRagModel stores a new retrieval configuration bound to an existing
// vector collection.
func (s *Store) CreateRagModel(ctx context.Context, name string, vectorID int64, systemPrompt, context string) (RagModel, error) {
	now := time.Now().Unix()
	const ins = `
INSERT INTO rag_models (name, vector_id, system_prompt, context, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, ins, name, vectorID, systemPrompt, context, now, now)
	if err != nil {
		return RagModel{}, fmt.Errorf("store: create rag model: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return RagModel{}, fmt.Errorf("store: create rag model: %w", err)
	}
	return s.getRagModel(ctx, `id = ?`, id)
}

// GetRagModel returns the active RAG model with the given ID.
// Inactive models are invisible to the query path.
func (s *Store) GetRagModel(ctx context.Context, id int64) (RagModel, error) {
	return s.getRagModel(ctx, `id = ? AND is_active = 1`, id)
}

// GetRagModelByName returns the active RAG model with the given name.
func (s *Store) GetRagModelByName(ctx context.Context, name string) (RagModel, error) {
	return s.getRagModel(ctx, `name = ? AND is_active = 1`, name)
}

// ListRagModels returns all RAG models, newest first, active or not.
func (s *Store) ListRagModels(ctx context.Context) ([]RagModel, error) {
	const q = `
SELECT id, name, vector_id, system_prompt, context, is_active, created_at, updated_at
FROM   rag_models ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list rag models: %w", err)
	}
	defer rows.Close()

	var out []RagModel
	for rows.Next() {
		m, err := scanRagModel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list rag models: %w", err)
	}
	return out, nil
}

// UpdateRagModel changes the prompt, context, and active flag of a RAG
// model. The vector binding is immutable; updates never re-scope queries
// that were already answered.
func (s *Store) UpdateRagModel(ctx context.Context, id int64, systemPrompt, context string, isActive bool) (RagModel, error) {
	active := 0
	if isActive {
		active = 1
	}
	const q = `
UPDATE rag_models SET system_prompt = ?, context = ?, is_active = ?, updated_at = ?
WHERE  id = ?`
	res, err := s.db.ExecContext(ctx, q, systemPrompt, context, active, time.Now().Unix(), id)
	if err != nil {
		return RagModel{}, fmt.Errorf("store: update rag model: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return RagModel{}, fmt.Errorf("store: update rag model: %w", err)
	}
	if n == 0 {
		return RagModel{}, ErrNotFound
	}
	return s.getRagModel(ctx, `id = ?`, id)
}

// rowScanner abstracts *sql.Row and *sql.Rows for the scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanVector reads one vectors row (without derived counts).
func (s *Store) scanVector(r rowScanner) (Vector, error) {
	var v Vector
	var state string
	var active int
	var created, updated int64
	err := r.Scan(&v.ID, &v.Name, &v.FolderName, &v.Description, &state, &active, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Vector{}, ErrNotFound
	}
	if err != nil {
		return Vector{}, fmt.Errorf("store: scan vector: %w", err)
	}
	v.State = VectorState(state)
	v.IsActive = active == 1
	v.CreatedAt = time.Unix(created, 0)
	v.UpdatedAt = time.Unix(updated, 0)
	return v, nil
}

// attachCounts fills the derived document/embedding counts for v's folder.
func (s *Store) attachCounts(ctx context.Context, v Vector) (Vector, error) {
	var err error
	if v.DocumentCount, err = s.CountDocuments(ctx, v.FolderName); err != nil {
		return Vector{}, err
	}
	if v.EmbeddingCount, err = s.CountEmbeddings(ctx, v.FolderName); err != nil {
		return Vector{}, err
	}
	return v, nil
}

// getRagModel fetches a single rag_models row matching the where clause.
func (s *Store) getRagModel(ctx context.Context, where string, arg any) (RagModel, error) {
	q := `
SELECT id, name, vector_id, system_prompt, context, is_active, created_at, updated_at
FROM   rag_models WHERE ` + where
	m, err := scanRagModel(s.db.QueryRowContext(ctx, q, arg))
	if err != nil {
		return RagModel{}, err
	}
	return m, nil
}

// scanRagModel reads one rag_models row.
func scanRagModel(r rowScanner) (RagModel, error) {
	var m RagModel
	var active int
	var created, updated int64
	err := r.Scan(&m.ID, &m.Name, &m.VectorID, &m.SystemPrompt, &m.Context, &active, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return RagModel{}, ErrNotFound
	}
	if err != nil {
		return RagModel{}, fmt.Errorf("store: scan rag model: %w", err)
	}
	m.IsActive = active == 1
	m.CreatedAt = time.Unix(created, 0)
	m.UpdatedAt = time.Unix(updated, 0)
	return m, nil
}
