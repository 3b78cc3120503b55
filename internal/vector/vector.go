// Package vector is the workspace-scoped embedding store for SOAP-note
// and client-profile semantic search (spec.md §4.4). Similarity is
// computed in Go rather than pushed into a pgvector operator: lib/pq
// has no native vector type, so embeddings are stored as plain
// float8[] columns and compared with an ordinary Go cosine-similarity
// scan over the workspace-scoped row set.
package vector

import (
	"context"
	"database/sql"
	"sort"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/pazpaz/backend/internal/apperr"
	"github.com/pazpaz/backend/internal/models"
)

type Store struct{ db *sql.DB }

func New(db *sql.DB) *Store { return &Store{db: db} }

func validateFieldName(fieldName string, valid map[string]bool) error {
	if !valid[fieldName] {
		return apperr.New(apperr.KindUnprocessableEntity, "invalid field_name: "+fieldName)
	}
	return nil
}

func validateDimension(embedding []float32) error {
	if len(embedding) != models.EmbeddingDimension {
		return apperr.New(apperr.KindInvalidDimension, "embedding must have 1536 dimensions")
	}
	return nil
}

func validateSearchParams(queryEmbedding []float32, limit int, minSimilarity float64) error {
	if err := validateDimension(queryEmbedding); err != nil {
		return err
	}
	if limit < 1 || limit > 100 {
		return apperr.New(apperr.KindUnprocessableEntity, "limit must be between 1 and 100")
	}
	if minSimilarity < 0.0 || minSimilarity > 1.0 {
		return apperr.New(apperr.KindUnprocessableEntity, "min_similarity must be between 0.0 and 1.0")
	}
	return nil
}

// InsertSessionEmbedding stores one SOAP-field embedding.
func (s *Store) InsertSessionEmbedding(ctx context.Context, workspaceID, sessionID uuid.UUID, fieldName string, embedding []float32, sessionDate interface{}) (models.SessionVector, error) {
	var v models.SessionVector
	if err := validateFieldName(fieldName, models.SessionVectorFields); err != nil {
		return v, err
	}
	if err := validateDimension(embedding); err != nil {
		return v, err
	}
	v = models.SessionVector{
		ID: uuid.New(), WorkspaceID: workspaceID, SessionID: sessionID,
		FieldName: fieldName, Embedding: embedding,
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO session_vectors (id, workspace_id, session_id, field_name, embedding, session_date)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING session_date, created_at`,
		v.ID, v.WorkspaceID, v.SessionID, v.FieldName, pq.Array(toFloat64(embedding)), sessionDate,
	).Scan(&v.SessionDate, &v.CreatedAt)
	return v, err
}

// InsertSessionEmbeddingsBatch inserts every field's embedding for a
// session in one transaction, matching the batch-over-single-insert
// efficiency the original vector store exposes as a distinct operation.
func (s *Store) InsertSessionEmbeddingsBatch(ctx context.Context, workspaceID, sessionID uuid.UUID, embeddings map[string][]float32, sessionDate interface{}) ([]models.SessionVector, error) {
	for fieldName, emb := range embeddings {
		if err := validateFieldName(fieldName, models.SessionVectorFields); err != nil {
			return nil, err
		}
		if err := validateDimension(emb); err != nil {
			return nil, err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var out []models.SessionVector
	for fieldName, emb := range embeddings {
		v := models.SessionVector{ID: uuid.New(), WorkspaceID: workspaceID, SessionID: sessionID, FieldName: fieldName, Embedding: emb}
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO session_vectors (id, workspace_id, session_id, field_name, embedding, session_date)
			VALUES ($1,$2,$3,$4,$5,$6)
			RETURNING session_date, created_at`,
			v.ID, v.WorkspaceID, v.SessionID, v.FieldName, pq.Array(toFloat64(emb)), sessionDate,
		).Scan(&v.SessionDate, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

type SessionMatch struct {
	Vector     models.SessionVector
	Similarity float64
}

// SearchSimilarSessions scans every workspace-scoped session vector
// (optionally narrowed to one field), computes cosine similarity
// against queryEmbedding in Go, and returns the top matches at or above
// min_similarity, ordered by descending similarity.
func (s *Store) SearchSimilarSessions(ctx context.Context, workspaceID uuid.UUID, queryEmbedding []float32, limit int, fieldName string, minSimilarity float64) ([]SessionMatch, error) {
	if err := validateSearchParams(queryEmbedding, limit, minSimilarity); err != nil {
		return nil, err
	}
	if fieldName != "" {
		if err := validateFieldName(fieldName, models.SessionVectorFields); err != nil {
			return nil, err
		}
	}

	query := `SELECT id, workspace_id, session_id, field_name, embedding, session_date, created_at
		FROM session_vectors WHERE workspace_id = $1`
	args := []any{workspaceID}
	if fieldName != "" {
		query += ` AND field_name = $2`
		args = append(args, fieldName)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRetrievalFailed, "similarity search failed", err)
	}
	defer rows.Close()

	var matches []SessionMatch
	for rows.Next() {
		var v models.SessionVector
		var emb pq.Float64Array
		if err := rows.Scan(&v.ID, &v.WorkspaceID, &v.SessionID, &v.FieldName, &emb, &v.SessionDate, &v.CreatedAt); err != nil {
			return nil, err
		}
		v.Embedding = toFloat32(emb)
		sim := cosineSimilarity(queryEmbedding, v.Embedding)
		if sim >= minSimilarity {
			matches = append(matches, SessionMatch{Vector: v, Similarity: sim})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// SearchSimilarSessionsForClient is SearchSimilarSessions narrowed to
// one client's sessions, for spec.md §4.5 step 5's client_id-scoped
// retrieval branch. session_vectors has no client_id column of its
// own, so the scope is applied via a join against sessions rather than
// duplicating the client_id onto every vector row.
func (s *Store) SearchSimilarSessionsForClient(ctx context.Context, workspaceID, clientID uuid.UUID, queryEmbedding []float32, limit int, minSimilarity float64) ([]SessionMatch, error) {
	if err := validateSearchParams(queryEmbedding, limit, minSimilarity); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sv.id, sv.workspace_id, sv.session_id, sv.field_name, sv.embedding, sv.session_date, sv.created_at
		FROM session_vectors sv
		JOIN sessions s ON s.id = sv.session_id
		WHERE sv.workspace_id = $1 AND s.client_id = $2 AND s.deleted_at IS NULL`,
		workspaceID, clientID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRetrievalFailed, "client-scoped similarity search failed", err)
	}
	defer rows.Close()

	var matches []SessionMatch
	for rows.Next() {
		var v models.SessionVector
		var emb pq.Float64Array
		if err := rows.Scan(&v.ID, &v.WorkspaceID, &v.SessionID, &v.FieldName, &emb, &v.SessionDate, &v.CreatedAt); err != nil {
			return nil, err
		}
		v.Embedding = toFloat32(emb)
		sim := cosineSimilarity(queryEmbedding, v.Embedding)
		if sim >= minSimilarity {
			matches = append(matches, SessionMatch{Vector: v, Similarity: sim})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *Store) GetSessionEmbeddings(ctx context.Context, workspaceID, sessionID uuid.UUID) ([]models.SessionVector, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, session_id, field_name, embedding, session_date, created_at
		FROM session_vectors WHERE workspace_id = $1 AND session_id = $2`, workspaceID, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.SessionVector
	for rows.Next() {
		var v models.SessionVector
		var emb pq.Float64Array
		if err := rows.Scan(&v.ID, &v.WorkspaceID, &v.SessionID, &v.FieldName, &emb, &v.SessionDate, &v.CreatedAt); err != nil {
			return nil, err
		}
		v.Embedding = toFloat32(emb)
		out = append(out, v)
	}
	return out, rows.Err()
}

// DeleteSessionEmbeddings explicitly clears a session's vectors; normal
// session deletion relies on the foreign-key cascade instead.
func (s *Store) DeleteSessionEmbeddings(ctx context.Context, workspaceID, sessionID uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM session_vectors WHERE workspace_id = $1 AND session_id = $2`, workspaceID, sessionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) CountWorkspaceEmbeddings(ctx context.Context, workspaceID uuid.UUID) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM session_vectors WHERE workspace_id = $1`, workspaceID).Scan(&n)
	return n, err
}

// --- Client vectors ---

func (s *Store) InsertClientEmbedding(ctx context.Context, workspaceID, clientID uuid.UUID, fieldName string, embedding []float32) (models.ClientVector, error) {
	var v models.ClientVector
	if err := validateFieldName(fieldName, models.ClientVectorFields); err != nil {
		return v, err
	}
	if err := validateDimension(embedding); err != nil {
		return v, err
	}
	v = models.ClientVector{ID: uuid.New(), WorkspaceID: workspaceID, ClientID: clientID, FieldName: fieldName, Embedding: embedding}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO client_vectors (id, workspace_id, client_id, field_name, embedding)
		VALUES ($1,$2,$3,$4,$5) RETURNING created_at`,
		v.ID, v.WorkspaceID, v.ClientID, v.FieldName, pq.Array(toFloat64(embedding)),
	).Scan(&v.CreatedAt)
	return v, err
}

type ClientMatch struct {
	Vector     models.ClientVector
	Similarity float64
}

func (s *Store) SearchSimilarClients(ctx context.Context, workspaceID uuid.UUID, queryEmbedding []float32, limit int, fieldName string, minSimilarity float64) ([]ClientMatch, error) {
	if err := validateSearchParams(queryEmbedding, limit, minSimilarity); err != nil {
		return nil, err
	}
	if fieldName != "" {
		if err := validateFieldName(fieldName, models.ClientVectorFields); err != nil {
			return nil, err
		}
	}

	query := `SELECT id, workspace_id, client_id, field_name, embedding, created_at
		FROM client_vectors WHERE workspace_id = $1`
	args := []any{workspaceID}
	if fieldName != "" {
		query += ` AND field_name = $2`
		args = append(args, fieldName)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRetrievalFailed, "client similarity search failed", err)
	}
	defer rows.Close()

	var matches []ClientMatch
	for rows.Next() {
		var v models.ClientVector
		var emb pq.Float64Array
		if err := rows.Scan(&v.ID, &v.WorkspaceID, &v.ClientID, &v.FieldName, &emb, &v.CreatedAt); err != nil {
			return nil, err
		}
		v.Embedding = toFloat32(emb)
		sim := cosineSimilarity(queryEmbedding, v.Embedding)
		if sim >= minSimilarity {
			matches = append(matches, ClientMatch{Vector: v, Similarity: sim})
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, rows.Err()
}

// SearchSimilarClientsForOne narrows SearchSimilarClients to a single
// client's own profile vectors, for spec.md §4.5 step 5's client_id-
// scoped retrieval branch.
func (s *Store) SearchSimilarClientsForOne(ctx context.Context, workspaceID, clientID uuid.UUID, queryEmbedding []float32, limit int, minSimilarity float64) ([]ClientMatch, error) {
	if err := validateSearchParams(queryEmbedding, limit, minSimilarity); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, client_id, field_name, embedding, created_at
		FROM client_vectors WHERE workspace_id = $1 AND client_id = $2`,
		workspaceID, clientID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRetrievalFailed, "client-scoped profile search failed", err)
	}
	defer rows.Close()

	var matches []ClientMatch
	for rows.Next() {
		var v models.ClientVector
		var emb pq.Float64Array
		if err := rows.Scan(&v.ID, &v.WorkspaceID, &v.ClientID, &v.FieldName, &emb, &v.CreatedAt); err != nil {
			return nil, err
		}
		v.Embedding = toFloat32(emb)
		sim := cosineSimilarity(queryEmbedding, v.Embedding)
		if sim >= minSimilarity {
			matches = append(matches, ClientMatch{Vector: v, Similarity: sim})
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, rows.Err()
}

func (s *Store) DeleteClientEmbeddings(ctx context.Context, workspaceID, clientID uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM client_vectors WHERE workspace_id = $1 AND client_id = $2`, workspaceID, clientID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func toFloat32(a pq.Float64Array) []float32 {
	out := make([]float32, len(a))
	for i, f := range a {
		out[i] = float32(f)
	}
	return out
}

func toFloat64(a []float32) []float64 {
	out := make([]float64, len(a))
	for i, f := range a {
		out[i] = float64(f)
	}
	return out
}
