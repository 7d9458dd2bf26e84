package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ChunkStore defines persistence operations for chunks.
type ChunkStore interface {
	InsertBatch(ctx context.Context, chunks []*ChunkRecord) error
	GetByVectorID(ctx context.Context, vectorID int64) (*ChunkRecord, error)
	ListByDocument(ctx context.Context, docID string) ([]*ChunkRecord, error)
	ListAll(ctx context.Context) ([]*ChunkRecord, error)
	UpdateVectorIDs(ctx context.Context, assignments map[string]int64) error
	DeleteByDocument(ctx context.Context, docID string) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// ChunkRepo implements ChunkStore backed by SQLite.
type ChunkRepo struct {
	db *sql.DB
}

// NewChunkRepo creates a chunk repository.
func NewChunkRepo(db *DB) *ChunkRepo {
	return &ChunkRepo{db: db.Conn()}
}

// InsertBatch inserts all chunks in a single transaction so a document's
// chunks are either all stored or none are.
func (r *ChunkRepo) InsertBatch(ctx context.Context, chunks []*ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, doc_id, chunk_index, text, start_char, end_char, vector_id, page)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocID, c.ChunkIndex, c.Text,
			c.StartOffset, c.EndOffset, c.VectorID, c.Page); err != nil {
			return fmt.Errorf("inserting chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing chunks: %w", err)
	}
	return nil
}

// GetByVectorID looks up the chunk holding the given vector index ID.
// Returns ErrNotFound for orphaned vectors.
func (r *ChunkRepo) GetByVectorID(ctx context.Context, vectorID int64) (*ChunkRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, doc_id, chunk_index, text, start_char, end_char, vector_id, page, created_at
		 FROM chunks WHERE vector_id = ?`, vectorID)

	c, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting chunk by vector id: %w", err)
	}
	return c, nil
}

func (r *ChunkRepo) ListByDocument(ctx context.Context, docID string) ([]*ChunkRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, doc_id, chunk_index, text, start_char, end_char, vector_id, page, created_at
		 FROM chunks WHERE doc_id = ? ORDER BY chunk_index`, docID)
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}
	defer rows.Close()
	return collectChunks(rows)
}

// ListAll returns every chunk ordered by document and position. Used when
// rebuilding the vector index from scratch.
func (r *ChunkRepo) ListAll(ctx context.Context) ([]*ChunkRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, doc_id, chunk_index, text, start_char, end_char, vector_id, page, created_at
		 FROM chunks ORDER BY doc_id, chunk_index`)
	if err != nil {
		return nil, fmt.Errorf("listing all chunks: %w", err)
	}
	defer rows.Close()
	return collectChunks(rows)
}

// UpdateVectorIDs reassigns vector index IDs after a rebuild. The map keys
// are chunk IDs and the values are their new vector IDs.
func (r *ChunkRepo) UpdateVectorIDs(ctx context.Context, assignments map[string]int64) error {
	if len(assignments) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE chunks SET vector_id = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("preparing update: %w", err)
	}
	defer stmt.Close()

	for chunkID, vectorID := range assignments {
		if _, err := stmt.ExecContext(ctx, vectorID, chunkID); err != nil {
			return fmt.Errorf("updating vector id for chunk %s: %w", chunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing vector id updates: %w", err)
	}
	return nil
}

func (r *ChunkRepo) DeleteByDocument(ctx context.Context, docID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chunks WHERE doc_id = ?`, docID)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking delete result: %w", err)
	}
	return n, nil
}

func (r *ChunkRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

func scanChunk(row rowScanner) (*ChunkRecord, error) {
	var c ChunkRecord
	err := row.Scan(&c.ID, &c.DocID, &c.ChunkIndex, &c.Text,
		&c.StartOffset, &c.EndOffset, &c.VectorID, &c.Page, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func collectChunks(rows *sql.Rows) ([]*ChunkRecord, error) {
	var chunks []*ChunkRecord
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}
