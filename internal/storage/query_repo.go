package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// QueryStore defines persistence operations for query history.
type QueryStore interface {
	Insert(ctx context.Context, q *QueryRecord) error
	ListRecent(ctx context.Context, limit int) ([]*QueryRecord, error)
	Count(ctx context.Context) (int64, error)
}

// QueryRepo implements QueryStore backed by SQLite.
type QueryRepo struct {
	db *sql.DB
}

// NewQueryRepo creates a query history repository.
func NewQueryRepo(db *DB) *QueryRepo {
	return &QueryRepo{db: db.Conn()}
}

func (r *QueryRepo) Insert(ctx context.Context, q *QueryRecord) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO queries (query_text, response, duration_ms, top_k, retrieved)
		 VALUES (?, ?, ?, ?, ?)`,
		q.QueryText, q.Response, q.DurationMs, q.TopK, q.Retrieved,
	)
	if err != nil {
		return fmt.Errorf("inserting query: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading query id: %w", err)
	}
	q.ID = id
	return nil
}

func (r *QueryRepo) ListRecent(ctx context.Context, limit int) ([]*QueryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, query_text, response, created_at, duration_ms, top_k, retrieved
		 FROM queries ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing queries: %w", err)
	}
	defer rows.Close()

	var queries []*QueryRecord
	for rows.Next() {
		var q QueryRecord
		if err := rows.Scan(&q.ID, &q.QueryText, &q.Response, &q.CreatedAt,
			&q.DurationMs, &q.TopK, &q.Retrieved); err != nil {
			return nil, fmt.Errorf("scanning query: %w", err)
		}
		queries = append(queries, &q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating queries: %w", err)
	}
	return queries, nil
}

func (r *QueryRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting queries: %w", err)
	}
	return n, nil
}
