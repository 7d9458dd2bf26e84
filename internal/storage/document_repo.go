package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DocumentStore defines persistence operations for documents.
type DocumentStore interface {
	Insert(ctx context.Context, doc *DocumentRecord) error
	GetByID(ctx context.Context, id string) (*DocumentRecord, error)
	List(ctx context.Context) ([]*DocumentRecord, error)
	UpdateStatus(ctx context.Context, id, status string, totalChunks int, errorMessage string) error
	Delete(ctx context.Context, id string) error
}

// DocumentRepo implements DocumentStore backed by SQLite.
type DocumentRepo struct {
	db *sql.DB
}

// NewDocumentRepo creates a document repository.
func NewDocumentRepo(db *DB) *DocumentRepo {
	return &DocumentRepo{db: db.Conn()}
}

func (r *DocumentRepo) Insert(ctx context.Context, doc *DocumentRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (id, filename, file_type, file_size, upload_date, status, total_chunks, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Filename, doc.FileType, doc.FileSize, doc.UploadDate, doc.Status, doc.TotalChunks, doc.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	return nil
}

func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*DocumentRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, filename, file_type, file_size, upload_date, status, total_chunks, error_message
		 FROM documents WHERE id = ?`, id)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepo) List(ctx context.Context) ([]*DocumentRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, filename, file_type, file_size, upload_date, status, total_chunks, error_message
		 FROM documents ORDER BY upload_date DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []*DocumentRecord
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

func (r *DocumentRepo) UpdateStatus(ctx context.Context, id, status string, totalChunks int, errorMessage string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, total_chunks = ?, error_message = ? WHERE id = ?`,
		status, totalChunks, errorMessage, id,
	)
	if err != nil {
		return fmt.Errorf("updating document status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *DocumentRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*DocumentRecord, error) {
	var doc DocumentRecord
	err := row.Scan(&doc.ID, &doc.Filename, &doc.FileType, &doc.FileSize,
		&doc.UploadDate, &doc.Status, &doc.TotalChunks, &doc.ErrorMessage)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}
