package storage

import (
	"context"
	"errors"
	"fmt"

	"dossier/internal/models"
	"dossier/internal/util"

	"github.com/jackc/pgx/v5"
)

type DocumentRepo struct {
	db *DB
}

func NewDocumentRepo(db *DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) Upsert(ctx context.Context, d models.Document) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO documents (document_id, filename, format, status, error_message, page_count, chunk_count)
VALUES ($1, $2, $3, $4, NULLIF($5,''), $6, $7)
ON CONFLICT (document_id)
DO UPDATE SET
  filename = EXCLUDED.filename,
  format = EXCLUDED.format,
  status = EXCLUDED.status,
  error_message = EXCLUDED.error_message,
  page_count = COALESCE(EXCLUDED.page_count, documents.page_count),
  chunk_count = EXCLUDED.chunk_count`,
		d.DocumentID, d.Filename, d.Format, string(d.Status), d.ErrorMessage, d.PageCount, d.ChunkCount,
	)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

func (r *DocumentRepo) UpdateStatus(ctx context.Context, documentID string, status models.DocumentStatus, errorMessage string, pageCount *int) error {
	tag, err := r.db.Pool.Exec(ctx, `
UPDATE documents SET status=$2, error_message=NULLIF($3,''),
  page_count = COALESCE($4, page_count),
  indexed_at = CASE WHEN $2='READY' THEN NOW() ELSE indexed_at END
WHERE document_id=$1`, documentID, string(status), errorMessage, pageCount)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", documentID, util.ErrNotFound)
	}
	return nil
}

func (r *DocumentRepo) SetChunkCount(ctx context.Context, documentID string, count int) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE documents SET chunk_count=$2 WHERE document_id=$1`, documentID, count)
	if err != nil {
		return fmt.Errorf("set chunk count: %w", err)
	}
	return nil
}

const documentColumns = `document_id, filename, format, status, COALESCE(error_message,''),
       page_count, chunk_count, uploaded_at, indexed_at`

func scanDocument(row pgx.Row) (models.Document, error) {
	var d models.Document
	var status string
	if err := row.Scan(&d.DocumentID, &d.Filename, &d.Format, &status, &d.ErrorMessage,
		&d.PageCount, &d.ChunkCount, &d.UploadedAt, &d.IndexedAt); err != nil {
		return models.Document{}, err
	}
	d.Status = models.DocumentStatus(status)
	return d, nil
}

func (r *DocumentRepo) Get(ctx context.Context, documentID string) (models.Document, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE document_id=$1`, documentID)
	d, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Document{}, fmt.Errorf("document %s: %w", documentID, util.ErrNotFound)
		}
		return models.Document{}, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

func (r *DocumentRepo) List(ctx context.Context) ([]models.Document, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY uploaded_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	out := make([]models.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

// Delete removes the document row; chunk rows go through the index so both
// vector layers disappear in the same transaction as the document.
func (r *DocumentRepo) Delete(ctx context.Context, documentID string) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete document: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id=$1`, documentID); err != nil {
		return fmt.Errorf("delete document chunks: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM documents WHERE document_id=$1`, documentID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", documentID, util.ErrNotFound)
	}
	return tx.Commit(ctx)
}
