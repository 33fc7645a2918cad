package index

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"dossier/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres keeps both layers in the chunks table, discriminated by the
// layer column, with pgvector embeddings. Deleting a document removes its
// rows for both layers in a single statement inside one transaction, so
// MVCC gives concurrent searches the pre-deletion snapshot.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Add(ctx context.Context, doc models.Document, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx add chunks: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// Re-indexing replaces the whole chunk set.
	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id=$1`, doc.DocumentID); err != nil {
		return fmt.Errorf("clear prior chunks: %w", err)
	}
	for i, c := range chunks {
		var bbox *string
		if c.BoundingBox != nil {
			b, _ := json.Marshal(c.BoundingBox)
			s := string(b)
			bbox = &s
		}
		var embedding *string
		if len(vectors[i]) > 0 {
			lit := ToLiteral(vectors[i])
			embedding = &lit
		}
		_, err := tx.Exec(ctx, `
INSERT INTO chunks (chunk_id, document_id, layer, chunk_index, text, page_number, bounding_box, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, CASE WHEN $8::text IS NULL THEN NULL ELSE $8::vector END)`,
			c.ChunkID, c.DocumentID, string(c.Layer), c.ChunkIndex, c.Text, c.PageNumber, bbox, embedding,
		)
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ChunkID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunks tx: %w", err)
	}
	return nil
}

func (p *Postgres) Search(ctx context.Context, layer models.IndexLayer, queryVec []float32, k int, scope Scope) ([]Result, error) {
	if k <= 0 {
		k = 8
	}
	vecLiteral := ToLiteral(queryVec)
	args := []any{vecLiteral, string(layer), k}
	filterSQL := ""
	if len(scope.DocumentIDs) > 0 {
		filterSQL = " AND c.document_id = ANY($4)"
		args = append(args, scope.DocumentIDs)
	}

	query := `
SELECT c.chunk_id, c.document_id, c.layer, c.chunk_index, c.text,
       c.page_number, c.bounding_box, d.filename,
       1 - (c.embedding <=> $1::vector) AS score
FROM chunks c
JOIN documents d ON d.document_id = c.document_id
WHERE c.layer = $2
  AND c.embedding IS NOT NULL` + filterSQL + `
ORDER BY c.embedding <=> $1::vector, c.chunk_index, c.chunk_id
LIMIT $3`

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query vector search: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0, k)
	for rows.Next() {
		var r Result
		var layerStr string
		var bbox *string
		if err := rows.Scan(&r.Chunk.ChunkID, &r.Chunk.DocumentID, &layerStr, &r.Chunk.ChunkIndex,
			&r.Chunk.Text, &r.Chunk.PageNumber, &bbox, &r.DocumentName, &r.Score); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		r.Chunk.Layer = models.IndexLayer(layerStr)
		if bbox != nil {
			var b models.BoundingBox
			if err := json.Unmarshal([]byte(*bbox), &b); err == nil {
				r.Chunk.BoundingBox = &b
			}
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return results, nil
}

func (p *Postgres) ListChunks(ctx context.Context, documentID string, layer models.IndexLayer) ([]models.Chunk, error) {
	rows, err := p.pool.Query(ctx, `
SELECT chunk_id, document_id, layer, chunk_index, text, page_number, bounding_box, created_at
FROM chunks
WHERE document_id=$1 AND layer=$2
ORDER BY chunk_index ASC`, documentID, string(layer))
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()
	out := make([]models.Chunk, 0, 64)
	for rows.Next() {
		var c models.Chunk
		var layerStr string
		var bbox *string
		if err := rows.Scan(&c.ChunkID, &c.DocumentID, &layerStr, &c.ChunkIndex, &c.Text, &c.PageNumber, &bbox, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.Layer = models.IndexLayer(layerStr)
		if bbox != nil {
			var b models.BoundingBox
			if err := json.Unmarshal([]byte(*bbox), &b); err == nil {
				c.BoundingBox = &b
			}
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}

func (p *Postgres) Delete(ctx context.Context, documentID string) error {
	// Single statement covers both layers; rows disappear atomically.
	if _, err := p.pool.Exec(ctx, `DELETE FROM chunks WHERE document_id=$1`, documentID); err != nil {
		return fmt.Errorf("delete chunks for document %s: %w", documentID, err)
	}
	return nil
}

func ToLiteral(v []float32) string {
	parts := make([]string, 0, len(v))
	for _, x := range v {
		parts = append(parts, fmt.Sprintf("%f", x))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
