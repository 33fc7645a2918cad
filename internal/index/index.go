package index

import (
	"context"

	"dossier/internal/models"
)

// Scope restricts a search to a set of documents. Empty means all
// indexed documents.
type Scope struct {
	DocumentIDs []string
}

func (s Scope) Contains(documentID string) bool {
	if len(s.DocumentIDs) == 0 {
		return true
	}
	for _, id := range s.DocumentIDs {
		if id == documentID {
			return true
		}
	}
	return false
}

type Result struct {
	Chunk        models.Chunk
	DocumentName string
	Score        float64
}

// Index is the dual-layer vector index. Add writes a document's chunks for
// both layers; Delete removes both layers atomically from the caller's
// perspective: a concurrent search sees the pre-deletion snapshot or
// nothing, never a half-deleted document. Scores are cosine similarity in
// [-1,1]; ties break by chunk index, then chunk id, for determinism.
type Index interface {
	Add(ctx context.Context, doc models.Document, chunks []models.Chunk, vectors [][]float32) error
	Search(ctx context.Context, layer models.IndexLayer, queryVec []float32, k int, scope Scope) ([]Result, error)
	ListChunks(ctx context.Context, documentID string, layer models.IndexLayer) ([]models.Chunk, error)
	Delete(ctx context.Context, documentID string) error
}
