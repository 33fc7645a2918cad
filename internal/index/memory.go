package index

import (
	"context"
	"math"
	"sort"
	"sync"

	"dossier/internal/models"
)

// Memory is a brute-force cosine index guarded by an RWMutex. It backs
// tests and single-process runs; the tie-break rule matches Postgres.
type Memory struct {
	mu       sync.RWMutex
	docNames map[string]string
	chunks   map[string][]entry // keyed by document id
}

type entry struct {
	chunk  models.Chunk
	vector []float32
}

func NewMemory() *Memory {
	return &Memory{
		docNames: make(map[string]string),
		chunks:   make(map[string][]entry),
	}
}

func (m *Memory) Add(_ context.Context, doc models.Document, chunks []models.Chunk, vectors [][]float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docNames[doc.DocumentID] = doc.Filename
	entries := make([]entry, 0, len(chunks))
	for i, c := range chunks {
		var v []float32
		if i < len(vectors) {
			v = vectors[i]
		}
		entries = append(entries, entry{chunk: c, vector: v})
	}
	m.chunks[doc.DocumentID] = entries
	return nil
}

func (m *Memory) Search(_ context.Context, layer models.IndexLayer, queryVec []float32, k int, scope Scope) ([]Result, error) {
	if k <= 0 {
		k = 8
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := make([]Result, 0, k)
	for docID, entries := range m.chunks {
		if !scope.Contains(docID) {
			continue
		}
		for _, e := range entries {
			if e.chunk.Layer != layer || len(e.vector) == 0 {
				continue
			}
			results = append(results, Result{
				Chunk:        e.chunk,
				DocumentName: m.docNames[docID],
				Score:        cosine(queryVec, e.vector),
			})
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Chunk.ChunkIndex != results[j].Chunk.ChunkIndex {
			return results[i].Chunk.ChunkIndex < results[j].Chunk.ChunkIndex
		}
		return results[i].Chunk.ChunkID < results[j].Chunk.ChunkID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (m *Memory) ListChunks(_ context.Context, documentID string, layer models.IndexLayer) ([]models.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Chunk, 0)
	for _, e := range m.chunks[documentID] {
		if e.chunk.Layer == layer {
			out = append(out, e.chunk)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func (m *Memory) Delete(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chunks, documentID)
	delete(m.docNames, documentID)
	return nil
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
