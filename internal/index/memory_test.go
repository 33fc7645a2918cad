package index

import (
	"context"
	"testing"

	"dossier/internal/models"

	"github.com/stretchr/testify/require"
)

func docChunk(id, docID string, layer models.IndexLayer, idx int, text string) models.Chunk {
	return models.Chunk{ChunkID: id, DocumentID: docID, Layer: layer, ChunkIndex: idx, Text: text}
}

func TestMemorySearchOrdersByScoreThenChunkIndex(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	doc := models.Document{DocumentID: "d1", Filename: "report.pdf"}
	chunks := []models.Chunk{
		docChunk("c1", "d1", models.LayerSemantic, 0, "alpha"),
		docChunk("c2", "d1", models.LayerSemantic, 1, "beta"),
		docChunk("c3", "d1", models.LayerSemantic, 2, "gamma"),
	}
	vectors := [][]float32{
		{1, 0},
		{1, 0}, // same score as c1, later chunk index
		{0, 1},
	}
	require.NoError(t, m.Add(ctx, doc, chunks, vectors))

	res, err := m.Search(ctx, models.LayerSemantic, []float32{1, 0}, 3, Scope{})
	require.NoError(t, err)
	require.Len(t, res, 3)
	require.Equal(t, "c1", res[0].Chunk.ChunkID)
	require.Equal(t, "c2", res[1].Chunk.ChunkID)
	require.Equal(t, "c3", res[2].Chunk.ChunkID)
	require.InDelta(t, 1.0, res[0].Score, 1e-9)
	require.Equal(t, "report.pdf", res[0].DocumentName)
}

func TestMemorySearchScope(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Add(ctx, models.Document{DocumentID: "d1"},
		[]models.Chunk{docChunk("c1", "d1", models.LayerSemantic, 0, "a")}, [][]float32{{1, 0}}))
	require.NoError(t, m.Add(ctx, models.Document{DocumentID: "d2"},
		[]models.Chunk{docChunk("c2", "d2", models.LayerSemantic, 0, "b")}, [][]float32{{1, 0}}))

	res, err := m.Search(ctx, models.LayerSemantic, []float32{1, 0}, 10, Scope{DocumentIDs: []string{"d2"}})
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, "c2", res[0].Chunk.ChunkID)
}

func TestMemoryDeleteRemovesBothLayers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	chunks := []models.Chunk{
		docChunk("s1", "d1", models.LayerSemantic, 0, "a"),
		docChunk("t1", "d1", models.LayerCitation, 0, "a"),
	}
	require.NoError(t, m.Add(ctx, models.Document{DocumentID: "d1"}, chunks, [][]float32{{1}, {1}}))
	require.NoError(t, m.Delete(ctx, "d1"))

	for _, layer := range []models.IndexLayer{models.LayerSemantic, models.LayerCitation} {
		res, err := m.Search(ctx, layer, []float32{1}, 10, Scope{})
		require.NoError(t, err)
		require.Empty(t, res)
	}
}

func TestMemoryReAddReplacesChunks(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	doc := models.Document{DocumentID: "d1"}
	require.NoError(t, m.Add(ctx, doc,
		[]models.Chunk{docChunk("old", "d1", models.LayerSemantic, 0, "old")}, [][]float32{{1}}))
	require.NoError(t, m.Add(ctx, doc,
		[]models.Chunk{docChunk("new", "d1", models.LayerSemantic, 0, "new")}, [][]float32{{1}}))

	res, err := m.Search(ctx, models.LayerSemantic, []float32{1}, 10, Scope{})
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, "new", res[0].Chunk.ChunkID)
}
