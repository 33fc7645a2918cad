package retrieval

import (
	"context"
	"testing"

	"dossier/internal/index"
	"dossier/internal/models"
	"dossier/internal/providers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedDocument(t *testing.T, idx *index.Memory, embedder providers.EmbeddingProvider, docID, name string, semantic, citation []string) {
	t.Helper()
	chunks := make([]models.Chunk, 0, len(semantic)+len(citation))
	texts := make([]string, 0, cap(chunks))
	for i, s := range semantic {
		chunks = append(chunks, models.Chunk{
			ChunkID: docID + "-sem-" + string(rune('a'+i)), DocumentID: docID,
			Layer: models.LayerSemantic, ChunkIndex: i, Text: s,
		})
		texts = append(texts, s)
	}
	for i, c := range citation {
		chunks = append(chunks, models.Chunk{
			ChunkID: docID + "-cit-" + string(rune('a'+i)), DocumentID: docID,
			Layer: models.LayerCitation, ChunkIndex: i, Text: c,
		})
		texts = append(texts, c)
	}
	vectors, _, err := embedder.Embed(context.Background(), providers.EmbedRequest{Inputs: texts, Dimension: 16})
	require.NoError(t, err)
	require.NoError(t, idx.Add(context.Background(), models.Document{DocumentID: docID, Filename: name}, chunks, vectors))
}

func TestRetrieveResolvesCitationSpans(t *testing.T) {
	idx := index.NewMemory()
	embedder := providers.NewMockProvider(16)
	seedDocument(t, idx, embedder, "doc-1", "security.pdf",
		[]string{"Customer data is encrypted at rest using AES-256. Keys rotate every 90 days through the KMS."},
		[]string{"Customer data is encrypted at rest using AES-256.", "Keys rotate every 90 days through the KMS."},
	)

	eng := NewEngine(idx, embedder, Options{TopK: 3, MinScore: 0, EmbedDim: 16})
	evidence, err := eng.Retrieve(context.Background(), "Customer data is encrypted at rest using AES-256. Keys rotate every 90 days through the KMS.", index.Scope{})
	require.NoError(t, err)
	require.NotEmpty(t, evidence)

	top := evidence[0]
	assert.Equal(t, "doc-1", top.DocumentID)
	assert.Equal(t, "security.pdf", top.DocumentName)
	assert.False(t, top.ApproxLocator)
	assert.Contains(t, top.ChunkID, "-cit-")
	assert.Equal(t, "doc-1-sem-a", top.SemanticChunkID)
}

func TestRetrieveFallsBackToSemanticLocator(t *testing.T) {
	idx := index.NewMemory()
	embedder := providers.NewMockProvider(16)
	// No citation layer at all for this document.
	seedDocument(t, idx, embedder, "doc-2", "notes.txt",
		[]string{"Backups run nightly and are stored in a second region."},
		nil,
	)

	eng := NewEngine(idx, embedder, Options{TopK: 3, MinScore: 0, EmbedDim: 16})
	evidence, err := eng.Retrieve(context.Background(), "Backups run nightly and are stored in a second region.", index.Scope{})
	require.NoError(t, err)
	require.NotEmpty(t, evidence)
	assert.True(t, evidence[0].ApproxLocator)
	assert.Equal(t, evidence[0].SemanticChunkID, evidence[0].ChunkID)
}

func TestRetrieveHonorsScopeAndTopK(t *testing.T) {
	idx := index.NewMemory()
	embedder := providers.NewMockProvider(16)
	seedDocument(t, idx, embedder, "doc-3", "a.txt",
		[]string{"SOC 2 Type II audit completed in 2024.", "Penetration tests run quarterly."}, nil)
	seedDocument(t, idx, embedder, "doc-4", "b.txt",
		[]string{"SOC 2 Type II audit completed in 2024."}, nil)

	eng := NewEngine(idx, embedder, Options{TopK: 1, MinScore: 0, EmbedDim: 16})
	evidence, err := eng.Retrieve(context.Background(), "SOC 2 Type II audit completed in 2024.",
		index.Scope{DocumentIDs: []string{"doc-4"}})
	require.NoError(t, err)
	require.Len(t, evidence, 1)
	assert.Equal(t, "doc-4", evidence[0].DocumentID)
}

func TestRetrieveMinScoreFiltersAll(t *testing.T) {
	idx := index.NewMemory()
	embedder := providers.NewMockProvider(16)
	seedDocument(t, idx, embedder, "doc-5", "c.txt",
		[]string{"Entirely unrelated prose about office furniture."}, nil)

	eng := NewEngine(idx, embedder, Options{TopK: 3, MinScore: 0.99, EmbedDim: 16})
	evidence, err := eng.Retrieve(context.Background(), "disaster recovery RTO", index.Scope{})
	require.NoError(t, err)
	assert.Empty(t, evidence)
}

func TestExactTokens(t *testing.T) {
	tokens := exactTokens("Does the platform support SAML 2.0 SSO and ISO 27001?")
	assert.Contains(t, tokens, "saml")
	assert.Contains(t, tokens, "27001")
	assert.Contains(t, tokens, "sso")
	assert.NotContains(t, tokens, "platform")
}
