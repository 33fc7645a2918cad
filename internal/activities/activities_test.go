package activities

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"dossier/internal/config"
	"dossier/internal/logger"
	"dossier/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testActivities() *Activities {
	return &Activities{
		cfg: config.Config{
			SemanticChunkSize:    200,
			SemanticChunkOverlap: 40,
			CitationChunkSize:    80,
			EmbedDim:             16,
		},
		log: logger.NewNop(),
	}
}

func TestExtractTextActivityPlaintext(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.txt")
	require.NoError(t, os.WriteFile(path, []byte("Customer data is encrypted at rest.\n"), 0o644))

	out, err := testActivities().ExtractTextActivity(context.Background(), ExtractTextInput{
		DocumentPath: path, Format: "txt",
	})
	require.NoError(t, err)
	assert.Equal(t, "Customer data is encrypted at rest.", out.Text)
	assert.Equal(t, 1, out.PageCount)
}

func TestExtractTextActivityEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(path, []byte("   \n"), 0o644))

	_, err := testActivities().ExtractTextActivity(context.Background(), ExtractTextInput{
		DocumentPath: path, Format: "txt",
	})
	assert.Error(t, err)
}

func TestChunkDocumentActivityProducesBothLayers(t *testing.T) {
	text := "Customer data is encrypted at rest using AES-256. Encryption keys rotate every 90 days. " +
		"Backups run nightly and replicate to a second region. Access requires hardware MFA for all staff. " +
		"Quarterly penetration tests cover the production environment and all public endpoints."

	out, err := testActivities().ChunkDocumentActivity(context.Background(), ChunkDocumentInput{
		DocumentID: "doc-1", Text: text,
	})
	require.NoError(t, err)

	var semantic, citation int
	seen := map[string]bool{}
	for _, c := range out.Chunks {
		require.False(t, seen[c.ChunkID], "duplicate chunk id")
		seen[c.ChunkID] = true
		assert.Equal(t, "doc-1", c.DocumentID)
		assert.NotEmpty(t, c.Text)
		switch c.Layer {
		case models.LayerSemantic:
			semantic++
		case models.LayerCitation:
			citation++
		}
	}
	assert.Greater(t, semantic, 0)
	assert.Greater(t, citation, 0)
	// Tight spans outnumber broad chunks for the same text.
	assert.GreaterOrEqual(t, citation, semantic)
}

func TestChunkDocumentActivityEmptyText(t *testing.T) {
	out, err := testActivities().ChunkDocumentActivity(context.Background(), ChunkDocumentInput{
		DocumentID: "doc-2", Text: "",
	})
	require.NoError(t, err)
	assert.Empty(t, out.Chunks)
}
