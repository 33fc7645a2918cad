package storage

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRow feeds scanCitation one row of column values the way pgx
// would.
type fakeRow struct {
	values []any
}

func (f fakeRow) Scan(dest ...any) error {
	for i, v := range f.values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *int:
			*d = v.(int)
		case **string:
			if v == nil {
				*d = nil
			} else {
				s := v.(string)
				*d = &s
			}
		case **int:
			if v == nil {
				*d = nil
			} else {
				n := v.(int)
				*d = &n
			}
		case *[]byte:
			if v == nil {
				*d = nil
			} else {
				*d = v.([]byte)
			}
		}
	}
	return nil
}

func citationRow(liveChunkID any, bbox []byte) fakeRow {
	return fakeRow{values: []any{
		"cit-1", "ans-1", "chunk-1", "Customer data is encrypted at rest.",
		"doc-1", "policy.pdf", 3, bbox, 0, liveChunkID,
	}}
}

func TestScanCitationLive(t *testing.T) {
	bbox, err := json.Marshal(map[string]float64{"x0": 1, "y0": 2, "x1": 3, "y1": 4})
	require.NoError(t, err)

	c, err := scanCitation(citationRow("chunk-1", bbox))
	require.NoError(t, err)
	assert.False(t, c.Dangling)
	assert.Equal(t, "chunk-1", c.ChunkID)
	assert.Equal(t, "policy.pdf", c.DocumentName)
	require.NotNil(t, c.BoundingBox)
	assert.Equal(t, 3.0, c.BoundingBox.X1)
}

func TestScanCitationDanglingServesSnapshot(t *testing.T) {
	// Deleted source chunk: the left join yields NULL, the citation
	// still carries its snapshot text.
	c, err := scanCitation(citationRow(nil, nil))
	require.NoError(t, err)
	assert.True(t, c.Dangling)
	assert.Equal(t, "Customer data is encrypted at rest.", c.ChunkText)
	assert.Nil(t, c.BoundingBox)
}
