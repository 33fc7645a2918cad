package agent

import (
	"testing"

	"dossier/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doneCheckpoint(scores []float64, cited []int, generationRetries int) Checkpoint {
	evidence := make([]models.Evidence, 0, len(scores))
	for _, s := range scores {
		evidence = append(evidence, models.Evidence{
			ChunkID: "c", DocumentID: "d", Text: "t", Score: s, SemanticChunkID: "s",
		})
	}
	return Checkpoint{
		State:             StateDone,
		IsAnswerable:      true,
		Draft:             "answer",
		Evidence:          evidence,
		CitedIndices:      cited,
		GenerationRetries: generationRetries,
	}
}

func TestConfidenceBlendsQualityAndCertainty(t *testing.T) {
	cp := doneCheckpoint([]float64{0.8, 0.6}, []int{1, 2}, 0)
	// mean cited score 0.7, certainty 1.0
	assert.InDelta(t, 0.65*0.7+0.35*1.0, Confidence(cp, 0.2), 1e-9)
}

func TestConfidenceUsesOnlyCitedEvidence(t *testing.T) {
	cp := doneCheckpoint([]float64{0.9, 0.1}, []int{1}, 0)
	assert.InDelta(t, 0.65*0.9+0.35*1.0, Confidence(cp, 0.2), 1e-9)
}

func TestConfidenceDropsWithRetries(t *testing.T) {
	scores := []float64{0.8}
	prev := 2.0
	for retries := 0; retries <= 5; retries++ {
		c := Confidence(doneCheckpoint(scores, []int{1}, retries), 0.2)
		assert.Less(t, c, prev+1e-9, "confidence must not rise with retries")
		assert.GreaterOrEqual(t, c, 0.0)
		prev = c
	}
	// Certainty floors at zero, retrieval quality keeps the score positive.
	assert.InDelta(t, 0.65*0.8, Confidence(doneCheckpoint(scores, []int{1}, 10), 0.2), 1e-9)
}

func TestConfidenceZeroWhenUnanswerable(t *testing.T) {
	cp := doneCheckpoint([]float64{0.9}, []int{1}, 0)
	cp.State = StateUnanswerable
	cp.IsAnswerable = false
	assert.Zero(t, Confidence(cp, 0.2))
}

func TestBuildAnswerOrdersCitations(t *testing.T) {
	cp := Checkpoint{
		ThreadID:     "thread-9",
		QuestionID:   "q-9",
		State:        StateDone,
		IsAnswerable: true,
		Draft:        "Data is encrypted [2] and keys rotate [1].",
		Evidence: []models.Evidence{
			{ChunkID: "cit-a", DocumentID: "doc-1", DocumentName: "a.pdf", Text: "keys rotate", Score: 0.5},
			{ChunkID: "cit-b", DocumentID: "doc-2", DocumentName: "b.pdf", Text: "encrypted", Score: 0.9},
		},
		CitedIndices: []int{2, 1},
	}
	answer, citations := BuildAnswer(cp, 0.2)
	require.Len(t, citations, 2)
	assert.Equal(t, "cit-b", citations[0].ChunkID)
	assert.Equal(t, 0, citations[0].Position)
	assert.Equal(t, "cit-a", citations[1].ChunkID)
	assert.Equal(t, 1, citations[1].Position)
	assert.Equal(t, answer.AnswerID, citations[0].AnswerID)
	assert.Equal(t, models.AnswerPending, answer.Status)
	assert.Equal(t, models.AuthorAI, answer.CreatedBy.Kind)
	assert.Equal(t, "thread-9", answer.ThreadID)
}
