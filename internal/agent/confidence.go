package agent

import (
	"dossier/internal/models"

	"github.com/google/uuid"
)

const (
	retrievalWeight  = 0.65
	generationWeight = 0.35
)

// Confidence blends retrieval quality (mean similarity of the cited
// evidence) with generation certainty (full certainty minus a fixed
// penalty per regeneration). Unanswerable runs score zero.
func Confidence(cp Checkpoint, retryPenalty float64) float64 {
	if cp.State != StateDone || !cp.IsAnswerable {
		return 0
	}
	cited := cp.CitedIndices
	if len(cited) == 0 {
		// Nothing cited: fall back to the whole evidence set so a
		// verified answer never scores zero retrieval quality.
		for i := range cp.Evidence {
			cited = append(cited, i+1)
		}
	}
	var quality float64
	for _, idx := range cited {
		quality += cp.Evidence[idx-1].Score
	}
	if len(cited) > 0 {
		quality /= float64(len(cited))
	}
	certainty := 1 - retryPenalty*float64(cp.GenerationRetries)
	if certainty < 0 {
		certainty = 0
	}
	score := retrievalWeight*quality + generationWeight*certainty
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// BuildAnswer converts a terminal checkpoint into the answer row and its
// ordered citations. Citation order follows the cited indices, so the
// first citation is the first passage the model relied on.
func BuildAnswer(cp Checkpoint, retryPenalty float64) (models.Answer, []models.Citation) {
	answer := models.Answer{
		AnswerID:   uuid.NewString(),
		QuestionID: cp.QuestionID,
		Status:     models.AnswerPending,
		CreatedBy:  models.Author{Kind: models.AuthorAI},
		ThreadID:   cp.ThreadID,
		Trace:      cp.Trace,
	}
	if cp.State != StateDone || !cp.IsAnswerable {
		answer.Text = FallbackAnswer
		answer.IsAnswerable = false
		answer.ConfidenceScore = 0
		answer.Status = models.AnswerMissingData
		return answer, nil
	}
	answer.Text = cp.Draft
	answer.IsAnswerable = true
	answer.ConfidenceScore = Confidence(cp, retryPenalty)

	citations := make([]models.Citation, 0, len(cp.CitedIndices))
	for pos, idx := range cp.CitedIndices {
		ev := cp.Evidence[idx-1]
		citations = append(citations, models.Citation{
			CitationID:   uuid.NewString(),
			AnswerID:     answer.AnswerID,
			ChunkID:      ev.ChunkID,
			ChunkText:    ev.Text,
			DocumentID:   ev.DocumentID,
			DocumentName: ev.DocumentName,
			PageNumber:   ev.PageNumber,
			BoundingBox:  ev.BoundingBox,
			Position:     pos,
		})
	}
	return answer, citations
}
