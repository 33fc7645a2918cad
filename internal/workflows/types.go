package workflows

import "dossier/internal/models"

type DocumentIndexInput struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Path       string `json:"path"`
	Format     string `json:"format"`
}

type DocumentIndexProgress struct {
	DocumentID string `json:"document_id"`
	Stage      string `json:"stage"`
	ChunkCount int    `json:"chunk_count"`
	Error      string `json:"error,omitempty"`
}

type DocumentDeleteInput struct {
	DocumentID string `json:"document_id"`
}

type DocumentBatchIndexInput struct {
	Documents     []DocumentIndexInput `json:"documents"`
	MaxConcurrent int                  `json:"max_concurrent"`
}

type DocumentBatchIndexProgress struct {
	Total       int               `json:"total"`
	Done        int               `json:"done"`
	Failed      int               `json:"failed"`
	PerDocument map[string]string `json:"per_document"`
}

type AnswerInput struct {
	ProjectID  string `json:"project_id"`
	QuestionID string `json:"question_id"`
	ThreadID   string `json:"thread_id,omitempty"`
	// Feedback set on a restarted run resumes the existing checkpoint
	// at the rewrite step instead of starting fresh.
	Feedback string `json:"feedback,omitempty"`
}

type AnswerResult struct {
	AnswerID        string `json:"answer_id"`
	State           string `json:"state"`
	IsAnswerable    bool   `json:"is_answerable"`
	ConfidenceScore float64 `json:"confidence_score"`
}

type AnswerProgress struct {
	QuestionID string              `json:"question_id"`
	State      string              `json:"state"`
	Terminal   bool                `json:"terminal"`
	Refinement int                 `json:"refinement"`
	Trace      []models.TraceEntry `json:"trace"`
}

type EvaluationInput struct {
	AnswerID string `json:"answer_id"`
	// HumanAnswerText overrides the stored ground truth when set.
	HumanAnswerText string `json:"human_answer_text,omitempty"`
}

type ProjectAnswerInput struct {
	ProjectID     string `json:"project_id"`
	MaxConcurrent int    `json:"max_concurrent"`
}

type ProjectAnswerProgress struct {
	ProjectID   string            `json:"project_id"`
	Total       int               `json:"total"`
	Done        int               `json:"done"`
	Failed      int               `json:"failed"`
	PerQuestion map[string]string `json:"per_question"`
}
