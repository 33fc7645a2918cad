package activities

import (
	"dossier/internal/agent"
	"dossier/internal/models"
)

type ExtractTextInput struct {
	DocumentPath string `json:"document_path"`
	Format       string `json:"format"`
}

type ExtractTextOutput struct {
	Text      string `json:"text"`
	PageCount int    `json:"page_count"`
}

type ChunkPayload struct {
	ChunkID    string            `json:"chunk_id"`
	DocumentID string            `json:"document_id"`
	Layer      models.IndexLayer `json:"layer"`
	ChunkIndex int               `json:"chunk_index"`
	Text       string            `json:"text"`
	PageNumber *int              `json:"page_number,omitempty"`
}

type ChunkDocumentInput struct {
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
	PageCount  int    `json:"page_count"`
}

type ChunkDocumentOutput struct {
	Chunks []ChunkPayload `json:"chunks"`
}

type EmbedChunksInput struct {
	Chunks []ChunkPayload `json:"chunks"`
}

type EmbedChunksOutput struct {
	Vectors      [][]float32 `json:"vectors"`
	ProviderName string      `json:"provider_name"`
	Model        string      `json:"model"`
}

type IndexChunksInput struct {
	Document models.Document `json:"document"`
	Chunks   []ChunkPayload  `json:"chunks"`
	Vectors  [][]float32     `json:"vectors"`
}

type UpdateDocumentStatusInput struct {
	DocumentID   string                `json:"document_id"`
	Status       models.DocumentStatus `json:"status"`
	ErrorMessage string                `json:"error_message,omitempty"`
	PageCount    *int                  `json:"page_count,omitempty"`
}

type WriteDocumentArtifactsInput struct {
	DocumentID string         `json:"document_id"`
	Chunks     []ChunkPayload `json:"chunks"`
	Manifest   map[string]any `json:"manifest"`
}

type InvalidateProjectsOutput struct {
	OutdatedProjectIDs []string `json:"outdated_project_ids"`
}

type DeleteDocumentInput struct {
	DocumentID string `json:"document_id"`
}

type InitAnswerRunInput struct {
	ThreadID   string `json:"thread_id"`
	ProjectID  string `json:"project_id"`
	QuestionID string `json:"question_id"`
}

type InitAnswerRunOutput struct {
	State agent.State `json:"state"`
}

type AgentStepInput struct {
	ThreadID string `json:"thread_id"`
}

type AgentStepOutput struct {
	State    agent.State       `json:"state"`
	Terminal bool              `json:"terminal"`
	Trace    models.TraceEntry `json:"trace"`
}

type ApplyFeedbackInput struct {
	ThreadID string `json:"thread_id"`
	Feedback string `json:"feedback"`
}

type PersistAnswerInput struct {
	ThreadID string `json:"thread_id"`
}

type MarkRunAbandonedInput struct {
	ThreadID string `json:"thread_id"`
}

// EvaluateAnswerInput names the AI answer under evaluation. An empty
// HumanAnswerText falls back to the question's stored ground truth.
type EvaluateAnswerInput struct {
	AnswerID        string `json:"answer_id"`
	HumanAnswerText string `json:"human_answer_text,omitempty"`
}

type EvaluateAnswerOutput struct {
	Evaluation models.Evaluation `json:"evaluation"`
}

type PersistAnswerOutput struct {
	AnswerID        string  `json:"answer_id"`
	IsAnswerable    bool    `json:"is_answerable"`
	ConfidenceScore float64 `json:"confidence_score"`
	CitationCount   int     `json:"citation_count"`
}

type UpdateProjectStatusInput struct {
	ProjectID           string `json:"project_id"`
	GenerationTriggered bool   `json:"generation_triggered"`
}

type UpdateProjectStatusOutput struct {
	Status models.ProjectStatus `json:"status"`
}

type ListProjectQuestionsInput struct {
	ProjectID string `json:"project_id"`
}

type ListProjectQuestionsOutput struct {
	QuestionIDs []string `json:"question_ids"`
}
