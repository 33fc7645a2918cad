package models

import "time"

type DocumentStatus string

const (
	DocumentUploaded DocumentStatus = "UPLOADED"
	DocumentIndexing DocumentStatus = "INDEXING"
	DocumentReady    DocumentStatus = "READY"
	DocumentError    DocumentStatus = "ERROR"
)

type Document struct {
	DocumentID   string         `json:"document_id"`
	Filename     string         `json:"filename"`
	Format       string         `json:"format"`
	Status       DocumentStatus `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
	PageCount    *int           `json:"page_count,omitempty"`
	ChunkCount   int            `json:"chunk_count"`
	UploadedAt   time.Time      `json:"uploaded_at"`
	IndexedAt    *time.Time     `json:"indexed_at,omitempty"`
}

// IndexLayer discriminates the two vector spaces kept per document:
// SEMANTIC holds broad overlap-chunked text for recall, CITATION holds
// tight spans keyed to exact source locations for attribution.
type IndexLayer string

const (
	LayerSemantic IndexLayer = "SEMANTIC"
	LayerCitation IndexLayer = "CITATION"
)

type BoundingBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Chunk is immutable once created; re-indexing a document replaces its
// whole chunk set.
type Chunk struct {
	ChunkID     string       `json:"chunk_id"`
	DocumentID  string       `json:"document_id"`
	Layer       IndexLayer   `json:"layer"`
	ChunkIndex  int          `json:"chunk_index"`
	Text        string       `json:"text"`
	PageNumber  *int         `json:"page_number,omitempty"`
	BoundingBox *BoundingBox `json:"bounding_box,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

type ProjectScope string

const (
	ScopeAllDocs  ProjectScope = "ALL_DOCS"
	ScopeSpecific ProjectScope = "SPECIFIC"
)

type ProjectStatus string

const (
	ProjectDraft      ProjectStatus = "DRAFT"
	ProjectProcessing ProjectStatus = "PROCESSING"
	ProjectReady      ProjectStatus = "READY"
	ProjectReview     ProjectStatus = "REVIEW"
	ProjectCompleted  ProjectStatus = "COMPLETED"
	ProjectOutdated   ProjectStatus = "OUTDATED"
)

type Project struct {
	ProjectID   string        `json:"project_id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Scope       ProjectScope  `json:"scope"`
	DocumentIDs []string      `json:"document_ids,omitempty"`
	Status      ProjectStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

type Section struct {
	SectionID string    `json:"section_id"`
	ProjectID string    `json:"project_id"`
	Title     string    `json:"title"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

type Question struct {
	QuestionID string    `json:"question_id"`
	ProjectID  string    `json:"project_id"`
	SectionID  string    `json:"section_id,omitempty"`
	Text       string    `json:"text"`
	Position   int       `json:"position"`
	CreatedAt  time.Time `json:"created_at"`
}

type AnswerStatus string

const (
	AnswerPending       AnswerStatus = "PENDING"
	AnswerConfirmed     AnswerStatus = "CONFIRMED"
	AnswerRejected      AnswerStatus = "REJECTED"
	AnswerManualUpdated AnswerStatus = "MANUAL_UPDATED"
	AnswerMissingData   AnswerStatus = "MISSING_DATA"
)

type AuthorKind string

const (
	AuthorAI    AuthorKind = "AI"
	AuthorHuman AuthorKind = "HUMAN"
)

// Author is the tagged creator variant: AI runs carry no reviewer id,
// human edits do.
type Author struct {
	Kind       AuthorKind `json:"kind"`
	ReviewerID string     `json:"reviewer_id,omitempty"`
}

type TraceEntry struct {
	State   string    `json:"state"`
	At      time.Time `json:"at"`
	Summary string    `json:"summary"`
}

// Answer is most-recent-wins per question: a new generation supersedes the
// prior row instead of mutating it, so history stays auditable.
type Answer struct {
	AnswerID        string       `json:"answer_id"`
	QuestionID      string       `json:"question_id"`
	Text            string       `json:"text"`
	ConfidenceScore float64      `json:"confidence_score"`
	IsAnswerable    bool         `json:"is_answerable"`
	Status          AnswerStatus `json:"status"`
	CreatedBy       Author       `json:"created_by"`
	ReviewComment   string       `json:"review_comment,omitempty"`
	ThreadID        string       `json:"thread_id,omitempty"`
	Superseded      bool         `json:"superseded"`
	Trace           []TraceEntry `json:"trace,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Citation snapshots the cited chunk text at creation time so it survives
// deletion of the source document. Dangling is computed at read time.
type Citation struct {
	CitationID   string       `json:"citation_id"`
	AnswerID     string       `json:"answer_id"`
	ChunkID      string       `json:"chunk_id"`
	ChunkText    string       `json:"chunk_text"`
	DocumentID   string       `json:"document_id,omitempty"`
	DocumentName string       `json:"document_name,omitempty"`
	PageNumber   *int         `json:"page_number,omitempty"`
	BoundingBox  *BoundingBox `json:"bounding_box,omitempty"`
	Position     int          `json:"position"`
	Dangling     bool         `json:"dangling,omitempty"`
}

type ReviewAudit struct {
	AuditID    string       `json:"audit_id"`
	AnswerID   string       `json:"answer_id"`
	FromStatus AnswerStatus `json:"from_status"`
	ToStatus   AnswerStatus `json:"to_status"`
	Actor      string       `json:"actor"`
	Comment    string       `json:"comment,omitempty"`
	At         time.Time    `json:"at"`
}

// GroundTruth is the human reference answer evaluations compare
// against. One per question; setting it again overwrites.
type GroundTruth struct {
	GroundTruthID string    `json:"ground_truth_id"`
	QuestionID    string    `json:"question_id"`
	AnswerText    string    `json:"answer_text"`
	Source        string    `json:"source,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// EvaluationMetrics scores one AI answer against its ground truth.
// Combined weights semantic similarity 40%, keyword overlap 20%, n-gram
// overlap 10% and the judge verdict 30%.
type EvaluationMetrics struct {
	SemanticSimilarity float64 `json:"semantic_similarity"`
	KeywordOverlap     float64 `json:"keyword_overlap"`
	NgramOverlap       float64 `json:"ngram_overlap"`
	JudgeScore         float64 `json:"judge_score"`
	CombinedScore      float64 `json:"combined_score"`
	Explanation        string  `json:"explanation"`
}

type Evaluation struct {
	EvaluationID    string            `json:"evaluation_id"`
	AnswerID        string            `json:"answer_id"`
	HumanAnswerText string            `json:"human_answer_text"`
	Metrics         EvaluationMetrics `json:"metrics"`
	CreatedAt       time.Time         `json:"created_at"`
}

type EvaluationReport struct {
	ProjectID                 string       `json:"project_id"`
	TotalQuestions            int          `json:"total_questions"`
	EvaluatedQuestions        int          `json:"evaluated_questions"`
	AverageSemanticSimilarity float64      `json:"average_semantic_similarity"`
	AverageKeywordOverlap     float64      `json:"average_keyword_overlap"`
	AverageCombinedScore      float64      `json:"average_combined_score"`
	Evaluations               []Evaluation `json:"evaluations"`
}

// Evidence is one entry of the ordered evidence set handed to the
// generator. ChunkID points at the citation-layer chunk when span
// resolution succeeded; ApproxLocator marks the fallback to the semantic
// hit's own locator.
type Evidence struct {
	ChunkID         string       `json:"chunk_id"`
	SemanticChunkID string       `json:"semantic_chunk_id,omitempty"`
	DocumentID      string       `json:"document_id"`
	DocumentName    string       `json:"document_name,omitempty"`
	Text            string       `json:"text"`
	Score           float64      `json:"score"`
	PageNumber      *int         `json:"page_number,omitempty"`
	BoundingBox     *BoundingBox `json:"bounding_box,omitempty"`
	ApproxLocator   bool         `json:"approx_locator,omitempty"`
}
