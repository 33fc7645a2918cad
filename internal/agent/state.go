package agent

import (
	"context"
	"time"

	"dossier/internal/index"
	"dossier/internal/models"
)

// State names one node of the answer state machine. Terminal states are
// StateDone and StateUnanswerable.
type State string

const (
	StateRetrieve     State = "RETRIEVE"
	StateGrade        State = "GRADE"
	StateRewrite      State = "REWRITE"
	StateGenerate     State = "GENERATE"
	StateVerify       State = "VERIFY"
	StateDone         State = "DONE"
	StateUnanswerable State = "UNANSWERABLE"
)

func (s State) Terminal() bool {
	return s == StateDone || s == StateUnanswerable
}

// Checkpoint is the full resumable state of one answer run, persisted
// after every transition. A worker crash resumes from the last stored
// transition rather than restarting the run.
type Checkpoint struct {
	ThreadID   string `json:"thread_id"`
	ProjectID  string `json:"project_id"`
	QuestionID string `json:"question_id"`

	Question     string `json:"question"`
	WorkingQuery string `json:"working_query"`
	Feedback     string `json:"feedback,omitempty"`
	// RewriteReason carries why the run is back at REWRITE so the next
	// query prompt can steer away from the failure.
	RewriteReason string `json:"rewrite_reason,omitempty"`

	Scope index.Scope `json:"scope"`
	State State       `json:"state"`

	RetrievalRetries  int `json:"retrieval_retries"`
	GenerationRetries int `json:"generation_retries"`

	Evidence     []models.Evidence `json:"evidence,omitempty"`
	Draft        string            `json:"draft,omitempty"`
	CitedIndices []int             `json:"cited_indices,omitempty"`
	IsAnswerable bool              `json:"is_answerable"`

	Trace     []models.TraceEntry `json:"trace,omitempty"`
	Abandoned bool                `json:"abandoned,omitempty"`
}

// NewCheckpoint seeds a run at RETRIEVE with the raw question as the
// working query.
func NewCheckpoint(threadID, projectID, questionID, question string, scope index.Scope) Checkpoint {
	return Checkpoint{
		ThreadID:     threadID,
		ProjectID:    projectID,
		QuestionID:   questionID,
		Question:     question,
		WorkingQuery: question,
		Scope:        scope,
		State:        StateRetrieve,
	}
}

// ApplyFeedback prepares a refinement pass: reviewer feedback is folded
// into the next rewrite and both retry budgets start over.
func ApplyFeedback(cp Checkpoint, feedback string) Checkpoint {
	cp.Feedback = feedback
	cp.RetrievalRetries = 0
	cp.GenerationRetries = 0
	cp.State = StateRewrite
	cp.Abandoned = false
	cp.Draft = ""
	cp.CitedIndices = nil
	cp.IsAnswerable = false
	return cp
}

// Abandon flags a cancelled run. The checkpoint stays loadable, so the
// question can be re-triggered or refined later from where it stopped.
func Abandon(cp Checkpoint) Checkpoint {
	cp.Abandoned = true
	return cp
}

// trace records the node that just executed; cp.State already holds the
// successor by the time a transition traces itself.
func (cp *Checkpoint) trace(node State, summary string) {
	cp.Trace = append(cp.Trace, models.TraceEntry{
		State:   string(node),
		At:      time.Now().UTC(),
		Summary: summary,
	})
}

// Checkpointer persists checkpoints between transitions.
type Checkpointer interface {
	Save(ctx context.Context, cp Checkpoint) error
	Load(ctx context.Context, threadID string) (Checkpoint, error)
	Delete(ctx context.Context, threadID string) error
}

// Retriever is satisfied by the hybrid retrieval engine.
type Retriever interface {
	Retrieve(ctx context.Context, query string, scope index.Scope) ([]models.Evidence, error)
}
