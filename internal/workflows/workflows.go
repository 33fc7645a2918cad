package workflows

import (
	"errors"
	"fmt"
	"time"

	"dossier/internal/activities"
	"dossier/internal/models"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	QueryDocumentProgress = "GetDocumentProgress"
	QueryBatchProgress    = "GetBatchProgress"
	QueryAnswerProgress   = "GetAnswerProgress"
	QueryProjectProgress  = "GetProjectProgress"

	SignalRefine = "refine"
)

// AnswerWorkflowID is the mutual-exclusion key for a question's run:
// starting a second workflow with the same ID fails, so concurrent
// triggers collapse onto one execution.
func AnswerWorkflowID(questionID string) string {
	return "answer-" + questionID
}

func DocumentIndexWorkflowID(documentID string) string {
	return "index-" + documentID
}

func EvaluationWorkflowID(answerID string) string {
	return "evaluate-" + answerID
}

func defaultActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
}

// DocumentIndexWorkflow drives one document from UPLOADED to READY:
// extract, chunk both layers, embed, index, then fan invalidation out to
// ALL_DOCS projects. Any failure parks the document in ERROR with the
// cause preserved.
func DocumentIndexWorkflow(ctx workflow.Context, input DocumentIndexInput) (string, error) {
	progress := DocumentIndexProgress{DocumentID: input.DocumentID, Stage: "starting"}
	if err := workflow.SetQueryHandler(ctx, QueryDocumentProgress, func() (DocumentIndexProgress, error) {
		return progress, nil
	}); err != nil {
		return "", err
	}
	ctx = workflow.WithActivityOptions(ctx, defaultActivityOptions())

	fail := func(stage string, err error) (string, error) {
		progress.Stage = "failed"
		progress.Error = err.Error()
		_ = workflow.ExecuteActivity(ctx, "UpdateDocumentStatusActivity", activities.UpdateDocumentStatusInput{
			DocumentID:   input.DocumentID,
			Status:       models.DocumentError,
			ErrorMessage: fmt.Sprintf("%s: %v", stage, err),
		}).Get(ctx, nil)
		return "failed", nil
	}

	progress.Stage = "extracting"
	if err := workflow.ExecuteActivity(ctx, "UpdateDocumentStatusActivity", activities.UpdateDocumentStatusInput{
		DocumentID: input.DocumentID,
		Status:     models.DocumentIndexing,
	}).Get(ctx, nil); err != nil {
		return "", err
	}

	var extracted activities.ExtractTextOutput
	if err := workflow.ExecuteActivity(ctx, "ExtractTextActivity", activities.ExtractTextInput{
		DocumentPath: input.Path,
		Format:       input.Format,
	}).Get(ctx, &extracted); err != nil {
		return fail("extract", err)
	}

	progress.Stage = "chunking"
	var chunked activities.ChunkDocumentOutput
	if err := workflow.ExecuteActivity(ctx, "ChunkDocumentActivity", activities.ChunkDocumentInput{
		DocumentID: input.DocumentID,
		Text:       extracted.Text,
		PageCount:  extracted.PageCount,
	}).Get(ctx, &chunked); err != nil {
		return fail("chunk", err)
	}
	progress.ChunkCount = len(chunked.Chunks)

	progress.Stage = "embedding"
	var embedded activities.EmbedChunksOutput
	if err := workflow.ExecuteActivity(ctx, "EmbedChunksActivity", activities.EmbedChunksInput{
		Chunks: chunked.Chunks,
	}).Get(ctx, &embedded); err != nil {
		return fail("embed", err)
	}

	progress.Stage = "indexing"
	if err := workflow.ExecuteActivity(ctx, "IndexChunksActivity", activities.IndexChunksInput{
		Document: models.Document{DocumentID: input.DocumentID, Filename: input.Filename, Format: input.Format},
		Chunks:   chunked.Chunks,
		Vectors:  embedded.Vectors,
	}).Get(ctx, nil); err != nil {
		return fail("index", err)
	}

	_ = workflow.ExecuteActivity(ctx, "WriteDocumentArtifactsActivity", activities.WriteDocumentArtifactsInput{
		DocumentID: input.DocumentID,
		Chunks:     chunked.Chunks,
		Manifest: map[string]any{
			"document_id": input.DocumentID,
			"filename":    input.Filename,
			"page_count":  extracted.PageCount,
			"chunk_count": len(chunked.Chunks),
			"embed_model": embedded.Model,
		},
	}).Get(ctx, nil)

	if err := workflow.ExecuteActivity(ctx, "UpdateDocumentStatusActivity", activities.UpdateDocumentStatusInput{
		DocumentID: input.DocumentID,
		Status:     models.DocumentReady,
		PageCount:  &extracted.PageCount,
	}).Get(ctx, nil); err != nil {
		return "", err
	}

	progress.Stage = "invalidating"
	var invalidated activities.InvalidateProjectsOutput
	if err := workflow.ExecuteActivity(ctx, "InvalidateProjectsActivity").Get(ctx, &invalidated); err != nil {
		return "", err
	}

	progress.Stage = "completed"
	return "completed", nil
}

// DocumentDeleteWorkflow removes a document and its vectors, then
// re-derives ALL_DOCS project state since the corpus just shrank.
func DocumentDeleteWorkflow(ctx workflow.Context, input DocumentDeleteInput) (string, error) {
	ctx = workflow.WithActivityOptions(ctx, defaultActivityOptions())
	if err := workflow.ExecuteActivity(ctx, "DeleteDocumentActivity", activities.DeleteDocumentInput{
		DocumentID: input.DocumentID,
	}).Get(ctx, nil); err != nil {
		return "", err
	}
	var invalidated activities.InvalidateProjectsOutput
	if err := workflow.ExecuteActivity(ctx, "InvalidateProjectsActivity").Get(ctx, &invalidated); err != nil {
		return "", err
	}
	return "completed", nil
}

// DocumentBatchIndexWorkflow fans a folder import out over bounded child
// workflows.
func DocumentBatchIndexWorkflow(ctx workflow.Context, input DocumentBatchIndexInput) (string, error) {
	progress := DocumentBatchIndexProgress{
		Total:       len(input.Documents),
		PerDocument: map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryBatchProgress, func() (DocumentBatchIndexProgress, error) {
		return progress, nil
	}); err != nil {
		return "", err
	}

	maxC := input.MaxConcurrent
	if maxC <= 0 {
		maxC = 3
	}
	for i := 0; i < len(input.Documents); i += maxC {
		end := i + maxC
		if end > len(input.Documents) {
			end = len(input.Documents)
		}
		futures := make([]workflow.ChildWorkflowFuture, 0, end-i)
		ids := make([]string, 0, end-i)
		for _, doc := range input.Documents[i:end] {
			progress.PerDocument[doc.DocumentID] = "running"
			cctx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
				WorkflowID: DocumentIndexWorkflowID(doc.DocumentID),
			})
			futures = append(futures, workflow.ExecuteChildWorkflow(cctx, DocumentIndexWorkflow, doc))
			ids = append(ids, doc.DocumentID)
		}
		for j := range futures {
			var st string
			if err := futures[j].Get(ctx, &st); err != nil {
				st = "failed"
			}
			progress.PerDocument[ids[j]] = st
			if st == "completed" {
				progress.Done++
			} else {
				progress.Failed++
			}
		}
	}
	return "completed", nil
}

// AnswerWorkflow runs the answer state machine for one question,
// checkpointing each transition through activities. A refine signal at
// any point folds reviewer feedback in and re-enters the loop at the
// rewrite step; the final answer of each pass is persisted before the
// next pass starts.
func AnswerWorkflow(ctx workflow.Context, input AnswerInput) (AnswerResult, error) {
	threadID := input.ThreadID
	if threadID == "" {
		threadID = AnswerWorkflowID(input.QuestionID)
	}
	progress := AnswerProgress{QuestionID: input.QuestionID, State: "INIT"}
	if err := workflow.SetQueryHandler(ctx, QueryAnswerProgress, func() (AnswerProgress, error) {
		return progress, nil
	}); err != nil {
		return AnswerResult{}, err
	}
	refineCh := workflow.GetSignalChannel(ctx, SignalRefine)
	ctx = workflow.WithActivityOptions(ctx, defaultActivityOptions())

	// On cancellation the checkpoint is flagged abandoned so a later
	// trigger knows this run stopped mid-flight. The flag is written on a
	// disconnected context; the cancelled one no longer runs activities.
	defer func() {
		if !errors.Is(ctx.Err(), workflow.ErrCanceled) {
			return
		}
		dctx, cancel := workflow.NewDisconnectedContext(ctx)
		defer cancel()
		_ = workflow.ExecuteActivity(dctx, "MarkRunAbandonedActivity", activities.MarkRunAbandonedInput{
			ThreadID: threadID,
		}).Get(dctx, nil)
	}()

	if input.Feedback != "" {
		if err := workflow.ExecuteActivity(ctx, "ApplyFeedbackActivity", activities.ApplyFeedbackInput{
			ThreadID: threadID,
			Feedback: input.Feedback,
		}).Get(ctx, nil); err != nil {
			return AnswerResult{}, err
		}
		progress.Refinement++
	} else {
		var initOut activities.InitAnswerRunOutput
		if err := workflow.ExecuteActivity(ctx, "InitAnswerRunActivity", activities.InitAnswerRunInput{
			ThreadID:   threadID,
			ProjectID:  input.ProjectID,
			QuestionID: input.QuestionID,
		}).Get(ctx, &initOut); err != nil {
			return AnswerResult{}, err
		}
		progress.State = string(initOut.State)
	}

	if err := workflow.ExecuteActivity(ctx, "UpdateProjectStatusActivity", activities.UpdateProjectStatusInput{
		ProjectID:           input.ProjectID,
		GenerationTriggered: true,
	}).Get(ctx, nil); err != nil {
		return AnswerResult{}, err
	}

	var result AnswerResult
	for {
		for {
			var step activities.AgentStepOutput
			if err := workflow.ExecuteActivity(ctx, "AgentStepActivity", activities.AgentStepInput{
				ThreadID: threadID,
			}).Get(ctx, &step); err != nil {
				return AnswerResult{}, err
			}
			progress.State = string(step.State)
			progress.Terminal = step.Terminal
			if step.Trace.State != "" {
				progress.Trace = append(progress.Trace, step.Trace)
			}

			var feedback string
			if refineCh.ReceiveAsync(&feedback) {
				if err := workflow.ExecuteActivity(ctx, "ApplyFeedbackActivity", activities.ApplyFeedbackInput{
					ThreadID: threadID,
					Feedback: feedback,
				}).Get(ctx, nil); err != nil {
					return AnswerResult{}, err
				}
				progress.Refinement++
				progress.Terminal = false
				continue
			}
			if step.Terminal {
				break
			}
		}

		var persisted activities.PersistAnswerOutput
		if err := workflow.ExecuteActivity(ctx, "PersistAnswerActivity", activities.PersistAnswerInput{
			ThreadID: threadID,
		}).Get(ctx, &persisted); err != nil {
			return AnswerResult{}, err
		}
		result = AnswerResult{
			AnswerID:        persisted.AnswerID,
			State:           progress.State,
			IsAnswerable:    persisted.IsAnswerable,
			ConfidenceScore: persisted.ConfidenceScore,
		}

		if err := workflow.ExecuteActivity(ctx, "UpdateProjectStatusActivity", activities.UpdateProjectStatusInput{
			ProjectID:           input.ProjectID,
			GenerationTriggered: true,
		}).Get(ctx, nil); err != nil {
			return AnswerResult{}, err
		}

		// A refine signal that raced the terminal transition starts
		// another pass instead of being dropped.
		var feedback string
		if refineCh.ReceiveAsync(&feedback) {
			if err := workflow.ExecuteActivity(ctx, "ApplyFeedbackActivity", activities.ApplyFeedbackInput{
				ThreadID: threadID,
				Feedback: feedback,
			}).Get(ctx, nil); err != nil {
				return AnswerResult{}, err
			}
			progress.Refinement++
			progress.Terminal = false
			continue
		}
		return result, nil
	}
}

// ProjectAnswerWorkflow generates answers for every question of a
// project with bounded child concurrency. Child workflow IDs reuse the
// per-question key, so a batch run and a single-question trigger cannot
// double-run the same question.
func ProjectAnswerWorkflow(ctx workflow.Context, input ProjectAnswerInput) (string, error) {
	progress := ProjectAnswerProgress{ProjectID: input.ProjectID, PerQuestion: map[string]string{}}
	if err := workflow.SetQueryHandler(ctx, QueryProjectProgress, func() (ProjectAnswerProgress, error) {
		return progress, nil
	}); err != nil {
		return "", err
	}
	ctx = workflow.WithActivityOptions(ctx, defaultActivityOptions())

	var questions activities.ListProjectQuestionsOutput
	if err := workflow.ExecuteActivity(ctx, "ListProjectQuestionsActivity", activities.ListProjectQuestionsInput{
		ProjectID: input.ProjectID,
	}).Get(ctx, &questions); err != nil {
		return "", err
	}
	progress.Total = len(questions.QuestionIDs)

	maxC := input.MaxConcurrent
	if maxC <= 0 {
		maxC = 3
	}
	for i := 0; i < len(questions.QuestionIDs); i += maxC {
		end := i + maxC
		if end > len(questions.QuestionIDs) {
			end = len(questions.QuestionIDs)
		}
		futures := make([]workflow.ChildWorkflowFuture, 0, end-i)
		qids := make([]string, 0, end-i)
		for _, qid := range questions.QuestionIDs[i:end] {
			progress.PerQuestion[qid] = "running"
			cctx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
				WorkflowID: AnswerWorkflowID(qid),
			})
			futures = append(futures, workflow.ExecuteChildWorkflow(cctx, AnswerWorkflow, AnswerInput{
				ProjectID:  input.ProjectID,
				QuestionID: qid,
			}))
			qids = append(qids, qid)
		}
		for j := range futures {
			var res AnswerResult
			if err := futures[j].Get(ctx, &res); err != nil {
				progress.PerQuestion[qids[j]] = "failed"
				progress.Failed++
				continue
			}
			progress.PerQuestion[qids[j]] = res.State
			progress.Done++
		}
	}

	if err := workflow.ExecuteActivity(ctx, "UpdateProjectStatusActivity", activities.UpdateProjectStatusInput{
		ProjectID:           input.ProjectID,
		GenerationTriggered: true,
	}).Get(ctx, nil); err != nil {
		return "", err
	}
	return "completed", nil
}

// EvaluationWorkflow scores one AI answer against its ground truth.
// Single activity, but running it on the task queue keeps provider
// access on the worker and gives the comparison the activity retry
// policy for free.
func EvaluationWorkflow(ctx workflow.Context, input EvaluationInput) (models.Evaluation, error) {
	ctx = workflow.WithActivityOptions(ctx, defaultActivityOptions())
	var out activities.EvaluateAnswerOutput
	if err := workflow.ExecuteActivity(ctx, "EvaluateAnswerActivity", activities.EvaluateAnswerInput{
		AnswerID:        input.AnswerID,
		HumanAnswerText: input.HumanAnswerText,
	}).Get(ctx, &out); err != nil {
		return models.Evaluation{}, err
	}
	return out.Evaluation, nil
}
