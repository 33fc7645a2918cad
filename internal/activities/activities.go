package activities

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dossier/internal/agent"
	"dossier/internal/config"
	"dossier/internal/evaluation"
	"dossier/internal/index"
	"dossier/internal/lifecycle"
	"dossier/internal/logger"
	"dossier/internal/models"
	"dossier/internal/providers"
	"dossier/internal/retrieval"
	"dossier/internal/storage"
	"dossier/internal/util"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"
)

// embedBatchSize caps one provider call; batches embed concurrently.
const embedBatchSize = 32

type Activities struct {
	cfg            config.Config
	log            *logger.Logger
	documentRepo   *storage.DocumentRepo
	projectRepo    *storage.ProjectRepo
	questionRepo   *storage.QuestionRepo
	answerRepo     *storage.AnswerRepo
	checkpointRepo *storage.CheckpointRepo
	llmAuditRepo   *storage.LLMAuditRepo
	idx            index.Index
	failover       *providers.Failover
	retriever      *retrieval.Engine
	invalidator    *lifecycle.Invalidator
	evaluationRepo *storage.EvaluationRepo
}

func New(cfg config.Config, db *storage.DB, log *logger.Logger) (*Activities, error) {
	pm, err := providers.NewManager(cfg)
	if err != nil {
		return nil, err
	}
	failover := providers.NewFailover(pm, time.Duration(cfg.ProviderCooldownSecs)*time.Second)
	idx := index.NewPostgres(db.Pool)
	answerRepo := storage.NewAnswerRepo(db)
	projectRepo := storage.NewProjectRepo(db)
	return &Activities{
		cfg:            cfg,
		log:            log,
		documentRepo:   storage.NewDocumentRepo(db),
		projectRepo:    projectRepo,
		questionRepo:   storage.NewQuestionRepo(db),
		answerRepo:     answerRepo,
		checkpointRepo: storage.NewCheckpointRepo(db),
		llmAuditRepo:   storage.NewLLMAuditRepo(db),
		idx:            idx,
		failover:       failover,
		retriever: retrieval.NewEngine(idx, failover, retrieval.Options{
			TopK:         cfg.RetrievalTopK,
			MinScore:     cfg.RetrievalMinScore,
			LexicalBoost: cfg.LexicalBoost,
			EmbedDim:     cfg.EmbedDim,
		}),
		invalidator:    lifecycle.NewInvalidator(projectRepo, answerRepo),
		evaluationRepo: storage.NewEvaluationRepo(db),
	}, nil
}

func (a *Activities) ExtractTextActivity(ctx context.Context, in ExtractTextInput) (ExtractTextOutput, error) {
	_ = ctx
	switch strings.ToLower(in.Format) {
	case "pdf":
		return extractPDF(in.DocumentPath)
	default:
		b, err := os.ReadFile(in.DocumentPath)
		if err != nil {
			return ExtractTextOutput{}, fmt.Errorf("read document: %w", err)
		}
		text := util.SanitizeText(strings.TrimSpace(string(b)))
		if text == "" {
			return ExtractTextOutput{}, util.ErrNoExtractableText
		}
		return ExtractTextOutput{Text: text, PageCount: 1}, nil
	}
}

func extractPDF(path string) (ExtractTextOutput, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return ExtractTextOutput{}, fmt.Errorf("open pdf: %w: %v", util.ErrParseFailure, err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return ExtractTextOutput{}, fmt.Errorf("extract pdf text: %w: %v", util.ErrParseFailure, err)
	}
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, reader); err != nil {
		return ExtractTextOutput{}, fmt.Errorf("read extracted text: %w", err)
	}
	text := util.SanitizeText(strings.TrimSpace(buf.String()))
	if text == "" {
		return ExtractTextOutput{}, util.ErrNoExtractableText
	}
	return ExtractTextOutput{Text: text, PageCount: r.NumPage()}, nil
}

// ChunkDocumentActivity produces both layers in one pass: broad
// overlapping chunks for recall and tight sentence-bounded spans for
// citation locators.
func (a *Activities) ChunkDocumentActivity(ctx context.Context, in ChunkDocumentInput) (ChunkDocumentOutput, error) {
	_ = ctx
	chunks := make([]ChunkPayload, 0)
	for idx, part := range util.ChunkText(in.Text, a.cfg.SemanticChunkSize, a.cfg.SemanticChunkOverlap) {
		part = util.SanitizeText(part)
		if part == "" {
			continue
		}
		chunks = append(chunks, ChunkPayload{
			ChunkID:    chunkID(in.DocumentID, models.LayerSemantic, idx, part),
			DocumentID: in.DocumentID,
			Layer:      models.LayerSemantic,
			ChunkIndex: idx,
			Text:       part,
		})
	}
	for idx, span := range util.SplitSpans(in.Text, a.cfg.CitationChunkSize) {
		span = util.SanitizeText(span)
		if span == "" {
			continue
		}
		chunks = append(chunks, ChunkPayload{
			ChunkID:    chunkID(in.DocumentID, models.LayerCitation, idx, span),
			DocumentID: in.DocumentID,
			Layer:      models.LayerCitation,
			ChunkIndex: idx,
			Text:       span,
		})
	}
	return ChunkDocumentOutput{Chunks: chunks}, nil
}

func chunkID(documentID string, layer models.IndexLayer, idx int, text string) string {
	return util.ChunkFingerprint(documentID, string(layer), idx, text)
}

func (a *Activities) EmbedChunksActivity(ctx context.Context, in EmbedChunksInput) (EmbedChunksOutput, error) {
	vectors := make([][]float32, len(in.Chunks))
	var providerName, model string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for start := 0; start < len(in.Chunks); start += embedBatchSize {
		start := start
		end := start + embedBatchSize
		if end > len(in.Chunks) {
			end = len(in.Chunks)
		}
		g.Go(func() error {
			inputs := make([]string, 0, end-start)
			for _, c := range in.Chunks[start:end] {
				inputs = append(inputs, c.Text)
			}
			batch, info, err := a.failover.Embed(gctx, providers.EmbedRequest{
				Operation: "embed_chunks",
				Inputs:    inputs,
				Dimension: a.cfg.EmbedDim,
			})
			if err != nil {
				return fmt.Errorf("%w: %v", util.ErrEmbeddingFailure, err)
			}
			if len(batch) != end-start {
				return fmt.Errorf("%w: got %d vectors for %d inputs", util.ErrEmbeddingFailure, len(batch), end-start)
			}
			copy(vectors[start:end], batch)
			providerName, model = info.Name, info.Model
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return EmbedChunksOutput{}, err
	}
	return EmbedChunksOutput{Vectors: vectors, ProviderName: providerName, Model: model}, nil
}

func (a *Activities) IndexChunksActivity(ctx context.Context, in IndexChunksInput) error {
	chunks := make([]models.Chunk, 0, len(in.Chunks))
	for _, c := range in.Chunks {
		chunks = append(chunks, models.Chunk{
			ChunkID:    c.ChunkID,
			DocumentID: c.DocumentID,
			Layer:      c.Layer,
			ChunkIndex: c.ChunkIndex,
			Text:       c.Text,
			PageNumber: c.PageNumber,
		})
	}
	if err := a.idx.Add(ctx, in.Document, chunks, in.Vectors); err != nil {
		return fmt.Errorf("index chunks: %w", err)
	}
	return a.documentRepo.SetChunkCount(ctx, in.Document.DocumentID, len(chunks))
}

func (a *Activities) UpdateDocumentStatusActivity(ctx context.Context, in UpdateDocumentStatusInput) error {
	return a.documentRepo.UpdateStatus(ctx, in.DocumentID, in.Status, in.ErrorMessage, in.PageCount)
}

func (a *Activities) WriteDocumentArtifactsActivity(ctx context.Context, in WriteDocumentArtifactsInput) error {
	_ = ctx
	base := filepath.Join(a.cfg.DataOutRoot, "documents", in.DocumentID)
	if err := util.EnsureDir(base); err != nil {
		return err
	}
	if err := util.WriteJSONAtomic(filepath.Join(base, "chunks.json"), in.Chunks); err != nil {
		return err
	}
	return util.WriteJSONAtomic(filepath.Join(base, "manifest.json"), in.Manifest)
}

func (a *Activities) InvalidateProjectsActivity(ctx context.Context) (InvalidateProjectsOutput, error) {
	outdated, err := a.invalidator.OnDocumentReady(ctx)
	if err != nil {
		return InvalidateProjectsOutput{}, err
	}
	if len(outdated) > 0 {
		a.log.Info("invalidated projects after document index", "count", len(outdated))
	}
	return InvalidateProjectsOutput{OutdatedProjectIDs: outdated}, nil
}

func (a *Activities) DeleteDocumentActivity(ctx context.Context, in DeleteDocumentInput) error {
	if err := a.idx.Delete(ctx, in.DocumentID); err != nil {
		return fmt.Errorf("delete document chunks: %w", err)
	}
	return a.documentRepo.Delete(ctx, in.DocumentID)
}

func (a *Activities) InitAnswerRunActivity(ctx context.Context, in InitAnswerRunInput) (InitAnswerRunOutput, error) {
	question, err := a.questionRepo.Get(ctx, in.QuestionID)
	if err != nil {
		return InitAnswerRunOutput{}, err
	}
	project, err := a.projectRepo.Get(ctx, in.ProjectID)
	if err != nil {
		return InitAnswerRunOutput{}, err
	}
	scope := index.Scope{}
	if project.Scope == models.ScopeSpecific {
		scope.DocumentIDs = project.DocumentIDs
	}
	cp := agent.NewCheckpoint(in.ThreadID, in.ProjectID, in.QuestionID, question.Text, scope)
	if err := a.checkpointRepo.Save(ctx, cp); err != nil {
		return InitAnswerRunOutput{}, err
	}
	return InitAnswerRunOutput{State: cp.State}, nil
}

// AgentStepActivity advances the run by exactly one transition. The
// checkpoint is reloaded and re-persisted around the step, so a worker
// crash replays at most one transition.
func (a *Activities) AgentStepActivity(ctx context.Context, in AgentStepInput) (AgentStepOutput, error) {
	cp, err := a.checkpointRepo.Load(ctx, in.ThreadID)
	if err != nil {
		return AgentStepOutput{}, err
	}
	if cp.State.Terminal() {
		return AgentStepOutput{State: cp.State, Terminal: true}, nil
	}
	llm := &auditingLLM{inner: a.failover, repo: a.llmAuditRepo, projectID: cp.ProjectID, questionID: cp.QuestionID}
	machine := agent.NewMachine(a.retriever, llm, agent.Options{
		MaxRetries:   a.cfg.MaxRetries,
		RetryPenalty: a.cfg.RetryPenalty,
	})
	next, err := machine.Step(ctx, cp)
	if err != nil {
		return AgentStepOutput{}, err
	}
	if err := a.checkpointRepo.Save(ctx, next); err != nil {
		return AgentStepOutput{}, err
	}
	out := AgentStepOutput{State: next.State, Terminal: next.State.Terminal()}
	if len(next.Trace) > 0 {
		out.Trace = next.Trace[len(next.Trace)-1]
	}
	return out, nil
}

func (a *Activities) ApplyFeedbackActivity(ctx context.Context, in ApplyFeedbackInput) error {
	cp, err := a.checkpointRepo.Load(ctx, in.ThreadID)
	if err != nil {
		return err
	}
	return a.checkpointRepo.Save(ctx, agent.ApplyFeedback(cp, in.Feedback))
}

// MarkRunAbandonedActivity flags a cancelled run's checkpoint. It runs
// on a disconnected context after the workflow is cancelled; a run that
// never checkpointed has nothing to flag.
func (a *Activities) MarkRunAbandonedActivity(ctx context.Context, in MarkRunAbandonedInput) error {
	cp, err := a.checkpointRepo.Load(ctx, in.ThreadID)
	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			return nil
		}
		return err
	}
	return a.checkpointRepo.Save(ctx, agent.Abandon(cp))
}

func (a *Activities) PersistAnswerActivity(ctx context.Context, in PersistAnswerInput) (PersistAnswerOutput, error) {
	cp, err := a.checkpointRepo.Load(ctx, in.ThreadID)
	if err != nil {
		return PersistAnswerOutput{}, err
	}
	if !cp.State.Terminal() {
		return PersistAnswerOutput{}, fmt.Errorf("run %s not terminal, state %s", in.ThreadID, cp.State)
	}
	answer, citations := agent.BuildAnswer(cp, a.cfg.RetryPenalty)
	if err := a.answerRepo.Insert(ctx, answer, citations); err != nil {
		return PersistAnswerOutput{}, err
	}
	return PersistAnswerOutput{
		AnswerID:        answer.AnswerID,
		IsAnswerable:    answer.IsAnswerable,
		ConfidenceScore: answer.ConfidenceScore,
		CitationCount:   len(citations),
	}, nil
}

// EvaluateAnswerActivity scores one AI answer against its human ground
// truth and stores the result. Judge calls are audited under the
// answer's question like every other LLM call.
func (a *Activities) EvaluateAnswerActivity(ctx context.Context, in EvaluateAnswerInput) (EvaluateAnswerOutput, error) {
	answer, err := a.answerRepo.Get(ctx, in.AnswerID)
	if err != nil {
		return EvaluateAnswerOutput{}, err
	}
	question, err := a.questionRepo.Get(ctx, answer.QuestionID)
	if err != nil {
		return EvaluateAnswerOutput{}, err
	}
	humanText := in.HumanAnswerText
	if humanText == "" {
		gt, err := a.evaluationRepo.GetGroundTruth(ctx, answer.QuestionID)
		if err != nil {
			return EvaluateAnswerOutput{}, err
		}
		humanText = gt.AnswerText
	}

	llm := &auditingLLM{inner: a.failover, repo: a.llmAuditRepo, projectID: question.ProjectID, questionID: question.QuestionID}
	comp := evaluation.NewComparator(a.failover, evaluation.NewJudge(llm), a.cfg.EmbedDim)
	eval := models.Evaluation{
		EvaluationID:    uuid.NewString(),
		AnswerID:        answer.AnswerID,
		HumanAnswerText: humanText,
		Metrics:         comp.Compare(ctx, question.Text, answer.Text, humanText),
		CreatedAt:       time.Now().UTC(),
	}
	if err := a.evaluationRepo.Insert(ctx, eval); err != nil {
		return EvaluateAnswerOutput{}, err
	}
	return EvaluateAnswerOutput{Evaluation: eval}, nil
}

func (a *Activities) UpdateProjectStatusActivity(ctx context.Context, in UpdateProjectStatusInput) (UpdateProjectStatusOutput, error) {
	project, err := a.projectRepo.Get(ctx, in.ProjectID)
	if err != nil {
		return UpdateProjectStatusOutput{}, err
	}
	questions, err := a.questionRepo.ListByProject(ctx, in.ProjectID)
	if err != nil {
		return UpdateProjectStatusOutput{}, err
	}
	answers, err := a.answerRepo.ListCurrentByProject(ctx, in.ProjectID)
	if err != nil {
		return UpdateProjectStatusOutput{}, err
	}
	questionIDs := make([]string, 0, len(questions))
	for _, q := range questions {
		questionIDs = append(questionIDs, q.QuestionID)
	}
	live := make(map[string]models.AnswerStatus, len(answers))
	for _, ans := range answers {
		live[ans.QuestionID] = ans.Status
	}
	status := lifecycle.DeriveStatus(project.Status, questionIDs, live, in.GenerationTriggered)
	if status == project.Status {
		return UpdateProjectStatusOutput{Status: status}, nil
	}
	if err := a.projectRepo.SetStatus(ctx, in.ProjectID, status); err != nil {
		return UpdateProjectStatusOutput{}, err
	}
	return UpdateProjectStatusOutput{Status: status}, nil
}

func (a *Activities) ListProjectQuestionsActivity(ctx context.Context, in ListProjectQuestionsInput) (ListProjectQuestionsOutput, error) {
	questions, err := a.questionRepo.ListByProject(ctx, in.ProjectID)
	if err != nil {
		return ListProjectQuestionsOutput{}, err
	}
	out := ListProjectQuestionsOutput{QuestionIDs: make([]string, 0, len(questions))}
	for _, q := range questions {
		out.QuestionIDs = append(out.QuestionIDs, q.QuestionID)
	}
	return out, nil
}
