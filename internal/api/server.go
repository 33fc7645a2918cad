package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dossier/internal/agent"
	"dossier/internal/config"
	"dossier/internal/evaluation"
	"dossier/internal/lifecycle"
	"dossier/internal/logger"
	"dossier/internal/models"
	"dossier/internal/questionnaire"
	"dossier/internal/storage"
	"dossier/internal/util"
	"dossier/internal/workflows"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	tclient "go.temporal.io/sdk/client"
)

type Server struct {
	cfg          config.Config
	log          *logger.Logger
	db           *storage.DB
	documentRepo *storage.DocumentRepo
	projectRepo  *storage.ProjectRepo
	questionRepo *storage.QuestionRepo
	answerRepo   *storage.AnswerRepo
	llmAuditRepo *storage.LLMAuditRepo
	checkpoints  *storage.CheckpointRepo
	evaluations  *storage.EvaluationRepo
	temporal     tclient.Client
}

func NewServer(cfg config.Config, log *logger.Logger) *Server {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		panic(err)
	}
	tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		panic(err)
	}
	return &Server{
		cfg:          cfg,
		log:          log,
		db:           db,
		documentRepo: storage.NewDocumentRepo(db),
		projectRepo:  storage.NewProjectRepo(db),
		questionRepo: storage.NewQuestionRepo(db),
		answerRepo:   storage.NewAnswerRepo(db),
		llmAuditRepo: storage.NewLLMAuditRepo(db),
		checkpoints:  storage.NewCheckpointRepo(db),
		evaluations:  storage.NewEvaluationRepo(db),
		temporal:     tc,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/documents", s.handleDocuments)
	mux.HandleFunc("/documents/", s.handleDocumentScoped)
	mux.HandleFunc("/projects", s.handleProjects)
	mux.HandleFunc("/projects/", s.handleProjectScoped)
	mux.HandleFunc("/questions/", s.handleQuestionScoped)
	mux.HandleFunc("/answers/", s.handleAnswerScoped)
	mux.HandleFunc("/tasks/", s.handleTask)
	mux.HandleFunc("/evaluation/", s.handleEvaluationScoped)
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		docs, err := s.documentRepo.List(r.Context())
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
	case http.MethodPost:
		s.handleUpload(w, r)
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

var supportedFormats = map[string]bool{"pdf": true, "txt": true, "md": true}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(128 << 20); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("parse multipart: %w", err))
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		if single, ok := firstSingleFile(r.MultipartForm.File); ok {
			files = append(files, single)
		}
	}
	if len(files) == 0 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("no files provided"))
		return
	}
	if err := util.EnsureDir(s.cfg.DataInRoot); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	type uploadResult struct {
		Filename   string `json:"filename"`
		DocumentID string `json:"document_id"`
		WorkflowID string `json:"workflow_id"`
	}
	out := make([]uploadResult, 0, len(files))
	for _, fh := range files {
		format := strings.TrimPrefix(strings.ToLower(filepath.Ext(fh.Filename)), ".")
		if !supportedFormats[format] {
			continue
		}
		documentID, savedPath, err := saveUploadedFile(s.cfg.DataInRoot, fh)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		filename := filepath.Base(savedPath)
		if err := s.documentRepo.Upsert(r.Context(), models.Document{
			DocumentID: documentID,
			Filename:   filename,
			Format:     format,
			Status:     models.DocumentUploaded,
		}); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
			ID:                    workflows.DocumentIndexWorkflowID(documentID),
			TaskQueue:             s.cfg.TemporalTaskQueue,
			WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		}, workflows.DocumentIndexWorkflow, workflows.DocumentIndexInput{
			DocumentID: documentID,
			Filename:   filename,
			Path:       savedPath,
			Format:     format,
		})
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		out = append(out, uploadResult{Filename: filename, DocumentID: documentID, WorkflowID: we.GetID()})
	}
	if len(out) == 0 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("no supported files provided"))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"uploaded": out})
}

func (s *Server) handleDocumentScoped(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/documents/")
	if len(parts) == 0 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	documentID := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		doc, err := s.documentRepo.Get(r.Context(), documentID)
		if err != nil {
			writeErr(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		if _, err := s.documentRepo.Get(r.Context(), documentID); err != nil {
			writeErr(w, statusFor(err), err)
			return
		}
		we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
			ID:        "delete-" + documentID,
			TaskQueue: s.cfg.TemporalTaskQueue,
		}, workflows.DocumentDeleteWorkflow, workflows.DocumentDeleteInput{DocumentID: documentID})
		if err != nil {
			writeErr(w, http.StatusConflict, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"workflow_id": we.GetID(), "run_id": we.GetRunID()})
	case len(parts) == 2 && parts[1] == "progress" && r.Method == http.MethodGet:
		var prog workflows.DocumentIndexProgress
		resp, err := s.temporal.QueryWorkflow(r.Context(), workflows.DocumentIndexWorkflowID(documentID), "", workflows.QueryDocumentProgress)
		if err != nil {
			doc, dErr := s.documentRepo.Get(r.Context(), documentID)
			if dErr != nil {
				writeErr(w, statusFor(dErr), dErr)
				return
			}
			writeJSON(w, http.StatusOK, workflows.DocumentIndexProgress{
				DocumentID: documentID,
				Stage:      strings.ToLower(string(doc.Status)),
				ChunkCount: doc.ChunkCount,
				Error:      doc.ErrorMessage,
			})
			return
		}
		if err := resp.Get(&prog); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, prog)
	case len(parts) == 2 && parts[1] == "reindex" && r.Method == http.MethodPost:
		doc, err := s.documentRepo.Get(r.Context(), documentID)
		if err != nil {
			writeErr(w, statusFor(err), err)
			return
		}
		we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
			ID:                    workflows.DocumentIndexWorkflowID(documentID),
			TaskQueue:             s.cfg.TemporalTaskQueue,
			WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		}, workflows.DocumentIndexWorkflow, workflows.DocumentIndexInput{
			DocumentID: doc.DocumentID,
			Filename:   doc.Filename,
			Path:       filepath.Join(s.cfg.DataInRoot, doc.Filename),
			Format:     doc.Format,
		})
		if err != nil {
			writeErr(w, http.StatusConflict, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"workflow_id": we.GetID(), "run_id": we.GetRunID()})
	default:
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
	}
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		projects, err := s.projectRepo.List(r.Context())
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
	case http.MethodPost:
		var req struct {
			Name        string   `json:"name"`
			Description string   `json:"description"`
			Scope       string   `json:"scope"`
			DocumentIDs []string `json:"document_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("name is required"))
			return
		}
		scope := models.ProjectScope(strings.ToUpper(strings.TrimSpace(req.Scope)))
		if scope == "" {
			scope = models.ScopeAllDocs
		}
		if scope != models.ScopeAllDocs && scope != models.ScopeSpecific {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("scope must be ALL_DOCS or SPECIFIC"))
			return
		}
		if scope == models.ScopeSpecific && len(req.DocumentIDs) == 0 {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("document_ids required for SPECIFIC scope"))
			return
		}
		project := models.Project{
			ProjectID:   uuid.NewString(),
			Name:        req.Name,
			Description: req.Description,
			Scope:       scope,
			DocumentIDs: req.DocumentIDs,
			Status:      models.ProjectDraft,
		}
		if err := s.projectRepo.Create(r.Context(), project); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusCreated, project)
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) handleProjectScoped(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/projects/")
	if len(parts) == 0 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	projectID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			project, err := s.projectRepo.Get(r.Context(), projectID)
			if err != nil {
				writeErr(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusOK, project)
		case http.MethodPut:
			s.handleProjectUpdate(w, r, projectID)
		case http.MethodDelete:
			if err := s.projectRepo.Delete(r.Context(), projectID); err != nil {
				writeErr(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"deleted": projectID})
		default:
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		}
		return
	}

	switch parts[1] {
	case "sections":
		s.handleSections(w, r, projectID)
	case "questions":
		s.handleQuestions(w, r, projectID)
	case "import":
		s.handleImport(w, r, projectID)
	case "generate":
		s.handleGenerate(w, r, projectID)
	case "progress":
		s.handleProjectProgress(w, r, projectID)
	case "answers":
		s.handleProjectAnswers(w, r, projectID)
	case "tasks":
		s.handleProjectTasks(w, r, projectID)
	default:
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
	}
}

func (s *Server) handleProjectUpdate(w http.ResponseWriter, r *http.Request, projectID string) {
	project, err := s.projectRepo.Get(r.Context(), projectID)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	var req struct {
		Name        *string  `json:"name"`
		Description *string  `json:"description"`
		DocumentIDs []string `json:"document_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if req.Name != nil {
		project.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		project.Description = *req.Description
	}
	if req.DocumentIDs != nil {
		if project.Scope != models.ScopeSpecific {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("document_ids only apply to SPECIFIC scope"))
			return
		}
		project.DocumentIDs = req.DocumentIDs
	}
	if err := s.projectRepo.Update(r.Context(), project); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleSections(w http.ResponseWriter, r *http.Request, projectID string) {
	switch r.Method {
	case http.MethodGet:
		sections, err := s.questionRepo.ListSections(r.Context(), projectID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sections": sections})
	case http.MethodPost:
		var req struct {
			Title    string `json:"title"`
			Position int    `json:"position"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
			return
		}
		if strings.TrimSpace(req.Title) == "" {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("title is required"))
			return
		}
		section := models.Section{
			SectionID: uuid.NewString(),
			ProjectID: projectID,
			Title:     strings.TrimSpace(req.Title),
			Position:  req.Position,
		}
		if err := s.questionRepo.CreateSection(r.Context(), section); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusCreated, section)
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) handleQuestions(w http.ResponseWriter, r *http.Request, projectID string) {
	switch r.Method {
	case http.MethodGet:
		questions, err := s.questionRepo.ListByProject(r.Context(), projectID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"questions": questions})
	case http.MethodPost:
		var req struct {
			Text      string `json:"text"`
			SectionID string `json:"section_id"`
			Position  int    `json:"position"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("text is required"))
			return
		}
		question := models.Question{
			QuestionID: uuid.NewString(),
			ProjectID:  projectID,
			SectionID:  req.SectionID,
			Text:       strings.TrimSpace(req.Text),
			Position:   req.Position,
		}
		if err := s.questionRepo.Create(r.Context(), question); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusCreated, question)
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

// handleImport loads a whole questionnaire in one shot. A JSON body
// carries explicit sections; a plaintext or markdown body is parsed
// into sections first.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request, projectID string) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if _, err := s.projectRepo.Get(r.Context(), projectID); err != nil {
		writeErr(w, statusFor(err), err)
		return
	}

	var sections []questionnaire.Section
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req struct {
			Sections []questionnaire.Section `json:"sections"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
			return
		}
		sections = req.Sections
	} else {
		raw, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
		if err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		sections, err = questionnaire.Parse(string(raw))
		if err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
	}
	if len(sections) == 0 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("sections are required"))
		return
	}

	imported := 0
	position := 0
	for si, sec := range sections {
		if strings.TrimSpace(sec.Title) == "" {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("section %d: title is required", si))
			return
		}
		section := models.Section{
			SectionID: uuid.NewString(),
			ProjectID: projectID,
			Title:     strings.TrimSpace(sec.Title),
			Position:  si,
		}
		if err := s.questionRepo.CreateSection(r.Context(), section); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		for _, text := range sec.Questions {
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			if err := s.questionRepo.Create(r.Context(), models.Question{
				QuestionID: uuid.NewString(),
				ProjectID:  projectID,
				SectionID:  section.SectionID,
				Text:       text,
				Position:   position,
			}); err != nil {
				writeErr(w, http.StatusInternalServerError, err)
				return
			}
			position++
			imported++
		}
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sections": len(sections), "questions": imported})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request, projectID string) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                                       "generate-" + projectID,
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.ProjectAnswerWorkflow, workflows.ProjectAnswerInput{
		ProjectID:     projectID,
		MaxConcurrent: s.cfg.IndexMaxChildren,
	})
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"workflow_id": we.GetID(), "run_id": we.GetRunID()})
}

func (s *Server) handleProjectProgress(w http.ResponseWriter, r *http.Request, projectID string) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var prog workflows.ProjectAnswerProgress
	resp, err := s.temporal.QueryWorkflow(r.Context(), "generate-"+projectID, "", workflows.QueryProjectProgress)
	if err != nil {
		// No live workflow: derive from stored answers.
		questions, qErr := s.questionRepo.ListByProject(r.Context(), projectID)
		if qErr != nil {
			writeErr(w, http.StatusInternalServerError, qErr)
			return
		}
		answers, aErr := s.answerRepo.ListCurrentByProject(r.Context(), projectID)
		if aErr != nil {
			writeErr(w, http.StatusInternalServerError, aErr)
			return
		}
		per := make(map[string]string, len(questions))
		for _, q := range questions {
			per[q.QuestionID] = "pending"
		}
		for _, a := range answers {
			per[a.QuestionID] = "answered"
		}
		writeJSON(w, http.StatusOK, workflows.ProjectAnswerProgress{
			ProjectID:   projectID,
			Total:       len(questions),
			Done:        len(answers),
			PerQuestion: per,
		})
		return
	}
	if err := resp.Get(&prog); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, prog)
}

func (s *Server) handleProjectAnswers(w http.ResponseWriter, r *http.Request, projectID string) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	answers, err := s.answerRepo.ListCurrentByProject(r.Context(), projectID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"answers": answers})
}

func (s *Server) handleQuestionScoped(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/questions/")
	if len(parts) == 0 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	questionID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			question, err := s.questionRepo.Get(r.Context(), questionID)
			if err != nil {
				writeErr(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusOK, question)
		case http.MethodDelete:
			s.handleQuestionDelete(w, r, questionID)
		default:
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		}
		return
	}

	switch parts[1] {
	case "generate":
		s.handleQuestionGenerate(w, r, questionID)
	case "answer":
		s.handleQuestionAnswer(w, r, questionID)
	case "answers":
		s.handleQuestionHistory(w, r, questionID)
	case "trace":
		s.handleQuestionTrace(w, r, questionID)
	case "refine":
		s.handleQuestionRefine(w, r, questionID)
	case "cancel":
		s.handleQuestionCancel(w, r, questionID)
	case "llm-calls":
		s.handleQuestionLLMCalls(w, r, questionID)
	default:
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
	}
}

func (s *Server) handleQuestionDelete(w http.ResponseWriter, r *http.Request, questionID string) {
	// Any persisted agent run for this question goes with it, so a
	// re-created question with the same text starts from scratch.
	if answer, err := s.answerRepo.GetCurrent(r.Context(), questionID); err == nil && answer.ThreadID != "" {
		if err := s.checkpoints.Delete(r.Context(), answer.ThreadID); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
	}
	if err := s.questionRepo.Delete(r.Context(), questionID); err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": questionID})
}

// handleQuestionGenerate is the at-most-one-run entry point: the
// workflow ID is derived from the question, so a concurrent second
// trigger gets the already-running execution back instead of a
// duplicate run.
func (s *Server) handleQuestionGenerate(w http.ResponseWriter, r *http.Request, questionID string) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	question, err := s.questionRepo.Get(r.Context(), questionID)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	wfID := workflows.AnswerWorkflowID(questionID)
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                                       wfID,
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.AnswerWorkflow, workflows.AnswerInput{
		ProjectID:  question.ProjectID,
		QuestionID: questionID,
	})
	if err != nil {
		var already *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &already) {
			// Already running: point the caller at the live execution.
			writeJSON(w, http.StatusOK, map[string]any{"workflow_id": wfID, "already_running": true})
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"workflow_id": we.GetID(), "run_id": we.GetRunID()})
}

func (s *Server) handleQuestionAnswer(w http.ResponseWriter, r *http.Request, questionID string) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	answer, err := s.answerRepo.GetCurrent(r.Context(), questionID)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	citations, err := s.answerRepo.ListCitations(r.Context(), answer.AnswerID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	for _, c := range citations {
		if c.Dangling {
			s.log.Warn("serving degraded citation", "answer_id", answer.AnswerID,
				"citation_id", c.CitationID, "error", util.ErrDanglingCitation)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"answer": answer, "citations": citations})
}

func (s *Server) handleQuestionHistory(w http.ResponseWriter, r *http.Request, questionID string) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	answers, err := s.answerRepo.ListHistory(r.Context(), questionID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"answers": answers})
}

func (s *Server) handleQuestionTrace(w http.ResponseWriter, r *http.Request, questionID string) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var prog workflows.AnswerProgress
	resp, err := s.temporal.QueryWorkflow(r.Context(), workflows.AnswerWorkflowID(questionID), "", workflows.QueryAnswerProgress)
	if err == nil {
		if err := resp.Get(&prog); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, prog)
		return
	}
	// No live run: the persisted answer carries the full trace.
	answer, aErr := s.answerRepo.GetCurrent(r.Context(), questionID)
	if aErr != nil {
		writeErr(w, statusFor(aErr), aErr)
		return
	}
	terminalState := string(agent.StateDone)
	if answer.Status == models.AnswerMissingData {
		terminalState = string(agent.StateUnanswerable)
	}
	writeJSON(w, http.StatusOK, workflows.AnswerProgress{
		QuestionID: questionID,
		State:      terminalState,
		Terminal:   true,
		Trace:      answer.Trace,
	})
}

func (s *Server) handleQuestionRefine(w http.ResponseWriter, r *http.Request, questionID string) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		Feedback string `json:"feedback"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	req.Feedback = strings.TrimSpace(req.Feedback)
	if req.Feedback == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("feedback is required"))
		return
	}
	question, err := s.questionRepo.Get(r.Context(), questionID)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	// Signals the live run when one exists, otherwise starts a
	// refinement run that resumes the stored checkpoint.
	we, err := s.temporal.SignalWithStartWorkflow(r.Context(), workflows.AnswerWorkflowID(questionID),
		workflows.SignalRefine, req.Feedback,
		tclient.StartWorkflowOptions{
			ID:                    workflows.AnswerWorkflowID(questionID),
			TaskQueue:             s.cfg.TemporalTaskQueue,
			WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		},
		workflows.AnswerWorkflow, workflows.AnswerInput{
			ProjectID:  question.ProjectID,
			QuestionID: questionID,
			Feedback:   req.Feedback,
		})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"workflow_id": we.GetID(), "run_id": we.GetRunID()})
}

// handleQuestionCancel stops a live generation run. The workflow's
// cancellation cleanup flags the stored checkpoint as abandoned.
func (s *Server) handleQuestionCancel(w http.ResponseWriter, r *http.Request, questionID string) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if _, err := s.questionRepo.Get(r.Context(), questionID); err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	wfID := workflows.AnswerWorkflowID(questionID)
	if err := s.temporal.CancelWorkflow(r.Context(), wfID, ""); err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			writeErr(w, http.StatusConflict, fmt.Errorf("no run in flight for question %s", questionID))
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"workflow_id": wfID, "cancelled": true})
}

func (s *Server) handleQuestionLLMCalls(w http.ResponseWriter, r *http.Request, questionID string) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	calls, err := s.llmAuditRepo.ListByQuestion(r.Context(), questionID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"calls": calls})
}

func (s *Server) handleAnswerScoped(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/answers/")
	if len(parts) < 2 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	answerID := parts[0]

	switch parts[1] {
	case "review":
		s.handleReview(w, r, answerID)
	case "audits":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		audits, err := s.answerRepo.ListAudits(r.Context(), answerID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"audits": audits})
	case "citations":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		citations, err := s.answerRepo.ListCitations(r.Context(), answerID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"citations": citations})
	case "trace":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		answer, err := s.answerRepo.Get(r.Context(), answerID)
		if err != nil {
			writeErr(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"answer_id": answerID, "trace": answer.Trace})
	default:
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
	}
}

var reviewActions = map[string]models.AnswerStatus{
	"confirm":       models.AnswerConfirmed,
	"reject":        models.AnswerRejected,
	"manual_update": models.AnswerManualUpdated,
	"flag_missing":  models.AnswerMissingData,
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request, answerID string) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		Action     string `json:"action"`
		ReviewerID string `json:"reviewer_id"`
		Comment    string `json:"comment"`
		Text       string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	target, ok := reviewActions[strings.ToLower(strings.TrimSpace(req.Action))]
	if !ok {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("action must be one of confirm, reject, manual_update, flag_missing"))
		return
	}
	if strings.TrimSpace(req.ReviewerID) == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("reviewer_id is required"))
		return
	}
	answer, err := s.answerRepo.Get(r.Context(), answerID)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	if err := lifecycle.ValidateReviewTransition(answer.Status, target); err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	if target == models.AnswerRejected && strings.TrimSpace(req.Comment) == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("comment is required when rejecting"))
		return
	}

	if target == models.AnswerManualUpdated {
		if strings.TrimSpace(req.Text) == "" {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("text is required for manual_update"))
			return
		}
		// A human edit is a new answer record superseding the reviewed
		// one; the original text is never touched.
		edited := models.Answer{
			AnswerID:        uuid.NewString(),
			QuestionID:      answer.QuestionID,
			Text:            strings.TrimSpace(req.Text),
			ConfidenceScore: 1,
			IsAnswerable:    true,
			Status:          models.AnswerManualUpdated,
			CreatedBy:       models.Author{Kind: models.AuthorHuman, ReviewerID: req.ReviewerID},
			ReviewComment:   req.Comment,
			ThreadID:        answer.ThreadID,
		}
		if err := s.answerRepo.Insert(r.Context(), edited, nil); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		if err := s.answerRepo.AppendAudit(r.Context(), lifecycle.NewAudit(edited.AnswerID, answer.Status, target, req.ReviewerID, req.Comment)); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		s.refreshProjectStatus(r.Context(), answer.QuestionID)
		writeJSON(w, http.StatusOK, edited)
		return
	}

	audit := lifecycle.NewAudit(answerID, answer.Status, target, req.ReviewerID, req.Comment)
	if err := s.answerRepo.SetStatus(r.Context(), answerID, target, req.Comment, audit); err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	s.refreshProjectStatus(r.Context(), answer.QuestionID)
	updated, err := s.answerRepo.Get(r.Context(), answerID)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// refreshProjectStatus re-derives a project's status after a review
// event. Failures only log; the review itself already committed.
func (s *Server) refreshProjectStatus(ctx context.Context, questionID string) {
	question, err := s.questionRepo.Get(ctx, questionID)
	if err != nil {
		s.log.Warn("derive project status: load question", "error", err)
		return
	}
	project, err := s.projectRepo.Get(ctx, question.ProjectID)
	if err != nil {
		s.log.Warn("derive project status: load project", "error", err)
		return
	}
	questions, err := s.questionRepo.ListByProject(ctx, question.ProjectID)
	if err != nil {
		s.log.Warn("derive project status: list questions", "error", err)
		return
	}
	answers, err := s.answerRepo.ListCurrentByProject(ctx, question.ProjectID)
	if err != nil {
		s.log.Warn("derive project status: list answers", "error", err)
		return
	}
	ids := make([]string, 0, len(questions))
	for _, q := range questions {
		ids = append(ids, q.QuestionID)
	}
	live := make(map[string]models.AnswerStatus, len(answers))
	for _, a := range answers {
		live[a.QuestionID] = a.Status
	}
	// A review event never re-triggers generation, so OUTDATED survives it.
	status := lifecycle.DeriveStatus(project.Status, ids, live, false)
	if err := s.projectRepo.SetStatus(ctx, question.ProjectID, status); err != nil {
		s.log.Warn("derive project status: set status", "error", err)
	}
}

// taskStatus collapses Temporal execution state onto the coarse task
// vocabulary clients poll against.
func (s *Server) taskStatus(ctx context.Context, workflowID string) string {
	desc, err := s.temporal.DescribeWorkflowExecution(ctx, workflowID, "")
	if err != nil {
		return "PENDING"
	}
	switch desc.GetWorkflowExecutionInfo().GetStatus() {
	case enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING:
		return "RUNNING"
	case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		return "DONE"
	case enumspb.WORKFLOW_EXECUTION_STATUS_FAILED,
		enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED,
		enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT,
		enumspb.WORKFLOW_EXECUTION_STATUS_CANCELED:
		return "FAILED"
	default:
		return "PENDING"
	}
}

// handleTask reports status for any workflow ID handed out by this API
// (answer runs, index runs, project batches).
func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	parts := splitPath(r.URL.Path, "/tasks/")
	if len(parts) != 1 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	taskID := parts[0]
	writeJSON(w, http.StatusOK, map[string]any{
		"task_id": taskID,
		"status":  s.taskStatus(r.Context(), taskID),
	})
}

func (s *Server) handleProjectTasks(w http.ResponseWriter, r *http.Request, projectID string) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	questions, err := s.questionRepo.ListByProject(r.Context(), projectID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	type taskInfo struct {
		QuestionID string `json:"question_id"`
		TaskID     string `json:"task_id"`
		Status     string `json:"status"`
	}
	tasks := make([]taskInfo, 0, len(questions))
	for _, q := range questions {
		wfID := workflows.AnswerWorkflowID(q.QuestionID)
		tasks = append(tasks, taskInfo{
			QuestionID: q.QuestionID,
			TaskID:     wfID,
			Status:     s.taskStatus(r.Context(), wfID),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) handleEvaluationScoped(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/evaluation/")
	switch {
	case len(parts) == 1 && parts[0] == "ground-truth":
		s.handleGroundTruth(w, r)
	case len(parts) == 1 && parts[0] == "compare":
		s.handleEvaluationCompare(w, r)
	case len(parts) == 2 && parts[0] == "projects":
		s.handleEvaluationReport(w, r, parts[1])
	default:
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
	}
}

func (s *Server) handleGroundTruth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		QuestionID string `json:"question_id"`
		AnswerText string `json:"answer_text"`
		Source     string `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if strings.TrimSpace(req.AnswerText) == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("answer_text is required"))
		return
	}
	if _, err := s.questionRepo.Get(r.Context(), req.QuestionID); err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	// One ground truth per question: a second submission replaces the first.
	gt, err := s.evaluations.UpsertGroundTruth(r.Context(), models.GroundTruth{
		GroundTruthID: uuid.NewString(),
		QuestionID:    req.QuestionID,
		AnswerText:    strings.TrimSpace(req.AnswerText),
		Source:        strings.TrimSpace(req.Source),
	})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, gt)
}

// handleEvaluationCompare scores a generated answer against a reference
// answer. The comparison runs on the worker, where the providers live,
// and this handler blocks on the result.
func (s *Server) handleEvaluationCompare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		AnswerID        string `json:"answer_id"`
		HumanAnswerText string `json:"human_answer_text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	answer, err := s.answerRepo.Get(r.Context(), req.AnswerID)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	if strings.TrimSpace(req.HumanAnswerText) == "" {
		if _, err := s.evaluations.GetGroundTruth(r.Context(), answer.QuestionID); err != nil {
			writeErr(w, statusFor(err), fmt.Errorf("no ground truth for question %s: %w", answer.QuestionID, err))
			return
		}
	}
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                    workflows.EvaluationWorkflowID(req.AnswerID),
		TaskQueue:             s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
	}, workflows.EvaluationWorkflow, workflows.EvaluationInput{
		AnswerID:        req.AnswerID,
		HumanAnswerText: strings.TrimSpace(req.HumanAnswerText),
	})
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	var result models.Evaluation
	if err := we.Get(r.Context(), &result); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleEvaluationReport(w http.ResponseWriter, r *http.Request, projectID string) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if _, err := s.projectRepo.Get(r.Context(), projectID); err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	questions, err := s.questionRepo.ListByProject(r.Context(), projectID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	evaluations, err := s.evaluations.ListByProject(r.Context(), projectID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, evaluation.BuildReport(projectID, evaluations, len(questions)))
}

func saveUploadedFile(dstDir string, fh *multipart.FileHeader) (documentID, path string, err error) {
	src, err := fh.Open()
	if err != nil {
		return "", "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(dstDir, "upload-*")
	if err != nil {
		return "", "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
	}()

	documentID, err = util.SHA256HexFromReader(io.TeeReader(src, tmp))
	if err != nil {
		return "", "", fmt.Errorf("write upload: %w", err)
	}
	finalPath := util.SafeJoin(dstDir, fh.Filename)
	if err := tmp.Close(); err != nil {
		return "", "", err
	}
	if err := os.Rename(tmp.Name(), finalPath); err != nil {
		return "", "", fmt.Errorf("atomic move upload: %w", err)
	}
	return documentID, finalPath, nil
}

func firstSingleFile(m map[string][]*multipart.FileHeader) (*multipart.FileHeader, bool) {
	for _, v := range m {
		if len(v) > 0 {
			return v[0], true
		}
	}
	return nil, false
}

func splitPath(path, prefix string) []string {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

func statusFor(err error) int {
	if errors.Is(err, util.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "DS-API-4000"
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch {
	case status >= 500:
		switch {
		case strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"):
			return apiError{
				Code:    "DS-DB-5001",
				Message: "Database schema is not initialized. Run migrations and retry.",
			}
		case strings.Contains(raw, "connect"), strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
			return apiError{
				Code:    "DS-DB-5002",
				Message: "Database connection is unavailable. Check local services and retry.",
			}
		default:
			return apiError{
				Code:    "DS-API-5000",
				Message: "Internal server error. Please retry or check service logs.",
			}
		}
	case status == http.StatusBadRequest:
		code = "DS-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case status == http.StatusNotFound:
		code = "DS-API-4004"
		msg = "Requested resource was not found."
	case status == http.StatusConflict:
		code = "DS-API-4009"
		msg = "Operation conflicts with current state. Retry after checking status."
	case status == http.StatusMethodNotAllowed:
		code = "DS-API-4005"
		msg = "This endpoint does not support the requested method."
	}

	// For 4xx, keep user-safe validation context only.
	if status >= 400 && status < 500 && err != nil {
		switch {
		case strings.Contains(raw, "not allowed") && strings.Contains(raw, "transition"):
			msg = "This review transition is not allowed from the answer's current status."
		case strings.Contains(raw, "is required"), strings.Contains(raw, "must be"):
			msg = strings.ToUpper(raw[:1]) + raw[1:] + "."
		case strings.Contains(raw, "invalid json"):
			msg = "Malformed JSON request body."
		case strings.Contains(raw, "no files provided"), strings.Contains(raw, "no supported files"):
			msg = "No supported document files were provided."
		}
	}

	return apiError{Code: code, Message: msg}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
