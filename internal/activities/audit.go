package activities

import (
	"context"

	"dossier/internal/providers"
	"dossier/internal/storage"

	"github.com/google/uuid"
)

// auditingLLM records every generation call against its question. Audit
// failures are swallowed: losing a log line must not fail an answer run.
type auditingLLM struct {
	inner      providers.LLMProvider
	repo       *storage.LLMAuditRepo
	projectID  string
	questionID string
}

func (l *auditingLLM) Generate(ctx context.Context, req providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error) {
	resp, info, err := l.inner.Generate(ctx, req)
	rec := storage.LLMCallRecord{
		CallID:       uuid.NewString(),
		Operation:    req.Operation,
		ProjectID:    l.projectID,
		QuestionID:   l.questionID,
		ProviderName: info.Name,
		Model:        info.Model,
		RequestID:    info.Key,
		Status:       "ok",
	}
	if err != nil {
		rec.Status = "error"
		rec.ErrorType = string(providers.ClassifyError(err))
	}
	_ = l.repo.Insert(ctx, rec)
	return resp, info, err
}
