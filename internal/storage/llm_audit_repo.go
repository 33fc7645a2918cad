package storage

import (
	"context"
	"fmt"
)

type LLMCallRecord struct {
	CallID       string
	Operation    string
	ProjectID    string
	QuestionID   string
	ProviderName string
	Model        string
	RequestID    string
	Status       string
	ErrorType    string
}

type LLMAuditRepo struct {
	db *DB
}

func NewLLMAuditRepo(db *DB) *LLMAuditRepo {
	return &LLMAuditRepo{db: db}
}

func (r *LLMAuditRepo) Insert(ctx context.Context, rec LLMCallRecord) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO llm_calls(call_id, operation, project_id, question_id, provider_name, model, request_id, status, error_type)
VALUES (COALESCE(NULLIF($1,'')::uuid, gen_random_uuid()), $2, NULLIF($3,'')::uuid, NULLIF($4,''), $5, $6, $7, $8, NULLIF($9,''))`,
		rec.CallID, rec.Operation, rec.ProjectID, rec.QuestionID, rec.ProviderName, rec.Model, rec.RequestID, rec.Status, rec.ErrorType)
	if err != nil {
		return fmt.Errorf("insert llm call: %w", err)
	}
	return nil
}

func (r *LLMAuditRepo) ListByQuestion(ctx context.Context, questionID string) ([]LLMCallRecord, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT call_id, operation, COALESCE(project_id::text,''), COALESCE(question_id,''),
       provider_name, model, request_id, status, COALESCE(error_type,'')
FROM llm_calls WHERE question_id=$1 ORDER BY call_id`, questionID)
	if err != nil {
		return nil, fmt.Errorf("list llm calls: %w", err)
	}
	defer rows.Close()
	out := make([]LLMCallRecord, 0)
	for rows.Next() {
		var rec LLMCallRecord
		if err := rows.Scan(&rec.CallID, &rec.Operation, &rec.ProjectID, &rec.QuestionID,
			&rec.ProviderName, &rec.Model, &rec.RequestID, &rec.Status, &rec.ErrorType); err != nil {
			return nil, fmt.Errorf("scan llm call: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate llm calls: %w", err)
	}
	return out, nil
}
