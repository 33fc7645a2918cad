package storage

import (
	"context"
	"errors"
	"fmt"

	"dossier/internal/models"
	"dossier/internal/util"

	"github.com/jackc/pgx/v5"
)

// EvaluationRepo stores human ground truths and the evaluations scored
// against them. One ground truth per question, upserted in place;
// evaluations accumulate per answer.
type EvaluationRepo struct {
	db *DB
}

func NewEvaluationRepo(db *DB) *EvaluationRepo {
	return &EvaluationRepo{db: db}
}

func (r *EvaluationRepo) UpsertGroundTruth(ctx context.Context, gt models.GroundTruth) (models.GroundTruth, error) {
	row := r.db.Pool.QueryRow(ctx, `
INSERT INTO ground_truths (ground_truth_id, question_id, answer_text, source)
VALUES ($1, $2, $3, NULLIF($4,''))
ON CONFLICT (question_id) DO UPDATE SET answer_text=EXCLUDED.answer_text, source=EXCLUDED.source
RETURNING ground_truth_id, question_id, answer_text, COALESCE(source,''), created_at`,
		gt.GroundTruthID, gt.QuestionID, gt.AnswerText, gt.Source)
	var out models.GroundTruth
	if err := row.Scan(&out.GroundTruthID, &out.QuestionID, &out.AnswerText, &out.Source, &out.CreatedAt); err != nil {
		return models.GroundTruth{}, fmt.Errorf("upsert ground truth: %w", err)
	}
	return out, nil
}

func (r *EvaluationRepo) GetGroundTruth(ctx context.Context, questionID string) (models.GroundTruth, error) {
	row := r.db.Pool.QueryRow(ctx, `
SELECT ground_truth_id, question_id, answer_text, COALESCE(source,''), created_at
FROM ground_truths WHERE question_id=$1`, questionID)
	var gt models.GroundTruth
	if err := row.Scan(&gt.GroundTruthID, &gt.QuestionID, &gt.AnswerText, &gt.Source, &gt.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.GroundTruth{}, fmt.Errorf("ground truth for question %s: %w", questionID, util.ErrNotFound)
		}
		return models.GroundTruth{}, fmt.Errorf("get ground truth: %w", err)
	}
	return gt, nil
}

func (r *EvaluationRepo) Insert(ctx context.Context, e models.Evaluation) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO evaluations (evaluation_id, answer_id, human_answer_text, semantic_similarity,
                         keyword_overlap, ngram_overlap, judge_score, combined_score, explanation)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.EvaluationID, e.AnswerID, e.HumanAnswerText, e.Metrics.SemanticSimilarity,
		e.Metrics.KeywordOverlap, e.Metrics.NgramOverlap, e.Metrics.JudgeScore,
		e.Metrics.CombinedScore, e.Metrics.Explanation)
	if err != nil {
		return fmt.Errorf("insert evaluation: %w", err)
	}
	return nil
}

// ListByProject returns every evaluation whose answer belongs to the
// project, oldest first.
func (r *EvaluationRepo) ListByProject(ctx context.Context, projectID string) ([]models.Evaluation, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT e.evaluation_id, e.answer_id, e.human_answer_text, e.semantic_similarity,
       e.keyword_overlap, e.ngram_overlap, e.judge_score, e.combined_score, e.explanation, e.created_at
FROM evaluations e
JOIN answers a ON a.answer_id = e.answer_id
JOIN questions q ON q.question_id = a.question_id
WHERE q.project_id=$1
ORDER BY e.created_at ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project evaluations: %w", err)
	}
	defer rows.Close()
	out := make([]models.Evaluation, 0)
	for rows.Next() {
		var e models.Evaluation
		if err := rows.Scan(&e.EvaluationID, &e.AnswerID, &e.HumanAnswerText,
			&e.Metrics.SemanticSimilarity, &e.Metrics.KeywordOverlap, &e.Metrics.NgramOverlap,
			&e.Metrics.JudgeScore, &e.Metrics.CombinedScore, &e.Metrics.Explanation, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evaluations: %w", err)
	}
	return out, nil
}
