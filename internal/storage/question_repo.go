package storage

import (
	"context"
	"errors"
	"fmt"

	"dossier/internal/models"
	"dossier/internal/util"

	"github.com/jackc/pgx/v5"
)

type QuestionRepo struct {
	db *DB
}

func NewQuestionRepo(db *DB) *QuestionRepo {
	return &QuestionRepo{db: db}
}

func (r *QuestionRepo) CreateSection(ctx context.Context, s models.Section) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO sections (section_id, project_id, title, position)
VALUES ($1, $2, $3, $4)`, s.SectionID, s.ProjectID, s.Title, s.Position)
	if err != nil {
		return fmt.Errorf("insert section: %w", err)
	}
	return nil
}

func (r *QuestionRepo) ListSections(ctx context.Context, projectID string) ([]models.Section, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT section_id, project_id, title, position, created_at
FROM sections WHERE project_id=$1 ORDER BY position ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()
	out := make([]models.Section, 0)
	for rows.Next() {
		var s models.Section
		if err := rows.Scan(&s.SectionID, &s.ProjectID, &s.Title, &s.Position, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sections: %w", err)
	}
	return out, nil
}

func (r *QuestionRepo) Create(ctx context.Context, q models.Question) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO questions (question_id, project_id, section_id, text, position)
VALUES ($1, $2, NULLIF($3,''), $4, $5)`,
		q.QuestionID, q.ProjectID, q.SectionID, q.Text, q.Position)
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}

const questionColumns = `question_id, project_id, COALESCE(section_id::text,''), text, position, created_at`

func scanQuestion(row pgx.Row) (models.Question, error) {
	var q models.Question
	if err := row.Scan(&q.QuestionID, &q.ProjectID, &q.SectionID, &q.Text, &q.Position, &q.CreatedAt); err != nil {
		return models.Question{}, err
	}
	return q, nil
}

func (r *QuestionRepo) Get(ctx context.Context, questionID string) (models.Question, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE question_id=$1`, questionID)
	q, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Question{}, fmt.Errorf("question %s: %w", questionID, util.ErrNotFound)
		}
		return models.Question{}, fmt.Errorf("get question: %w", err)
	}
	return q, nil
}

func (r *QuestionRepo) ListByProject(ctx context.Context, projectID string) ([]models.Question, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT `+questionColumns+` FROM questions WHERE project_id=$1 ORDER BY position ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()
	out := make([]models.Question, 0)
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return out, nil
}

func (r *QuestionRepo) Delete(ctx context.Context, questionID string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM questions WHERE question_id=$1`, questionID)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("question %s: %w", questionID, util.ErrNotFound)
	}
	return nil
}
