package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"dossier/internal/models"
	"dossier/internal/util"

	"github.com/jackc/pgx/v5"
)

type AnswerRepo struct {
	db *DB
}

func NewAnswerRepo(db *DB) *AnswerRepo {
	return &AnswerRepo{db: db}
}

// Insert writes a new answer with its citations and supersedes the prior
// live answer for the question in the same transaction. Prior rows are
// never mutated beyond the superseded flag.
func (r *AnswerRepo) Insert(ctx context.Context, a models.Answer, citations []models.Citation) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert answer: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `
UPDATE answers SET superseded=TRUE, updated_at=NOW()
WHERE question_id=$1 AND NOT superseded`, a.QuestionID); err != nil {
		return fmt.Errorf("supersede prior answers: %w", err)
	}

	trace, _ := json.Marshal(a.Trace)
	if _, err := tx.Exec(ctx, `
INSERT INTO answers (answer_id, question_id, text, confidence_score, is_answerable, status,
                     created_by, reviewer_id, review_comment, thread_id, superseded, trace)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8,''), NULLIF($9,''), NULLIF($10,''), FALSE, $11::jsonb)`,
		a.AnswerID, a.QuestionID, a.Text, a.ConfidenceScore, a.IsAnswerable, string(a.Status),
		string(a.CreatedBy.Kind), a.CreatedBy.ReviewerID, a.ReviewComment, a.ThreadID, string(trace)); err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}

	for i, c := range citations {
		var bbox *string
		if c.BoundingBox != nil {
			b, _ := json.Marshal(c.BoundingBox)
			s := string(b)
			bbox = &s
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO citations (citation_id, answer_id, chunk_id, chunk_text, document_id, document_name,
                       page_number, bounding_box, position)
VALUES ($1, $2, $3, $4, NULLIF($5,''), NULLIF($6,''), $7, $8::jsonb, $9)`,
			c.CitationID, a.AnswerID, c.ChunkID, c.ChunkText, c.DocumentID, c.DocumentName,
			c.PageNumber, bbox, i); err != nil {
			return fmt.Errorf("insert citation %d: %w", i, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit answer tx: %w", err)
	}
	return nil
}

const answerColumns = `answer_id, question_id, text, confidence_score, is_answerable, status,
       created_by, COALESCE(reviewer_id,''), COALESCE(review_comment,''), COALESCE(thread_id,''),
       superseded, COALESCE(trace,'[]'), created_at, updated_at`

func scanAnswer(row pgx.Row) (models.Answer, error) {
	var a models.Answer
	var status, createdBy string
	var trace []byte
	if err := row.Scan(&a.AnswerID, &a.QuestionID, &a.Text, &a.ConfidenceScore, &a.IsAnswerable, &status,
		&createdBy, &a.CreatedBy.ReviewerID, &a.ReviewComment, &a.ThreadID,
		&a.Superseded, &trace, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return models.Answer{}, err
	}
	a.Status = models.AnswerStatus(status)
	a.CreatedBy.Kind = models.AuthorKind(createdBy)
	_ = json.Unmarshal(trace, &a.Trace)
	return a, nil
}

func (r *AnswerRepo) Get(ctx context.Context, answerID string) (models.Answer, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+answerColumns+` FROM answers WHERE answer_id=$1`, answerID)
	a, err := scanAnswer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Answer{}, fmt.Errorf("answer %s: %w", answerID, util.ErrNotFound)
		}
		return models.Answer{}, fmt.Errorf("get answer: %w", err)
	}
	return a, nil
}

// GetCurrent returns the live (non-superseded) answer for a question.
func (r *AnswerRepo) GetCurrent(ctx context.Context, questionID string) (models.Answer, error) {
	row := r.db.Pool.QueryRow(ctx, `
SELECT `+answerColumns+` FROM answers
WHERE question_id=$1 AND NOT superseded
ORDER BY created_at DESC LIMIT 1`, questionID)
	a, err := scanAnswer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Answer{}, fmt.Errorf("answer for question %s: %w", questionID, util.ErrNotFound)
		}
		return models.Answer{}, fmt.Errorf("get current answer: %w", err)
	}
	return a, nil
}

// ListCurrentByProject returns the live answer per question of a project.
func (r *AnswerRepo) ListCurrentByProject(ctx context.Context, projectID string) ([]models.Answer, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT `+answerColumns+` FROM answers a
WHERE NOT a.superseded
  AND a.question_id IN (SELECT question_id FROM questions WHERE project_id=$1)
ORDER BY a.created_at ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project answers: %w", err)
	}
	defer rows.Close()
	out := make([]models.Answer, 0)
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answers: %w", err)
	}
	return out, nil
}

// ListHistory returns all answers for a question, newest first, including
// superseded rows.
func (r *AnswerRepo) ListHistory(ctx context.Context, questionID string) ([]models.Answer, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT `+answerColumns+` FROM answers WHERE question_id=$1 ORDER BY created_at DESC`, questionID)
	if err != nil {
		return nil, fmt.Errorf("list answer history: %w", err)
	}
	defer rows.Close()
	out := make([]models.Answer, 0)
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history answer: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history answers: %w", err)
	}
	return out, nil
}

// SetStatus applies a review transition and appends the audit record in
// one transaction. Answer text is never touched here.
func (r *AnswerRepo) SetStatus(ctx context.Context, answerID string, status models.AnswerStatus, comment string, audit models.ReviewAudit) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin set status: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	tag, err := tx.Exec(ctx, `
UPDATE answers SET status=$2, review_comment=COALESCE(NULLIF($3,''), review_comment), updated_at=NOW()
WHERE answer_id=$1`, answerID, string(status), comment)
	if err != nil {
		return fmt.Errorf("update answer status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("answer %s: %w", answerID, util.ErrNotFound)
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO review_audits (audit_id, answer_id, from_status, to_status, actor, comment)
VALUES ($1, $2, $3, $4, $5, NULLIF($6,''))`,
		audit.AuditID, audit.AnswerID, string(audit.FromStatus), string(audit.ToStatus), audit.Actor, audit.Comment); err != nil {
		return fmt.Errorf("insert review audit: %w", err)
	}
	return tx.Commit(ctx)
}

// AppendAudit records a review event without touching any answer row,
// used when a human edit supersedes the reviewed answer with a new row.
func (r *AnswerRepo) AppendAudit(ctx context.Context, audit models.ReviewAudit) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO review_audits (audit_id, answer_id, from_status, to_status, actor, comment)
VALUES ($1, $2, $3, $4, $5, NULLIF($6,''))`,
		audit.AuditID, audit.AnswerID, string(audit.FromStatus), string(audit.ToStatus), audit.Actor, audit.Comment)
	if err != nil {
		return fmt.Errorf("append review audit: %w", err)
	}
	return nil
}

// MarkStaleByProject flags AI-created live answers of a project as
// superseded after an ALL_DOCS invalidation; rows are preserved for audit.
func (r *AnswerRepo) MarkStaleByProject(ctx context.Context, projectID string) error {
	_, err := r.db.Pool.Exec(ctx, `
UPDATE answers SET superseded=TRUE, updated_at=NOW()
WHERE NOT superseded AND created_by='AI'
  AND question_id IN (SELECT question_id FROM questions WHERE project_id=$1)`, projectID)
	if err != nil {
		return fmt.Errorf("mark stale answers: %w", err)
	}
	return nil
}

// ListCitations hydrates the ordered citations of an answer. A citation
// whose chunk no longer exists comes back flagged dangling with the
// snapshot text, never as an error.
func (r *AnswerRepo) ListCitations(ctx context.Context, answerID string) ([]models.Citation, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT ct.citation_id, ct.answer_id, ct.chunk_id, ct.chunk_text,
       COALESCE(ct.document_id,''), COALESCE(ct.document_name,''),
       ct.page_number, ct.bounding_box, ct.position,
       c.chunk_id
FROM citations ct
LEFT JOIN chunks c ON c.chunk_id = ct.chunk_id
WHERE ct.answer_id=$1
ORDER BY ct.position ASC`, answerID)
	if err != nil {
		return nil, fmt.Errorf("list citations: %w", err)
	}
	defer rows.Close()
	out := make([]models.Citation, 0)
	for rows.Next() {
		c, err := scanCitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan citation: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate citations: %w", err)
	}
	return out, nil
}

// scanCitation hydrates one citation row. The last column is the
// left-joined live chunk id: NULL means the source chunk is gone and
// the citation serves its snapshot text flagged dangling.
func scanCitation(row pgx.Row) (models.Citation, error) {
	var c models.Citation
	var bbox []byte
	var liveChunkID *string
	if err := row.Scan(&c.CitationID, &c.AnswerID, &c.ChunkID, &c.ChunkText,
		&c.DocumentID, &c.DocumentName, &c.PageNumber, &bbox, &c.Position, &liveChunkID); err != nil {
		return models.Citation{}, err
	}
	c.Dangling = liveChunkID == nil
	if len(bbox) > 0 {
		var b models.BoundingBox
		if err := json.Unmarshal(bbox, &b); err == nil {
			c.BoundingBox = &b
		}
	}
	return c, nil
}

func (r *AnswerRepo) ListAudits(ctx context.Context, answerID string) ([]models.ReviewAudit, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT audit_id, answer_id, from_status, to_status, actor, COALESCE(comment,''), at
FROM review_audits WHERE answer_id=$1 ORDER BY at ASC`, answerID)
	if err != nil {
		return nil, fmt.Errorf("list review audits: %w", err)
	}
	defer rows.Close()
	out := make([]models.ReviewAudit, 0)
	for rows.Next() {
		var a models.ReviewAudit
		var from, to string
		if err := rows.Scan(&a.AuditID, &a.AnswerID, &from, &to, &a.Actor, &a.Comment, &a.At); err != nil {
			return nil, fmt.Errorf("scan review audit: %w", err)
		}
		a.FromStatus = models.AnswerStatus(from)
		a.ToStatus = models.AnswerStatus(to)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review audits: %w", err)
	}
	return out, nil
}
