package storage

import (
	"context"
	"errors"
	"fmt"

	"dossier/internal/models"
	"dossier/internal/util"

	"github.com/jackc/pgx/v5"
)

type ProjectRepo struct {
	db *DB
}

func NewProjectRepo(db *DB) *ProjectRepo {
	return &ProjectRepo{db: db}
}

func (r *ProjectRepo) Create(ctx context.Context, p models.Project) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO projects (project_id, name, description, scope, document_ids, status)
VALUES ($1, $2, NULLIF($3,''), $4, $5, $6)`,
		p.ProjectID, p.Name, p.Description, string(p.Scope), p.DocumentIDs, string(p.Status))
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (r *ProjectRepo) Update(ctx context.Context, p models.Project) error {
	tag, err := r.db.Pool.Exec(ctx, `
UPDATE projects SET name=$2, description=NULLIF($3,''), scope=$4, document_ids=$5, updated_at=NOW()
WHERE project_id=$1`,
		p.ProjectID, p.Name, p.Description, string(p.Scope), p.DocumentIDs)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("project %s: %w", p.ProjectID, util.ErrNotFound)
	}
	return nil
}

func (r *ProjectRepo) SetStatus(ctx context.Context, projectID string, status models.ProjectStatus) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE projects SET status=$2, updated_at=NOW() WHERE project_id=$1`,
		projectID, string(status))
	if err != nil {
		return fmt.Errorf("set project status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("project %s: %w", projectID, util.ErrNotFound)
	}
	return nil
}

const projectColumns = `project_id, name, COALESCE(description,''), scope, COALESCE(document_ids,'{}'), status, created_at, updated_at`

func scanProject(row pgx.Row) (models.Project, error) {
	var p models.Project
	var scope, status string
	if err := row.Scan(&p.ProjectID, &p.Name, &p.Description, &scope, &p.DocumentIDs, &status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return models.Project{}, err
	}
	p.Scope = models.ProjectScope(scope)
	p.Status = models.ProjectStatus(status)
	return p, nil
}

func (r *ProjectRepo) Get(ctx context.Context, projectID string) (models.Project, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE project_id=$1`, projectID)
	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Project{}, fmt.Errorf("project %s: %w", projectID, util.ErrNotFound)
		}
		return models.Project{}, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (r *ProjectRepo) List(ctx context.Context) ([]models.Project, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()
	out := make([]models.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return out, nil
}

// ListGeneratedAllDocs returns ALL_DOCS projects whose answers can be
// invalidated by a newly indexed document.
func (r *ProjectRepo) ListGeneratedAllDocs(ctx context.Context) ([]models.Project, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT `+projectColumns+` FROM projects
WHERE scope='ALL_DOCS' AND status IN ('READY','REVIEW','COMPLETED')`)
	if err != nil {
		return nil, fmt.Errorf("list all-docs projects: %w", err)
	}
	defer rows.Close()
	out := make([]models.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan all-docs project: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate all-docs projects: %w", err)
	}
	return out, nil
}

func (r *ProjectRepo) Delete(ctx context.Context, projectID string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM projects WHERE project_id=$1`, projectID)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("project %s: %w", projectID, util.ErrNotFound)
	}
	return nil
}
