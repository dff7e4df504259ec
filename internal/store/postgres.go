package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"ai-web-studio/internal/models"
)

const uniqueViolation = "23505"

// Store wraps pgxpool for Postgres persistence.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks connectivity for health probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const projectColumns = `id, user_id, title, prompt, tech_stack, color_scheme_hint, status, error_message,
	structure, color_scheme, markup, stylesheet, script, backend_code, created_at, updated_at, completed_at`

const jobColumns = `id, project_id, user_id, kind, status, executor, input, output, error_message,
	external_id, created_at, updated_at, started_at, finished_at`

// CreateProject inserts a new project row.
func (s *Store) CreateProject(ctx context.Context, p models.Project) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO projects (id, user_id, title, prompt, tech_stack, color_scheme_hint, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, p.ID, p.UserID, p.Title, p.Prompt, p.TechStack, p.ColorSchemeHint, p.Status, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// GetProject fetches a project owned by userID.
func (s *Store) GetProject(ctx context.Context, userID, id string) (models.Project, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1 AND user_id = $2`, id, userID)
	return scanProject(row)
}

// ListProjects returns the newest projects of userID.
func (s *Store) ListProjects(ctx context.Context, userID string, limit int) ([]models.Project, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `SELECT `+projectColumns+` FROM projects WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	out := []models.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetJob fetches a job owned by userID.
func (s *Store) GetJob(ctx context.Context, userID, id string) (models.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM generation_jobs WHERE id = $1 AND user_id = $2`, id, userID)
	return scanJob(row)
}

// FindActiveJob returns the non-terminal job of the given kind for a project.
func (s *Store) FindActiveJob(ctx context.Context, projectID, kind string) (models.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM generation_jobs
		WHERE project_id = $1 AND kind = $2 AND status IN ($3, $4)
	`, projectID, kind, models.JobPending, models.JobRunning)
	return scanJob(row)
}

// CreateJob locks the project owned by userID, lets build mutate it and
// produce a job, then writes both in one transaction. A second active job
// for the same project and kind fails with models.ErrActiveJob.
func (s *Store) CreateJob(ctx context.Context, userID, projectID string, build func(p *models.Project) (models.Job, error)) (models.Job, models.Project, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Job{}, models.Project{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // safe no-op on commit

	project, err := scanProject(tx.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1 AND user_id = $2 FOR UPDATE`, projectID, userID))
	if err != nil {
		return models.Job{}, models.Project{}, err
	}
	job, err := build(&project)
	if err != nil {
		return models.Job{}, models.Project{}, err
	}

	if err := insertJob(ctx, tx, job); err != nil {
		return models.Job{}, models.Project{}, err
	}
	if err := updateProject(ctx, tx, project); err != nil {
		return models.Job{}, models.Project{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Job{}, models.Project{}, mapUnique(fmt.Errorf("commit: %w", err))
	}
	return job, project, nil
}

// UpdateJob locks a job and its project, applies fn and persists both rows
// together. If fn fails nothing is written.
func (s *Store) UpdateJob(ctx context.Context, jobID string, fn func(j *models.Job, p *models.Project) error) (models.Job, models.Project, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Job{}, models.Project{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // safe no-op on commit

	job, err := scanJob(tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM generation_jobs WHERE id = $1 FOR UPDATE`, jobID))
	if err != nil {
		return models.Job{}, models.Project{}, err
	}
	project, err := scanProject(tx.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1 FOR UPDATE`, job.ProjectID))
	if err != nil {
		return models.Job{}, models.Project{}, err
	}

	if err := fn(&job, &project); err != nil {
		return models.Job{}, models.Project{}, err
	}
	if err := updateJob(ctx, tx, job); err != nil {
		return models.Job{}, models.Project{}, err
	}
	if err := updateProject(ctx, tx, project); err != nil {
		return models.Job{}, models.Project{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Job{}, models.Project{}, fmt.Errorf("commit: %w", err)
	}
	return job, project, nil
}

func insertJob(ctx context.Context, tx pgx.Tx, j models.Job) error {
	input, err := json.Marshal(j.Input)
	if err != nil {
		return fmt.Errorf("marshal job input: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO generation_jobs (id, project_id, user_id, kind, status, executor, input, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, j.ID, j.ProjectID, j.UserID, j.Kind, j.Status, j.Executor, input, j.CreatedAt)
	if err != nil {
		return mapUnique(fmt.Errorf("insert job: %w", err))
	}
	return nil
}

func updateJob(ctx context.Context, tx pgx.Tx, j models.Job) error {
	output, err := marshalOptional(j.Output)
	if err != nil {
		return fmt.Errorf("marshal job output: %w", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE generation_jobs
		SET status = $2, output = $3, error_message = $4, external_id = $5,
		    updated_at = $6, started_at = $7, finished_at = $8
		WHERE id = $1
	`, j.ID, j.Status, output, j.Error, j.ExternalID, j.UpdatedAt, j.StartedAt, j.FinishedAt)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func updateProject(ctx context.Context, tx pgx.Tx, p models.Project) error {
	structure, err := marshalOptional(p.Structure)
	if err != nil {
		return fmt.Errorf("marshal structure: %w", err)
	}
	palette, err := marshalOptional(p.ColorScheme)
	if err != nil {
		return fmt.Errorf("marshal color scheme: %w", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE projects
		SET status = $2, error_message = $3, structure = $4, color_scheme = $5, markup = $6,
		    stylesheet = $7, script = $8, backend_code = $9, updated_at = $10, completed_at = $11
		WHERE id = $1
	`, p.ID, p.Status, p.Error, structure, palette, emptyToNil(p.Markup), emptyToNil(p.Stylesheet),
		emptyToNil(p.Script), emptyToNil(p.BackendCode), p.UpdatedAt, p.CompletedAt)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return nil
}

func scanProject(row pgx.Row) (models.Project, error) {
	var p models.Project
	var errMsg, markup, style, script, backend pgtype.Text
	var structure, palette []byte
	var completed pgtype.Timestamptz

	if err := row.Scan(&p.ID, &p.UserID, &p.Title, &p.Prompt, &p.TechStack, &p.ColorSchemeHint, &p.Status, &errMsg,
		&structure, &palette, &markup, &style, &script, &backend, &p.CreatedAt, &p.UpdatedAt, &completed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Project{}, fmt.Errorf("project: %w", models.ErrNotFound)
		}
		return models.Project{}, fmt.Errorf("scan project: %w", err)
	}
	if len(structure) > 0 {
		p.Structure = &models.WebsiteStructure{}
		if err := json.Unmarshal(structure, p.Structure); err != nil {
			return models.Project{}, fmt.Errorf("unmarshal structure: %w", err)
		}
	}
	if len(palette) > 0 {
		p.ColorScheme = &models.ColorScheme{}
		if err := json.Unmarshal(palette, p.ColorScheme); err != nil {
			return models.Project{}, fmt.Errorf("unmarshal color scheme: %w", err)
		}
	}
	p.Error = textPtr(errMsg)
	p.Markup = markup.String
	p.Stylesheet = style.String
	p.Script = script.String
	p.BackendCode = backend.String
	p.CompletedAt = timePtr(completed)
	return p, nil
}

func scanJob(row pgx.Row) (models.Job, error) {
	var j models.Job
	var input, output []byte
	var errMsg, external pgtype.Text
	var started, finished pgtype.Timestamptz

	if err := row.Scan(&j.ID, &j.ProjectID, &j.UserID, &j.Kind, &j.Status, &j.Executor, &input, &output, &errMsg,
		&external, &j.CreatedAt, &j.UpdatedAt, &started, &finished); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Job{}, fmt.Errorf("job: %w", models.ErrNotFound)
		}
		return models.Job{}, fmt.Errorf("scan job: %w", err)
	}
	if err := json.Unmarshal(input, &j.Input); err != nil {
		return models.Job{}, fmt.Errorf("unmarshal job input: %w", err)
	}
	if len(output) > 0 {
		j.Output = &models.JobOutput{}
		if err := json.Unmarshal(output, j.Output); err != nil {
			return models.Job{}, fmt.Errorf("unmarshal job output: %w", err)
		}
	}
	j.Error = textPtr(errMsg)
	j.ExternalID = textPtr(external)
	j.StartedAt = timePtr(started)
	j.FinishedAt = timePtr(finished)
	return j, nil
}

func mapUnique(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return models.ErrActiveJob
	}
	return err
}

func marshalOptional[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}

func timePtr(t pgtype.Timestamptz) *time.Time {
	if t.Valid {
		v := t.Time
		return &v
	}
	return nil
}

func emptyToNil(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
