package orchestrator

import (
	"context"

	"ai-web-studio/internal/models"
	"ai-web-studio/internal/pipeline"
)

// Store is the persistence the orchestrator relies on. CreateJob and
// UpdateJob apply their callbacks and write the result atomically; if the
// callback fails nothing is written.
type Store interface {
	CreateProject(ctx context.Context, p models.Project) error
	GetProject(ctx context.Context, userID, id string) (models.Project, error)
	ListProjects(ctx context.Context, userID string, limit int) ([]models.Project, error)
	GetJob(ctx context.Context, userID, id string) (models.Job, error)
	FindActiveJob(ctx context.Context, projectID, kind string) (models.Job, error)
	CreateJob(ctx context.Context, userID, projectID string, build func(p *models.Project) (models.Job, error)) (models.Job, models.Project, error)
	UpdateJob(ctx context.Context, jobID string, fn func(j *models.Job, p *models.Project) error) (models.Job, models.Project, error)
}

// Runner executes the generation stages for one job.
type Runner interface {
	Run(ctx context.Context, in pipeline.Input, check pipeline.Checkpoint) (pipeline.Result, error)
}

// Publisher receives a project right after it becomes ready.
type Publisher interface {
	Publish(ctx context.Context, p models.Project) error
}
