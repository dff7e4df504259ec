package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ai-web-studio/internal/models"
	"ai-web-studio/internal/pipeline"
	"ai-web-studio/internal/telemetry"
)

// persistTimeout bounds terminal-state writes that must survive a cancelled
// request context.
const persistTimeout = 10 * time.Second

// errSettled aborts a mutation when the job already reached a terminal state.
var errSettled = errors.New("job already settled")

// Deps are the collaborators of an Orchestrator. Runner is required only for
// local execution; Publisher is optional.
type Deps struct {
	Store     Store
	Executor  Executor
	Runner    Runner
	Publisher Publisher
	Logger    zerolog.Logger
}

// Orchestrator is the single place where job and project status is written.
type Orchestrator struct {
	store     Store
	exec      Executor
	runner    Runner
	publisher Publisher
	log       zerolog.Logger
	now       func() time.Time
	newID     func() string
}

func New(d Deps) *Orchestrator {
	return &Orchestrator{
		store:     d.Store,
		exec:      d.Executor,
		runner:    d.Runner,
		publisher: d.Publisher,
		log:       d.Logger,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.New().String() },
	}
}

// CreateProject validates params and stores a draft project for userID.
func (o *Orchestrator) CreateProject(ctx context.Context, userID string, params models.NewProjectParams) (models.Project, error) {
	if strings.TrimSpace(userID) == "" {
		return models.Project{}, models.Invalid("user_id", "is required")
	}
	if err := params.Normalize(); err != nil {
		return models.Project{}, err
	}
	now := o.now()
	p := models.Project{
		ID:              o.newID(),
		UserID:          userID,
		Title:           params.Title,
		Prompt:          params.Prompt,
		TechStack:       params.TechStack,
		ColorSchemeHint: params.ColorSchemeHint,
		Status:          models.ProjectDraft,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := o.store.CreateProject(ctx, p); err != nil {
		return models.Project{}, err
	}
	return p, nil
}

// GetProject returns a project owned by userID.
func (o *Orchestrator) GetProject(ctx context.Context, userID, id string) (models.Project, error) {
	return o.store.GetProject(ctx, userID, id)
}

// ListProjects returns userID's projects, newest first.
func (o *Orchestrator) ListProjects(ctx context.Context, userID string, limit int) ([]models.Project, error) {
	return o.store.ListProjects(ctx, userID, limit)
}

// GetJob returns a job owned by userID.
func (o *Orchestrator) GetJob(ctx context.Context, userID, id string) (models.Job, error) {
	return o.store.GetJob(ctx, userID, id)
}

// Start creates a pending job for the project and hands it to the executor.
// A project that already has an active job is rejected with ErrActiveJob.
// If the executor refuses the job, job and project are both failed before
// the error is returned.
func (o *Orchestrator) Start(ctx context.Context, userID, projectID string) (models.Job, error) {
	now := o.now()
	job, _, err := o.store.CreateJob(ctx, userID, projectID, func(p *models.Project) (models.Job, error) {
		switch p.Status {
		case models.ProjectGenerating:
			return models.Job{}, models.ErrActiveJob
		case models.ProjectReady, models.ProjectFailed:
			return models.Job{}, models.Invalid("project", fmt.Sprintf("is already %s", p.Status))
		}
		if err := p.BeginGeneration(now); err != nil {
			return models.Job{}, err
		}
		return models.NewJob(o.newID(), *p, models.KindFrontendGeneration, o.exec.Name(), now), nil
	})
	if err != nil {
		return models.Job{}, err
	}
	telemetry.GenerationStarted.Inc()
	log := o.log.With().Str("job_id", job.ID).Str("project_id", job.ProjectID).Str("executor", job.Executor).Logger()
	log.Info().Str("status", job.Status).Msg("job created")

	sub, err := o.exec.Submit(ctx, job)
	if err != nil {
		reason := fmt.Sprintf("submit to %s executor: %v", job.Executor, err)
		if _, ferr := o.fail(ctx, job.ID, "", reason, "dispatch"); ferr != nil {
			log.Error().Err(ferr).AnErr("submit_err", err).Msg("record submit failure")
			return models.Job{}, fmt.Errorf("record submit failure (%v): %w", err, ferr)
		}
		log.Warn().Err(err).Str("status", models.JobFailed).Msg("job submit failed")
		return models.Job{}, err
	}
	if !sub.Started {
		return job, nil
	}

	pctx, cancel := o.persistCtx(ctx)
	defer cancel()
	jobID := job.ID
	job, _, err = o.store.UpdateJob(pctx, jobID, func(j *models.Job, _ *models.Project) error {
		if j.IsTerminal() {
			return errSettled
		}
		setExternalID(j, sub.ExternalID)
		if j.Status == models.JobRunning {
			return nil
		}
		return j.Start(o.now())
	})
	if errors.Is(err, errSettled) {
		// A completion callback beat the acknowledgment.
		return o.store.GetJob(pctx, userID, jobID)
	}
	if err != nil {
		return models.Job{}, err
	}
	log.Info().Str("status", job.Status).Str("external_id", sub.ExternalID).Msg("job dispatched")
	return job, nil
}

// Generate runs the pipeline for the project's active job.
func (o *Orchestrator) Generate(ctx context.Context, projectID string) (models.Bundle, error) {
	job, err := o.store.FindActiveJob(ctx, projectID, models.KindFrontendGeneration)
	if err != nil {
		return models.Bundle{}, err
	}
	return o.GenerateJob(ctx, job.ID)
}

// GenerateJob moves the job to running, runs every stage and writes the
// outcome. On success the bundle, job completed and project ready are written
// in one transaction; on failure both are failed with the stage named in the
// reason and no artifact is written.
func (o *Orchestrator) GenerateJob(ctx context.Context, jobID string) (models.Bundle, error) {
	if o.runner == nil {
		return models.Bundle{}, errors.New("local generation is not configured")
	}
	job, _, err := o.store.UpdateJob(ctx, jobID, func(j *models.Job, _ *models.Project) error {
		// A local job still running after its lease expired lost its worker.
		if j.Status == models.JobRunning && j.Executor == models.ExecutorLocal {
			return nil
		}
		return j.Start(o.now())
	})
	if err != nil {
		return models.Bundle{}, err
	}
	log := o.log.With().Str("job_id", job.ID).Str("project_id", job.ProjectID).Logger()
	log.Info().Str("status", job.Status).Msg("generation started")

	in := pipeline.Input{
		Title:           job.Input.Title,
		Prompt:          job.Input.Prompt,
		TechStack:       job.Input.TechStack,
		ColorSchemeHint: job.Input.ColorSchemeHint,
	}
	check := func(ctx context.Context, next pipeline.Stage) error {
		cur, err := o.store.GetJob(ctx, job.UserID, job.ID)
		if err != nil {
			return err
		}
		if cur.Status == models.JobCancelled {
			log.Info().Str("next_stage", string(next)).Msg("generation cancelled")
			return pipeline.ErrCancelled
		}
		return nil
	}

	res, runErr := o.runner.Run(ctx, in, check)
	if errors.Is(runErr, pipeline.ErrCancelled) {
		return models.Bundle{}, runErr
	}
	if runErr != nil {
		if _, err := o.fail(ctx, job.ID, "", runErr.Error(), "stage"); err != nil && !errors.Is(err, errSettled) {
			log.Error().Err(err).AnErr("stage_err", runErr).Msg("record generation failure")
			// Only the store error is wrapped: the job is still running and
			// must not look settled to the worker.
			return models.Bundle{}, fmt.Errorf("record stage failure (%v): %w", runErr, err)
		}
		log.Warn().Err(runErr).Str("status", models.JobFailed).Msg("generation failed")
		return models.Bundle{}, runErr
	}

	out := models.JobOutput{
		Model:            res.Model,
		PromptTokens:     res.Usage.PromptTokens,
		CompletionTokens: res.Usage.CompletionTokens,
		TotalTokens:      res.Usage.TotalTokens,
	}
	_, project, err := o.complete(ctx, job.ID, "", res.Bundle, out)
	if err != nil {
		if errors.Is(err, errSettled) {
			log.Info().Msg("job settled while generating, discarding bundle")
			return models.Bundle{}, pipeline.ErrCancelled
		}
		return models.Bundle{}, err
	}
	log.Info().Str("status", models.JobCompleted).Int("tokens", out.TotalTokens).Msg("generation completed")
	o.publish(ctx, project)
	return res.Bundle, nil
}

// Cancel stops a pending or running job owned by userID. The project is
// failed so it never looks in progress.
func (o *Orchestrator) Cancel(ctx context.Context, userID, jobID string) (models.Job, error) {
	if _, err := o.store.GetJob(ctx, userID, jobID); err != nil {
		return models.Job{}, err
	}
	now := o.now()
	job, _, err := o.store.UpdateJob(ctx, jobID, func(j *models.Job, p *models.Project) error {
		if err := j.Cancel(now); err != nil {
			return err
		}
		return p.Fail("generation cancelled", now)
	})
	if err != nil {
		return models.Job{}, err
	}
	telemetry.JobsFailed.WithLabelValues("cancelled").Inc()
	if err := o.exec.Cancel(ctx, job); err != nil {
		o.log.Warn().Err(err).Str("job_id", job.ID).Msg("executor cancel")
	}
	o.log.Info().Str("job_id", job.ID).Str("project_id", job.ProjectID).Str("status", job.Status).Msg("job cancelled")
	return job, nil
}

func (o *Orchestrator) complete(ctx context.Context, jobID, externalID string, b models.Bundle, out models.JobOutput) (models.Job, models.Project, error) {
	pctx, cancel := o.persistCtx(ctx)
	defer cancel()
	job, project, err := o.store.UpdateJob(pctx, jobID, func(j *models.Job, p *models.Project) error {
		if j.IsTerminal() {
			return errSettled
		}
		setExternalID(j, externalID)
		now := o.now()
		if j.Status == models.JobPending {
			if err := j.Start(now); err != nil {
				return err
			}
		}
		if err := p.Publish(b, now); err != nil {
			return err
		}
		return j.Complete(out, now)
	})
	if err == nil {
		telemetry.JobsCompleted.Inc()
	}
	return job, project, err
}

func (o *Orchestrator) fail(ctx context.Context, jobID, externalID, reason, label string) (models.Job, error) {
	pctx, cancel := o.persistCtx(ctx)
	defer cancel()
	job, _, err := o.store.UpdateJob(pctx, jobID, func(j *models.Job, p *models.Project) error {
		if j.IsTerminal() {
			return errSettled
		}
		setExternalID(j, externalID)
		now := o.now()
		if err := j.Fail(reason, now); err != nil {
			return err
		}
		return p.Fail(reason, now)
	})
	if err == nil {
		telemetry.JobsFailed.WithLabelValues(label).Inc()
	}
	return job, err
}

func setExternalID(j *models.Job, id string) {
	if id != "" {
		j.ExternalID = &id
	}
}

func (o *Orchestrator) publish(ctx context.Context, p models.Project) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(ctx, p); err != nil {
		o.log.Warn().Err(err).Str("project_id", p.ID).Msg("publish artifacts")
	}
}

// persistCtx detaches terminal writes from the caller's cancellation while
// keeping them bounded.
func (o *Orchestrator) persistCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
}
