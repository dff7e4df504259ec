package orchestrator

import (
	"context"
	"errors"
	"strings"

	"ai-web-studio/internal/models"
)

// Callback outcomes reported by the automation engine.
const (
	CallbackCompleted = "completed"
	CallbackFailed    = "failed"
)

// CallbackResult is the terminal report for a remotely executed job.
type CallbackResult struct {
	Status      string         `json:"status"`
	Error       string         `json:"error,omitempty"`
	ExecutionID string         `json:"execution_id,omitempty"`
	Model       string         `json:"model,omitempty"`
	TotalTokens int            `json:"total_tokens,omitempty"`
	Artifacts   *models.Bundle `json:"artifacts,omitempty"`
}

func (r *CallbackResult) validate() error {
	switch strings.ToLower(strings.TrimSpace(r.Status)) {
	case CallbackCompleted:
		r.Status = CallbackCompleted
		if r.Artifacts == nil {
			return models.Invalid("artifacts", "are required for a completed job")
		}
		return r.Artifacts.Validate()
	case CallbackFailed:
		r.Status = CallbackFailed
		if strings.TrimSpace(r.Error) == "" {
			r.Error = "automation engine reported failure"
		}
		return nil
	default:
		return models.Invalid("status", "must be completed or failed")
	}
}

// Complete applies a remote engine's terminal report with the same atomic
// contract as local generation. Reports for settled jobs fail with
// models.ErrInvalidTransition.
func (o *Orchestrator) Complete(ctx context.Context, jobID string, r CallbackResult) (models.Job, error) {
	if err := r.validate(); err != nil {
		return models.Job{}, err
	}
	log := o.log.With().Str("job_id", jobID).Str("callback_status", r.Status).Logger()

	var (
		job     models.Job
		project models.Project
		err     error
	)
	if r.Status == CallbackCompleted {
		out := models.JobOutput{Model: r.Model, TotalTokens: r.TotalTokens}
		job, project, err = o.complete(ctx, jobID, r.ExecutionID, *r.Artifacts, out)
	} else {
		job, err = o.fail(ctx, jobID, r.ExecutionID, "automation engine: "+r.Error, "remote")
	}
	if errors.Is(err, errSettled) {
		_, _, err = o.store.UpdateJob(ctx, jobID, func(j *models.Job, _ *models.Project) error {
			return &models.TransitionError{Entity: "job", ID: j.ID, From: j.Status, To: r.Status}
		})
		log.Warn().Err(err).Msg("callback for settled job")
		return models.Job{}, err
	}
	if err != nil {
		return models.Job{}, err
	}
	log.Info().Str("project_id", job.ProjectID).Str("status", job.Status).Msg("remote job settled")
	if r.Status == CallbackCompleted {
		o.publish(ctx, project)
	}
	return job, nil
}
