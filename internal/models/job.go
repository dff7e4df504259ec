package models

import (
	"time"
)

// JobStatus enumerates lifecycle states persisted in Postgres.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
	JobCancelled = "cancelled"
)

// Job kinds. Only one non-terminal job per (project, kind) may exist.
const (
	KindFrontendGeneration = "frontend_generation"
)

// Executors that can carry a job.
const (
	ExecutorLocal  = "local"
	ExecutorRemote = "remote"
)

// Job is one execution attempt of the generation pipeline for a project.
type Job struct {
	ID         string     `json:"id"`
	ProjectID  string     `json:"project_id"`
	UserID     string     `json:"user_id"`
	Kind       string     `json:"kind"`
	Status     string     `json:"status"`
	Executor   string     `json:"executor"`
	Input      JobInput   `json:"input"`
	Output     *JobOutput `json:"output,omitempty"`
	Error      *string    `json:"error,omitempty"`
	ExternalID *string    `json:"external_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// JobInput is the snapshot of project parameters taken when the job was created.
// Later edits to the project never leak into an in-flight job.
type JobInput struct {
	Title           string `json:"title"`
	Prompt          string `json:"prompt"`
	TechStack       string `json:"tech_stack"`
	ColorSchemeHint string `json:"color_scheme_hint,omitempty"`
}

// JobOutput is recorded only on success.
type JobOutput struct {
	Model            string `json:"model,omitempty"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// NewJob builds a pending job whose input is copied from the project.
func NewJob(id string, p Project, kind, executor string, now time.Time) Job {
	return Job{
		ID:        id,
		ProjectID: p.ID,
		UserID:    p.UserID,
		Kind:      kind,
		Status:    JobPending,
		Executor:  executor,
		Input: JobInput{
			Title:           p.Title,
			Prompt:          p.Prompt,
			TechStack:       p.TechStack,
			ColorSchemeHint: p.ColorSchemeHint,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsTerminal reports whether the job can no longer change.
func (j Job) IsTerminal() bool {
	return IsTerminalJobStatus(j.Status)
}
