package models

import "time"

// IsTerminalJobStatus reports whether a job status is final.
func IsTerminalJobStatus(s string) bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// IsTerminalProjectStatus reports whether a project status is final.
func IsTerminalProjectStatus(s string) bool {
	return s == ProjectReady || s == ProjectFailed
}

func jobTransitionAllowed(from, to string) bool {
	switch from {
	case JobPending:
		return to == JobRunning || to == JobFailed || to == JobCancelled
	case JobRunning:
		return to == JobCompleted || to == JobFailed || to == JobCancelled
	default:
		return false
	}
}

func projectTransitionAllowed(from, to string) bool {
	switch from {
	case ProjectDraft:
		return to == ProjectGenerating
	case ProjectGenerating:
		return to == ProjectReady || to == ProjectFailed
	default:
		return false
	}
}

// Transition moves the job to status to, stamping timestamps.
// The job is mutated only when the transition is allowed.
func (j *Job) Transition(to string, now time.Time) error {
	if !jobTransitionAllowed(j.Status, to) {
		return &TransitionError{Entity: "job", ID: j.ID, From: j.Status, To: to}
	}
	j.Status = to
	j.UpdatedAt = now
	if to == JobRunning {
		j.StartedAt = &now
	}
	if IsTerminalJobStatus(to) {
		j.FinishedAt = &now
	}
	return nil
}

// Start moves a pending job to running.
func (j *Job) Start(now time.Time) error {
	return j.Transition(JobRunning, now)
}

// Complete marks the job completed with its output.
func (j *Job) Complete(out JobOutput, now time.Time) error {
	if err := j.Transition(JobCompleted, now); err != nil {
		return err
	}
	j.Output = &out
	j.Error = nil
	return nil
}

// Fail marks the job failed with a bounded error message.
func (j *Job) Fail(reason string, now time.Time) error {
	if err := j.Transition(JobFailed, now); err != nil {
		return err
	}
	msg := Truncate(reason, MaxErrorLength)
	j.Error = &msg
	return nil
}

// Cancel marks the job cancelled.
func (j *Job) Cancel(now time.Time) error {
	return j.Transition(JobCancelled, now)
}

func (p *Project) transition(to string, now time.Time) error {
	if !projectTransitionAllowed(p.Status, to) {
		return &TransitionError{Entity: "project", ID: p.ID, From: p.Status, To: to}
	}
	p.Status = to
	p.UpdatedAt = now
	return nil
}

// BeginGeneration moves a draft project to generating.
func (p *Project) BeginGeneration(now time.Time) error {
	if err := p.transition(ProjectGenerating, now); err != nil {
		return err
	}
	p.Error = nil
	return nil
}

// Publish writes the bundle into the artifact fields and marks the project ready.
// Artifacts and status change together or not at all.
func (p *Project) Publish(b Bundle, now time.Time) error {
	if err := p.transition(ProjectReady, now); err != nil {
		return err
	}
	structure := b.Structure
	palette := b.ColorScheme
	p.Structure = &structure
	p.ColorScheme = &palette
	p.Markup = b.Markup
	p.Stylesheet = b.Stylesheet
	p.Script = b.Script
	p.BackendCode = b.BackendCode
	p.CompletedAt = &now
	p.Error = nil
	return nil
}

// Fail marks the project failed with a bounded error message. Artifacts are untouched.
func (p *Project) Fail(reason string, now time.Time) error {
	if err := p.transition(ProjectFailed, now); err != nil {
		return err
	}
	msg := Truncate(reason, MaxErrorLength)
	p.Error = &msg
	return nil
}
