package orchestrator

import (
	"context"

	"ai-web-studio/internal/dispatch"
	"ai-web-studio/internal/models"
	"ai-web-studio/internal/retry"
	"ai-web-studio/internal/telemetry"
)

// Submission is what an executor reports after accepting a job.
// Started means the job is already running elsewhere.
type Submission struct {
	Started    bool
	ExternalID string
}

// Executor hands a newly created job to whatever will run it. The job and
// project state machine is the same for every executor.
type Executor interface {
	Name() string
	Submit(ctx context.Context, job models.Job) (Submission, error)
	Cancel(ctx context.Context, job models.Job) error
}

// JobQueue is the work queue consumed by local workers.
type JobQueue interface {
	Enqueue(ctx context.Context, jobID string) error
	Remove(ctx context.Context, jobID string) error
}

// LocalPipelineExecutor queues jobs for in-house workers, which call
// Orchestrator.GenerateJob.
type LocalPipelineExecutor struct {
	queue JobQueue
}

func NewLocalPipelineExecutor(q JobQueue) *LocalPipelineExecutor {
	return &LocalPipelineExecutor{queue: q}
}

func (e *LocalPipelineExecutor) Name() string { return models.ExecutorLocal }

func (e *LocalPipelineExecutor) Submit(ctx context.Context, job models.Job) (Submission, error) {
	if err := e.queue.Enqueue(ctx, job.ID); err != nil {
		return Submission{}, err
	}
	return Submission{}, nil
}

func (e *LocalPipelineExecutor) Cancel(ctx context.Context, job models.Job) error {
	return e.queue.Remove(ctx, job.ID)
}

// Dispatcher sends a job to the external automation engine.
type Dispatcher interface {
	Dispatch(ctx context.Context, p dispatch.Payload) (dispatch.Ack, error)
}

// RemoteDispatchExecutor hands jobs to an external workflow engine. The job
// is running once the engine acknowledges it; completion arrives through
// Orchestrator.Complete.
type RemoteDispatchExecutor struct {
	dispatcher Dispatcher
	retry      retry.Policy
}

func NewRemoteDispatchExecutor(d Dispatcher, policy retry.Policy) *RemoteDispatchExecutor {
	return &RemoteDispatchExecutor{dispatcher: d, retry: policy}
}

func (e *RemoteDispatchExecutor) Name() string { return models.ExecutorRemote }

func (e *RemoteDispatchExecutor) Submit(ctx context.Context, job models.Job) (Submission, error) {
	payload := dispatch.Payload{
		JobID:     job.ID,
		ProjectID: job.ProjectID,
		UserID:    job.UserID,
		Title:     job.Input.Title,
		Prompt:    job.Input.Prompt,
		TechStack: job.Input.TechStack,
	}
	var ack dispatch.Ack
	err := e.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		ack, err = e.dispatcher.Dispatch(ctx, payload)
		if err != nil {
			telemetry.DispatchTotal.WithLabelValues("failed").Inc()
		}
		return err
	}, dispatch.IsRetryable)
	if err != nil {
		return Submission{}, err
	}
	telemetry.DispatchTotal.WithLabelValues("ok").Inc()
	return Submission{Started: true, ExternalID: ack.ExecutionID}, nil
}

// Cancel only updates local state; the engine has no cancel endpoint.
func (e *RemoteDispatchExecutor) Cancel(context.Context, models.Job) error {
	return nil
}
