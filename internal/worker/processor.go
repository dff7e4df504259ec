package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-web-studio/internal/config"
	"ai-web-studio/internal/models"
	"ai-web-studio/internal/pipeline"
	"ai-web-studio/internal/telemetry"
)

// Queue is the leasing work queue the processor consumes.
type Queue interface {
	VisibilityTimeout() time.Duration
	DequeueWithLease(ctx context.Context) (string, error)
	ExtendLease(ctx context.Context, jobID string, extension time.Duration) error
	Ack(ctx context.Context, jobID string) error
	RequeueExpired(ctx context.Context, now time.Time, limit int64) ([]string, error)
	DLQPush(ctx context.Context, jobID string) error
	ReadyDepth(ctx context.Context) (int64, error)
	InFlight(ctx context.Context) (int64, error)
}

// Generator runs the generation pipeline for one job and records its outcome.
type Generator interface {
	GenerateJob(ctx context.Context, jobID string) (models.Bundle, error)
}

// reclaimBatch bounds how many expired leases one loop iteration requeues.
const reclaimBatch = 100

// Processor drives the worker execution loop.
type Processor struct {
	queue Queue
	gen   Generator
	poll  time.Duration
	lease time.Duration
	log   zerolog.Logger
}

// NewProcessor creates a processor; workerID is only used in logs.
func NewProcessor(cfg config.Config, q Queue, gen Generator, log zerolog.Logger, workerID string) *Processor {
	poll := cfg.WorkerPollInterval
	if poll <= 0 {
		poll = time.Second
	}
	lease := q.VisibilityTimeout()
	if lease <= 0 {
		lease = 2 * time.Minute
	}
	return &Processor{
		queue: q,
		gen:   gen,
		poll:  poll,
		lease: lease,
		log:   log.With().Str("worker_id", workerID).Logger(),
	}
}

// Run starts the main worker loop until context cancellation. A job already
// running when ctx is cancelled is allowed to finish.
func (p *Processor) Run(ctx context.Context) error {
	p.log.Info().Dur("lease", p.lease).Msg("worker started")
	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("worker stopping")
			return ctx.Err()
		default:
		}

		handled, err := p.ProcessNext(ctx)
		if err != nil {
			p.log.Warn().Err(err).Msg("poll queue")
		}
		if handled {
			continue
		}
		select {
		case <-ctx.Done():
		case <-time.After(p.poll):
		}
	}
}

// ProcessNext reclaims expired leases, then leases and runs one job. It
// reports whether a job was taken.
func (p *Processor) ProcessNext(ctx context.Context) (bool, error) {
	if reclaimed, err := p.queue.RequeueExpired(ctx, time.Now(), reclaimBatch); err != nil {
		p.log.Warn().Err(err).Msg("requeue expired leases")
	} else if len(reclaimed) > 0 {
		p.log.Warn().Strs("job_ids", reclaimed).Msg("reclaimed expired leases")
	}
	p.observe(ctx)

	jobID, err := p.queue.DequeueWithLease(ctx)
	if err != nil {
		return false, err
	}
	if jobID == "" {
		return false, nil
	}

	jobCtx := context.WithoutCancel(ctx)
	runErr := p.runWithLease(jobCtx, jobID)
	log := p.log.With().Str("job_id", jobID).Logger()
	switch {
	case runErr == nil:
		log.Info().Msg("job done")
	case settled(runErr):
		log.Info().Err(runErr).Msg("job settled without output")
	default:
		log.Error().Err(runErr).Msg("job dead-lettered")
		telemetry.WorkerDeadLetter.Inc()
		if err := p.queue.DLQPush(jobCtx, jobID); err != nil {
			return true, err
		}
		return true, nil
	}
	return true, p.queue.Ack(jobCtx, jobID)
}

// runWithLease extends the job's lease at half the visibility timeout while
// the pipeline runs.
func (p *Processor) runWithLease(ctx context.Context, jobID string) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(p.lease / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.queue.ExtendLease(ctx, jobID, p.lease); err != nil {
					p.log.Warn().Err(err).Str("job_id", jobID).Msg("extend lease")
				}
			}
		}
	}()
	_, err := p.gen.GenerateJob(ctx, jobID)
	cancel()
	wg.Wait()
	return err
}

// settled reports whether the job's state is final regardless of err, so
// the queue entry can be acked.
func settled(err error) bool {
	return errors.Is(err, pipeline.ErrStageFailed) ||
		errors.Is(err, pipeline.ErrCancelled) ||
		errors.Is(err, models.ErrInvalidTransition) ||
		errors.Is(err, models.ErrNotFound)
}

func (p *Processor) observe(ctx context.Context) {
	if depth, err := p.queue.ReadyDepth(ctx); err == nil {
		telemetry.QueueDepthGauge.Set(float64(depth))
	}
	if n, err := p.queue.InFlight(ctx); err == nil {
		telemetry.InFlightGauge.Set(float64(n))
	}
}
