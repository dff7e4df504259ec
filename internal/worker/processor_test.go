package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"ai-web-studio/internal/config"
	"ai-web-studio/internal/models"
	"ai-web-studio/internal/pipeline"
	"ai-web-studio/internal/queue"
)

type fakeGenerator struct {
	mu    sync.Mutex
	errs  map[string]error
	delay time.Duration
	ran   []string
}

func (f *fakeGenerator) GenerateJob(ctx context.Context, jobID string) (models.Bundle, error) {
	f.mu.Lock()
	f.ran = append(f.ran, jobID)
	err := f.errs[jobID]
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return models.Bundle{}, err
}

func newTestProcessor(t *testing.T, visibility time.Duration, gen Generator) (*Processor, *queue.RedisQueue) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := config.Config{VisibilityTimeout: visibility, DLQName: "test:dlq", WorkerPollInterval: 10 * time.Millisecond}
	q := queue.NewRedisQueue(client, cfg)
	return NewProcessor(cfg, q, gen, zerolog.Nop(), "w-test"), q
}

func TestProcessNextAcksOutcomes(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{errs: map[string]error{
		"stage":     &pipeline.StageError{Stage: pipeline.StageMarkup, Err: errors.New("boom")},
		"cancelled": pipeline.ErrCancelled,
		"gone":      models.ErrNotFound,
	}}
	p, q := newTestProcessor(t, time.Minute, gen)

	for _, id := range []string{"ok", "stage", "cancelled", "gone"} {
		if err := q.Enqueue(ctx, id); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	for i := 0; i < 4; i++ {
		handled, err := p.ProcessNext(ctx)
		if err != nil || !handled {
			t.Fatalf("process %d: handled=%v err=%v", i, handled, err)
		}
	}
	if n, _ := q.InFlight(ctx); n != 0 {
		t.Fatalf("in-flight after acks = %d", n)
	}
	if dlq, _ := q.DLQPeek(ctx, 10); len(dlq) != 0 {
		t.Fatalf("settled jobs dead-lettered: %v", dlq)
	}
	handled, err := p.ProcessNext(ctx)
	if handled || err != nil {
		t.Fatalf("empty queue: handled=%v err=%v", handled, err)
	}
}

func TestInfrastructureFailureIsDeadLettered(t *testing.T) {
	ctx := context.Background()
	stageErr := &pipeline.StageError{Stage: pipeline.StageStructure, Err: errors.New("status 500")}
	gen := &fakeGenerator{errs: map[string]error{
		"j1": errors.New("connection refused"),
		"j2": fmt.Errorf("record stage failure (%v): %w", stageErr, errors.New("connection reset")),
	}}
	p, q := newTestProcessor(t, time.Minute, gen)
	_ = q.Enqueue(ctx, "j1")
	_ = q.Enqueue(ctx, "j2")

	for i := 0; i < 2; i++ {
		if _, err := p.ProcessNext(ctx); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	dlq, _ := q.DLQPeek(ctx, 10)
	if len(dlq) != 2 || dlq[0] != "j1" || dlq[1] != "j2" {
		t.Fatalf("expected j1 and j2 in dlq, got %v", dlq)
	}
	if n, _ := q.InFlight(ctx); n != 0 {
		t.Fatalf("dead-lettered job still in flight")
	}
}

type countingQueue struct {
	*queue.RedisQueue
	mu      sync.Mutex
	extends int
}

func (c *countingQueue) ExtendLease(ctx context.Context, jobID string, ext time.Duration) error {
	c.mu.Lock()
	c.extends++
	c.mu.Unlock()
	return c.RedisQueue.ExtendLease(ctx, jobID, ext)
}

func TestLeaseIsExtendedWhileRunning(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{delay: 150 * time.Millisecond}
	_, rq := newTestProcessor(t, 40*time.Millisecond, gen)
	cq := &countingQueue{RedisQueue: rq}
	p := NewProcessor(config.Config{WorkerPollInterval: 10 * time.Millisecond}, cq, gen, zerolog.Nop(), "w-test")

	_ = rq.Enqueue(ctx, "slow")
	if _, err := p.ProcessNext(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}
	cq.mu.Lock()
	defer cq.mu.Unlock()
	if cq.extends < 2 {
		t.Fatalf("expected lease extensions, got %d", cq.extends)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	gen := &fakeGenerator{}
	p, q := newTestProcessor(t, time.Minute, gen)
	ctx, cancel := context.WithCancel(context.Background())
	_ = q.Enqueue(ctx, "a")

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	deadline := time.Now().Add(2 * time.Second)
	for {
		gen.mu.Lock()
		n := len(gen.ran)
		gen.mu.Unlock()
		if n == 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("unexpected run error %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop")
	}
	if len(gen.ran) != 1 || gen.ran[0] != "a" {
		t.Fatalf("unexpected jobs run %v", gen.ran)
	}
}
