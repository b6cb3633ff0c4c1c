package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
)

// Task is the background work of one job.
type Task func(ctx context.Context) error

// FailFunc forces a job into failed. It must not panic and must absorb its
// own persistence errors.
type FailFunc func(ctx context.Context, jobID uuid.UUID, reason string)

// Registry owns the goroutine of every executing job. A task that returns an
// error or panics is reported through the FailFunc so its job never stays
// running.
type Registry struct {
	mu     sync.Mutex
	tasks  map[uuid.UUID]context.CancelFunc
	closed bool
	wg     sync.WaitGroup

	base   context.Context
	stop   context.CancelFunc
	fail   FailFunc
	logger *slog.Logger
}

func NewRegistry(fail FailFunc, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	base, stop := context.WithCancel(context.Background())
	return &Registry{
		tasks:  make(map[uuid.UUID]context.CancelFunc),
		base:   base,
		stop:   stop,
		fail:   fail,
		logger: logger,
	}
}

// Go starts task for jobID and returns without waiting for it.
func (r *Registry) Go(jobID uuid.UUID, task Task) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrShuttingDown
	}
	if _, ok := r.tasks[jobID]; ok {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(r.base)
	r.tasks[jobID] = cancel
	r.wg.Add(1)
	r.mu.Unlock()

	go r.run(ctx, cancel, jobID, task)
	return nil
}

// Closed reports whether Shutdown has been called.
func (r *Registry) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Registry) run(ctx context.Context, cancel context.CancelFunc, jobID uuid.UUID, task Task) {
	defer r.wg.Done()
	defer func() {
		r.mu.Lock()
		delete(r.tasks, jobID)
		r.mu.Unlock()
		cancel()
	}()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic in job task",
				"job_id", jobID.String(),
				"panic", fmt.Sprint(rec),
				"stack", string(debug.Stack()),
			)
			r.fail(context.WithoutCancel(ctx), jobID, fmt.Sprintf("panic: %v", rec))
		}
	}()

	err := task(ctx)
	if err == nil {
		return
	}

	reason := err.Error()
	if r.base.Err() != nil && errors.Is(err, context.Canceled) {
		reason = "Job interrupted by server shutdown: " + reason
	}
	r.logger.Error("job task failed",
		"job_id", jobID.String(),
		"error", err,
	)
	r.fail(context.WithoutCancel(ctx), jobID, reason)
}

// Active reports whether jobID has a task in this process.
func (r *Registry) Active(jobID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[jobID]
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// Wait blocks until every started task has returned.
func (r *Registry) Wait() {
	r.wg.Wait()
}

// Shutdown refuses new tasks, cancels running ones and waits for them to
// return or for ctx to end. Cancelled runs still commit their in-flight batch.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.stop()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %d job tasks: %w", r.Len(), ctx.Err())
	}
}
