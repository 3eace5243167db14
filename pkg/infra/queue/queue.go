package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hubsync/pkg/domain/interfaces"
	"github.com/m-mizutani/hubsync/pkg/domain/types"
	"github.com/m-mizutani/hubsync/pkg/utils/logging"
)

// Handler executes one dequeued task.
type Handler func(ctx context.Context, task interfaces.Task) error

// Memory is an in-process task queue with at-least-once semantics: a
// failed handler call is re-dispatched up to maxAttempts times before
// the task is dropped with an error log. Tasks must tolerate replay;
// every consumer goes through the idempotent upsert layer, so a
// duplicate dispatch is harmless.
type Memory struct {
	mu      sync.Mutex
	handler Handler
	wg      sync.WaitGroup

	maxAttempts int
	retryDelay  time.Duration
	inline      bool
}

var _ interfaces.Queue = (*Memory)(nil)

type Option func(*Memory)

// WithMaxAttempts bounds re-dispatch of a failing task.
func WithMaxAttempts(n int) Option {
	return func(x *Memory) {
		x.maxAttempts = n
	}
}

// WithRetryDelay sets the pause between re-dispatches.
func WithRetryDelay(d time.Duration) Option {
	return func(x *Memory) {
		x.retryDelay = d
	}
}

// WithInline executes tasks synchronously inside Enqueue. Test use
// only; delay is ignored.
func WithInline() Option {
	return func(x *Memory) {
		x.inline = true
	}
}

func New(options ...Option) *Memory {
	q := &Memory{
		maxAttempts: 3,
		retryDelay:  5 * time.Second,
	}
	for _, opt := range options {
		opt(q)
	}
	return q
}

// SetHandler installs the dispatch target. It must be called before
// the first Enqueue.
func (x *Memory) SetHandler(h Handler) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.handler = h
}

func (x *Memory) Enqueue(ctx context.Context, delay time.Duration, task interfaces.Task) error {
	x.mu.Lock()
	handler := x.handler
	x.mu.Unlock()

	if handler == nil {
		return goerr.Wrap(types.ErrInvalidOption, "queue handler is not set")
	}

	if x.inline {
		x.dispatch(ctx, handler, task)
		return nil
	}

	// The task outlives the enqueueing request, so it runs on a
	// detached context that keeps only the logger and request values.
	taskCtx := logging.With(context.Background(), logging.From(ctx))
	taskCtx = logging.InheritContextValues(taskCtx, ctx)

	x.wg.Add(1)
	go func() {
		defer x.wg.Done()

		if delay > 0 {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			<-timer.C
		}

		x.dispatch(taskCtx, handler, task)
	}()

	return nil
}

func (x *Memory) dispatch(ctx context.Context, handler Handler, task interfaces.Task) {
	logger := logging.From(ctx).With(
		slog.String("task", string(task.Kind)),
		slog.Any("jobID", task.JobID),
	)

	for attempt := 1; attempt <= x.maxAttempts; attempt++ {
		err := handler(ctx, task)
		if err == nil {
			return
		}

		logger.Warn("task handler failed",
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)

		if attempt < x.maxAttempts && !x.inline {
			select {
			case <-time.After(x.retryDelay):
			case <-ctx.Done():
				return
			}
		}
	}

	logger.Error("task dropped after max attempts")
}

// Wait blocks until all in-flight tasks finish. Used during shutdown
// and in tests.
func (x *Memory) Wait() {
	x.wg.Wait()
}
