package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hubsync/pkg/domain/model"
	"github.com/m-mizutani/hubsync/pkg/utils/errutil"
	"github.com/m-mizutani/hubsync/pkg/utils/logging"
)

// ProcessPendingEvents claims due pending events and dispatches them
// concurrently. Each event's outcome is recorded on its own row; one
// failing event never blocks the rest of the batch.
func (x *UseCase) ProcessPendingEvents(ctx context.Context, limit int) error {
	now := x.now().UTC()
	events, err := x.clients.SyncRepository().ListEventsByState(ctx, model.ProcessStatePending, now, limit)
	if err != nil {
		return goerr.Wrap(err, "failed to list pending events")
	}
	if len(events) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	for _, ev := range events {
		wg.Add(1)
		go func(ev *model.WebhookEvent) {
			defer wg.Done()
			x.processEvent(ctx, ev)
		}(ev)
	}
	wg.Wait()

	return nil
}

// processEvent runs one event through its handler and persists the
// resulting state transition.
func (x *UseCase) processEvent(ctx context.Context, ev *model.WebhookEvent) {
	logger := logging.From(ctx)

	handlerErr := x.handleEvent(ctx, ev)

	now := x.now().UTC()
	if handlerErr == nil {
		ev.State = model.ProcessStateProcessed
		ev.ProcessedAt = now
		ev.LastError = ""
		if err := x.clients.SyncRepository().UpdateEvent(ctx, ev); err != nil {
			errutil.HandleError(ctx, "failed to mark event processed", err)
		}
		x.auditEvent(ctx, ev)
		return
	}

	ev.AttemptCount++
	ev.LastError = model.TruncateError(handlerErr.Error(), errorLimit)

	// A rate-limited attempt waits out the hint instead of the
	// exponential schedule and does not count toward dead-lettering.
	var rateLimitErr *model.RateLimitError
	if errors.As(handlerErr, &rateLimitErr) {
		ev.AttemptCount--
		ev.State = model.ProcessStateRetry
		ev.NextAttemptAt = now.Add(rateLimitErr.RetryAfter)
	} else if ev.AttemptCount >= x.maxEventAttempts {
		ev.State = model.ProcessStateDeadLetter
		logger.Error("webhook event dead-lettered",
			"deliveryID", ev.DeliveryID,
			"event", ev.Event,
			"attempts", ev.AttemptCount,
			"error", ev.LastError,
		)
	} else {
		ev.State = model.ProcessStateRetry
		ev.NextAttemptAt = now.Add(x.backoff(ev.AttemptCount))
	}

	if ev.State == model.ProcessStateRetry {
		logger.Warn("webhook event processing failed, will retry",
			"deliveryID", ev.DeliveryID,
			"event", ev.Event,
			"attempt", ev.AttemptCount,
			"nextAttemptAt", ev.NextAttemptAt,
			"error", ev.LastError,
		)
	}

	if err := x.clients.SyncRepository().UpdateEvent(ctx, ev); err != nil {
		errutil.HandleError(ctx, "failed to record event failure", err)
	}
}

// PromoteRetryEvents flips retry rows whose delay has elapsed back to
// pending so the fast poller picks them up. Dead letters stay put.
func (x *UseCase) PromoteRetryEvents(ctx context.Context) error {
	now := x.now().UTC()
	events, err := x.clients.SyncRepository().ListEventsByState(ctx, model.ProcessStateRetry, now, 0)
	if err != nil {
		return goerr.Wrap(err, "failed to list retry events")
	}

	for _, ev := range events {
		ev.State = model.ProcessStatePending
		if err := x.clients.SyncRepository().UpdateEvent(ctx, ev); err != nil {
			errutil.HandleError(ctx, "failed to promote retry event", err)
		}
	}

	return nil
}
