package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hubsync/pkg/domain/model"
	"github.com/m-mizutani/hubsync/pkg/utils/logging"
)

// IngestWebhookEvent persists a received delivery. The delivery ID is
// the dedup key; a redelivery finds the existing row and returns
// without error so the receiver can answer 200 either way.
func (x *UseCase) IngestWebhookEvent(ctx context.Context, ev *model.WebhookEvent) error {
	if err := ev.Validate(); err != nil {
		return goerr.Wrap(err, "invalid webhook event",
			goerr.V("deliveryID", ev.DeliveryID),
			goerr.V("event", ev.Event),
		)
	}

	now := x.now().UTC()
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = now
	}
	if ev.NextAttemptAt.IsZero() {
		ev.NextAttemptAt = now
	}
	if ev.State == "" {
		ev.State = model.ProcessStatePending
	}

	created, err := x.clients.SyncRepository().CreateEvent(ctx, ev)
	if err != nil {
		return goerr.Wrap(err, "failed to persist webhook event",
			goerr.V("deliveryID", ev.DeliveryID),
		)
	}

	logger := logging.From(ctx)
	if !created {
		logger.Info("duplicate webhook delivery ignored",
			"deliveryID", ev.DeliveryID,
			"event", ev.Event,
		)
		return nil
	}

	logger.Info("webhook event ingested",
		"deliveryID", ev.DeliveryID,
		"event", ev.Event,
		"action", ev.Action,
		"repoID", ev.RepositoryID,
	)
	return nil
}
