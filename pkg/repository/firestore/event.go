package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hubsync/pkg/domain/model"
	"github.com/m-mizutani/hubsync/pkg/domain/types"
	"github.com/m-mizutani/hubsync/pkg/repository"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func (r *syncRepository) CreateEvent(ctx context.Context, ev *model.WebhookEvent) (bool, error) {
	docRef := r.client.Collection(collectionEvent).Doc(string(ev.DeliveryID))

	// Create fails when the delivery ID already has a row; a redelivery
	// must not produce a second one.
	if _, err := docRef.Create(ctx, ev); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return false, nil
		}
		return false, goerr.Wrap(err, "failed to create webhook event",
			goerr.V("deliveryID", ev.DeliveryID),
		)
	}

	return true, nil
}

func (r *syncRepository) GetEvent(ctx context.Context, deliveryID types.DeliveryID) (*model.WebhookEvent, error) {
	snap, err := r.client.Collection(collectionEvent).Doc(string(deliveryID)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(repository.ErrNotFound, "webhook event not found",
				goerr.V("deliveryID", deliveryID),
			)
		}
		return nil, goerr.Wrap(err, "failed to get webhook event",
			goerr.V("deliveryID", deliveryID),
		)
	}

	var ev model.WebhookEvent
	if err := snap.DataTo(&ev); err != nil {
		return nil, goerr.Wrap(err, "failed to decode webhook event",
			goerr.V("deliveryID", deliveryID),
		)
	}

	return &ev, nil
}

func (r *syncRepository) UpdateEvent(ctx context.Context, ev *model.WebhookEvent) error {
	docRef := r.client.Collection(collectionEvent).Doc(string(ev.DeliveryID))

	if _, err := docRef.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(repository.ErrNotFound, "webhook event not found",
				goerr.V("deliveryID", ev.DeliveryID),
			)
		}
		return goerr.Wrap(err, "failed to get webhook event",
			goerr.V("deliveryID", ev.DeliveryID),
		)
	}

	if _, err := docRef.Set(ctx, ev); err != nil {
		return goerr.Wrap(err, "failed to update webhook event",
			goerr.V("deliveryID", ev.DeliveryID),
		)
	}

	return nil
}

func (r *syncRepository) ListEventsByState(ctx context.Context, state model.ProcessState, until time.Time, limit int) ([]*model.WebhookEvent, error) {
	query := r.client.Collection(collectionEvent).
		Where("State", "==", string(state)).
		Where("NextAttemptAt", "<=", until).
		OrderBy("NextAttemptAt", firestore.Asc)
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var events []*model.WebhookEvent
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate webhook events",
				goerr.V("state", state),
			)
		}

		var ev model.WebhookEvent
		if err := snap.DataTo(&ev); err != nil {
			return nil, goerr.Wrap(err, "failed to decode webhook event")
		}

		events = append(events, &ev)
	}

	return events, nil
}

func (r *syncRepository) CountEventsByState(ctx context.Context) (map[model.ProcessState]int, error) {
	iter := r.client.Collection(collectionEvent).Select("State").Documents(ctx)
	defer iter.Stop()

	counts := make(map[model.ProcessState]int)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate webhook events")
		}

		var ev model.WebhookEvent
		if err := snap.DataTo(&ev); err != nil {
			return nil, goerr.Wrap(err, "failed to decode webhook event")
		}
		counts[ev.State]++
	}

	return counts, nil
}
