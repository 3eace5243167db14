package memory

import (
	"context"
	"sort"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hubsync/pkg/domain/model"
	"github.com/m-mizutani/hubsync/pkg/domain/types"
	"github.com/m-mizutani/hubsync/pkg/repository"
)

func (r *syncRepository) CreateEvent(ctx context.Context, ev *model.WebhookEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.events[ev.DeliveryID]; exists {
		return false, nil
	}

	r.events[ev.DeliveryID] = cloneEvent(ev)
	return true, nil
}

func (r *syncRepository) GetEvent(ctx context.Context, deliveryID types.DeliveryID) (*model.WebhookEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ev, exists := r.events[deliveryID]
	if !exists {
		return nil, goerr.Wrap(repository.ErrNotFound, "webhook event not found",
			goerr.V("deliveryID", deliveryID),
		)
	}

	return cloneEvent(ev), nil
}

func (r *syncRepository) UpdateEvent(ctx context.Context, ev *model.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.events[ev.DeliveryID]; !exists {
		return goerr.Wrap(repository.ErrNotFound, "webhook event not found",
			goerr.V("deliveryID", ev.DeliveryID),
		)
	}

	r.events[ev.DeliveryID] = cloneEvent(ev)
	return nil
}

func (r *syncRepository) ListEventsByState(ctx context.Context, state model.ProcessState, until time.Time, limit int) ([]*model.WebhookEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var events []*model.WebhookEvent
	for _, ev := range r.events {
		if ev.State != state {
			continue
		}
		if ev.NextAttemptAt.After(until) {
			continue
		}
		events = append(events, cloneEvent(ev))
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].ReceivedAt.Before(events[j].ReceivedAt)
	})

	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}

	return events, nil
}

func (r *syncRepository) CountEventsByState(ctx context.Context) (map[model.ProcessState]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[model.ProcessState]int)
	for _, ev := range r.events {
		counts[ev.State]++
	}

	return counts, nil
}
