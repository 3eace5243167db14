package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hubsync/pkg/domain/model"
)

const (
	statusJobLimit        = 50
	statusDeadLetterLimit = 50
)

// SyncStatus builds the operational snapshot: event counts by state,
// recent job progress, and dead-letter samples. Diagnostics are
// truncated; raw webhook payloads never appear here.
func (x *UseCase) SyncStatus(ctx context.Context) (*model.SyncStatus, error) {
	counts, err := x.clients.SyncRepository().CountEventsByState(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to count events")
	}

	status := &model.SyncStatus{
		GeneratedAt: x.now().UTC(),
		Events:      counts,
	}

	jobStates := []model.SyncJobState{
		model.SyncJobStateRunning,
		model.SyncJobStatePending,
		model.SyncJobStateRetry,
		model.SyncJobStateFailed,
	}
	for _, state := range jobStates {
		jobs, err := x.clients.SyncRepository().ListSyncJobsByState(ctx, state, statusJobLimit)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list sync jobs",
				goerr.V("state", state),
			)
		}
		for _, job := range jobs {
			status.Jobs = append(status.Jobs, &model.SyncJobStatus{
				ID:           job.ID,
				RepositoryID: job.RepositoryID,
				Owner:        job.Owner,
				RepoName:     job.RepoName,
				State:        job.State,
				CurrentStep:  job.CurrentStep,
				ItemsFetched: job.ItemsFetched,
				AttemptCount: job.AttemptCount,
				LastError:    model.TruncateError(job.LastError, errorLimit),
				UpdatedAt:    job.UpdatedAt,
			})
		}
	}

	deadLetters, err := x.clients.SyncRepository().ListEventsByState(ctx, model.ProcessStateDeadLetter, x.now().UTC(), statusDeadLetterLimit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list dead letters")
	}
	for _, ev := range deadLetters {
		status.DeadLetters = append(status.DeadLetters, &model.DeadLetterEvent{
			DeliveryID:   ev.DeliveryID,
			Event:        ev.Event,
			Action:       ev.Action,
			AttemptCount: ev.AttemptCount,
			LastError:    model.TruncateError(ev.LastError, errorLimit),
			ReceivedAt:   ev.ReceivedAt,
		})
	}

	return status, nil
}
