package interfaces

import (
	"context"

	"github.com/m-mizutani/hubsync/pkg/domain/model"
	"github.com/m-mizutani/hubsync/pkg/domain/types"
)

type UseCase interface {
	// Webhook ingestion and processing
	IngestWebhookEvent(ctx context.Context, ev *model.WebhookEvent) error
	ProcessPendingEvents(ctx context.Context, limit int) error
	PromoteRetryEvents(ctx context.Context) error

	// Bootstrap workflow
	ConnectRepository(ctx context.Context, repo *model.Repository) error
	RunSyncJob(ctx context.Context, jobID types.SyncJobID) error
	ReapStuckJobs(ctx context.Context) error

	// Queued task dispatch
	HandleTask(ctx context.Context, task Task) error

	// Operational surface
	SyncStatus(ctx context.Context) (*model.SyncStatus, error)
}
