package usecase

import (
	"context"

	"cloud.google.com/go/bigquery"
	"github.com/m-mizutani/bqs"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hubsync/pkg/domain/interfaces"
	"github.com/m-mizutani/hubsync/pkg/domain/model"
	"github.com/m-mizutani/hubsync/pkg/utils/errutil"
)

// The audit sink is optional and best-effort: a BigQuery failure is
// logged but never fails the event or job that triggered it.

type eventAuditRecord struct {
	DeliveryID   string
	Event        string
	Action       string
	RepositoryID int64
	State        string
	AttemptCount int
	ReceivedAt   int64
	Timestamp    int64
}

type jobAuditRecord struct {
	JobID        string
	RepositoryID int64
	Owner        string
	RepoName     string
	State        string
	ItemsFetched int
	AttemptCount int
	StartedAt    int64
	Timestamp    int64
}

func (x *UseCase) auditEvent(ctx context.Context, ev *model.WebhookEvent) {
	if x.clients.BigQuery() == nil {
		return
	}

	record := &eventAuditRecord{
		DeliveryID:   string(ev.DeliveryID),
		Event:        ev.Event,
		Action:       ev.Action,
		RepositoryID: int64(ev.RepositoryID),
		State:        string(ev.State),
		AttemptCount: ev.AttemptCount,
		ReceivedAt:   ev.ReceivedAt.UnixMicro(),
		Timestamp:    x.now().UTC().UnixMicro(),
	}

	if err := x.insertAuditRecord(ctx, record); err != nil {
		errutil.HandleError(ctx, "failed to audit webhook event", err)
	}
}

func (x *UseCase) auditJob(ctx context.Context, job *model.SyncJob) {
	if x.clients.BigQuery() == nil {
		return
	}

	record := &jobAuditRecord{
		JobID:        job.ID.String(),
		RepositoryID: int64(job.RepositoryID),
		Owner:        job.Owner,
		RepoName:     job.RepoName,
		State:        string(job.State),
		ItemsFetched: job.ItemsFetched,
		AttemptCount: job.AttemptCount,
		StartedAt:    job.StartedAt.UnixMicro(),
		Timestamp:    x.now().UTC().UnixMicro(),
	}

	if err := x.insertAuditRecord(ctx, record); err != nil {
		errutil.HandleError(ctx, "failed to audit sync job", err)
	}
}

func (x *UseCase) insertAuditRecord(ctx context.Context, record any) error {
	bq := x.clients.BigQuery()

	schema, schemaUpdated, err := createOrUpdateAuditTable(ctx, bq, record)
	if err != nil {
		return err
	}

	if err := bq.Insert(ctx, schema, record, interfaces.WithRetry(schemaUpdated)); err != nil {
		return goerr.Wrap(err, "failed to insert audit record")
	}

	return nil
}

func createOrUpdateAuditTable(ctx context.Context, bq interfaces.BigQuery, record any) (schema bigquery.Schema, schemaUpdated bool, err error) {
	schema, err = bqs.Infer(record)
	if err != nil {
		return nil, false, goerr.Wrap(err, "failed to infer audit schema")
	}

	metaData, err := bq.GetMetadata(ctx)
	if err != nil {
		return nil, false, goerr.Wrap(err, "failed to get audit table metadata")
	}
	if metaData == nil {
		if err := bq.CreateTable(ctx, &bigquery.TableMetadata{
			Schema: schema,
		}); err != nil {
			return nil, false, goerr.Wrap(err, "failed to create audit table")
		}

		return schema, false, nil
	}

	if bqs.Equal(metaData.Schema, schema) {
		return schema, false, nil
	}

	mergedSchema, err := bqs.Merge(metaData.Schema, schema)
	if err != nil {
		return nil, false, goerr.Wrap(err, "failed to merge audit schema")
	}
	if err := bq.UpdateTable(ctx, bigquery.TableMetadataToUpdate{
		Schema: mergedSchema,
	}, metaData.ETag); err != nil {
		return nil, false, goerr.Wrap(err, "failed to update audit table")
	}

	return mergedSchema, true, nil
}
