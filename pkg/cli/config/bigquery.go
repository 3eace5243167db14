package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/hubsync/pkg/domain/interfaces"
	"github.com/m-mizutani/hubsync/pkg/domain/types"
	"github.com/m-mizutani/hubsync/pkg/infra/bq"
	"github.com/urfave/cli/v3"
)

type BigQuery struct {
	projectID types.GoogleProjectID
	datasetID types.BQDatasetID
	tableID   types.BQTableID
}

func (x *BigQuery) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "bigquery-project-id",
			Usage:       "BigQuery project ID (optional, audit sink disabled when empty)",
			Category:    "BigQuery",
			Sources:     cli.EnvVars("HUBSYNC_BIGQUERY_PROJECT_ID"),
			Destination: (*string)(&x.projectID),
		},
		&cli.StringFlag{
			Name:        "bigquery-dataset-id",
			Usage:       "BigQuery dataset ID",
			Category:    "BigQuery",
			Sources:     cli.EnvVars("HUBSYNC_BIGQUERY_DATASET_ID"),
			Value:       "hubsync",
			Destination: (*string)(&x.datasetID),
		},
		&cli.StringFlag{
			Name:        "bigquery-table-id",
			Usage:       "BigQuery table ID",
			Category:    "BigQuery",
			Sources:     cli.EnvVars("HUBSYNC_BIGQUERY_TABLE_ID"),
			Value:       "sync_audit",
			Destination: (*string)(&x.tableID),
		},
	}
}

func (x *BigQuery) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("projectID", x.projectID),
		slog.Any("datasetID", x.datasetID),
		slog.Any("tableID", x.tableID),
	)
}

// NewClient returns nil without error when the audit sink is not
// configured.
func (x *BigQuery) NewClient(ctx context.Context) (interfaces.BigQuery, error) {
	if x.projectID == "" {
		return nil, nil
	}
	return bq.New(ctx, x.projectID, x.datasetID, x.tableID)
}
