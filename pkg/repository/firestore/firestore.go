package firestore

import (
	"context"
	"strconv"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hubsync/pkg/domain/interfaces"
	"github.com/m-mizutani/hubsync/pkg/domain/types"
)

const (
	collectionEvent   = "webhook_event"
	collectionSyncJob = "sync_job"
	collectionRepo    = "repo"
	collectionUser    = "user"

	collectionBranch      = "branch"
	collectionPullRequest = "pull_request"
	collectionIssue       = "issue"
	collectionCommit      = "commit"
	collectionCheckRun    = "check_run"
	collectionWorkflowRun = "workflow_run"
	collectionWorkflowJob = "workflow_job"
	collectionPRFiles     = "pr_files"
)

// New creates a new Firestore-based repository
func New(ctx context.Context, projectID, databaseID string) (interfaces.SyncRepository, error) {
	var client *firestore.Client
	var err error

	if databaseID != "" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}

	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Firestore client",
			goerr.V("projectID", projectID),
			goerr.V("databaseID", databaseID),
		)
	}

	return &syncRepository{
		client: client,
	}, nil
}

type syncRepository struct {
	client *firestore.Client
}

func (r *syncRepository) repoDoc(repoID types.GitHubRepoID) *firestore.DocumentRef {
	return r.client.Collection(collectionRepo).Doc(strconv.FormatInt(int64(repoID), 10))
}

func int64DocID(v int64) string {
	return strconv.FormatInt(v, 10)
}
