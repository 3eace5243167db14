package interfaces

import (
	"context"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/m-mizutani/hubsync/pkg/domain/model"
	"github.com/m-mizutani/hubsync/pkg/domain/types"
)

// GitHubClient is the outbound API surface the sync engine depends on.
// Every chunked operation takes an opaque page cursor and returns the
// next one; an empty cursor means the listing is exhausted. The client
// surfaces rate limiting as *model.RateLimitError and never retries.
type GitHubClient interface {
	ListBranches(ctx context.Context, ref model.RepoRef) ([]*model.Branch, error)
	ListPullRequests(ctx context.Context, ref model.RepoRef, cursor string) (*PullRequestPage, error)
	ListIssues(ctx context.Context, ref model.RepoRef, cursor string) (*IssuePage, error)
	ListCommits(ctx context.Context, ref model.RepoRef) ([]*model.Commit, []*model.User, error)
	ListCheckRuns(ctx context.Context, ref model.RepoRef, headSHA types.CommitSHA) ([]*model.CheckRun, error)
	ListWorkflowRuns(ctx context.Context, ref model.RepoRef) ([]*model.WorkflowRun, []*model.User, error)
	ListWorkflowJobs(ctx context.Context, ref model.RepoRef, runID int64) ([]*model.WorkflowJob, error)
	ListPullRequestFiles(ctx context.Context, ref model.RepoRef, number int) ([]*model.PullRequestFile, error)
	ListInstallationRepos(ctx context.Context, installID types.GitHubAppInstallID) ([]*model.Repository, error)
}

type PullRequestPage struct {
	PullRequests []*model.PullRequest
	Users        []*model.User
	NextCursor   string
}

type IssuePage struct {
	Issues     []*model.Issue
	Users      []*model.User
	NextCursor string
}

// TokenSource resolves the best available credential for an outbound
// call: the user's OAuth token when present, else an installation
// token, else types.ErrNoCredential.
type TokenSource interface {
	Resolve(ctx context.Context, userID types.GitHubUserID, installID types.GitHubAppInstallID) (types.GitHubToken, error)
}

// UserTokenSource looks up a stored end-user OAuth token. A miss is
// reported as an empty token, not an error.
type UserTokenSource interface {
	UserToken(ctx context.Context, userID types.GitHubUserID) (types.GitHubToken, error)
}

// TaskKind selects the handler of a queued task.
type TaskKind string

const (
	TaskRunSyncJob  TaskKind = "run_sync_job"
	TaskSyncPRFiles TaskKind = "sync_pr_files"
)

// Task is one unit of deferred work. Tasks are small and replayable;
// the queue guarantees at-least-once execution, nothing more.
type Task struct {
	Kind         TaskKind
	JobID        types.SyncJobID
	RepositoryID types.GitHubRepoID
	PRNumber     int
	HeadSHA      types.CommitSHA
}

// Queue offers at-least-once delayed task execution.
type Queue interface {
	Enqueue(ctx context.Context, delay time.Duration, task Task) error
}

type BigQueryInsertOption func(*BigQueryInsertConfig)

type BigQueryInsertConfig struct {
	EnableRetry bool
}

func WithRetry(retry bool) BigQueryInsertOption {
	return func(c *BigQueryInsertConfig) {
		c.EnableRetry = retry
	}
}

// BigQuery is the optional audit sink for processed events and
// finished jobs.
type BigQuery interface {
	Insert(ctx context.Context, schema bigquery.Schema, data any, opts ...BigQueryInsertOption) error

	GetMetadata(ctx context.Context) (*bigquery.TableMetadata, error)
	UpdateTable(ctx context.Context, md bigquery.TableMetadataToUpdate, eTag string) error
	CreateTable(ctx context.Context, md *bigquery.TableMetadata) error
}
