package interfaces

import (
	"context"
	"time"

	"github.com/m-mizutani/hubsync/pkg/domain/model"
	"github.com/m-mizutani/hubsync/pkg/domain/types"
)

// SyncRepository is the document store behind the sync engine. Every
// record is addressed by its natural external key within repository
// scope; implementations need lookup, upsert and indexed range queries
// and nothing else.
type SyncRepository interface {
	// Webhook event operations. CreateEvent inserts only if no row with
	// the delivery ID exists and reports whether it inserted.
	CreateEvent(ctx context.Context, ev *model.WebhookEvent) (bool, error)
	GetEvent(ctx context.Context, deliveryID types.DeliveryID) (*model.WebhookEvent, error)
	UpdateEvent(ctx context.Context, ev *model.WebhookEvent) error
	ListEventsByState(ctx context.Context, state model.ProcessState, until time.Time, limit int) ([]*model.WebhookEvent, error)
	CountEventsByState(ctx context.Context) (map[model.ProcessState]int, error)

	// Sync job operations. CreateSyncJob inserts only if no non-terminal
	// job holds the lock key and reports whether it inserted.
	CreateSyncJob(ctx context.Context, job *model.SyncJob) (bool, error)
	GetSyncJob(ctx context.Context, id types.SyncJobID) (*model.SyncJob, error)
	UpdateSyncJob(ctx context.Context, job *model.SyncJob) error
	ListSyncJobsByState(ctx context.Context, state model.SyncJobState, limit int) ([]*model.SyncJob, error)

	// Repository records
	SaveRepository(ctx context.Context, repo *model.Repository) error
	GetRepository(ctx context.Context, repoID types.GitHubRepoID) (*model.Repository, error)
	ListRepositoriesByInstallation(ctx context.Context, installID types.GitHubAppInstallID) ([]*model.Repository, error)

	// Normalized records, scoped by repository ID
	SaveBranch(ctx context.Context, repoID types.GitHubRepoID, branch *model.Branch) error
	ListBranches(ctx context.Context, repoID types.GitHubRepoID) ([]*model.Branch, error)

	GetPullRequest(ctx context.Context, repoID types.GitHubRepoID, number int) (*model.PullRequest, error)
	SavePullRequest(ctx context.Context, repoID types.GitHubRepoID, pr *model.PullRequest) error
	ListPullRequests(ctx context.Context, repoID types.GitHubRepoID) ([]*model.PullRequest, error)
	ListOpenPullRequests(ctx context.Context, repoID types.GitHubRepoID) ([]*model.PullRequest, error)

	GetIssue(ctx context.Context, repoID types.GitHubRepoID, number int) (*model.Issue, error)
	SaveIssue(ctx context.Context, repoID types.GitHubRepoID, issue *model.Issue) error
	ListIssues(ctx context.Context, repoID types.GitHubRepoID) ([]*model.Issue, error)

	SaveCommit(ctx context.Context, repoID types.GitHubRepoID, commit *model.Commit) error
	ListCommits(ctx context.Context, repoID types.GitHubRepoID) ([]*model.Commit, error)

	GetCheckRun(ctx context.Context, repoID types.GitHubRepoID, checkRunID int64) (*model.CheckRun, error)
	SaveCheckRun(ctx context.Context, repoID types.GitHubRepoID, run *model.CheckRun) error
	ListCheckRuns(ctx context.Context, repoID types.GitHubRepoID) ([]*model.CheckRun, error)

	GetWorkflowRun(ctx context.Context, repoID types.GitHubRepoID, runID int64) (*model.WorkflowRun, error)
	SaveWorkflowRun(ctx context.Context, repoID types.GitHubRepoID, run *model.WorkflowRun) error
	ListWorkflowRuns(ctx context.Context, repoID types.GitHubRepoID) ([]*model.WorkflowRun, error)

	GetWorkflowJob(ctx context.Context, repoID types.GitHubRepoID, jobID int64) (*model.WorkflowJob, error)
	SaveWorkflowJob(ctx context.Context, repoID types.GitHubRepoID, job *model.WorkflowJob) error

	SavePullRequestFiles(ctx context.Context, repoID types.GitHubRepoID, number int, headSHA types.CommitSHA, files []*model.PullRequestFile) error
	GetPullRequestFiles(ctx context.Context, repoID types.GitHubRepoID, number int, headSHA types.CommitSHA) ([]*model.PullRequestFile, error)

	SaveUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, userID types.GitHubUserID) (*model.User, error)
}
