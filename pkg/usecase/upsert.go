package usecase

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hubsync/pkg/domain/model"
	"github.com/m-mizutani/hubsync/pkg/domain/types"
	"github.com/m-mizutani/hubsync/pkg/repository"
)

// Monotonic upserts. Records that carry GitHubUpdatedAt are only
// overwritten by an equal or newer timestamp, so replays and
// out-of-order deliveries converge on the newest upstream state.
// Branches, commits, and users have no ordering-sensitive fields and
// always take the latest write.

func (x *UseCase) upsertPullRequest(ctx context.Context, repoID types.GitHubRepoID, pr *model.PullRequest) error {
	stored, err := x.clients.SyncRepository().GetPullRequest(ctx, repoID, pr.Number)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return goerr.Wrap(err, "failed to load pull request for upsert",
			goerr.V("repoID", repoID), goerr.V("number", pr.Number),
		)
	}
	if stored != nil && stored.GitHubUpdatedAt.After(pr.GitHubUpdatedAt) {
		return nil
	}

	return x.clients.SyncRepository().SavePullRequest(ctx, repoID, pr)
}

func (x *UseCase) upsertIssue(ctx context.Context, repoID types.GitHubRepoID, issue *model.Issue) error {
	stored, err := x.clients.SyncRepository().GetIssue(ctx, repoID, issue.Number)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return goerr.Wrap(err, "failed to load issue for upsert",
			goerr.V("repoID", repoID), goerr.V("number", issue.Number),
		)
	}
	if stored != nil && stored.GitHubUpdatedAt.After(issue.GitHubUpdatedAt) {
		return nil
	}

	return x.clients.SyncRepository().SaveIssue(ctx, repoID, issue)
}

func (x *UseCase) upsertCheckRun(ctx context.Context, repoID types.GitHubRepoID, run *model.CheckRun) error {
	stored, err := x.clients.SyncRepository().GetCheckRun(ctx, repoID, run.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return goerr.Wrap(err, "failed to load check run for upsert",
			goerr.V("repoID", repoID), goerr.V("checkRunID", run.ID),
		)
	}
	if stored != nil && stored.GitHubUpdatedAt.After(run.GitHubUpdatedAt) {
		return nil
	}

	return x.clients.SyncRepository().SaveCheckRun(ctx, repoID, run)
}

func (x *UseCase) upsertWorkflowRun(ctx context.Context, repoID types.GitHubRepoID, run *model.WorkflowRun) error {
	stored, err := x.clients.SyncRepository().GetWorkflowRun(ctx, repoID, run.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return goerr.Wrap(err, "failed to load workflow run for upsert",
			goerr.V("repoID", repoID), goerr.V("runID", run.ID),
		)
	}
	if stored != nil && stored.GitHubUpdatedAt.After(run.GitHubUpdatedAt) {
		return nil
	}

	return x.clients.SyncRepository().SaveWorkflowRun(ctx, repoID, run)
}

func (x *UseCase) upsertWorkflowJob(ctx context.Context, repoID types.GitHubRepoID, job *model.WorkflowJob) error {
	stored, err := x.clients.SyncRepository().GetWorkflowJob(ctx, repoID, job.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return goerr.Wrap(err, "failed to load workflow job for upsert",
			goerr.V("repoID", repoID), goerr.V("jobID", job.ID),
		)
	}
	if stored != nil && stored.GitHubUpdatedAt.After(job.GitHubUpdatedAt) {
		return nil
	}

	return x.clients.SyncRepository().SaveWorkflowJob(ctx, repoID, job)
}

// saveUsers persists the distinct users of one API page. Nil entries
// (missing or ghost accounts) are skipped.
func (x *UseCase) saveUsers(ctx context.Context, users []*model.User) error {
	seen := map[types.GitHubUserID]struct{}{}
	for _, user := range users {
		if user == nil || user.ID == 0 {
			continue
		}
		if _, ok := seen[user.ID]; ok {
			continue
		}
		seen[user.ID] = struct{}{}

		user.UpdatedAt = x.now().UTC()
		if err := x.clients.SyncRepository().SaveUser(ctx, user); err != nil {
			return goerr.Wrap(err, "failed to save user",
				goerr.V("userID", user.ID),
			)
		}
	}
	return nil
}
