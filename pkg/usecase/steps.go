package usecase

import (
	"context"
	"sort"
	"strconv"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hubsync/pkg/domain/interfaces"
	"github.com/m-mizutani/hubsync/pkg/domain/model"
	"github.com/m-mizutani/hubsync/pkg/domain/types"
)

const (
	// checkRunBatch bounds per-SHA check run lookups per invocation.
	checkRunBatch = 20
	// workflowJobRuns bounds how many recent runs get their jobs backfilled.
	workflowJobRuns = 20
)

// runStep executes one chunk of the given step. It mutates the job's
// cursor and counters in place and reports whether the step is
// exhausted; the caller persists the journal.
func (x *UseCase) runStep(ctx context.Context, job *model.SyncJob, ref model.RepoRef, step model.SyncStep) (bool, error) {
	switch step {
	case model.SyncStepBranches:
		return x.stepBranches(ctx, job, ref)
	case model.SyncStepPullRequests:
		return x.stepPullRequests(ctx, job, ref)
	case model.SyncStepIssues:
		return x.stepIssues(ctx, job, ref)
	case model.SyncStepCommits:
		return x.stepCommits(ctx, job, ref)
	case model.SyncStepCheckRuns:
		return x.stepCheckRuns(ctx, job, ref)
	case model.SyncStepWorkflowRuns:
		return x.stepWorkflowRuns(ctx, job, ref)
	case model.SyncStepFileDiffs:
		return x.stepFileDiffs(ctx, job, ref)
	default:
		return false, goerr.Wrap(types.ErrInvalidOption, "unknown sync step",
			goerr.V("step", step),
		)
	}
}

func (x *UseCase) stepBranches(ctx context.Context, job *model.SyncJob, ref model.RepoRef) (bool, error) {
	branches, err := x.clients.GitHub().ListBranches(ctx, ref)
	if err != nil {
		return false, err
	}

	now := x.now().UTC()
	for _, branch := range branches {
		branch.UpdatedAt = now
		if err := x.clients.SyncRepository().SaveBranch(ctx, job.RepositoryID, branch); err != nil {
			return false, err
		}
	}

	job.ItemsFetched += len(branches)
	return true, nil
}

func (x *UseCase) stepPullRequests(ctx context.Context, job *model.SyncJob, ref model.RepoRef) (bool, error) {
	cursor := job.PageCursor
	done := false

	// Actors are collected across the chunk's pages and written once.
	var users []*model.User
	for page := 0; page < x.pageCap; page++ {
		result, err := x.clients.GitHub().ListPullRequests(ctx, ref, cursor)
		if err != nil {
			return false, err
		}

		for _, pr := range result.PullRequests {
			if err := x.upsertPullRequest(ctx, job.RepositoryID, pr); err != nil {
				return false, err
			}
		}
		users = append(users, result.Users...)

		job.ItemsFetched += len(result.PullRequests)
		cursor = result.NextCursor
		job.PageCursor = cursor
		if cursor == "" {
			done = true
			break
		}
	}

	if err := x.saveUsers(ctx, users); err != nil {
		return false, err
	}
	return done, nil
}

func (x *UseCase) stepIssues(ctx context.Context, job *model.SyncJob, ref model.RepoRef) (bool, error) {
	cursor := job.PageCursor
	done := false

	var users []*model.User
	for page := 0; page < x.pageCap; page++ {
		result, err := x.clients.GitHub().ListIssues(ctx, ref, cursor)
		if err != nil {
			return false, err
		}

		for _, issue := range result.Issues {
			if err := x.upsertIssue(ctx, job.RepositoryID, issue); err != nil {
				return false, err
			}
		}
		users = append(users, result.Users...)

		job.ItemsFetched += len(result.Issues)
		cursor = result.NextCursor
		job.PageCursor = cursor
		if cursor == "" {
			done = true
			break
		}
	}

	if err := x.saveUsers(ctx, users); err != nil {
		return false, err
	}
	return done, nil
}

func (x *UseCase) stepCommits(ctx context.Context, job *model.SyncJob, ref model.RepoRef) (bool, error) {
	commits, users, err := x.clients.GitHub().ListCommits(ctx, ref)
	if err != nil {
		return false, err
	}

	for _, commit := range commits {
		if err := x.clients.SyncRepository().SaveCommit(ctx, job.RepositoryID, commit); err != nil {
			return false, err
		}
	}
	if err := x.saveUsers(ctx, users); err != nil {
		return false, err
	}

	job.ItemsFetched += len(commits)
	return true, nil
}

// stepCheckRuns backfills check runs for the head SHAs of stored open
// pull requests, a batch per invocation. The cursor is the offset into
// the sorted SHA list.
func (x *UseCase) stepCheckRuns(ctx context.Context, job *model.SyncJob, ref model.RepoRef) (bool, error) {
	pulls, err := x.clients.SyncRepository().ListOpenPullRequests(ctx, job.RepositoryID)
	if err != nil {
		return false, err
	}

	seen := map[types.CommitSHA]struct{}{}
	var shas []types.CommitSHA
	for _, pr := range pulls {
		if pr.HeadSHA == "" {
			continue
		}
		if _, ok := seen[pr.HeadSHA]; ok {
			continue
		}
		seen[pr.HeadSHA] = struct{}{}
		shas = append(shas, pr.HeadSHA)
	}
	sort.Slice(shas, func(i, j int) bool { return shas[i] < shas[j] })

	offset := 0
	if job.PageCursor != "" {
		offset, err = strconv.Atoi(job.PageCursor)
		if err != nil {
			return false, goerr.Wrap(err, "broken check run cursor",
				goerr.V("cursor", job.PageCursor),
			)
		}
	}
	if offset >= len(shas) {
		return true, nil
	}

	end := offset + checkRunBatch
	if end > len(shas) {
		end = len(shas)
	}

	for _, sha := range shas[offset:end] {
		runs, err := x.clients.GitHub().ListCheckRuns(ctx, ref, sha)
		if err != nil {
			return false, err
		}
		for _, run := range runs {
			if err := x.upsertCheckRun(ctx, job.RepositoryID, run); err != nil {
				return false, err
			}
		}
		job.ItemsFetched += len(runs)
	}

	if end >= len(shas) {
		return true, nil
	}
	job.PageCursor = strconv.Itoa(end)
	return false, nil
}

func (x *UseCase) stepWorkflowRuns(ctx context.Context, job *model.SyncJob, ref model.RepoRef) (bool, error) {
	runs, users, err := x.clients.GitHub().ListWorkflowRuns(ctx, ref)
	if err != nil {
		return false, err
	}

	for _, run := range runs {
		if err := x.upsertWorkflowRun(ctx, job.RepositoryID, run); err != nil {
			return false, err
		}
	}
	if err := x.saveUsers(ctx, users); err != nil {
		return false, err
	}
	job.ItemsFetched += len(runs)

	// Jobs only for the most recent runs; the rest age out upstream
	// anyway.
	recent := make([]*model.WorkflowRun, len(runs))
	copy(recent, runs)
	sort.Slice(recent, func(i, j int) bool {
		return recent[i].GitHubCreatedAt.After(recent[j].GitHubCreatedAt)
	})
	if len(recent) > workflowJobRuns {
		recent = recent[:workflowJobRuns]
	}

	for _, run := range recent {
		jobs, err := x.clients.GitHub().ListWorkflowJobs(ctx, ref, run.ID)
		if err != nil {
			return false, err
		}
		for _, wfJob := range jobs {
			if err := x.upsertWorkflowJob(ctx, job.RepositoryID, wfJob); err != nil {
				return false, err
			}
		}
		job.ItemsFetched += len(jobs)
	}

	return true, nil
}

// stepFileDiffs fans out one file diff task per open pull request. The
// heavy fetching happens in the task handler, off the job's critical
// path.
func (x *UseCase) stepFileDiffs(ctx context.Context, job *model.SyncJob, ref model.RepoRef) (bool, error) {
	pulls, err := x.clients.SyncRepository().ListOpenPullRequests(ctx, job.RepositoryID)
	if err != nil {
		return false, err
	}

	for _, pr := range pulls {
		if pr.HeadSHA == "" {
			continue
		}
		task := interfaces.Task{
			Kind:         interfaces.TaskSyncPRFiles,
			RepositoryID: job.RepositoryID,
			PRNumber:     pr.Number,
			HeadSHA:      pr.HeadSHA,
		}
		if err := x.clients.Queue().Enqueue(ctx, 0, task); err != nil {
			return false, err
		}
	}

	return true, nil
}
