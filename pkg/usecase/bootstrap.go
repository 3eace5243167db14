package usecase

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hubsync/pkg/domain/interfaces"
	"github.com/m-mizutani/hubsync/pkg/domain/model"
	"github.com/m-mizutani/hubsync/pkg/domain/types"
	"github.com/m-mizutani/hubsync/pkg/utils/errutil"
	"github.com/m-mizutani/hubsync/pkg/utils/logging"
)

// ConnectRepository registers a repository and schedules its bootstrap
// backfill. The sync job's lock key guarantees at most one live
// bootstrap per repository; reconnecting while one runs is a no-op.
func (x *UseCase) ConnectRepository(ctx context.Context, repo *model.Repository) error {
	now := x.now().UTC()
	if repo.ConnectedAt.IsZero() {
		repo.ConnectedAt = now
	}
	repo.UpdatedAt = now

	if err := x.clients.SyncRepository().SaveRepository(ctx, repo); err != nil {
		return goerr.Wrap(err, "failed to save repository",
			goerr.V("repoID", repo.ID),
		)
	}

	job := &model.SyncJob{
		ID:             types.NewSyncJobID(),
		Type:           model.SyncJobTypeBootstrap,
		LockKey:        model.SyncLockKey(repo.InstallationID, repo.ID, model.SyncJobTypeBootstrap),
		InstallationID: repo.InstallationID,
		RepositoryID:   repo.ID,
		Owner:          repo.Owner,
		RepoName:       repo.Name,
		State:          model.SyncJobStatePending,
		CurrentStep:    model.BootstrapSteps[0],
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := job.Validate(); err != nil {
		return goerr.Wrap(err, "invalid sync job",
			goerr.V("repoID", repo.ID),
		)
	}

	created, err := x.clients.SyncRepository().CreateSyncJob(ctx, job)
	if err != nil {
		return goerr.Wrap(err, "failed to create sync job",
			goerr.V("repoID", repo.ID),
		)
	}
	if !created {
		logging.From(ctx).Info("bootstrap already in progress",
			"repoID", repo.ID,
			"lockKey", job.LockKey,
		)
		return nil
	}

	logging.From(ctx).Info("bootstrap scheduled",
		"repoID", repo.ID,
		"jobID", job.ID,
		"owner", repo.Owner,
		"name", repo.Name,
	)

	task := interfaces.Task{Kind: interfaces.TaskRunSyncJob, JobID: job.ID}
	if err := x.clients.Queue().Enqueue(ctx, 0, task); err != nil {
		return goerr.Wrap(err, "failed to enqueue sync job",
			goerr.V("jobID", job.ID),
		)
	}

	return nil
}

// RunSyncJob executes one chunk of a bootstrap job: at most one step
// invocation, bounded by the page cap. The journal (cursor, counters,
// completed steps) is persisted before the job re-enqueues itself, so
// a crash between chunks only replays idempotent upserts.
func (x *UseCase) RunSyncJob(ctx context.Context, jobID types.SyncJobID) error {
	job, err := x.clients.SyncRepository().GetSyncJob(ctx, jobID)
	if err != nil {
		return goerr.Wrap(err, "failed to load sync job",
			goerr.V("jobID", jobID),
		)
	}
	if job.State.IsTerminal() {
		return nil
	}

	now := x.now().UTC()
	job.State = model.SyncJobStateRunning
	if job.StartedAt.IsZero() {
		job.StartedAt = now
	}
	job.UpdatedAt = now
	if err := x.clients.SyncRepository().UpdateSyncJob(ctx, job); err != nil {
		return goerr.Wrap(err, "failed to mark sync job running",
			goerr.V("jobID", jobID),
		)
	}

	step := job.NextStep()
	if step == "" {
		return x.finishJob(ctx, job)
	}
	job.CurrentStep = step

	ref := model.RepoRef{
		InstallationID: job.InstallationID,
		RepositoryID:   job.RepositoryID,
		Owner:          job.Owner,
		Name:           job.RepoName,
	}

	stepDone, stepErr := x.runStep(ctx, job, ref, step)
	if stepErr != nil {
		return x.failJobAttempt(ctx, job, stepErr)
	}

	now = x.now().UTC()
	if stepDone {
		job.CompletedSteps = append(job.CompletedSteps, step)
		job.PageCursor = ""
		job.AttemptCount = 0
		job.LastError = ""
	}
	job.UpdatedAt = now

	if job.NextStep() == "" {
		return x.finishJob(ctx, job)
	}

	job.State = model.SyncJobStatePending
	if err := x.clients.SyncRepository().UpdateSyncJob(ctx, job); err != nil {
		return goerr.Wrap(err, "failed to persist sync job journal",
			goerr.V("jobID", jobID),
		)
	}

	task := interfaces.Task{Kind: interfaces.TaskRunSyncJob, JobID: job.ID}
	if err := x.clients.Queue().Enqueue(ctx, 0, task); err != nil {
		return goerr.Wrap(err, "failed to re-enqueue sync job",
			goerr.V("jobID", job.ID),
		)
	}

	return nil
}

func (x *UseCase) finishJob(ctx context.Context, job *model.SyncJob) error {
	now := x.now().UTC()
	job.State = model.SyncJobStateDone
	job.CurrentStep = ""
	job.LastError = ""
	job.UpdatedAt = now
	job.FinishedAt = now

	if err := x.clients.SyncRepository().UpdateSyncJob(ctx, job); err != nil {
		return goerr.Wrap(err, "failed to finish sync job",
			goerr.V("jobID", job.ID),
		)
	}

	logging.From(ctx).Info("bootstrap finished",
		"jobID", job.ID,
		"repoID", job.RepositoryID,
		"itemsFetched", job.ItemsFetched,
	)
	x.auditJob(ctx, job)
	return nil
}

// failJobAttempt records a failed chunk. Rate limits wait out the hint
// without consuming an attempt; a missing credential suspends the
// repository and fails the job immediately.
func (x *UseCase) failJobAttempt(ctx context.Context, job *model.SyncJob, cause error) error {
	logger := logging.From(ctx)
	now := x.now().UTC()

	job.LastError = model.TruncateError(cause.Error(), errorLimit)
	job.UpdatedAt = now

	var rateLimitErr *model.RateLimitError
	switch {
	case errors.As(cause, &rateLimitErr):
		job.State = model.SyncJobStateRetry
		job.NextRunAt = now.Add(rateLimitErr.RetryAfter)
		logger.Warn("sync job rate limited",
			"jobID", job.ID,
			"retryAfter", rateLimitErr.RetryAfter,
		)

	case errors.Is(cause, types.ErrNoCredential):
		job.State = model.SyncJobStateFailed
		job.FinishedAt = now
		if err := x.suspendRepository(ctx, job.RepositoryID); err != nil {
			errutil.HandleError(ctx, "failed to suspend repository", err)
		}
		logger.Error("sync job failed: no credential",
			"jobID", job.ID,
			"repoID", job.RepositoryID,
		)

	default:
		job.AttemptCount++
		if job.AttemptCount >= x.maxJobAttempts {
			job.State = model.SyncJobStateFailed
			job.FinishedAt = now
			logger.Error("sync job failed",
				"jobID", job.ID,
				"step", job.CurrentStep,
				"attempts", job.AttemptCount,
				"error", job.LastError,
			)
		} else {
			job.State = model.SyncJobStateRetry
			job.NextRunAt = now.Add(x.backoff(job.AttemptCount))
			logger.Warn("sync job chunk failed, will retry",
				"jobID", job.ID,
				"step", job.CurrentStep,
				"attempt", job.AttemptCount,
				"nextRunAt", job.NextRunAt,
			)
		}
	}

	if err := x.clients.SyncRepository().UpdateSyncJob(ctx, job); err != nil {
		return goerr.Wrap(err, "failed to record sync job failure",
			goerr.V("jobID", job.ID),
		)
	}

	if job.State == model.SyncJobStateRetry {
		task := interfaces.Task{Kind: interfaces.TaskRunSyncJob, JobID: job.ID}
		if err := x.clients.Queue().Enqueue(ctx, job.NextRunAt.Sub(now), task); err != nil {
			return goerr.Wrap(err, "failed to re-enqueue sync job",
				goerr.V("jobID", job.ID),
			)
		}
	}

	return nil
}

func (x *UseCase) suspendRepository(ctx context.Context, repoID types.GitHubRepoID) error {
	repo, err := x.clients.SyncRepository().GetRepository(ctx, repoID)
	if err != nil {
		return goerr.Wrap(err, "failed to load repository",
			goerr.V("repoID", repoID),
		)
	}

	repo.Suspended = true
	repo.UpdatedAt = x.now().UTC()
	return x.clients.SyncRepository().SaveRepository(ctx, repo)
}

// ReapStuckJobs recovers non-terminal jobs whose queued task was lost
// with a dead process. A running job is stuck when its journal has not
// moved for longer than the threshold; a retry or pending job is
// stranded when its due time passed that long ago without a dispatch.
// The threshold exceeds the backoff cap, so a live in-process task
// always fires first and a reaped dispatch is never a routine
// duplicate.
func (x *UseCase) ReapStuckJobs(ctx context.Context) error {
	now := x.now().UTC()

	states := []model.SyncJobState{
		model.SyncJobStateRunning,
		model.SyncJobStateRetry,
		model.SyncJobStatePending,
	}
	for _, state := range states {
		jobs, err := x.clients.SyncRepository().ListSyncJobsByState(ctx, state, 0)
		if err != nil {
			return goerr.Wrap(err, "failed to list sync jobs",
				goerr.V("state", state),
			)
		}

		for _, job := range jobs {
			if now.Sub(job.UpdatedAt) <= x.stuckThreshold {
				continue
			}
			if job.NextRunAt.After(now) {
				continue
			}

			if job.State == model.SyncJobStateRunning {
				job.State = model.SyncJobStateRetry
			}
			job.NextRunAt = now
			job.UpdatedAt = now
			if err := x.clients.SyncRepository().UpdateSyncJob(ctx, job); err != nil {
				errutil.HandleError(ctx, "failed to reap stuck sync job", err)
				continue
			}

			logging.From(ctx).Warn("reaped stuck sync job",
				"jobID", job.ID,
				"state", state,
				"step", job.CurrentStep,
			)

			task := interfaces.Task{Kind: interfaces.TaskRunSyncJob, JobID: job.ID}
			if err := x.clients.Queue().Enqueue(ctx, 0, task); err != nil {
				errutil.HandleError(ctx, "failed to re-enqueue reaped sync job", err)
			}
		}
	}

	return nil
}

// HandleTask is the queue's dispatch entry point.
func (x *UseCase) HandleTask(ctx context.Context, task interfaces.Task) error {
	switch task.Kind {
	case interfaces.TaskRunSyncJob:
		return x.RunSyncJob(ctx, task.JobID)
	case interfaces.TaskSyncPRFiles:
		return x.syncPRFiles(ctx, task)
	default:
		return goerr.Wrap(types.ErrInvalidOption, "unknown task kind",
			goerr.V("kind", task.Kind),
		)
	}
}

// syncPRFiles fetches and stores the file diff of one pull request,
// keyed by the head SHA it was fetched at.
func (x *UseCase) syncPRFiles(ctx context.Context, task interfaces.Task) error {
	repo, err := x.clients.SyncRepository().GetRepository(ctx, task.RepositoryID)
	if err != nil {
		return goerr.Wrap(err, "failed to load repository for file diff sync",
			goerr.V("repoID", task.RepositoryID),
		)
	}

	ref := model.RepoRef{
		InstallationID: repo.InstallationID,
		RepositoryID:   repo.ID,
		Owner:          repo.Owner,
		Name:           repo.Name,
	}

	files, err := x.clients.GitHub().ListPullRequestFiles(ctx, ref, task.PRNumber)
	if err != nil {
		return goerr.Wrap(err, "failed to list pull request files",
			goerr.V("repoID", task.RepositoryID),
			goerr.V("number", task.PRNumber),
		)
	}

	if err := x.clients.SyncRepository().SavePullRequestFiles(ctx, task.RepositoryID, task.PRNumber, task.HeadSHA, files); err != nil {
		return goerr.Wrap(err, "failed to save pull request files",
			goerr.V("repoID", task.RepositoryID),
			goerr.V("number", task.PRNumber),
		)
	}

	return nil
}
