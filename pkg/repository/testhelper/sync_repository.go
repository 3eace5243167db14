package testhelper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/hubsync/pkg/domain/interfaces"
	"github.com/m-mizutani/hubsync/pkg/domain/model"
	"github.com/m-mizutani/hubsync/pkg/domain/types"
	"github.com/m-mizutani/hubsync/pkg/repository"
)

// TestAll runs all test cases for SyncRepository
// This is the main entry point for testing any SyncRepository implementation
func TestAll(t *testing.T, repo interfaces.SyncRepository) {
	t.Run("WebhookEventDedup", func(t *testing.T) {
		TestWebhookEventDedup(t, repo)
	})
	t.Run("WebhookEventStateList", func(t *testing.T) {
		TestWebhookEventStateList(t, repo)
	})
	t.Run("SyncJobLock", func(t *testing.T) {
		TestSyncJobLock(t, repo)
	})
	t.Run("RepositoryCRUD", func(t *testing.T) {
		TestRepositoryCRUD(t, repo)
	})
	t.Run("BranchWithSlash", func(t *testing.T) {
		TestBranchWithSlash(t, repo)
	})
	t.Run("PullRequestCRUD", func(t *testing.T) {
		TestPullRequestCRUD(t, repo)
	})
	t.Run("IssueCRUD", func(t *testing.T) {
		TestIssueCRUD(t, repo)
	})
	t.Run("CheckRunAndWorkflow", func(t *testing.T) {
		TestCheckRunAndWorkflow(t, repo)
	})
	t.Run("PullRequestFiles", func(t *testing.T) {
		TestPullRequestFiles(t, repo)
	})
	t.Run("UserCRUD", func(t *testing.T) {
		TestUserCRUD(t, repo)
	})
}

func newTestRepoID() types.GitHubRepoID {
	// Derive a random positive int64 from a UUID so parallel suite runs
	// on a shared Firestore project do not collide.
	id := uuid.New().ID()
	return types.GitHubRepoID(int64(id) + 1)
}

// TestWebhookEventDedup verifies that a redelivered delivery ID does not
// produce a second row
func TestWebhookEventDedup(t *testing.T, repo interfaces.SyncRepository) {
	ctx := context.Background()

	deliveryID := types.DeliveryID(uuid.New().String())
	now := time.Now().UTC().Truncate(time.Millisecond)
	ev := &model.WebhookEvent{
		DeliveryID:     deliveryID,
		Event:          "pull_request",
		Action:         "opened",
		InstallationID: 123,
		RepositoryID:   456,
		SignatureValid: true,
		Payload:        json.RawMessage(`{"action":"opened"}`),
		State:          model.ProcessStatePending,
		ReceivedAt:     now,
		NextAttemptAt:  now,
	}

	created, err := repo.CreateEvent(ctx, ev)
	gt.NoError(t, err)
	gt.True(t, created)

	// Redelivery must be a no-op
	created, err = repo.CreateEvent(ctx, ev)
	gt.NoError(t, err)
	gt.False(t, created)

	retrieved, err := repo.GetEvent(ctx, deliveryID)
	gt.NoError(t, err)
	gt.V(t, retrieved.DeliveryID).Equal(deliveryID)
	gt.V(t, retrieved.Event).Equal("pull_request")
	gt.V(t, retrieved.State).Equal(model.ProcessStatePending)

	// Update transitions state
	retrieved.State = model.ProcessStateProcessed
	retrieved.AttemptCount = 1
	gt.NoError(t, repo.UpdateEvent(ctx, retrieved))

	updated, err := repo.GetEvent(ctx, deliveryID)
	gt.NoError(t, err)
	gt.V(t, updated.State).Equal(model.ProcessStateProcessed)
	gt.V(t, updated.AttemptCount).Equal(1)

	// Not found
	_, err = repo.GetEvent(ctx, types.DeliveryID(uuid.New().String()))
	gt.Error(t, err)
	gt.True(t, errors.Is(err, repository.ErrNotFound))
}

// TestWebhookEventStateList verifies filtering by state and due time
func TestWebhookEventStateList(t *testing.T, repo interfaces.SyncRepository) {
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	state := model.ProcessStateRetry

	due := &model.WebhookEvent{
		DeliveryID:    types.DeliveryID(uuid.New().String()),
		Event:         "issues",
		State:         state,
		ReceivedAt:    now.Add(-time.Hour),
		NextAttemptAt: now.Add(-time.Minute),
	}
	notDue := &model.WebhookEvent{
		DeliveryID:    types.DeliveryID(uuid.New().String()),
		Event:         "issues",
		State:         state,
		ReceivedAt:    now,
		NextAttemptAt: now.Add(time.Hour),
	}

	created, err := repo.CreateEvent(ctx, due)
	gt.NoError(t, err)
	gt.True(t, created)
	created, err = repo.CreateEvent(ctx, notDue)
	gt.NoError(t, err)
	gt.True(t, created)

	events, err := repo.ListEventsByState(ctx, state, now, 0)
	gt.NoError(t, err)

	var foundDue, foundNotDue bool
	for _, ev := range events {
		switch ev.DeliveryID {
		case due.DeliveryID:
			foundDue = true
		case notDue.DeliveryID:
			foundNotDue = true
		}
	}
	gt.True(t, foundDue)
	gt.False(t, foundNotDue)

	counts, err := repo.CountEventsByState(ctx)
	gt.NoError(t, err)
	gt.True(t, counts[state] >= 1)
}

// TestSyncJobLock verifies the advisory lock on the lock key
func TestSyncJobLock(t *testing.T, repo interfaces.SyncRepository) {
	ctx := context.Background()

	installID := types.GitHubAppInstallID(uuid.New().ID())
	repoID := newTestRepoID()
	now := time.Now().UTC().Truncate(time.Millisecond)

	job := &model.SyncJob{
		ID:             types.NewSyncJobID(),
		Type:           model.SyncJobTypeBootstrap,
		LockKey:        model.SyncLockKey(installID, repoID, model.SyncJobTypeBootstrap),
		InstallationID: installID,
		RepositoryID:   repoID,
		Owner:          "octo",
		RepoName:       "hello",
		State:          model.SyncJobStatePending,
		CurrentStep:    model.SyncStepBranches,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	created, err := repo.CreateSyncJob(ctx, job)
	gt.NoError(t, err)
	gt.True(t, created)

	// Same lock key while the first job is non-terminal must be rejected
	dup := *job
	dup.ID = types.NewSyncJobID()
	created, err = repo.CreateSyncJob(ctx, &dup)
	gt.NoError(t, err)
	gt.False(t, created)

	// Terminal state releases the lock
	job.State = model.SyncJobStateDone
	gt.NoError(t, repo.UpdateSyncJob(ctx, job))

	second := *job
	second.ID = types.NewSyncJobID()
	second.State = model.SyncJobStatePending
	created, err = repo.CreateSyncJob(ctx, &second)
	gt.NoError(t, err)
	gt.True(t, created)

	retrieved, err := repo.GetSyncJob(ctx, second.ID)
	gt.NoError(t, err)
	gt.V(t, retrieved.LockKey).Equal(job.LockKey)
	gt.V(t, retrieved.State).Equal(model.SyncJobStatePending)

	jobs, err := repo.ListSyncJobsByState(ctx, model.SyncJobStatePending, 0)
	gt.NoError(t, err)
	var found bool
	for _, j := range jobs {
		if j.ID == second.ID {
			found = true
		}
	}
	gt.True(t, found)

	_, err = repo.GetSyncJob(ctx, types.NewSyncJobID())
	gt.Error(t, err)
	gt.True(t, errors.Is(err, repository.ErrNotFound))
}

// TestRepositoryCRUD tests basic CRUD operations for Repository
func TestRepositoryCRUD(t *testing.T, repo interfaces.SyncRepository) {
	ctx := context.Background()

	repoID := newTestRepoID()
	installID := types.GitHubAppInstallID(uuid.New().ID())
	owner := fmt.Sprintf("owner-%s", uuid.New().String()[:8])
	now := time.Now().UTC().Truncate(time.Millisecond)

	testRepo := &model.Repository{
		ID:             repoID,
		Owner:          owner,
		Name:           "repo-1",
		FullName:       owner + "/repo-1",
		DefaultBranch:  "main",
		InstallationID: installID,
		ConnectedAt:    now,
		UpdatedAt:      now,
	}

	gt.NoError(t, repo.SaveRepository(ctx, testRepo))

	retrieved, err := repo.GetRepository(ctx, repoID)
	gt.NoError(t, err)
	gt.V(t, retrieved.ID).Equal(repoID)
	gt.V(t, retrieved.Owner).Equal(owner)
	gt.V(t, retrieved.DefaultBranch).Equal("main")

	// Update
	testRepo.DefaultBranch = "develop"
	gt.NoError(t, repo.SaveRepository(ctx, testRepo))

	retrieved, err = repo.GetRepository(ctx, repoID)
	gt.NoError(t, err)
	gt.V(t, retrieved.DefaultBranch).Equal("develop")

	repos, err := repo.ListRepositoriesByInstallation(ctx, installID)
	gt.NoError(t, err)
	gt.V(t, len(repos)).Equal(1)
	gt.V(t, repos[0].ID).Equal(repoID)

	_, err = repo.GetRepository(ctx, newTestRepoID())
	gt.Error(t, err)
	gt.True(t, errors.Is(err, repository.ErrNotFound))
}

// TestBranchWithSlash verifies that branch names containing "/" round-trip
func TestBranchWithSlash(t *testing.T, repo interfaces.SyncRepository) {
	ctx := context.Background()

	repoID := newTestRepoID()
	now := time.Now().UTC().Truncate(time.Millisecond)

	branch := &model.Branch{
		Name:      "feature/nested/branch",
		CommitSHA: "abc123",
		Protected: true,
		UpdatedAt: now,
	}
	gt.NoError(t, repo.SaveBranch(ctx, repoID, branch))

	plain := &model.Branch{
		Name:      "main",
		CommitSHA: "def456",
		UpdatedAt: now,
	}
	gt.NoError(t, repo.SaveBranch(ctx, repoID, plain))

	branches, err := repo.ListBranches(ctx, repoID)
	gt.NoError(t, err)
	gt.V(t, len(branches)).Equal(2)

	byName := map[types.BranchName]*model.Branch{}
	for _, b := range branches {
		byName[b.Name] = b
	}
	gt.V(t, byName["feature/nested/branch"].CommitSHA).Equal(types.CommitSHA("abc123"))
	gt.True(t, byName["feature/nested/branch"].Protected)
	gt.V(t, byName["main"].CommitSHA).Equal(types.CommitSHA("def456"))
}

// TestPullRequestCRUD tests pull request upsert and the open-only listing
func TestPullRequestCRUD(t *testing.T, repo interfaces.SyncRepository) {
	ctx := context.Background()

	repoID := newTestRepoID()
	now := time.Now().UTC().Truncate(time.Millisecond)

	open := &model.PullRequest{
		ID:              1001,
		Number:          1,
		Title:           "add feature",
		State:           "open",
		HeadSHA:         "head1",
		BaseRef:         "main",
		GitHubCreatedAt: now.Add(-time.Hour),
		GitHubUpdatedAt: now,
	}
	closed := &model.PullRequest{
		ID:              1002,
		Number:          2,
		Title:           "fix bug",
		State:           "closed",
		HeadSHA:         "head2",
		BaseRef:         "main",
		GitHubCreatedAt: now.Add(-2 * time.Hour),
		GitHubUpdatedAt: now.Add(-time.Hour),
	}

	gt.NoError(t, repo.SavePullRequest(ctx, repoID, open))
	gt.NoError(t, repo.SavePullRequest(ctx, repoID, closed))

	retrieved, err := repo.GetPullRequest(ctx, repoID, 1)
	gt.NoError(t, err)
	gt.V(t, retrieved.Title).Equal("add feature")
	gt.V(t, retrieved.HeadSHA).Equal(types.CommitSHA("head1"))

	all, err := repo.ListPullRequests(ctx, repoID)
	gt.NoError(t, err)
	gt.V(t, len(all)).Equal(2)

	openOnly, err := repo.ListOpenPullRequests(ctx, repoID)
	gt.NoError(t, err)
	gt.V(t, len(openOnly)).Equal(1)
	gt.V(t, openOnly[0].Number).Equal(1)

	_, err = repo.GetPullRequest(ctx, repoID, 999)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, repository.ErrNotFound))
}

// TestIssueCRUD tests issue upsert and retrieval
func TestIssueCRUD(t *testing.T, repo interfaces.SyncRepository) {
	ctx := context.Background()

	repoID := newTestRepoID()
	now := time.Now().UTC().Truncate(time.Millisecond)

	issue := &model.Issue{
		ID:              2001,
		Number:          10,
		Title:           "something broke",
		State:           "open",
		Labels:          []string{"bug", "triage"},
		GitHubCreatedAt: now.Add(-time.Hour),
		GitHubUpdatedAt: now,
	}
	gt.NoError(t, repo.SaveIssue(ctx, repoID, issue))

	retrieved, err := repo.GetIssue(ctx, repoID, 10)
	gt.NoError(t, err)
	gt.V(t, retrieved.Title).Equal("something broke")
	gt.V(t, len(retrieved.Labels)).Equal(2)

	issues, err := repo.ListIssues(ctx, repoID)
	gt.NoError(t, err)
	gt.V(t, len(issues)).Equal(1)

	_, err = repo.GetIssue(ctx, repoID, 999)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, repository.ErrNotFound))
}

// TestCheckRunAndWorkflow tests check run, workflow run, and workflow job
// records including commits
func TestCheckRunAndWorkflow(t *testing.T, repo interfaces.SyncRepository) {
	ctx := context.Background()

	repoID := newTestRepoID()
	now := time.Now().UTC().Truncate(time.Millisecond)

	commit := &model.Commit{
		SHA:         "sha-1",
		Message:     "initial",
		AuthoredAt:  now,
		CommittedAt: now,
	}
	gt.NoError(t, repo.SaveCommit(ctx, repoID, commit))

	commits, err := repo.ListCommits(ctx, repoID)
	gt.NoError(t, err)
	gt.V(t, len(commits)).Equal(1)
	gt.V(t, commits[0].SHA).Equal(types.CommitSHA("sha-1"))

	checkRun := &model.CheckRun{
		ID:              100,
		Name:            "unit-test",
		HeadSHA:         "sha-1",
		Status:          "completed",
		Conclusion:      "success",
		GitHubUpdatedAt: now,
	}
	gt.NoError(t, repo.SaveCheckRun(ctx, repoID, checkRun))

	gotRun, err := repo.GetCheckRun(ctx, repoID, 100)
	gt.NoError(t, err)
	gt.V(t, gotRun.Conclusion).Equal("success")

	checkRuns, err := repo.ListCheckRuns(ctx, repoID)
	gt.NoError(t, err)
	gt.V(t, len(checkRuns)).Equal(1)

	wfRun := &model.WorkflowRun{
		ID:              200,
		Name:            "CI",
		RunNumber:       1,
		Status:          "completed",
		Conclusion:      "success",
		HeadSHA:         "sha-1",
		GitHubUpdatedAt: now,
	}
	gt.NoError(t, repo.SaveWorkflowRun(ctx, repoID, wfRun))

	gotWF, err := repo.GetWorkflowRun(ctx, repoID, 200)
	gt.NoError(t, err)
	gt.V(t, gotWF.Name).Equal("CI")

	wfRuns, err := repo.ListWorkflowRuns(ctx, repoID)
	gt.NoError(t, err)
	gt.V(t, len(wfRuns)).Equal(1)

	wfJob := &model.WorkflowJob{
		ID:              300,
		RunID:           200,
		Name:            "build",
		Status:          "completed",
		Conclusion:      "success",
		GitHubUpdatedAt: now,
	}
	gt.NoError(t, repo.SaveWorkflowJob(ctx, repoID, wfJob))

	gotJob, err := repo.GetWorkflowJob(ctx, repoID, 300)
	gt.NoError(t, err)
	gt.V(t, gotJob.RunID).Equal(int64(200))

	_, err = repo.GetCheckRun(ctx, repoID, 999)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, repository.ErrNotFound))
	_, err = repo.GetWorkflowRun(ctx, repoID, 999)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, repository.ErrNotFound))
	_, err = repo.GetWorkflowJob(ctx, repoID, 999)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, repository.ErrNotFound))
}

// TestPullRequestFiles tests the head-SHA keyed file diff snapshot
func TestPullRequestFiles(t *testing.T, repo interfaces.SyncRepository) {
	ctx := context.Background()

	repoID := newTestRepoID()

	files := []*model.PullRequestFile{
		{Filename: "main.go", Status: "modified", Additions: 10, Deletions: 2},
		{Filename: "main_test.go", Status: "added", Additions: 30},
	}
	gt.NoError(t, repo.SavePullRequestFiles(ctx, repoID, 1, "head1", files))

	got, err := repo.GetPullRequestFiles(ctx, repoID, 1, "head1")
	gt.NoError(t, err)
	gt.V(t, len(got)).Equal(2)
	gt.V(t, got[0].Filename).Equal("main.go")

	// A different head SHA is a different snapshot
	got, err = repo.GetPullRequestFiles(ctx, repoID, 1, "head2")
	gt.NoError(t, err)
	gt.V(t, len(got)).Equal(0)
}

// TestUserCRUD tests user records
func TestUserCRUD(t *testing.T, repo interfaces.SyncRepository) {
	ctx := context.Background()

	userID := types.GitHubUserID(uuid.New().ID())
	user := &model.User{
		ID:    userID,
		Login: fmt.Sprintf("user-%s", uuid.New().String()[:8]),
		Type:  "User",
	}
	gt.NoError(t, repo.SaveUser(ctx, user))

	retrieved, err := repo.GetUser(ctx, userID)
	gt.NoError(t, err)
	gt.V(t, retrieved.Login).Equal(user.Login)

	_, err = repo.GetUser(ctx, types.GitHubUserID(uuid.New().ID()))
	gt.Error(t, err)
	gt.True(t, errors.Is(err, repository.ErrNotFound))
}
