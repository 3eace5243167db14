package usecase_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/hubsync/pkg/domain/interfaces"
	"github.com/m-mizutani/hubsync/pkg/domain/model"
	"github.com/m-mizutani/hubsync/pkg/domain/types"
	"github.com/m-mizutani/hubsync/pkg/infra"
	"github.com/m-mizutani/hubsync/pkg/infra/queue"
	"github.com/m-mizutani/hubsync/pkg/repository/memory"
	"github.com/m-mizutani/hubsync/pkg/usecase"
)

// fakeGitHub is an in-memory GitHubClient with canned pages and
// per-method error injection.
type fakeGitHub struct {
	mu    sync.Mutex
	calls map[string]int
	errs  map[string]error

	branches     []*model.Branch
	pullPages    map[string]*interfaces.PullRequestPage
	issuePages   map[string]*interfaces.IssuePage
	commits      []*model.Commit
	commitUsers  []*model.User
	checkRuns    map[types.CommitSHA][]*model.CheckRun
	wfRuns       []*model.WorkflowRun
	wfJobs       map[int64][]*model.WorkflowJob
	prFiles      map[int][]*model.PullRequestFile
	installRepos []*model.Repository
}

func newFakeGitHub() *fakeGitHub {
	return &fakeGitHub{
		calls:      map[string]int{},
		errs:       map[string]error{},
		pullPages:  map[string]*interfaces.PullRequestPage{},
		issuePages: map[string]*interfaces.IssuePage{},
		checkRuns:  map[types.CommitSHA][]*model.CheckRun{},
		wfJobs:     map[int64][]*model.WorkflowJob{},
		prFiles:    map[int][]*model.PullRequestFile{},
	}
}

func (x *fakeGitHub) enter(method string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.calls[method]++
	return x.errs[method]
}

func (x *fakeGitHub) callCount(method string) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.calls[method]
}

func (x *fakeGitHub) ListBranches(ctx context.Context, ref model.RepoRef) ([]*model.Branch, error) {
	if err := x.enter("ListBranches"); err != nil {
		return nil, err
	}
	return x.branches, nil
}

func (x *fakeGitHub) ListPullRequests(ctx context.Context, ref model.RepoRef, cursor string) (*interfaces.PullRequestPage, error) {
	if err := x.enter("ListPullRequests"); err != nil {
		return nil, err
	}
	if page, ok := x.pullPages[cursor]; ok {
		return page, nil
	}
	return &interfaces.PullRequestPage{}, nil
}

func (x *fakeGitHub) ListIssues(ctx context.Context, ref model.RepoRef, cursor string) (*interfaces.IssuePage, error) {
	if err := x.enter("ListIssues"); err != nil {
		return nil, err
	}
	if page, ok := x.issuePages[cursor]; ok {
		return page, nil
	}
	return &interfaces.IssuePage{}, nil
}

func (x *fakeGitHub) ListCommits(ctx context.Context, ref model.RepoRef) ([]*model.Commit, []*model.User, error) {
	if err := x.enter("ListCommits"); err != nil {
		return nil, nil, err
	}
	return x.commits, x.commitUsers, nil
}

func (x *fakeGitHub) ListCheckRuns(ctx context.Context, ref model.RepoRef, headSHA types.CommitSHA) ([]*model.CheckRun, error) {
	if err := x.enter("ListCheckRuns"); err != nil {
		return nil, err
	}
	return x.checkRuns[headSHA], nil
}

func (x *fakeGitHub) ListWorkflowRuns(ctx context.Context, ref model.RepoRef) ([]*model.WorkflowRun, []*model.User, error) {
	if err := x.enter("ListWorkflowRuns"); err != nil {
		return nil, nil, err
	}
	return x.wfRuns, nil, nil
}

func (x *fakeGitHub) ListWorkflowJobs(ctx context.Context, ref model.RepoRef, runID int64) ([]*model.WorkflowJob, error) {
	if err := x.enter("ListWorkflowJobs"); err != nil {
		return nil, err
	}
	return x.wfJobs[runID], nil
}

func (x *fakeGitHub) ListPullRequestFiles(ctx context.Context, ref model.RepoRef, number int) ([]*model.PullRequestFile, error) {
	if err := x.enter("ListPullRequestFiles"); err != nil {
		return nil, err
	}
	return x.prFiles[number], nil
}

func (x *fakeGitHub) ListInstallationRepos(ctx context.Context, installID types.GitHubAppInstallID) ([]*model.Repository, error) {
	if err := x.enter("ListInstallationRepos"); err != nil {
		return nil, err
	}
	return x.installRepos, nil
}

var _ interfaces.GitHubClient = (*fakeGitHub)(nil)

// captureQueue records enqueued tasks without executing them.
type captureQueue struct {
	mu     sync.Mutex
	tasks  []interfaces.Task
	delays []time.Duration
}

func (x *captureQueue) Enqueue(ctx context.Context, delay time.Duration, task interfaces.Task) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.tasks = append(x.tasks, task)
	x.delays = append(x.delays, delay)
	return nil
}

func (x *captureQueue) taskList() []interfaces.Task {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]interfaces.Task(nil), x.tasks...)
}

var _ interfaces.Queue = (*captureQueue)(nil)

// userCountRepo counts SaveUser calls per user on top of the in-memory
// repository.
type userCountRepo struct {
	interfaces.SyncRepository
	mu    sync.Mutex
	saves map[types.GitHubUserID]int
}

func (x *userCountRepo) SaveUser(ctx context.Context, user *model.User) error {
	x.mu.Lock()
	x.saves[user.ID]++
	x.mu.Unlock()
	return x.SyncRepository.SaveUser(ctx, user)
}

func (x *userCountRepo) saveCount(id types.GitHubUserID) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.saves[id]
}

func testRepoModel() *model.Repository {
	return &model.Repository{
		ID:             999,
		Owner:          "octo",
		Name:           "hello",
		FullName:       "octo/hello",
		DefaultBranch:  "main",
		InstallationID: 5000,
	}
}

func populatedFakeGitHub() *fakeGitHub {
	gh := newFakeGitHub()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	gh.branches = []*model.Branch{
		{Name: "main", CommitSHA: "sha-main"},
		{Name: "feature/x", CommitSHA: "sha-feat"},
	}
	gh.pullPages[""] = &interfaces.PullRequestPage{
		PullRequests: []*model.PullRequest{
			{ID: 1, Number: 1, State: "open", HeadSHA: "head1", GitHubUpdatedAt: now},
			{ID: 2, Number: 2, State: "closed", HeadSHA: "head2", GitHubUpdatedAt: now},
		},
		Users:      []*model.User{{ID: 7, Login: "alice"}},
		NextCursor: "2",
	}
	gh.pullPages["2"] = &interfaces.PullRequestPage{
		PullRequests: []*model.PullRequest{
			{ID: 3, Number: 3, State: "open", HeadSHA: "head3", GitHubUpdatedAt: now},
		},
		Users: []*model.User{{ID: 8, Login: "bob"}},
	}
	gh.issuePages[""] = &interfaces.IssuePage{
		Issues: []*model.Issue{
			{ID: 10, Number: 10, State: "open", GitHubUpdatedAt: now},
			{ID: 11, Number: 11, State: "closed", GitHubUpdatedAt: now},
		},
	}
	gh.commits = []*model.Commit{
		{SHA: "sha-main", Message: "init"},
		{SHA: "sha-feat", Message: "feat"},
	}
	gh.checkRuns["head1"] = []*model.CheckRun{{ID: 100, HeadSHA: "head1", Status: "completed"}}
	gh.checkRuns["head3"] = []*model.CheckRun{{ID: 101, HeadSHA: "head3", Status: "completed"}}
	gh.wfRuns = []*model.WorkflowRun{
		{ID: 200, Name: "CI", GitHubCreatedAt: now},
		{ID: 201, Name: "CI", GitHubCreatedAt: now.Add(time.Minute)},
	}
	gh.wfJobs[200] = []*model.WorkflowJob{{ID: 300, RunID: 200}}
	gh.wfJobs[201] = []*model.WorkflowJob{{ID: 301, RunID: 201}}
	gh.prFiles[1] = []*model.PullRequestFile{
		{Filename: "main.go", Status: "modified"},
		{Filename: "go.mod", Status: "modified"},
	}
	gh.prFiles[3] = []*model.PullRequestFile{
		{Filename: "server.go", Status: "added"},
	}

	return gh
}

func TestBootstrap(t *testing.T) {
	ctx := context.Background()

	t.Run("full bootstrap reaches done", func(t *testing.T) {
		gh := populatedFakeGitHub()
		repo := memory.New()
		q := queue.New(queue.WithInline())

		clients := infra.New(
			infra.WithGitHub(gh),
			infra.WithSyncRepository(repo),
			infra.WithQueue(q),
		)
		uc := usecase.New(clients)
		q.SetHandler(uc.HandleTask)

		gt.NoError(t, uc.ConnectRepository(ctx, testRepoModel()))

		jobs, err := repo.ListSyncJobsByState(ctx, model.SyncJobStateDone, 0)
		gt.NoError(t, err)
		gt.V(t, len(jobs)).Equal(1)
		gt.V(t, len(jobs[0].CompletedSteps)).Equal(len(model.BootstrapSteps))

		branches, err := repo.ListBranches(ctx, 999)
		gt.NoError(t, err)
		gt.V(t, len(branches)).Equal(2)

		pulls, err := repo.ListPullRequests(ctx, 999)
		gt.NoError(t, err)
		gt.V(t, len(pulls)).Equal(3)

		issues, err := repo.ListIssues(ctx, 999)
		gt.NoError(t, err)
		gt.V(t, len(issues)).Equal(2)

		commits, err := repo.ListCommits(ctx, 999)
		gt.NoError(t, err)
		gt.V(t, len(commits)).Equal(2)

		checkRuns, err := repo.ListCheckRuns(ctx, 999)
		gt.NoError(t, err)
		gt.V(t, len(checkRuns)).Equal(2)

		wfRuns, err := repo.ListWorkflowRuns(ctx, 999)
		gt.NoError(t, err)
		gt.V(t, len(wfRuns)).Equal(2)

		files, err := repo.GetPullRequestFiles(ctx, 999, 1, "head1")
		gt.NoError(t, err)
		gt.V(t, len(files)).Equal(2)

		files, err = repo.GetPullRequestFiles(ctx, 999, 3, "head3")
		gt.NoError(t, err)
		gt.V(t, len(files)).Equal(1)

		user, err := repo.GetUser(ctx, 7)
		gt.NoError(t, err)
		gt.V(t, user.Login).Equal("alice")
	})

	t.Run("rerun after done stays duplicate free", func(t *testing.T) {
		gh := populatedFakeGitHub()
		repo := memory.New()
		q := queue.New(queue.WithInline())

		clients := infra.New(
			infra.WithGitHub(gh),
			infra.WithSyncRepository(repo),
			infra.WithQueue(q),
		)
		uc := usecase.New(clients)
		q.SetHandler(uc.HandleTask)

		gt.NoError(t, uc.ConnectRepository(ctx, testRepoModel()))
		gt.NoError(t, uc.ConnectRepository(ctx, testRepoModel()))

		pulls, err := repo.ListPullRequests(ctx, 999)
		gt.NoError(t, err)
		gt.V(t, len(pulls)).Equal(3)

		commits, err := repo.ListCommits(ctx, 999)
		gt.NoError(t, err)
		gt.V(t, len(commits)).Equal(2)
	})

	t.Run("lock blocks a second job while one is live", func(t *testing.T) {
		gh := populatedFakeGitHub()
		repo := memory.New()
		q := &captureQueue{}

		clients := infra.New(
			infra.WithGitHub(gh),
			infra.WithSyncRepository(repo),
			infra.WithQueue(q),
		)
		uc := usecase.New(clients)

		gt.NoError(t, uc.ConnectRepository(ctx, testRepoModel()))
		gt.NoError(t, uc.ConnectRepository(ctx, testRepoModel()))

		// One pending job, one enqueued task
		jobs, err := repo.ListSyncJobsByState(ctx, model.SyncJobStatePending, 0)
		gt.NoError(t, err)
		gt.V(t, len(jobs)).Equal(1)
		gt.V(t, len(q.taskList())).Equal(1)
	})

	t.Run("chunked step persists cursor and re-enqueues", func(t *testing.T) {
		gh := populatedFakeGitHub()
		repo := memory.New()
		q := &captureQueue{}

		clients := infra.New(
			infra.WithGitHub(gh),
			infra.WithSyncRepository(repo),
			infra.WithQueue(q),
		)
		// One page per chunk to force a cursor handoff
		uc := usecase.New(clients, usecase.WithPageCap(1))

		gt.NoError(t, uc.ConnectRepository(ctx, testRepoModel()))

		tasks := q.taskList()
		gt.V(t, len(tasks)).Equal(1)
		jobID := tasks[0].JobID

		// branches step
		gt.NoError(t, uc.RunSyncJob(ctx, jobID))
		job, err := repo.GetSyncJob(ctx, jobID)
		gt.NoError(t, err)
		gt.True(t, job.StepCompleted(model.SyncStepBranches))

		// first PR page; cursor points at page 2
		gt.NoError(t, uc.RunSyncJob(ctx, jobID))
		job, err = repo.GetSyncJob(ctx, jobID)
		gt.NoError(t, err)
		gt.False(t, job.StepCompleted(model.SyncStepPullRequests))
		gt.V(t, job.PageCursor).Equal("2")

		// second PR page finishes the step and resets the cursor
		gt.NoError(t, uc.RunSyncJob(ctx, jobID))
		job, err = repo.GetSyncJob(ctx, jobID)
		gt.NoError(t, err)
		gt.True(t, job.StepCompleted(model.SyncStepPullRequests))
		gt.V(t, job.PageCursor).Equal("")
	})

	t.Run("failure backs off and eventually fails the job", func(t *testing.T) {
		gh := populatedFakeGitHub()
		gh.errs["ListBranches"] = errTest
		repo := memory.New()
		q := &captureQueue{}

		clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		clients := infra.New(
			infra.WithGitHub(gh),
			infra.WithSyncRepository(repo),
			infra.WithQueue(q),
		)
		uc := usecase.New(clients,
			usecase.WithMaxJobAttempts(2),
			usecase.WithBackoff(30*time.Second, 15*time.Minute),
			usecase.WithNowFunc(func() time.Time { return clock }),
		)

		gt.NoError(t, uc.ConnectRepository(ctx, testRepoModel()))
		jobID := q.taskList()[0].JobID

		gt.NoError(t, uc.RunSyncJob(ctx, jobID))
		job, err := repo.GetSyncJob(ctx, jobID)
		gt.NoError(t, err)
		gt.V(t, job.State).Equal(model.SyncJobStateRetry)
		gt.V(t, job.AttemptCount).Equal(1)
		gt.V(t, job.NextRunAt).Equal(clock.Add(30 * time.Second))

		gt.NoError(t, uc.RunSyncJob(ctx, jobID))
		job, err = repo.GetSyncJob(ctx, jobID)
		gt.NoError(t, err)
		gt.V(t, job.State).Equal(model.SyncJobStateFailed)
		gt.V(t, job.AttemptCount).Equal(2)
	})

	t.Run("rate limit honors hint without consuming attempts", func(t *testing.T) {
		gh := populatedFakeGitHub()
		gh.errs["ListBranches"] = &model.RateLimitError{RetryAfter: 7 * time.Minute}
		repo := memory.New()
		q := &captureQueue{}

		clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		clients := infra.New(
			infra.WithGitHub(gh),
			infra.WithSyncRepository(repo),
			infra.WithQueue(q),
		)
		uc := usecase.New(clients, usecase.WithNowFunc(func() time.Time { return clock }))

		gt.NoError(t, uc.ConnectRepository(ctx, testRepoModel()))
		jobID := q.taskList()[0].JobID

		gt.NoError(t, uc.RunSyncJob(ctx, jobID))
		job, err := repo.GetSyncJob(ctx, jobID)
		gt.NoError(t, err)
		gt.V(t, job.State).Equal(model.SyncJobStateRetry)
		gt.V(t, job.AttemptCount).Equal(0)
		gt.V(t, job.NextRunAt).Equal(clock.Add(7 * time.Minute))
	})

	t.Run("missing credential suspends the repository", func(t *testing.T) {
		gh := populatedFakeGitHub()
		gh.errs["ListBranches"] = types.ErrNoCredential
		repo := memory.New()
		q := &captureQueue{}

		clients := infra.New(
			infra.WithGitHub(gh),
			infra.WithSyncRepository(repo),
			infra.WithQueue(q),
		)
		uc := usecase.New(clients)

		gt.NoError(t, uc.ConnectRepository(ctx, testRepoModel()))
		jobID := q.taskList()[0].JobID

		gt.NoError(t, uc.RunSyncJob(ctx, jobID))
		job, err := repo.GetSyncJob(ctx, jobID)
		gt.NoError(t, err)
		gt.V(t, job.State).Equal(model.SyncJobStateFailed)

		stored, err := repo.GetRepository(ctx, 999)
		gt.NoError(t, err)
		gt.True(t, stored.Suspended)
	})

	t.Run("reaper flips stuck running jobs", func(t *testing.T) {
		gh := populatedFakeGitHub()
		repo := memory.New()
		q := &captureQueue{}

		clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		clients := infra.New(
			infra.WithGitHub(gh),
			infra.WithSyncRepository(repo),
			infra.WithQueue(q),
		)
		uc := usecase.New(clients,
			usecase.WithStuckThreshold(30*time.Minute),
			usecase.WithNowFunc(func() time.Time { return clock }),
		)

		job := &model.SyncJob{
			ID:             types.NewSyncJobID(),
			Type:           model.SyncJobTypeBootstrap,
			LockKey:        model.SyncLockKey(5000, 999, model.SyncJobTypeBootstrap),
			InstallationID: 5000,
			RepositoryID:   999,
			Owner:          "octo",
			RepoName:       "hello",
			State:          model.SyncJobStateRunning,
			CurrentStep:    model.SyncStepIssues,
			CreatedAt:      clock.Add(-2 * time.Hour),
			UpdatedAt:      clock.Add(-time.Hour),
		}
		created, err := repo.CreateSyncJob(ctx, job)
		gt.NoError(t, err)
		gt.True(t, created)

		gt.NoError(t, uc.ReapStuckJobs(ctx))

		reaped, err := repo.GetSyncJob(ctx, job.ID)
		gt.NoError(t, err)
		gt.V(t, reaped.State).Equal(model.SyncJobStateRetry)
		gt.V(t, len(q.taskList())).Equal(1)
		gt.V(t, q.taskList()[0].Kind).Equal(interfaces.TaskRunSyncJob)
	})

	t.Run("reaper recovers a retry job whose delayed task was lost", func(t *testing.T) {
		gh := populatedFakeGitHub()
		repo := memory.New()
		q := &captureQueue{}

		clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		clients := infra.New(
			infra.WithGitHub(gh),
			infra.WithSyncRepository(repo),
			infra.WithQueue(q),
		)
		uc := usecase.New(clients,
			usecase.WithStuckThreshold(30*time.Minute),
			usecase.WithNowFunc(func() time.Time { return clock }),
		)

		// Backoff window expired an hour ago; the process that held the
		// delayed task is gone.
		job := &model.SyncJob{
			ID:             types.NewSyncJobID(),
			Type:           model.SyncJobTypeBootstrap,
			LockKey:        model.SyncLockKey(5000, 999, model.SyncJobTypeBootstrap),
			InstallationID: 5000,
			RepositoryID:   999,
			Owner:          "octo",
			RepoName:       "hello",
			State:          model.SyncJobStateRetry,
			CurrentStep:    model.SyncStepPullRequests,
			AttemptCount:   1,
			NextRunAt:      clock.Add(-time.Hour),
			CreatedAt:      clock.Add(-2 * time.Hour),
			UpdatedAt:      clock.Add(-time.Hour),
		}
		created, err := repo.CreateSyncJob(ctx, job)
		gt.NoError(t, err)
		gt.True(t, created)

		gt.NoError(t, uc.ReapStuckJobs(ctx))

		reaped, err := repo.GetSyncJob(ctx, job.ID)
		gt.NoError(t, err)
		gt.V(t, reaped.State).Equal(model.SyncJobStateRetry)
		gt.V(t, len(q.taskList())).Equal(1)
		gt.V(t, q.taskList()[0].JobID).Equal(job.ID)
	})

	t.Run("reaper recovers a pending job whose task was lost", func(t *testing.T) {
		gh := populatedFakeGitHub()
		repo := memory.New()
		q := &captureQueue{}

		clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		clients := infra.New(
			infra.WithGitHub(gh),
			infra.WithSyncRepository(repo),
			infra.WithQueue(q),
		)
		uc := usecase.New(clients,
			usecase.WithStuckThreshold(30*time.Minute),
			usecase.WithNowFunc(func() time.Time { return clock }),
		)

		job := &model.SyncJob{
			ID:             types.NewSyncJobID(),
			Type:           model.SyncJobTypeBootstrap,
			LockKey:        model.SyncLockKey(5000, 999, model.SyncJobTypeBootstrap),
			InstallationID: 5000,
			RepositoryID:   999,
			Owner:          "octo",
			RepoName:       "hello",
			State:          model.SyncJobStatePending,
			CurrentStep:    model.SyncStepBranches,
			CreatedAt:      clock.Add(-2 * time.Hour),
			UpdatedAt:      clock.Add(-time.Hour),
		}
		created, err := repo.CreateSyncJob(ctx, job)
		gt.NoError(t, err)
		gt.True(t, created)

		gt.NoError(t, uc.ReapStuckJobs(ctx))

		gt.V(t, len(q.taskList())).Equal(1)
		gt.V(t, q.taskList()[0].Kind).Equal(interfaces.TaskRunSyncJob)
	})

	t.Run("reaper leaves a retry job inside its backoff window alone", func(t *testing.T) {
		gh := populatedFakeGitHub()
		repo := memory.New()
		q := &captureQueue{}

		clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		clients := infra.New(
			infra.WithGitHub(gh),
			infra.WithSyncRepository(repo),
			infra.WithQueue(q),
		)
		uc := usecase.New(clients,
			usecase.WithStuckThreshold(30*time.Minute),
			usecase.WithNowFunc(func() time.Time { return clock }),
		)

		job := &model.SyncJob{
			ID:             types.NewSyncJobID(),
			Type:           model.SyncJobTypeBootstrap,
			LockKey:        model.SyncLockKey(5000, 999, model.SyncJobTypeBootstrap),
			InstallationID: 5000,
			RepositoryID:   999,
			Owner:          "octo",
			RepoName:       "hello",
			State:          model.SyncJobStateRetry,
			CurrentStep:    model.SyncStepIssues,
			AttemptCount:   1,
			NextRunAt:      clock.Add(time.Minute),
			CreatedAt:      clock.Add(-time.Hour),
			UpdatedAt:      clock.Add(-time.Minute),
		}
		created, err := repo.CreateSyncJob(ctx, job)
		gt.NoError(t, err)
		gt.True(t, created)

		gt.NoError(t, uc.ReapStuckJobs(ctx))
		gt.V(t, len(q.taskList())).Equal(0)
	})

	t.Run("actors are written once per chunk", func(t *testing.T) {
		gh := populatedFakeGitHub()
		// Same author on both PR pages
		gh.pullPages[""].Users = []*model.User{{ID: 7, Login: "alice"}}
		gh.pullPages["2"].Users = []*model.User{{ID: 7, Login: "alice"}}

		repo := &userCountRepo{
			SyncRepository: memory.New(),
			saves:          map[types.GitHubUserID]int{},
		}
		q := queue.New(queue.WithInline())

		clients := infra.New(
			infra.WithGitHub(gh),
			infra.WithSyncRepository(repo),
			infra.WithQueue(q),
		)
		uc := usecase.New(clients)
		q.SetHandler(uc.HandleTask)

		gt.NoError(t, uc.ConnectRepository(ctx, testRepoModel()))

		gt.V(t, repo.saveCount(7)).Equal(1)
	})

	t.Run("monotonic upsert keeps the newer record", func(t *testing.T) {
		gh := populatedFakeGitHub()
		repo := memory.New()
		q := queue.New(queue.WithInline())

		clients := infra.New(
			infra.WithGitHub(gh),
			infra.WithSyncRepository(repo),
			infra.WithQueue(q),
		)
		uc := usecase.New(clients)
		q.SetHandler(uc.HandleTask)

		// Pre-store PR #1 with a newer timestamp than the API pages carry
		newer := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
		gt.NoError(t, repo.SavePullRequest(ctx, 999, &model.PullRequest{
			ID: 1, Number: 1, State: "closed", Title: "already newer",
			GitHubUpdatedAt: newer,
		}))

		gt.NoError(t, uc.ConnectRepository(ctx, testRepoModel()))

		pr, err := repo.GetPullRequest(ctx, 999, 1)
		gt.NoError(t, err)
		gt.V(t, pr.Title).Equal("already newer")
		gt.V(t, pr.State).Equal("closed")
	})
}

var errTest = goerr.New("injected failure")
