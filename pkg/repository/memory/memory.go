package memory

import (
	"sync"

	"github.com/m-mizutani/hubsync/pkg/domain/interfaces"
	"github.com/m-mizutani/hubsync/pkg/domain/model"
	"github.com/m-mizutani/hubsync/pkg/domain/types"
)

// New creates a new in-memory repository
func New() interfaces.SyncRepository {
	return &syncRepository{
		events: make(map[types.DeliveryID]*model.WebhookEvent),
		jobs:   make(map[types.SyncJobID]*model.SyncJob),
		repos:  make(map[types.GitHubRepoID]*repoData),
		users:  make(map[types.GitHubUserID]*model.User),
	}
}

type syncRepository struct {
	mu     sync.RWMutex
	events map[types.DeliveryID]*model.WebhookEvent
	jobs   map[types.SyncJobID]*model.SyncJob
	repos  map[types.GitHubRepoID]*repoData
	users  map[types.GitHubUserID]*model.User
}

type repoData struct {
	repo         *model.Repository
	branches     map[types.BranchName]*model.Branch
	pulls        map[int]*model.PullRequest
	issues       map[int]*model.Issue
	commits      map[types.CommitSHA]*model.Commit
	checkRuns    map[int64]*model.CheckRun
	workflowRuns map[int64]*model.WorkflowRun
	workflowJobs map[int64]*model.WorkflowJob
	prFiles      map[string][]*model.PullRequestFile
}

// bucket returns the per-repository storage, creating it lazily so
// webhook writes may land before the repository record itself.
func (r *syncRepository) bucket(repoID types.GitHubRepoID) *repoData {
	data, exists := r.repos[repoID]
	if !exists {
		data = &repoData{
			branches:     make(map[types.BranchName]*model.Branch),
			pulls:        make(map[int]*model.PullRequest),
			issues:       make(map[int]*model.Issue),
			commits:      make(map[types.CommitSHA]*model.Commit),
			checkRuns:    make(map[int64]*model.CheckRun),
			workflowRuns: make(map[int64]*model.WorkflowRun),
			workflowJobs: make(map[int64]*model.WorkflowJob),
			prFiles:      make(map[string][]*model.PullRequestFile),
		}
		r.repos[repoID] = data
	}
	return data
}

// clone returns a shallow struct copy so callers never share memory
// with the store. Types with slice fields have dedicated helpers.
func clone[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneEvent(ev *model.WebhookEvent) *model.WebhookEvent {
	c := clone(ev)
	if ev.Payload != nil {
		c.Payload = append([]byte(nil), ev.Payload...)
	}
	return c
}

func cloneJob(job *model.SyncJob) *model.SyncJob {
	c := clone(job)
	c.CompletedSteps = append([]model.SyncStep(nil), job.CompletedSteps...)
	return c
}

func cloneIssue(issue *model.Issue) *model.Issue {
	c := clone(issue)
	c.Labels = append([]string(nil), issue.Labels...)
	return c
}

func cloneFiles(files []*model.PullRequestFile) []*model.PullRequestFile {
	out := make([]*model.PullRequestFile, 0, len(files))
	for _, f := range files {
		out = append(out, clone(f))
	}
	return out
}
