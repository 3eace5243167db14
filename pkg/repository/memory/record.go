package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hubsync/pkg/domain/model"
	"github.com/m-mizutani/hubsync/pkg/domain/types"
	"github.com/m-mizutani/hubsync/pkg/repository"
)

// Repository records

func (r *syncRepository) SaveRepository(ctx context.Context, repo *model.Repository) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bucket(repo.ID).repo = clone(repo)
	return nil
}

func (r *syncRepository) GetRepository(ctx context.Context, repoID types.GitHubRepoID) (*model.Repository, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, exists := r.repos[repoID]
	if !exists || data.repo == nil {
		return nil, goerr.Wrap(repository.ErrNotFound, "repository not found",
			goerr.V("repoID", repoID),
		)
	}

	return clone(data.repo), nil
}

func (r *syncRepository) ListRepositoriesByInstallation(ctx context.Context, installID types.GitHubAppInstallID) ([]*model.Repository, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var repos []*model.Repository
	for _, data := range r.repos {
		if data.repo != nil && data.repo.InstallationID == installID {
			repos = append(repos, clone(data.repo))
		}
	}

	sort.Slice(repos, func(i, j int) bool { return repos[i].ID < repos[j].ID })
	return repos, nil
}

// Branches

func (r *syncRepository) SaveBranch(ctx context.Context, repoID types.GitHubRepoID, branch *model.Branch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bucket(repoID).branches[branch.Name] = clone(branch)
	return nil
}

func (r *syncRepository) ListBranches(ctx context.Context, repoID types.GitHubRepoID) ([]*model.Branch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, exists := r.repos[repoID]
	if !exists {
		return nil, nil
	}

	var branches []*model.Branch
	for _, b := range data.branches {
		branches = append(branches, clone(b))
	}

	sort.Slice(branches, func(i, j int) bool { return branches[i].Name < branches[j].Name })
	return branches, nil
}

// Pull requests

func (r *syncRepository) GetPullRequest(ctx context.Context, repoID types.GitHubRepoID, number int) (*model.PullRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, exists := r.repos[repoID]
	if !exists {
		return nil, goerr.Wrap(repository.ErrNotFound, "pull request not found",
			goerr.V("repoID", repoID), goerr.V("number", number),
		)
	}

	pr, exists := data.pulls[number]
	if !exists {
		return nil, goerr.Wrap(repository.ErrNotFound, "pull request not found",
			goerr.V("repoID", repoID), goerr.V("number", number),
		)
	}

	return clone(pr), nil
}

func (r *syncRepository) SavePullRequest(ctx context.Context, repoID types.GitHubRepoID, pr *model.PullRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bucket(repoID).pulls[pr.Number] = clone(pr)
	return nil
}

func (r *syncRepository) ListPullRequests(ctx context.Context, repoID types.GitHubRepoID) ([]*model.PullRequest, error) {
	return r.listPullRequests(repoID, false)
}

func (r *syncRepository) ListOpenPullRequests(ctx context.Context, repoID types.GitHubRepoID) ([]*model.PullRequest, error) {
	return r.listPullRequests(repoID, true)
}

func (r *syncRepository) listPullRequests(repoID types.GitHubRepoID, openOnly bool) ([]*model.PullRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, exists := r.repos[repoID]
	if !exists {
		return nil, nil
	}

	var pulls []*model.PullRequest
	for _, pr := range data.pulls {
		if openOnly && pr.State != "open" {
			continue
		}
		pulls = append(pulls, clone(pr))
	}

	sort.Slice(pulls, func(i, j int) bool { return pulls[i].Number < pulls[j].Number })
	return pulls, nil
}

// Issues

func (r *syncRepository) GetIssue(ctx context.Context, repoID types.GitHubRepoID, number int) (*model.Issue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, exists := r.repos[repoID]
	if exists {
		if issue, ok := data.issues[number]; ok {
			return cloneIssue(issue), nil
		}
	}

	return nil, goerr.Wrap(repository.ErrNotFound, "issue not found",
		goerr.V("repoID", repoID), goerr.V("number", number),
	)
}

func (r *syncRepository) SaveIssue(ctx context.Context, repoID types.GitHubRepoID, issue *model.Issue) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bucket(repoID).issues[issue.Number] = cloneIssue(issue)
	return nil
}

func (r *syncRepository) ListIssues(ctx context.Context, repoID types.GitHubRepoID) ([]*model.Issue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, exists := r.repos[repoID]
	if !exists {
		return nil, nil
	}

	var issues []*model.Issue
	for _, issue := range data.issues {
		issues = append(issues, cloneIssue(issue))
	}

	sort.Slice(issues, func(i, j int) bool { return issues[i].Number < issues[j].Number })
	return issues, nil
}

// Commits

func (r *syncRepository) SaveCommit(ctx context.Context, repoID types.GitHubRepoID, commit *model.Commit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bucket(repoID).commits[commit.SHA] = clone(commit)
	return nil
}

func (r *syncRepository) ListCommits(ctx context.Context, repoID types.GitHubRepoID) ([]*model.Commit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, exists := r.repos[repoID]
	if !exists {
		return nil, nil
	}

	var commits []*model.Commit
	for _, c := range data.commits {
		commits = append(commits, clone(c))
	}

	sort.Slice(commits, func(i, j int) bool { return commits[i].SHA < commits[j].SHA })
	return commits, nil
}

// Check runs

func (r *syncRepository) GetCheckRun(ctx context.Context, repoID types.GitHubRepoID, checkRunID int64) (*model.CheckRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, exists := r.repos[repoID]
	if exists {
		if run, ok := data.checkRuns[checkRunID]; ok {
			return clone(run), nil
		}
	}

	return nil, goerr.Wrap(repository.ErrNotFound, "check run not found",
		goerr.V("repoID", repoID), goerr.V("checkRunID", checkRunID),
	)
}

func (r *syncRepository) SaveCheckRun(ctx context.Context, repoID types.GitHubRepoID, run *model.CheckRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bucket(repoID).checkRuns[run.ID] = clone(run)
	return nil
}

func (r *syncRepository) ListCheckRuns(ctx context.Context, repoID types.GitHubRepoID) ([]*model.CheckRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, exists := r.repos[repoID]
	if !exists {
		return nil, nil
	}

	var runs []*model.CheckRun
	for _, run := range data.checkRuns {
		runs = append(runs, clone(run))
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].ID < runs[j].ID })
	return runs, nil
}

// Workflow runs and jobs

func (r *syncRepository) GetWorkflowRun(ctx context.Context, repoID types.GitHubRepoID, runID int64) (*model.WorkflowRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, exists := r.repos[repoID]
	if exists {
		if run, ok := data.workflowRuns[runID]; ok {
			return clone(run), nil
		}
	}

	return nil, goerr.Wrap(repository.ErrNotFound, "workflow run not found",
		goerr.V("repoID", repoID), goerr.V("runID", runID),
	)
}

func (r *syncRepository) SaveWorkflowRun(ctx context.Context, repoID types.GitHubRepoID, run *model.WorkflowRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bucket(repoID).workflowRuns[run.ID] = clone(run)
	return nil
}

func (r *syncRepository) ListWorkflowRuns(ctx context.Context, repoID types.GitHubRepoID) ([]*model.WorkflowRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, exists := r.repos[repoID]
	if !exists {
		return nil, nil
	}

	var runs []*model.WorkflowRun
	for _, run := range data.workflowRuns {
		runs = append(runs, clone(run))
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].ID < runs[j].ID })
	return runs, nil
}

func (r *syncRepository) GetWorkflowJob(ctx context.Context, repoID types.GitHubRepoID, jobID int64) (*model.WorkflowJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, exists := r.repos[repoID]
	if exists {
		if job, ok := data.workflowJobs[jobID]; ok {
			return clone(job), nil
		}
	}

	return nil, goerr.Wrap(repository.ErrNotFound, "workflow job not found",
		goerr.V("repoID", repoID), goerr.V("jobID", jobID),
	)
}

func (r *syncRepository) SaveWorkflowJob(ctx context.Context, repoID types.GitHubRepoID, job *model.WorkflowJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bucket(repoID).workflowJobs[job.ID] = clone(job)
	return nil
}

// Pull request files

func prFilesKey(number int, headSHA types.CommitSHA) string {
	return fmt.Sprintf("%d:%s", number, headSHA)
}

func (r *syncRepository) SavePullRequestFiles(ctx context.Context, repoID types.GitHubRepoID, number int, headSHA types.CommitSHA, files []*model.PullRequestFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bucket(repoID).prFiles[prFilesKey(number, headSHA)] = cloneFiles(files)
	return nil
}

func (r *syncRepository) GetPullRequestFiles(ctx context.Context, repoID types.GitHubRepoID, number int, headSHA types.CommitSHA) ([]*model.PullRequestFile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, exists := r.repos[repoID]
	if !exists {
		return nil, nil
	}

	return cloneFiles(data.prFiles[prFilesKey(number, headSHA)]), nil
}

// Users

func (r *syncRepository) SaveUser(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.users[user.ID] = clone(user)
	return nil
}

func (r *syncRepository) GetUser(ctx context.Context, userID types.GitHubUserID) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.users[userID]
	if !exists {
		return nil, goerr.Wrap(repository.ErrNotFound, "user not found",
			goerr.V("userID", userID),
		)
	}

	return clone(user), nil
}
