package ghapp

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/go-github/v53/github"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hubsync/pkg/domain/interfaces"
	"github.com/m-mizutani/hubsync/pkg/domain/model"
	"github.com/m-mizutani/hubsync/pkg/domain/types"
)

const (
	pageSizeBranches  = 100
	pageSizePulls     = 100
	pageSizeIssues    = 100
	pageSizeCommits   = 100
	pageSizeCheckRuns = 100
	pageSizeRuns      = 50

	// Conservative fallback when the upstream sends neither Retry-After
	// nor a usable reset epoch.
	defaultRetryAfter = time.Minute
)

// Client wraps the GitHub REST API with per-call credential resolution
// and rate-limit detection. It never retries; backoff policy belongs to
// the caller.
type Client struct {
	tokens  interfaces.TokenSource
	baseURL *url.URL
	now     func() time.Time
}

var _ interfaces.GitHubClient = (*Client)(nil)

type ClientOption func(*Client)

// WithBaseURL points the client at a test server.
func WithBaseURL(u *url.URL) ClientOption {
	return func(x *Client) {
		x.baseURL = u
	}
}

func WithClientNowFunc(now func() time.Time) ClientOption {
	return func(x *Client) {
		x.now = now
	}
}

func New(tokens interfaces.TokenSource, options ...ClientOption) *Client {
	client := &Client{
		tokens: tokens,
		now:    time.Now,
	}
	for _, opt := range options {
		opt(client)
	}
	return client
}

func (x *Client) newGitHubClient(ctx context.Context, userID types.GitHubUserID, installID types.GitHubAppInstallID) (*github.Client, error) {
	token, err := x.tokens.Resolve(ctx, userID, installID)
	if err != nil {
		return nil, err
	}

	gh := github.NewTokenClient(ctx, string(token))
	if x.baseURL != nil {
		gh.BaseURL = x.baseURL
	}
	return gh, nil
}

// mapAPIError converts a failed API call into the engine's error
// taxonomy. 429, or 403 with zero remaining quota, becomes a
// *model.RateLimitError carrying the computed wait.
func (x *Client) mapAPIError(resp *github.Response, err error) error {
	if err == nil {
		return nil
	}
	if resp == nil {
		return goerr.Wrap(err, "github API request failed")
	}

	status := resp.StatusCode
	if status == http.StatusTooManyRequests ||
		(status == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0") {
		return &model.RateLimitError{RetryAfter: retryAfterFromHeader(resp.Header, x.now())}
	}

	return goerr.Wrap(err, "github API error", goerr.V("status", status))
}

func retryAfterFromHeader(header http.Header, now time.Time) time.Duration {
	if v := header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}

	if v := header.Get("X-RateLimit-Reset"); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			if wait := time.Unix(epoch, 0).Sub(now); wait > 0 {
				return wait
			}
		}
	}

	return defaultRetryAfter
}

func parseCursor(cursor string) (int, error) {
	if cursor == "" {
		return 1, nil
	}
	page, err := strconv.Atoi(cursor)
	if err != nil || page < 1 {
		return 0, goerr.Wrap(types.ErrInvalidOption, "invalid page cursor", goerr.V("cursor", cursor))
	}
	return page, nil
}

func nextCursor(resp *github.Response) string {
	if resp == nil || resp.NextPage == 0 {
		return ""
	}
	return strconv.Itoa(resp.NextPage)
}

func (x *Client) ListBranches(ctx context.Context, ref model.RepoRef) ([]*model.Branch, error) {
	gh, err := x.newGitHubClient(ctx, ref.UserID, ref.InstallationID)
	if err != nil {
		return nil, err
	}

	opts := &github.BranchListOptions{
		ListOptions: github.ListOptions{PerPage: pageSizeBranches},
	}
	result, resp, err := gh.Repositories.ListBranches(ctx, ref.Owner, ref.Name, opts)
	if err := x.mapAPIError(resp, err); err != nil {
		return nil, err
	}

	branches := make([]*model.Branch, 0, len(result))
	for _, b := range result {
		branches = append(branches, model.BranchFromGitHub(b))
	}
	return branches, nil
}

func (x *Client) ListPullRequests(ctx context.Context, ref model.RepoRef, cursor string) (*interfaces.PullRequestPage, error) {
	page, err := parseCursor(cursor)
	if err != nil {
		return nil, err
	}

	gh, err := x.newGitHubClient(ctx, ref.UserID, ref.InstallationID)
	if err != nil {
		return nil, err
	}

	opts := &github.PullRequestListOptions{
		State:       "all",
		Sort:        "created",
		Direction:   "desc",
		ListOptions: github.ListOptions{Page: page, PerPage: pageSizePulls},
	}
	result, resp, err := gh.PullRequests.List(ctx, ref.Owner, ref.Name, opts)
	if err := x.mapAPIError(resp, err); err != nil {
		return nil, err
	}

	out := &interfaces.PullRequestPage{NextCursor: nextCursor(resp)}
	for _, pr := range result {
		out.PullRequests = append(out.PullRequests, model.PullRequestFromGitHub(pr))
		if user := model.UserFromGitHub(pr.GetUser()); user != nil {
			out.Users = append(out.Users, user)
		}
	}
	return out, nil
}

func (x *Client) ListIssues(ctx context.Context, ref model.RepoRef, cursor string) (*interfaces.IssuePage, error) {
	page, err := parseCursor(cursor)
	if err != nil {
		return nil, err
	}

	gh, err := x.newGitHubClient(ctx, ref.UserID, ref.InstallationID)
	if err != nil {
		return nil, err
	}

	opts := &github.IssueListByRepoOptions{
		State:       "all",
		ListOptions: github.ListOptions{Page: page, PerPage: pageSizeIssues},
	}
	result, resp, err := gh.Issues.ListByRepo(ctx, ref.Owner, ref.Name, opts)
	if err := x.mapAPIError(resp, err); err != nil {
		return nil, err
	}

	out := &interfaces.IssuePage{NextCursor: nextCursor(resp)}
	for _, issue := range result {
		// The issues listing includes pull requests; they are synced by
		// the pull request step instead.
		if issue.IsPullRequest() {
			continue
		}
		out.Issues = append(out.Issues, model.IssueFromGitHub(issue))
		if user := model.UserFromGitHub(issue.GetUser()); user != nil {
			out.Users = append(out.Users, user)
		}
	}
	return out, nil
}

func (x *Client) ListCommits(ctx context.Context, ref model.RepoRef) ([]*model.Commit, []*model.User, error) {
	gh, err := x.newGitHubClient(ctx, ref.UserID, ref.InstallationID)
	if err != nil {
		return nil, nil, err
	}

	opts := &github.CommitsListOptions{
		ListOptions: github.ListOptions{PerPage: pageSizeCommits},
	}
	result, resp, err := gh.Repositories.ListCommits(ctx, ref.Owner, ref.Name, opts)
	if err := x.mapAPIError(resp, err); err != nil {
		return nil, nil, err
	}

	var commits []*model.Commit
	var users []*model.User
	for _, c := range result {
		commits = append(commits, model.CommitFromGitHub(c))
		if user := model.UserFromGitHub(c.GetAuthor()); user != nil {
			users = append(users, user)
		}
	}
	return commits, users, nil
}

func (x *Client) ListCheckRuns(ctx context.Context, ref model.RepoRef, headSHA types.CommitSHA) ([]*model.CheckRun, error) {
	gh, err := x.newGitHubClient(ctx, ref.UserID, ref.InstallationID)
	if err != nil {
		return nil, err
	}

	opts := &github.ListCheckRunsOptions{
		ListOptions: github.ListOptions{PerPage: pageSizeCheckRuns},
	}
	result, resp, err := gh.Checks.ListCheckRunsForRef(ctx, ref.Owner, ref.Name, string(headSHA), opts)
	if err != nil {
		// A commit without a check suite yields 404; that means "no
		// check runs", not a failure.
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, x.mapAPIError(resp, err)
	}

	runs := make([]*model.CheckRun, 0, len(result.CheckRuns))
	for _, run := range result.CheckRuns {
		runs = append(runs, model.CheckRunFromGitHub(run))
	}
	return runs, nil
}

func (x *Client) ListWorkflowRuns(ctx context.Context, ref model.RepoRef) ([]*model.WorkflowRun, []*model.User, error) {
	gh, err := x.newGitHubClient(ctx, ref.UserID, ref.InstallationID)
	if err != nil {
		return nil, nil, err
	}

	opts := &github.ListWorkflowRunsOptions{
		ListOptions: github.ListOptions{PerPage: pageSizeRuns},
	}
	result, resp, err := gh.Actions.ListRepositoryWorkflowRuns(ctx, ref.Owner, ref.Name, opts)
	if err := x.mapAPIError(resp, err); err != nil {
		return nil, nil, err
	}

	var runs []*model.WorkflowRun
	var users []*model.User
	for _, run := range result.WorkflowRuns {
		runs = append(runs, model.WorkflowRunFromGitHub(run))
		if user := model.UserFromGitHub(run.GetActor()); user != nil {
			users = append(users, user)
		}
	}
	return runs, users, nil
}

func (x *Client) ListWorkflowJobs(ctx context.Context, ref model.RepoRef, runID int64) ([]*model.WorkflowJob, error) {
	gh, err := x.newGitHubClient(ctx, ref.UserID, ref.InstallationID)
	if err != nil {
		return nil, err
	}

	opts := &github.ListWorkflowJobsOptions{
		ListOptions: github.ListOptions{PerPage: pageSizeCheckRuns},
	}
	result, resp, err := gh.Actions.ListWorkflowJobs(ctx, ref.Owner, ref.Name, runID, opts)
	if err := x.mapAPIError(resp, err); err != nil {
		return nil, err
	}

	jobs := make([]*model.WorkflowJob, 0, len(result.Jobs))
	for _, job := range result.Jobs {
		jobs = append(jobs, model.WorkflowJobFromGitHub(job))
	}
	return jobs, nil
}

func (x *Client) ListPullRequestFiles(ctx context.Context, ref model.RepoRef, number int) ([]*model.PullRequestFile, error) {
	gh, err := x.newGitHubClient(ctx, ref.UserID, ref.InstallationID)
	if err != nil {
		return nil, err
	}

	var files []*model.PullRequestFile
	opts := &github.ListOptions{PerPage: pageSizePulls}
	for {
		result, resp, err := gh.PullRequests.ListFiles(ctx, ref.Owner, ref.Name, number, opts)
		if err := x.mapAPIError(resp, err); err != nil {
			return nil, err
		}
		for _, f := range result {
			files = append(files, model.PullRequestFileFromGitHub(f))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return files, nil
}

func (x *Client) ListInstallationRepos(ctx context.Context, installID types.GitHubAppInstallID) ([]*model.Repository, error) {
	gh, err := x.newGitHubClient(ctx, 0, installID)
	if err != nil {
		return nil, err
	}

	var repos []*model.Repository
	opts := &github.ListOptions{PerPage: pageSizeBranches}
	for {
		result, resp, err := gh.Apps.ListRepos(ctx, opts)
		if err := x.mapAPIError(resp, err); err != nil {
			return nil, err
		}
		for _, repo := range result.Repositories {
			repos = append(repos, model.RepositoryFromGitHub(repo, installID))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return repos, nil
}
