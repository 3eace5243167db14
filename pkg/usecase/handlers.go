package usecase

import (
	"context"
	"strings"

	"github.com/google/go-github/v53/github"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hubsync/pkg/domain/interfaces"
	"github.com/m-mizutani/hubsync/pkg/domain/model"
	"github.com/m-mizutani/hubsync/pkg/domain/types"
	"github.com/m-mizutani/hubsync/pkg/utils/logging"
)

// handleEvent dispatches one webhook event to its handler. Unknown
// event names are processed as no-ops so new GitHub event types never
// clog the retry queue.
func (x *UseCase) handleEvent(ctx context.Context, ev *model.WebhookEvent) error {
	payload, err := github.ParseWebHook(ev.Event, ev.Payload)
	if err != nil {
		return goerr.Wrap(err, "failed to parse webhook payload",
			goerr.V("deliveryID", ev.DeliveryID),
			goerr.V("event", ev.Event),
		)
	}

	switch e := payload.(type) {
	case *github.PullRequestEvent:
		return x.handlePullRequestEvent(ctx, ev, e)
	case *github.IssuesEvent:
		return x.handleIssuesEvent(ctx, ev, e)
	case *github.PushEvent:
		return x.handlePushEvent(ctx, ev, e)
	case *github.CheckRunEvent:
		return x.handleCheckRunEvent(ctx, ev, e)
	case *github.WorkflowRunEvent:
		return x.handleWorkflowRunEvent(ctx, ev, e)
	case *github.WorkflowJobEvent:
		return x.handleWorkflowJobEvent(ctx, ev, e)
	case *github.InstallationEvent:
		return x.handleInstallationEvent(ctx, e)
	case *github.InstallationRepositoriesEvent:
		return x.handleInstallationReposEvent(ctx, e)

	default:
		logging.From(ctx).Debug("ignoring unsupported webhook event",
			"deliveryID", ev.DeliveryID,
			"event", ev.Event,
		)
		return nil
	}
}

func (x *UseCase) handlePullRequestEvent(ctx context.Context, ev *model.WebhookEvent, e *github.PullRequestEvent) error {
	pr := model.PullRequestFromGitHub(e.GetPullRequest())
	if err := x.upsertPullRequest(ctx, ev.RepositoryID, pr); err != nil {
		return err
	}
	if err := x.saveUsers(ctx, []*model.User{model.UserFromGitHub(e.GetPullRequest().GetUser())}); err != nil {
		return err
	}

	// The file set changes exactly when the head moves.
	switch e.GetAction() {
	case "opened", "synchronize":
		task := interfaces.Task{
			Kind:         interfaces.TaskSyncPRFiles,
			RepositoryID: ev.RepositoryID,
			PRNumber:     pr.Number,
			HeadSHA:      pr.HeadSHA,
		}
		if err := x.clients.Queue().Enqueue(ctx, 0, task); err != nil {
			return goerr.Wrap(err, "failed to enqueue file diff sync",
				goerr.V("repoID", ev.RepositoryID),
				goerr.V("number", pr.Number),
			)
		}
	}

	return nil
}

func (x *UseCase) handleIssuesEvent(ctx context.Context, ev *model.WebhookEvent, e *github.IssuesEvent) error {
	// PRs arrive through pull_request; the issues stream only carries
	// real issues here.
	if e.GetIssue().IsPullRequest() {
		return nil
	}

	issue := model.IssueFromGitHub(e.GetIssue())
	if err := x.upsertIssue(ctx, ev.RepositoryID, issue); err != nil {
		return err
	}
	return x.saveUsers(ctx, []*model.User{model.UserFromGitHub(e.GetIssue().GetUser())})
}

func (x *UseCase) handlePushEvent(ctx context.Context, ev *model.WebhookEvent, e *github.PushEvent) error {
	branchName, ok := strings.CutPrefix(e.GetRef(), "refs/heads/")
	if !ok {
		// Tag pushes carry no branch state.
		return nil
	}

	if !e.GetDeleted() {
		branch := &model.Branch{
			Name:      types.BranchName(branchName),
			CommitSHA: types.CommitSHA(e.GetAfter()),
			UpdatedAt: x.now().UTC(),
		}
		if err := x.clients.SyncRepository().SaveBranch(ctx, ev.RepositoryID, branch); err != nil {
			return goerr.Wrap(err, "failed to save branch",
				goerr.V("repoID", ev.RepositoryID),
				goerr.V("branch", branchName),
			)
		}
	}

	for _, hc := range e.Commits {
		commit := &model.Commit{
			SHA:         types.CommitSHA(hc.GetID()),
			Message:     hc.GetMessage(),
			AuthorLogin: hc.GetAuthor().GetLogin(),
			AuthoredAt:  hc.GetTimestamp().Time,
			CommittedAt: hc.GetTimestamp().Time,
		}
		if err := x.clients.SyncRepository().SaveCommit(ctx, ev.RepositoryID, commit); err != nil {
			return goerr.Wrap(err, "failed to save commit",
				goerr.V("repoID", ev.RepositoryID),
				goerr.V("sha", commit.SHA),
			)
		}
	}

	return nil
}

func (x *UseCase) handleCheckRunEvent(ctx context.Context, ev *model.WebhookEvent, e *github.CheckRunEvent) error {
	return x.upsertCheckRun(ctx, ev.RepositoryID, model.CheckRunFromGitHub(e.GetCheckRun()))
}

func (x *UseCase) handleWorkflowRunEvent(ctx context.Context, ev *model.WebhookEvent, e *github.WorkflowRunEvent) error {
	run := model.WorkflowRunFromGitHub(e.GetWorkflowRun())
	if err := x.upsertWorkflowRun(ctx, ev.RepositoryID, run); err != nil {
		return err
	}
	return x.saveUsers(ctx, []*model.User{model.UserFromGitHub(e.GetWorkflowRun().GetActor())})
}

func (x *UseCase) handleWorkflowJobEvent(ctx context.Context, ev *model.WebhookEvent, e *github.WorkflowJobEvent) error {
	return x.upsertWorkflowJob(ctx, ev.RepositoryID, model.WorkflowJobFromGitHub(e.GetWorkflowJob()))
}

func (x *UseCase) handleInstallationEvent(ctx context.Context, e *github.InstallationEvent) error {
	installID := types.GitHubAppInstallID(e.GetInstallation().GetID())

	switch e.GetAction() {
	case "created", "unsuspend":
		return x.connectInstallation(ctx, installID)

	case "deleted", "suspend":
		return x.suspendInstallation(ctx, installID)
	}

	return nil
}

func (x *UseCase) handleInstallationReposEvent(ctx context.Context, e *github.InstallationRepositoriesEvent) error {
	installID := types.GitHubAppInstallID(e.GetInstallation().GetID())

	for _, added := range e.RepositoriesAdded {
		repo := model.RepositoryFromGitHub(added, installID)
		if err := x.ConnectRepository(ctx, repo); err != nil {
			return err
		}
	}

	for _, removed := range e.RepositoriesRemoved {
		if err := x.suspendRepository(ctx, types.GitHubRepoID(removed.GetID())); err != nil {
			return err
		}
	}

	return nil
}

// connectInstallation discovers the installation's repositories via
// the API and connects each one.
func (x *UseCase) connectInstallation(ctx context.Context, installID types.GitHubAppInstallID) error {
	repos, err := x.clients.GitHub().ListInstallationRepos(ctx, installID)
	if err != nil {
		return goerr.Wrap(err, "failed to list installation repositories",
			goerr.V("installID", installID),
		)
	}

	for _, repo := range repos {
		repo.Suspended = false
		if err := x.ConnectRepository(ctx, repo); err != nil {
			return err
		}
	}

	return nil
}

func (x *UseCase) suspendInstallation(ctx context.Context, installID types.GitHubAppInstallID) error {
	repos, err := x.clients.SyncRepository().ListRepositoriesByInstallation(ctx, installID)
	if err != nil {
		return goerr.Wrap(err, "failed to list connected repositories",
			goerr.V("installID", installID),
		)
	}

	for _, repo := range repos {
		repo.Suspended = true
		repo.UpdatedAt = x.now().UTC()
		if err := x.clients.SyncRepository().SaveRepository(ctx, repo); err != nil {
			return goerr.Wrap(err, "failed to suspend repository",
				goerr.V("repoID", repo.ID),
			)
		}
	}

	return nil
}
