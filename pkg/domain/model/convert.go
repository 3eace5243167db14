package model

import (
	"github.com/google/go-github/v53/github"
	"github.com/m-mizutani/hubsync/pkg/domain/types"
)

// Converters from go-github types to normalized records. Only shallow
// fields survive; the raw API objects are never persisted.

func RepositoryFromGitHub(repo *github.Repository, installID types.GitHubAppInstallID) *Repository {
	return &Repository{
		ID:             types.GitHubRepoID(repo.GetID()),
		Owner:          repo.GetOwner().GetLogin(),
		Name:           repo.GetName(),
		FullName:       repo.GetFullName(),
		DefaultBranch:  repo.GetDefaultBranch(),
		Private:        repo.GetPrivate(),
		Archived:       repo.GetArchived(),
		InstallationID: installID,
	}
}

func BranchFromGitHub(branch *github.Branch) *Branch {
	return &Branch{
		Name:      types.BranchName(branch.GetName()),
		CommitSHA: types.CommitSHA(branch.GetCommit().GetSHA()),
		Protected: branch.GetProtected(),
	}
}

func UserFromGitHub(user *github.User) *User {
	if user == nil || user.GetID() == 0 {
		return nil
	}
	return &User{
		ID:        types.GitHubUserID(user.GetID()),
		Login:     user.GetLogin(),
		AvatarURL: user.GetAvatarURL(),
		Type:      user.GetType(),
	}
}

func PullRequestFromGitHub(pr *github.PullRequest) *PullRequest {
	return &PullRequest{
		ID:              pr.GetID(),
		Number:          pr.GetNumber(),
		Title:           pr.GetTitle(),
		State:           pr.GetState(),
		Draft:           pr.GetDraft(),
		Merged:          pr.GetMerged(),
		AuthorID:        types.GitHubUserID(pr.GetUser().GetID()),
		AuthorLogin:     pr.GetUser().GetLogin(),
		HeadRef:         pr.GetHead().GetRef(),
		HeadSHA:         types.CommitSHA(pr.GetHead().GetSHA()),
		BaseRef:         pr.GetBase().GetRef(),
		Additions:       pr.GetAdditions(),
		Deletions:       pr.GetDeletions(),
		ChangedFiles:    pr.GetChangedFiles(),
		GitHubCreatedAt: pr.GetCreatedAt().Time,
		GitHubUpdatedAt: pr.GetUpdatedAt().Time,
		ClosedAt:        pr.GetClosedAt().Time,
		MergedAt:        pr.GetMergedAt().Time,
	}
}

func IssueFromGitHub(issue *github.Issue) *Issue {
	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		labels = append(labels, l.GetName())
	}

	return &Issue{
		ID:              issue.GetID(),
		Number:          issue.GetNumber(),
		Title:           issue.GetTitle(),
		State:           issue.GetState(),
		AuthorID:        types.GitHubUserID(issue.GetUser().GetID()),
		AuthorLogin:     issue.GetUser().GetLogin(),
		Comments:        issue.GetComments(),
		Labels:          labels,
		GitHubCreatedAt: issue.GetCreatedAt().Time,
		GitHubUpdatedAt: issue.GetUpdatedAt().Time,
		ClosedAt:        issue.GetClosedAt().Time,
	}
}

func CommitFromGitHub(commit *github.RepositoryCommit) *Commit {
	return &Commit{
		SHA:         types.CommitSHA(commit.GetSHA()),
		Message:     commit.GetCommit().GetMessage(),
		AuthorID:    types.GitHubUserID(commit.GetAuthor().GetID()),
		AuthorLogin: commit.GetAuthor().GetLogin(),
		AuthoredAt:  commit.GetCommit().GetAuthor().GetDate().Time,
		CommittedAt: commit.GetCommit().GetCommitter().GetDate().Time,
	}
}

func CheckRunFromGitHub(run *github.CheckRun) *CheckRun {
	updatedAt := run.GetCompletedAt().Time
	if updatedAt.IsZero() {
		updatedAt = run.GetStartedAt().Time
	}

	return &CheckRun{
		ID:              run.GetID(),
		Name:            run.GetName(),
		HeadSHA:         types.CommitSHA(run.GetHeadSHA()),
		Status:          run.GetStatus(),
		Conclusion:      run.GetConclusion(),
		StartedAt:       run.GetStartedAt().Time,
		CompletedAt:     run.GetCompletedAt().Time,
		GitHubUpdatedAt: updatedAt,
	}
}

func WorkflowRunFromGitHub(run *github.WorkflowRun) *WorkflowRun {
	return &WorkflowRun{
		ID:              run.GetID(),
		Name:            run.GetName(),
		WorkflowID:      run.GetWorkflowID(),
		RunNumber:       run.GetRunNumber(),
		Event:           run.GetEvent(),
		Status:          run.GetStatus(),
		Conclusion:      run.GetConclusion(),
		HeadBranch:      run.GetHeadBranch(),
		HeadSHA:         types.CommitSHA(run.GetHeadSHA()),
		ActorID:         types.GitHubUserID(run.GetActor().GetID()),
		ActorLogin:      run.GetActor().GetLogin(),
		GitHubCreatedAt: run.GetCreatedAt().Time,
		GitHubUpdatedAt: run.GetUpdatedAt().Time,
	}
}

func WorkflowJobFromGitHub(job *github.WorkflowJob) *WorkflowJob {
	updatedAt := job.GetCompletedAt().Time
	if updatedAt.IsZero() {
		updatedAt = job.GetStartedAt().Time
	}

	return &WorkflowJob{
		ID:              job.GetID(),
		RunID:           job.GetRunID(),
		Name:            job.GetName(),
		Status:          job.GetStatus(),
		Conclusion:      job.GetConclusion(),
		StartedAt:       job.GetStartedAt().Time,
		CompletedAt:     job.GetCompletedAt().Time,
		GitHubUpdatedAt: updatedAt,
	}
}

func PullRequestFileFromGitHub(file *github.CommitFile) *PullRequestFile {
	return &PullRequestFile{
		Filename:  file.GetFilename(),
		Status:    file.GetStatus(),
		Additions: file.GetAdditions(),
		Deletions: file.GetDeletions(),
		Patch:     file.GetPatch(),
	}
}
