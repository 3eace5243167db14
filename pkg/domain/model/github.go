package model

import (
	"time"

	"github.com/m-mizutani/hubsync/pkg/domain/types"
)

// Repository is a mirrored GitHub repository.
type Repository struct {
	ID             types.GitHubRepoID
	Owner          string
	Name           string
	FullName       string
	DefaultBranch  string
	Private        bool
	Archived       bool
	Suspended      bool
	InstallationID types.GitHubAppInstallID
	ConnectedAt    time.Time
	UpdatedAt      time.Time
}

// RepoRef identifies the repository an outbound API call targets and
// which credential sources may serve it.
type RepoRef struct {
	InstallationID types.GitHubAppInstallID
	RepositoryID   types.GitHubRepoID
	Owner          string
	Name           string
	UserID         types.GitHubUserID
}

// Branch carries no ordering-sensitive state, so writes always take
// the latest value.
type Branch struct {
	Name      types.BranchName
	CommitSHA types.CommitSHA
	Protected bool
	UpdatedAt time.Time
}

type User struct {
	ID        types.GitHubUserID
	Login     string
	AvatarURL string
	Type      string
	UpdatedAt time.Time
}

type PullRequest struct {
	ID              int64
	Number          int
	Title           string
	State           string
	Draft           bool
	Merged          bool
	AuthorID        types.GitHubUserID
	AuthorLogin     string
	HeadRef         string
	HeadSHA         types.CommitSHA
	BaseRef         string
	Additions       int
	Deletions       int
	ChangedFiles    int
	GitHubCreatedAt time.Time
	GitHubUpdatedAt time.Time
	ClosedAt        time.Time
	MergedAt        time.Time
}

type Issue struct {
	ID              int64
	Number          int
	Title           string
	State           string
	AuthorID        types.GitHubUserID
	AuthorLogin     string
	Comments        int
	Labels          []string
	GitHubCreatedAt time.Time
	GitHubUpdatedAt time.Time
	ClosedAt        time.Time
}

// Commit is keyed by SHA and immutable upstream, so writes always take
// the latest value.
type Commit struct {
	SHA         types.CommitSHA
	Message     string
	AuthorID    types.GitHubUserID
	AuthorLogin string
	AuthoredAt  time.Time
	CommittedAt time.Time
}

type CheckRun struct {
	ID              int64
	Name            string
	HeadSHA         types.CommitSHA
	Status          string
	Conclusion      string
	StartedAt       time.Time
	CompletedAt     time.Time
	GitHubUpdatedAt time.Time
}

type WorkflowRun struct {
	ID              int64
	Name            string
	WorkflowID      int64
	RunNumber       int
	Event           string
	Status          string
	Conclusion      string
	HeadBranch      string
	HeadSHA         types.CommitSHA
	ActorID         types.GitHubUserID
	ActorLogin      string
	GitHubCreatedAt time.Time
	GitHubUpdatedAt time.Time
}

type WorkflowJob struct {
	ID              int64
	RunID           int64
	Name            string
	Status          string
	Conclusion      string
	StartedAt       time.Time
	CompletedAt     time.Time
	GitHubUpdatedAt time.Time
}

// PullRequestFile is one file of a PR diff, cached per head SHA so a
// force-push invalidates the old set naturally.
type PullRequestFile struct {
	Filename  string
	Status    string
	Additions int
	Deletions int
	Patch     string
}
