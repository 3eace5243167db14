package model

import (
	"fmt"
	"time"

	"github.com/m-mizutani/hubsync/pkg/domain/types"
)

type SyncJobState string

const (
	SyncJobStatePending SyncJobState = "pending"
	SyncJobStateRunning SyncJobState = "running"
	SyncJobStateRetry   SyncJobState = "retry"
	SyncJobStateDone    SyncJobState = "done"
	SyncJobStateFailed  SyncJobState = "failed"
)

func (x SyncJobState) IsTerminal() bool {
	return x == SyncJobStateDone || x == SyncJobStateFailed
}

type SyncStep string

const (
	SyncStepBranches     SyncStep = "branches"
	SyncStepPullRequests SyncStep = "pull_requests"
	SyncStepIssues       SyncStep = "issues"
	SyncStepCommits      SyncStep = "commits"
	SyncStepCheckRuns    SyncStep = "check_runs"
	SyncStepWorkflowRuns SyncStep = "workflow_runs"
	SyncStepFileDiffs    SyncStep = "file_diffs"
)

// BootstrapSteps is the ordered step sequence of a bootstrap job.
var BootstrapSteps = []SyncStep{
	SyncStepBranches,
	SyncStepPullRequests,
	SyncStepIssues,
	SyncStepCommits,
	SyncStepCheckRuns,
	SyncStepWorkflowRuns,
	SyncStepFileDiffs,
}

type SyncJobType string

const (
	SyncJobTypeBootstrap SyncJobType = "bootstrap"
)

// SyncJob is the durable record of one backfill workflow. The step
// journal holds only the cursor and counters, never payloads, so a
// restarted orchestrator resumes from the last completed chunk.
type SyncJob struct {
	ID      types.SyncJobID
	Type    SyncJobType
	LockKey string

	InstallationID types.GitHubAppInstallID
	RepositoryID   types.GitHubRepoID
	Owner          string
	RepoName       string

	State          SyncJobState
	CurrentStep    SyncStep
	CompletedSteps []SyncStep
	PageCursor     string
	ItemsFetched   int

	AttemptCount int
	NextRunAt    time.Time
	LastError    string

	CreatedAt  time.Time
	UpdatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// SyncLockKey builds the advisory lock key. At most one non-terminal
// job may hold a lock key at a time.
func SyncLockKey(installID types.GitHubAppInstallID, repoID types.GitHubRepoID, jobType SyncJobType) string {
	return fmt.Sprintf("%d:%d:%s", installID, repoID, jobType)
}

// StepCompleted reports whether the journal already records the step.
func (x *SyncJob) StepCompleted(step SyncStep) bool {
	for _, s := range x.CompletedSteps {
		if s == step {
			return true
		}
	}
	return false
}

// NextStep returns the first bootstrap step not yet completed, or ""
// when the sequence is exhausted.
func (x *SyncJob) NextStep() SyncStep {
	for _, s := range BootstrapSteps {
		if !x.StepCompleted(s) {
			return s
		}
	}
	return ""
}

func (x *SyncJob) Validate() error {
	if x.ID == "" || x.LockKey == "" {
		return types.ErrInvalidOption
	}
	if x.InstallationID == 0 || x.RepositoryID == 0 {
		return types.ErrInvalidOption
	}
	if x.Owner == "" || x.RepoName == "" {
		return types.ErrInvalidOption
	}
	return nil
}
