package model

import (
	"time"

	"github.com/m-mizutani/hubsync/pkg/domain/types"
)

// SyncStatus is the operational snapshot exposed for triage. Diagnostic
// messages are truncated; raw upstream bodies never appear here.
type SyncStatus struct {
	GeneratedAt time.Time            `json:"generated_at"`
	Events      map[ProcessState]int `json:"events"`
	Jobs        []*SyncJobStatus     `json:"jobs"`
	DeadLetters []*DeadLetterEvent   `json:"dead_letters"`
}

type SyncJobStatus struct {
	ID           types.SyncJobID    `json:"id"`
	RepositoryID types.GitHubRepoID `json:"repository_id"`
	Owner        string             `json:"owner"`
	RepoName     string             `json:"repo_name"`
	State        SyncJobState       `json:"state"`
	CurrentStep  SyncStep           `json:"current_step,omitempty"`
	ItemsFetched int                `json:"items_fetched"`
	AttemptCount int                `json:"attempt_count"`
	LastError    string             `json:"last_error,omitempty"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

type DeadLetterEvent struct {
	DeliveryID   types.DeliveryID `json:"delivery_id"`
	Event        string           `json:"event"`
	Action       string           `json:"action,omitempty"`
	AttemptCount int              `json:"attempt_count"`
	LastError    string           `json:"last_error,omitempty"`
	ReceivedAt   time.Time        `json:"received_at"`
}

// TruncateError trims a diagnostic message for user-facing surfaces.
func TruncateError(msg string, limit int) string {
	if len(msg) <= limit {
		return msg
	}
	return msg[:limit] + "..."
}
