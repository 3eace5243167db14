package model

import (
	"encoding/json"
	"time"

	"github.com/m-mizutani/hubsync/pkg/domain/types"
)

type ProcessState string

const (
	ProcessStatePending    ProcessState = "pending"
	ProcessStateRetry      ProcessState = "retry"
	ProcessStateProcessed  ProcessState = "processed"
	ProcessStateDeadLetter ProcessState = "dead_letter"
)

// IsTerminal returns true for states the processor never leaves.
func (x ProcessState) IsTerminal() bool {
	return x == ProcessStateProcessed || x == ProcessStateDeadLetter
}

// WebhookEvent is one received webhook delivery. The delivery ID is the
// dedup key: exactly one row exists per delivery ID, ever. The receiver
// creates the row, the processor mutates it, nobody deletes it.
type WebhookEvent struct {
	DeliveryID     types.DeliveryID
	Event          string
	Action         string
	InstallationID types.GitHubAppInstallID
	RepositoryID   types.GitHubRepoID
	SignatureValid bool
	Payload        json.RawMessage

	State         ProcessState
	AttemptCount  int
	NextAttemptAt time.Time
	LastError     string
	ReceivedAt    time.Time
	ProcessedAt   time.Time
}

func (x *WebhookEvent) Validate() error {
	if x.DeliveryID == "" {
		return types.ErrInvalidGitHubData
	}
	if x.Event == "" {
		return types.ErrInvalidGitHubData
	}
	return nil
}
