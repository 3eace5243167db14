package types

import "github.com/google/uuid"

type RequestID string

func NewRequestID() RequestID {
	return RequestID(uuid.NewString())
}

type SyncJobID string

func NewSyncJobID() SyncJobID {
	return SyncJobID(uuid.NewString())
}

func (x SyncJobID) String() string {
	return string(x)
}
