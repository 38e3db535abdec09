package entity

import "time"

// HandoffStatus is the queue's externally visible condition.
type HandoffStatus string

const (
	StatusIdle    HandoffStatus = "idle"
	StatusQueued  HandoffStatus = "queued"
	StatusSending HandoffStatus = "sending"
	StatusSuccess HandoffStatus = "success"
	StatusError   HandoffStatus = "error"
)

// HandoffState is the single process-wide snapshot of the delivery
// queue, recomputed after every queue mutation and broadcast to
// observers. It has no storage beyond process memory.
type HandoffState struct {
	Status        HandoffStatus `json:"status"`
	Trigger       Trigger       `json:"trigger,omitempty"`
	LastAttemptAt *time.Time    `json:"last_attempt_at,omitempty"`
	LastSuccessAt *time.Time    `json:"last_success_at,omitempty"`
	Error         string        `json:"error,omitempty"`
	PendingCount  int           `json:"pending_count"`
	NextRetryAt   *time.Time    `json:"next_retry_at,omitempty"`
}
