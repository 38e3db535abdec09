package entity

import "time"

// Trigger records what initiated a delivery: the extractor's own
// post-capture signal or an explicit user action.
type Trigger string

const (
	TriggerAuto   Trigger = "auto"
	TriggerManual Trigger = "manual"
)

// PendingJob is one queued delivery. Only the delivery queue mutates
// it once enqueued; callers must treat it as read-only.
type PendingJob struct {
	ID         string
	Payload    *CapturedPayload
	Trigger    Trigger
	EnqueuedAt time.Time

	Retries     int
	NextRetryAt time.Time
}

// Ready reports whether the job may be attempted at the given time.
// A job that has never failed has a zero NextRetryAt and is always
// ready.
func (j *PendingJob) Ready(now time.Time) bool {
	return j.NextRetryAt.IsZero() || !now.Before(j.NextRetryAt)
}
