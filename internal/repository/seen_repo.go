package repository

import (
	"context"
	"time"
)

// SeenRepository defines the interface for short-lived receipt
// tracking on the handoff server. It makes ingestion idempotent when
// the agent's at-least-once delivery re-sends a capture.
type SeenRepository interface {
	// MarkSeen records a capture identity with an expiry.
	MarkSeen(ctx context.Context, captureID string, expiry time.Duration) error
	// IsSeen checks whether a capture identity was received recently.
	IsSeen(ctx context.Context, captureID string) (bool, error)
	// Remove forgets a capture identity, used when a stored capture is
	// deleted and should be accepted again.
	Remove(ctx context.Context, captureID string) error
}
