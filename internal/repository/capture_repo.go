package repository

import (
	"context"

	"github.com/stickerverse/figmacionvert-v3-sub012/internal/entity"
)

// CaptureRepository defines the interface for durably storing received
// captures on the handoff server.
type CaptureRepository interface {
	// Save stores a received capture. Re-delivery of the same
	// capture_id updates the existing row instead of duplicating it.
	Save(ctx context.Context, capture *entity.StoredCapture) error
	// FindByCaptureID retrieves one capture by its capture identity.
	FindByCaptureID(ctx context.Context, captureID string) (*entity.StoredCapture, error)
	// ListPending retrieves captures the importer has not yet consumed,
	// oldest first.
	ListPending(ctx context.Context, limit int) ([]*entity.StoredCapture, error)
	// MarkImported records that the importer consumed a capture.
	MarkImported(ctx context.Context, captureID string) error
}
