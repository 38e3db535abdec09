package repository

import (
	"context"
	"errors"

	"github.com/stickerverse/figmacionvert-v3-sub012/internal/entity"
)

var (
	// ErrPayloadTooLarge means the remote endpoint rejected the body
	// size outright (413-class). Backoff alone will not fix it; the
	// caller should surface it, though the queue keeps the job.
	ErrPayloadTooLarge = errors.New("remote endpoint rejected payload as too large")

	// ErrRemoteRejected covers non-413 HTTP rejections from the
	// handoff server.
	ErrRemoteRejected = errors.New("remote endpoint rejected delivery")
)

// UploadRepository defines the contract for transmitting one capture
// to the remote handoff endpoint. Implementations decide between
// direct and chunked transfer based on serialized size.
type UploadRepository interface {
	// Upload serializes and transmits the payload. It returns nil only
	// when the remote endpoint acknowledged receipt.
	Upload(ctx context.Context, payload *entity.CapturedPayload) error
}
