package usecase

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/stickerverse/figmacionvert-v3-sub012/internal/chunk"
	"github.com/stickerverse/figmacionvert-v3-sub012/internal/entity"
	"github.com/stickerverse/figmacionvert-v3-sub012/internal/repository"
	"github.com/stickerverse/figmacionvert-v3-sub012/internal/wire"
	"github.com/stickerverse/figmacionvert-v3-sub012/pkg/metrics"
)

var (
	// ErrMalformedPayload means the capture bytes arrived completely
	// but were not a well-formed payload. Distinct from an incomplete
	// chunk transfer: re-sending the same bytes will not fix it.
	ErrMalformedPayload = errors.New("capture payload is malformed")

	// ErrUnknownSession means a chunk message referenced a capture with
	// no open session.
	ErrUnknownSession = errors.New("no open chunk session for capture")
)

// seenExpiry is how long a received capture identity suppresses
// re-ingestion of the same delivery.
const seenExpiry = 48 * time.Hour

// IngestResult reports the outcome of storing one received capture.
type IngestResult struct {
	CaptureID string
	Duplicate bool
}

// Ingest defines the server-side receiving boundary: direct payload
// posts, the chunked transfer protocol, and the importer polling API.
type Ingest interface {
	HandleDirect(ctx context.Context, body []byte) (IngestResult, error)
	StartSession(captureID string, totalChunks int, totalSize int64) error
	AcceptChunk(captureID string, c entity.Chunk) error
	CompleteSession(ctx context.Context, captureID string, totalChunks int) (IngestResult, error)
	OpenSessions() int

	FindCapture(ctx context.Context, captureID string) (*entity.StoredCapture, error)
	ListPending(ctx context.Context, limit int) ([]*entity.StoredCapture, error)
	MarkImported(ctx context.Context, captureID string) error
}

type ingestUseCase struct {
	captureRepo repository.CaptureRepository
	seenRepo    repository.SeenRepository

	mu            sync.Mutex
	sessions      map[string]*chunk.Session
	maxSessionAge time.Duration
}

// NewIngest creates the server ingest use case. maxSessionAge bounds
// how long a stalled chunk session is kept before eviction; the codec
// itself has no timeout.
func NewIngest(captureRepo repository.CaptureRepository, seenRepo repository.SeenRepository, maxSessionAge time.Duration) Ingest {
	return &ingestUseCase{
		captureRepo:   captureRepo,
		seenRepo:      seenRepo,
		sessions:      map[string]*chunk.Session{},
		maxSessionAge: maxSessionAge,
	}
}

// HandleDirect ingests a capture delivered as a single POST body,
// either raw payload JSON or a compressed envelope.
func (uc *ingestUseCase) HandleDirect(ctx context.Context, body []byte) (IngestResult, error) {
	return uc.store(ctx, body)
}

// StartSession opens the receive side of a chunked transfer. A
// re-sent start message for the same capture replaces the stale
// session: the sender only restarts after its previous attempt failed.
func (uc *ingestUseCase) StartSession(captureID string, totalChunks int, totalSize int64) error {
	session, err := chunk.NewSession(totalChunks, totalSize)
	if err != nil {
		return err
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.evictStaleLocked()
	if _, exists := uc.sessions[captureID]; exists {
		slog.Warn("Replacing existing chunk session", "capture_id", captureID)
	}
	uc.sessions[captureID] = session

	slog.Info("Chunk session opened",
		"capture_id", captureID, "total_chunks", totalChunks, "total_size", totalSize)
	return nil
}

// AcceptChunk routes one data message into its session.
func (uc *ingestUseCase) AcceptChunk(captureID string, c entity.Chunk) error {
	uc.mu.Lock()
	session, ok := uc.sessions[captureID]
	uc.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, captureID)
	}
	return session.Accept(c)
}

// CompleteSession reassembles and stores a chunked capture. The
// session is discarded whatever the outcome; an incomplete transfer
// and a malformed reassembled payload fail with distinct errors.
func (uc *ingestUseCase) CompleteSession(ctx context.Context, captureID string, totalChunks int) (IngestResult, error) {
	uc.mu.Lock()
	session, ok := uc.sessions[captureID]
	delete(uc.sessions, captureID)
	uc.mu.Unlock()
	if !ok {
		return IngestResult{}, fmt.Errorf("%w: %s", ErrUnknownSession, captureID)
	}

	if totalChunks != session.Expected() {
		slog.Warn("Completion declared different chunk count",
			"capture_id", captureID, "declared", totalChunks, "expected", session.Expected())
	}

	joined, err := session.Complete()
	if err != nil {
		metrics.ChunkSessionsTotal.WithLabelValues("incomplete").Inc()
		return IngestResult{}, err
	}

	result, err := uc.store(ctx, []byte(joined))
	if err != nil {
		if errors.Is(err, ErrMalformedPayload) {
			metrics.ChunkSessionsTotal.WithLabelValues("malformed").Inc()
		}
		return result, err
	}
	metrics.ChunkSessionsTotal.WithLabelValues("complete").Inc()
	return result, nil
}

// OpenSessions returns the number of sessions still collecting.
func (uc *ingestUseCase) OpenSessions() int {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.evictStaleLocked()
	return len(uc.sessions)
}

// store normalizes and persists received capture bytes. Re-delivery
// of a recently seen capture identity acknowledges without writing,
// which keeps at-least-once senders from duplicating rows.
func (uc *ingestUseCase) store(ctx context.Context, body []byte) (IngestResult, error) {
	raw, err := wire.Decompress(body)
	if err != nil {
		return IngestResult{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	payload, err := entity.NormalizePayload(raw)
	if err != nil {
		return IngestResult{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	seen, err := uc.seenRepo.IsSeen(ctx, payload.CaptureID)
	if err != nil {
		// Redis trouble must not reject a valid capture; fall through
		// to the store, whose upsert stays idempotent anyway.
		slog.Warn("Seen-store lookup failed, storing regardless",
			"capture_id", payload.CaptureID, "error", err)
	}
	if seen {
		slog.Info("Duplicate capture receipt acknowledged", "capture_id", payload.CaptureID)
		return IngestResult{CaptureID: payload.CaptureID, Duplicate: true}, nil
	}

	canonical, err := json.Marshal(payload)
	if err != nil {
		return IngestResult{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	capture := &entity.StoredCapture{
		ID:         ulid.MustNew(ulid.Now(), rand.Reader).String(),
		CaptureID:  payload.CaptureID,
		URL:        payload.URL,
		Payload:    canonical,
		SizeBytes:  int64(len(canonical)),
		AssetCount: len(payload.Assets),
		ReceivedAt: time.Now(),
	}
	if err := uc.captureRepo.Save(ctx, capture); err != nil {
		return IngestResult{}, fmt.Errorf("storing capture %s: %w", payload.CaptureID, err)
	}

	if err := uc.seenRepo.MarkSeen(ctx, payload.CaptureID, seenExpiry); err != nil {
		// Non-critical: the upsert absorbs a future duplicate.
		slog.Warn("Failed to mark capture as seen", "capture_id", payload.CaptureID, "error", err)
	}

	metrics.CapturesStoredTotal.Inc()
	slog.Info("Capture stored",
		"capture_id", payload.CaptureID, "bytes", capture.SizeBytes, "assets", capture.AssetCount)
	return IngestResult{CaptureID: payload.CaptureID}, nil
}

// evictStaleLocked drops sessions that have been collecting longer
// than the configured bound. Caller holds mu.
func (uc *ingestUseCase) evictStaleLocked() {
	if uc.maxSessionAge <= 0 {
		return
	}
	for id, session := range uc.sessions {
		if session.Age() > uc.maxSessionAge {
			delete(uc.sessions, id)
			metrics.ChunkSessionsTotal.WithLabelValues("evicted").Inc()
			slog.Warn("Evicted stalled chunk session",
				"capture_id", id, "received", session.Received(), "expected", session.Expected())
		}
	}
}

func (uc *ingestUseCase) FindCapture(ctx context.Context, captureID string) (*entity.StoredCapture, error) {
	return uc.captureRepo.FindByCaptureID(ctx, captureID)
}

func (uc *ingestUseCase) ListPending(ctx context.Context, limit int) ([]*entity.StoredCapture, error) {
	return uc.captureRepo.ListPending(ctx, limit)
}

func (uc *ingestUseCase) MarkImported(ctx context.Context, captureID string) error {
	return uc.captureRepo.MarkImported(ctx, captureID)
}
