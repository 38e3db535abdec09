package chunk

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stickerverse/figmacionvert-v3-sub012/internal/entity"
)

var (
	// ErrIncompleteTransfer means completion was signalled before every
	// declared chunk arrived. The session's buffer is discarded; no
	// partial payload is ever handed downstream.
	ErrIncompleteTransfer = errors.New("chunk transfer incomplete")

	// ErrChunkOutOfRange means a chunk's index falls outside the
	// declared 0..totalChunks-1 range.
	ErrChunkOutOfRange = errors.New("chunk index out of declared range")

	// ErrSessionClosed means the session already completed or was
	// discarded.
	ErrSessionClosed = errors.New("chunk session is closed")
)

// maxSessionChunks bounds the declared chunk count of one transfer.
// Slot bookkeeping is allocated up front, so an unchecked declaration
// would let a single start message size the allocation. Real transfers
// stay in the tens of chunks; the ceiling is orders of magnitude above
// any payload the hard limit admits.
const maxSessionChunks = 1 << 16

// Session is the receive-side state for one chunked transfer. Chunks
// arrive independently and in any order; completion is only accepted
// once every slot 0..totalChunks-1 is filled. Duplicate delivery of an
// index overwrites the slot without double-counting, which keeps the
// session correct under at-least-once transport retries below it.
//
// Sessions are safe for concurrent use: data messages for one capture
// may arrive on overlapping requests.
//
// The session has no intrinsic timeout; the caller abandons stalled
// sessions.
type Session struct {
	mu        sync.Mutex
	total     int
	totalSize int64
	slots     []string
	filled    []bool
	received  int
	closed    bool
	startedAt time.Time
}

// NewSession opens a session expecting totalChunks chunks summing to
// roughly totalSize bytes. totalSize is declarative only, used for
// diagnostics and buffer hints, never for completeness checks.
func NewSession(totalChunks int, totalSize int64) (*Session, error) {
	if totalChunks <= 0 {
		return nil, fmt.Errorf("invalid chunk count %d", totalChunks)
	}
	if totalChunks > maxSessionChunks {
		return nil, fmt.Errorf("declared chunk count %d exceeds limit %d", totalChunks, maxSessionChunks)
	}
	return &Session{
		total:     totalChunks,
		totalSize: totalSize,
		slots:     make([]string, totalChunks),
		filled:    make([]bool, totalChunks),
		startedAt: time.Now(),
	}, nil
}

// Accept writes one chunk into its slot. Re-delivery of an index is
// idempotent: the slot is overwritten and the received count is not
// incremented again.
func (s *Session) Accept(c entity.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if c.Index < 0 || c.Index >= s.total {
		return fmt.Errorf("%w: index %d, declared %d", ErrChunkOutOfRange, c.Index, s.total)
	}
	if !s.filled[c.Index] {
		s.filled[c.Index] = true
		s.received++
	}
	s.slots[c.Index] = c.Data
	return nil
}

// Received returns how many distinct chunk indexes have arrived.
func (s *Session) Received() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.received
}

// Expected returns the declared chunk count.
func (s *Session) Expected() int {
	return s.total
}

// Age returns how long the session has been collecting.
func (s *Session) Age() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.startedAt)
}

// Complete joins the buffer in index order and closes the session.
// When any slot is still empty it fails with ErrIncompleteTransfer and
// discards the buffer; the caller distinguishes that from a payload
// that arrived fully but does not parse.
func (s *Session) Complete() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrSessionClosed
	}
	s.closed = true
	if s.received < s.total {
		s.slots = nil
		s.filled = nil
		return "", fmt.Errorf("%w: received %d of %d chunks", ErrIncompleteTransfer, s.received, s.total)
	}

	var size int
	for _, part := range s.slots {
		size += len(part)
	}
	buf := make([]byte, 0, size)
	for _, part := range s.slots {
		buf = append(buf, part...)
	}
	s.slots = nil
	s.filled = nil
	return string(buf), nil
}
