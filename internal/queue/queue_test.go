package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stickerverse/figmacionvert-v3-sub012/internal/entity"
	"github.com/stickerverse/figmacionvert-v3-sub012/internal/repository"
	"github.com/stickerverse/figmacionvert-v3-sub012/pkg/metrics"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

type attemptResult struct {
	err   error
	delay time.Duration
}

// fakeUploader plays back scripted per-capture results and records
// the order captures were attempted in.
type fakeUploader struct {
	mu      sync.Mutex
	scripts map[string][]attemptResult
	calls   []string
	active  int32
	maxSeen int32
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{scripts: map[string][]attemptResult{}}
}

func (f *fakeUploader) script(captureID string, results ...attemptResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[captureID] = append(f.scripts[captureID], results...)
}

func (f *fakeUploader) Upload(ctx context.Context, p *entity.CapturedPayload) error {
	n := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)
	for {
		seen := atomic.LoadInt32(&f.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&f.maxSeen, seen, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, p.CaptureID)
	var result attemptResult
	if s := f.scripts[p.CaptureID]; len(s) > 0 {
		result = s[0]
		f.scripts[p.CaptureID] = s[1:]
	}
	f.mu.Unlock()

	if result.delay > 0 {
		time.Sleep(result.delay)
	}
	return result.err
}

func (f *fakeUploader) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func payloadWithID(id string) *entity.CapturedPayload {
	return &entity.CapturedPayload{
		CaptureID: id,
		Capture:   json.RawMessage(`{"type":"FRAME"}`),
		Assets:    map[string]*entity.AssetRecord{},
	}
}

func fastOpts() Options {
	return Options{
		BackoffBase: 40 * time.Millisecond,
		BackoffCap:  120 * time.Millisecond,
		SendTimeout: time.Second,
	}
}

func drained(q *DeliveryQueue) func() bool {
	return func() bool { return q.Depth() == 0 }
}

func TestEnqueue_AutoDedupWithinWindow(t *testing.T) {
	up := newFakeUploader()
	q := New(up, fastOpts())
	defer q.Close()

	first := q.Enqueue(payloadWithID("cap-1"), entity.TriggerAuto, false)
	require.True(t, first.Enqueued)

	second := q.Enqueue(payloadWithID("cap-1"), entity.TriggerAuto, false)
	require.False(t, second.Enqueued)
	require.NotEmpty(t, second.Reason)

	// Force does not help an automatic enqueue.
	third := q.Enqueue(payloadWithID("cap-1"), entity.TriggerAuto, true)
	require.False(t, third.Enqueued)

	require.Eventually(t, drained(q), 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"cap-1"}, up.callLog())
}

func TestEnqueue_ManualForceBypassesDedup(t *testing.T) {
	up := newFakeUploader()
	q := New(up, fastOpts())
	defer q.Close()

	require.True(t, q.Enqueue(payloadWithID("cap-1"), entity.TriggerAuto, false).Enqueued)

	manual := q.Enqueue(payloadWithID("cap-1"), entity.TriggerManual, false)
	require.False(t, manual.Enqueued)

	forced := q.Enqueue(payloadWithID("cap-1"), entity.TriggerManual, true)
	require.True(t, forced.Enqueued)

	require.Eventually(t, drained(q), 2*time.Second, 10*time.Millisecond)
}

func TestEnqueue_ExpiredWindowAcceptsAgain(t *testing.T) {
	up := newFakeUploader()
	opts := fastOpts()
	opts.DedupWindow = 30 * time.Millisecond
	q := New(up, opts)
	defer q.Close()

	require.True(t, q.Enqueue(payloadWithID("cap-1"), entity.TriggerAuto, false).Enqueued)
	time.Sleep(50 * time.Millisecond)
	require.True(t, q.Enqueue(payloadWithID("cap-1"), entity.TriggerAuto, false).Enqueued)
}

func TestBackoff_MonotonicAndCapped(t *testing.T) {
	q := New(newFakeUploader(), Options{})
	defer q.Close()

	var prev time.Duration
	for retries := 1; retries <= 30; retries++ {
		d := q.backoff(retries)
		require.GreaterOrEqual(t, d, prev)
		require.LessOrEqual(t, d, 30*time.Second)
		prev = d
	}
	require.Equal(t, 2*time.Second, q.backoff(1))
	require.Equal(t, 30*time.Second, q.backoff(15))
	require.Equal(t, 30*time.Second, q.backoff(100))
}

func TestProcess_RetryDoesNotStarveLaterJobs(t *testing.T) {
	up := newFakeUploader()
	transient := errors.New("connection refused")
	// A fails twice before succeeding; B is slow enough that A's first
	// backoff elapses while B transmits.
	up.script("cap-a", attemptResult{err: transient}, attemptResult{err: transient}, attemptResult{})
	up.script("cap-b", attemptResult{delay: 100 * time.Millisecond})
	up.script("cap-c", attemptResult{})

	q := New(up, fastOpts())
	defer q.Close()

	require.True(t, q.Enqueue(payloadWithID("cap-a"), entity.TriggerAuto, false).Enqueued)
	require.True(t, q.Enqueue(payloadWithID("cap-b"), entity.TriggerAuto, false).Enqueued)
	require.True(t, q.Enqueue(payloadWithID("cap-c"), entity.TriggerAuto, false).Enqueued)

	require.Eventually(t, drained(q), 5*time.Second, 10*time.Millisecond)

	calls := up.callLog()
	require.GreaterOrEqual(t, len(calls), 4)
	require.Equal(t, []string{"cap-a", "cap-b", "cap-a", "cap-c"}, calls[:4])
	require.Equal(t, int32(1), atomic.LoadInt32(&up.maxSeen), "only one job may be in flight")
}

func TestProcess_SingleFlight(t *testing.T) {
	up := newFakeUploader()
	for i := 0; i < 5; i++ {
		up.script(fmt.Sprintf("cap-%d", i), attemptResult{delay: 20 * time.Millisecond})
	}

	q := New(up, fastOpts())
	defer q.Close()

	for i := 0; i < 5; i++ {
		require.True(t, q.Enqueue(payloadWithID(fmt.Sprintf("cap-%d", i)), entity.TriggerAuto, false).Enqueued)
	}

	require.Eventually(t, drained(q), 5*time.Second, 10*time.Millisecond)
	require.Equal(t, int32(1), atomic.LoadInt32(&up.maxSeen))
	require.Len(t, up.callLog(), 5)
}

func TestProcess_EvictsAfterMaxAttempts(t *testing.T) {
	up := newFakeUploader()
	up.script("cap-doomed",
		attemptResult{err: errors.New("boom")},
		attemptResult{err: errors.New("boom")},
		attemptResult{err: errors.New("boom")})

	opts := fastOpts()
	opts.MaxAttempts = 2
	q := New(up, opts)
	defer q.Close()

	require.True(t, q.Enqueue(payloadWithID("cap-doomed"), entity.TriggerAuto, false).Enqueued)
	require.Eventually(t, drained(q), 5*time.Second, 10*time.Millisecond)

	require.Len(t, up.callLog(), 2)
	state := q.Snapshot()
	require.Equal(t, entity.StatusError, state.Status)
	require.Contains(t, state.Error, "abandoned")
}

func TestProcess_FailedJobStaysQueuedWithoutBound(t *testing.T) {
	up := newFakeUploader()
	up.script("cap-retry",
		attemptResult{err: errors.New("boom")},
		attemptResult{err: errors.New("boom")},
		attemptResult{})

	q := New(up, fastOpts())
	defer q.Close()

	require.True(t, q.Enqueue(payloadWithID("cap-retry"), entity.TriggerAuto, false).Enqueued)
	require.Eventually(t, drained(q), 5*time.Second, 10*time.Millisecond)

	// Two failures then success: the job was never dropped.
	require.Equal(t, []string{"cap-retry", "cap-retry", "cap-retry"}, up.callLog())
	require.NotNil(t, q.Snapshot().LastSuccessAt)
}

func TestSubscribe_BroadcastsTransitions(t *testing.T) {
	up := newFakeUploader()
	q := New(up, fastOpts())
	defer q.Close()

	states := q.Subscribe()
	require.True(t, q.Enqueue(payloadWithID("cap-1"), entity.TriggerManual, false).Enqueued)
	require.Eventually(t, drained(q), 2*time.Second, 10*time.Millisecond)

	seen := map[entity.HandoffStatus]bool{}
	for {
		select {
		case s := <-states:
			seen[s.Status] = true
			if s.Status == entity.StatusSuccess {
				require.Zero(t, s.PendingCount)
				require.Equal(t, entity.TriggerManual, s.Trigger)
				require.True(t, seen[entity.StatusQueued])
				require.True(t, seen[entity.StatusSending])
				return
			}
		case <-time.After(time.Second):
			t.Fatal("never observed success state")
		}
	}
}

func TestSnapshot_ErrorStateCarriesNextRetry(t *testing.T) {
	up := newFakeUploader()
	up.script("cap-1", attemptResult{err: errors.New("boom")}, attemptResult{err: errors.New("boom")})

	opts := fastOpts()
	opts.BackoffBase = 10 * time.Second // park the job after failure
	q := New(up, opts)
	defer q.Close()

	require.True(t, q.Enqueue(payloadWithID("cap-1"), entity.TriggerAuto, false).Enqueued)
	require.Eventually(t, func() bool {
		return q.Snapshot().Status == entity.StatusError
	}, 2*time.Second, 10*time.Millisecond)

	state := q.Snapshot()
	require.Equal(t, 1, state.PendingCount)
	require.NotNil(t, state.NextRetryAt)
	require.NotEmpty(t, state.Error)
}

func TestClassifyError(t *testing.T) {
	require.Equal(t, "payload_too_large", classifyError(fmt.Errorf("wrap: %w", repository.ErrPayloadTooLarge)))
	require.Equal(t, "server", classifyError(fmt.Errorf("wrap: %w", repository.ErrRemoteRejected)))
	require.Equal(t, "network", classifyError(context.DeadlineExceeded))
	require.Equal(t, "unknown", classifyError(errors.New("mystery")))
}
