// Package queue serializes outbound capture deliveries to the remote
// handoff endpoint: deduplication by capture identity, single-flight
// execution, capped exponential backoff, and a broadcast HandoffState
// snapshot recomputed after every mutation.
package queue

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/stickerverse/figmacionvert-v3-sub012/internal/entity"
	"github.com/stickerverse/figmacionvert-v3-sub012/internal/repository"
	"github.com/stickerverse/figmacionvert-v3-sub012/pkg/metrics"
)

const (
	defaultDedupWindow = 60 * time.Second
	defaultBackoffBase = 2 * time.Second
	defaultBackoffCap  = 30 * time.Second
	defaultSendTimeout = 5 * time.Minute
)

// Options tune a DeliveryQueue. Zero values take the defaults above;
// MaxAttempts zero preserves retry-forever behavior.
type Options struct {
	DedupWindow time.Duration
	BackoffBase time.Duration
	BackoffCap  time.Duration
	SendTimeout time.Duration
	MaxAttempts int
	Now         func() time.Time
}

// EnqueueResult reports whether a payload was accepted and, when it
// was not, why.
type EnqueueResult struct {
	Enqueued bool   `json:"enqueued"`
	JobID    string `json:"job_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// DeliveryQueue holds pending delivery jobs and executes at most one
// at a time. All fields are guarded by mu; the single in-flight
// boolean enforces the one-transmission-at-a-time invariant across
// the timer and HTTP goroutines that drive the loop.
type DeliveryQueue struct {
	uploader repository.UploadRepository
	opts     Options

	mu         sync.Mutex
	jobs       []*entity.PendingJob
	inFlight   bool
	recent     map[string]time.Time
	state      entity.HandoffState
	subs       []chan entity.HandoffState
	retryTimer *time.Timer
	heartbeat  time.Time
	closed     bool
}

// New constructs an owned queue around an uploader. One queue exists
// per pipeline instance; there is no package-level state.
func New(uploader repository.UploadRepository, opts Options) *DeliveryQueue {
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = defaultDedupWindow
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaultBackoffBase
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = defaultBackoffCap
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	q := &DeliveryQueue{
		uploader:  uploader,
		opts:      opts,
		recent:    map[string]time.Time{},
		state:     entity.HandoffState{Status: entity.StatusIdle},
		heartbeat: opts.Now(),
	}
	return q
}

// Enqueue accepts a payload for delivery. Automatic enqueues carrying
// a capture identity seen within the dedup window are always
// suppressed; manual ones are suppressed unless forced. Accepting a
// job immediately kicks the execution loop.
func (q *DeliveryQueue) Enqueue(payload *entity.CapturedPayload, trigger entity.Trigger, force bool) EnqueueResult {
	q.mu.Lock()

	now := q.opts.Now()
	if id := payload.CaptureID; id != "" {
		if seen, ok := q.recent[id]; ok && now.Sub(seen) < q.opts.DedupWindow {
			if trigger == entity.TriggerAuto || !force {
				q.mu.Unlock()
				slog.Info("Suppressed duplicate enqueue",
					"capture_id", id, "trigger", string(trigger), "force", force)
				return EnqueueResult{Reason: "duplicate capture within dedup window"}
			}
		}
		q.recent[id] = now
		q.pruneRecent(now)
	}

	job := &entity.PendingJob{
		ID:         ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		Payload:    payload,
		Trigger:    trigger,
		EnqueuedAt: now,
	}
	q.jobs = append(q.jobs, job)
	q.setState(entity.StatusQueued, trigger, "")
	q.mu.Unlock()

	slog.Info("Capture enqueued for delivery",
		"job_id", job.ID, "capture_id", payload.CaptureID, "trigger", string(trigger))
	go q.ProcessPendingJobs()
	return EnqueueResult{Enqueued: true, JobID: job.ID}
}

// ProcessPendingJobs runs the execution loop once: it picks the first
// ready job in enqueue order and transmits it. Invoked after every
// enqueue, after every completed attempt, and by the retry timer.
func (q *DeliveryQueue) ProcessPendingJobs() {
	q.mu.Lock()
	if q.closed || q.inFlight || len(q.jobs) == 0 {
		q.mu.Unlock()
		return
	}

	now := q.opts.Now()
	job := q.nextReady(now)
	if job == nil {
		// Nothing ready yet; wake when the soonest retry elapses.
		q.scheduleWakeLocked(now)
		q.mu.Unlock()
		return
	}

	q.inFlight = true
	q.setState(entity.StatusSending, job.Trigger, "")
	q.mu.Unlock()

	q.attempt(job)
}

// attempt transmits one job and applies the outcome. It runs outside
// the lock for the duration of the upload.
func (q *DeliveryQueue) attempt(job *entity.PendingJob) {
	ctx, cancel := context.WithTimeout(context.Background(), q.opts.SendTimeout)
	defer cancel()

	start := q.opts.Now()
	err := q.uploader.Upload(ctx, job.Payload)
	metrics.DeliveryDuration.Observe(q.opts.Now().Sub(start).Seconds())

	q.mu.Lock()
	q.inFlight = false
	now := q.opts.Now()
	attemptedAt := now
	q.state.LastAttemptAt = &attemptedAt

	if err != nil {
		q.handleFailureLocked(job, err, now)
	} else {
		q.handleSuccessLocked(job, now)
	}
	q.mu.Unlock()

	go q.ProcessPendingJobs()
}

func (q *DeliveryQueue) handleSuccessLocked(job *entity.PendingJob, now time.Time) {
	metrics.DeliveriesTotal.WithLabelValues("success", "").Inc()
	q.remove(job)
	successAt := now
	q.state.LastSuccessAt = &successAt

	if len(q.jobs) == 0 {
		q.setState(entity.StatusSuccess, job.Trigger, "")
	} else {
		q.setState(entity.StatusQueued, job.Trigger, "")
	}
	slog.Info("Capture delivered",
		"job_id", job.ID, "capture_id", job.Payload.CaptureID, "retries", job.Retries)
}

func (q *DeliveryQueue) handleFailureLocked(job *entity.PendingJob, err error, now time.Time) {
	job.Retries++
	job.NextRetryAt = now.Add(q.backoff(job.Retries))

	errorType := classifyError(err)
	metrics.DeliveriesTotal.WithLabelValues("failure", errorType).Inc()

	// Transient transport trouble is expected and logged quieter than
	// unexpected server-side rejections; both retry identically.
	if errorType == "network" {
		slog.Warn("Delivery failed, will retry",
			"job_id", job.ID, "error", err, "retries", job.Retries, "next_retry_at", job.NextRetryAt)
	} else {
		slog.Error("Delivery failed, will retry",
			"job_id", job.ID, "error", err, "error_type", errorType, "retries", job.Retries, "next_retry_at", job.NextRetryAt)
	}

	if q.opts.MaxAttempts > 0 && job.Retries >= q.opts.MaxAttempts {
		q.remove(job)
		slog.Error("Job evicted after exhausting attempts",
			"job_id", job.ID, "capture_id", job.Payload.CaptureID, "attempts", job.Retries)
		q.setState(entity.StatusError, job.Trigger, "delivery abandoned after "+err.Error())
		return
	}

	q.setState(entity.StatusError, job.Trigger, err.Error())
}

// backoff is capped exponential: base×retries up to the cap.
func (q *DeliveryQueue) backoff(retries int) time.Duration {
	d := time.Duration(retries) * q.opts.BackoffBase
	if d > q.opts.BackoffCap {
		d = q.opts.BackoffCap
	}
	return d
}

// nextReady returns the first job in enqueue order whose retry time
// has elapsed. A retrying job never jumps ahead of an earlier job
// that is itself ready.
func (q *DeliveryQueue) nextReady(now time.Time) *entity.PendingJob {
	for _, job := range q.jobs {
		if job.Ready(now) {
			return job
		}
	}
	return nil
}

// scheduleWakeLocked arms the retry timer for the soonest NextRetryAt
// among pending jobs.
func (q *DeliveryQueue) scheduleWakeLocked(now time.Time) {
	var soonest time.Time
	for _, job := range q.jobs {
		if soonest.IsZero() || job.NextRetryAt.Before(soonest) {
			soonest = job.NextRetryAt
		}
	}
	if soonest.IsZero() {
		return
	}
	delay := soonest.Sub(now)
	if delay < 0 {
		delay = 0
	}
	if q.retryTimer != nil {
		q.retryTimer.Stop()
	}
	q.retryTimer = time.AfterFunc(delay, q.ProcessPendingJobs)
}

func (q *DeliveryQueue) remove(job *entity.PendingJob) {
	for i, j := range q.jobs {
		if j == job {
			q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
			return
		}
	}
}

func (q *DeliveryQueue) pruneRecent(now time.Time) {
	for id, seen := range q.recent {
		if now.Sub(seen) >= q.opts.DedupWindow {
			delete(q.recent, id)
		}
	}
}

// setState recomputes the broadcast snapshot after a mutation. Caller
// holds mu.
func (q *DeliveryQueue) setState(status entity.HandoffStatus, trigger entity.Trigger, errMsg string) {
	q.state.Status = status
	q.state.Trigger = trigger
	q.state.Error = errMsg
	q.state.PendingCount = len(q.jobs)
	q.state.NextRetryAt = nil

	var soonest time.Time
	for _, job := range q.jobs {
		if job.NextRetryAt.IsZero() {
			continue
		}
		if soonest.IsZero() || job.NextRetryAt.Before(soonest) {
			soonest = job.NextRetryAt
		}
	}
	if !soonest.IsZero() {
		at := soonest
		q.state.NextRetryAt = &at
	}

	q.heartbeat = q.opts.Now()
	metrics.PendingJobs.Set(float64(len(q.jobs)))

	snapshot := q.state
	for _, sub := range q.subs {
		select {
		case sub <- snapshot:
		default:
			// A slow observer keeps its stale snapshot; the next
			// transition will try again.
		}
	}
}

// Subscribe returns a channel receiving every state transition. The
// channel is buffered; observers that fall behind miss intermediate
// snapshots, never the queue's progress.
func (q *DeliveryQueue) Subscribe() <-chan entity.HandoffState {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch := make(chan entity.HandoffState, 16)
	q.subs = append(q.subs, ch)
	return ch
}

// Snapshot returns the current HandoffState.
func (q *DeliveryQueue) Snapshot() entity.HandoffState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Depth returns the number of pending jobs.
func (q *DeliveryQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Heartbeat returns when the queue last changed state.
func (q *DeliveryQueue) Heartbeat() time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heartbeat
}

// Close stops the retry timer and detaches subscribers. Pending jobs
// are dropped; Close is for process shutdown only.
func (q *DeliveryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	if q.retryTimer != nil {
		q.retryTimer.Stop()
	}
	for _, sub := range q.subs {
		close(sub)
	}
	q.subs = nil
}

// classifyError buckets a delivery error for metrics and log severity.
func classifyError(err error) string {
	switch {
	case errors.Is(err, repository.ErrPayloadTooLarge):
		return "payload_too_large"
	case errors.Is(err, repository.ErrRemoteRejected):
		return "server"
	case errors.Is(err, context.DeadlineExceeded):
		return "network"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return "network"
	}
	return "unknown"
}
