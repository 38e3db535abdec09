package usecase

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/stickerverse/figmacionvert-v3-sub012/internal/entity"
	"github.com/stickerverse/figmacionvert-v3-sub012/internal/optimizer"
	"github.com/stickerverse/figmacionvert-v3-sub012/internal/queue"
	"github.com/stickerverse/figmacionvert-v3-sub012/internal/sizing"
	"github.com/stickerverse/figmacionvert-v3-sub012/pkg/utils"
)

// Pipeline defines the agent-side capture handoff: accept whatever the
// extractor produced, normalize it once, budget its assets, and hand
// it to the delivery queue.
type Pipeline interface {
	HandleCapture(raw []byte, trigger entity.Trigger, force bool) (queue.EnqueueResult, *entity.OptimizationReport, error)
	State() entity.HandoffState
	QueueDepth() int
	Heartbeat() time.Time
}

type pipelineUseCase struct {
	optimizer *optimizer.Optimizer
	queue     *queue.DeliveryQueue
}

// NewPipeline creates the agent pipeline use case.
func NewPipeline(opt *optimizer.Optimizer, q *queue.DeliveryQueue) Pipeline {
	return &pipelineUseCase{optimizer: opt, queue: q}
}

// HandleCapture ingests one raw capture body. Normalization happens
// exactly here; everything downstream sees the canonical shape.
func (uc *pipelineUseCase) HandleCapture(raw []byte, trigger entity.Trigger, force bool) (queue.EnqueueResult, *entity.OptimizationReport, error) {
	payload, err := entity.NormalizePayload(raw)
	if err != nil {
		return queue.EnqueueResult{}, nil, fmt.Errorf("normalizing capture: %w", err)
	}

	// Extractors that predate capture identities send none; derive a
	// stable one from the structural tree so dedup still works.
	if payload.CaptureID == "" {
		payload.CaptureID = utils.HashContent(payload.Capture)
	}

	sizing.ClassifyAll(payload)
	report := uc.optimizer.Optimize(payload)

	slog.Info("Capture ingested",
		"capture_id", payload.CaptureID,
		"url", payload.URL,
		"assets", len(payload.Assets),
		"size_mb", report.OptimizedSizeMB,
		"optimized", report.Applied)

	result := uc.queue.Enqueue(payload, trigger, force)
	return result, report, nil
}

func (uc *pipelineUseCase) State() entity.HandoffState {
	return uc.queue.Snapshot()
}

func (uc *pipelineUseCase) QueueDepth() int {
	return uc.queue.Depth()
}

func (uc *pipelineUseCase) Heartbeat() time.Time {
	return uc.queue.Heartbeat()
}
