package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/stickerverse/figmacionvert-v3-sub012/internal/delivery/http/response"
	"github.com/stickerverse/figmacionvert-v3-sub012/internal/entity"
	"github.com/stickerverse/figmacionvert-v3-sub012/internal/usecase"
)

// maxIngestBody caps what the local extractor may hand over in one
// request. Captures beyond this are malformed, not merely large.
const maxIngestBody = 1 << 30

// AgentHandler serves the capture agent's local API: payload ingest
// from the extractor, plus status and health polls.
type AgentHandler struct {
	pipeline usecase.Pipeline
}

func NewAgentHandler(pipeline usecase.Pipeline) *AgentHandler {
	return &AgentHandler{pipeline: pipeline}
}

// HandleSubmitCapture accepts a raw capture body. The trigger defaults
// to auto; the extractor's UI resend path sends trigger=manual and may
// add force=true to punch through the dedup window.
func (h *AgentHandler) HandleSubmitCapture(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBody))
	if err != nil {
		writeJSONError(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	trigger := entity.TriggerAuto
	if r.URL.Query().Get("trigger") == string(entity.TriggerManual) {
		trigger = entity.TriggerManual
	}
	force := r.URL.Query().Get("force") == "true"

	result, report, err := h.pipeline.HandleCapture(body, trigger, force)
	if err != nil {
		slog.Error("Failed to ingest capture", "error", err)
		writeJSONError(w, "Invalid capture payload", http.StatusBadRequest)
		return
	}

	if !result.Enqueued {
		writeJSON(w, http.StatusConflict, response.EnqueueResponse{
			Status:  "suppressed",
			Message: result.Reason,
		})
		return
	}

	writeJSON(w, http.StatusAccepted, response.EnqueueResponse{
		Status:  "queued",
		Message: "capture queued for delivery",
		JobID:   result.JobID,
		Report:  report,
	})
}

// HandleStatus returns the queue's current HandoffState.
func (h *AgentHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pipeline.State())
}

// HandleHealthCheck reports queue depth and heartbeat age.
func (h *AgentHandler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, response.HealthResponse{
		Status:              "ok",
		PendingJobs:         h.pipeline.QueueDepth(),
		HeartbeatAgeSeconds: time.Since(h.pipeline.Heartbeat()).Seconds(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to write JSON response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
