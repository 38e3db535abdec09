package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/stickerverse/figmacionvert-v3-sub012/internal/chunk"
	"github.com/stickerverse/figmacionvert-v3-sub012/internal/delivery/http/request"
	"github.com/stickerverse/figmacionvert-v3-sub012/internal/delivery/http/response"
	"github.com/stickerverse/figmacionvert-v3-sub012/internal/entity"
	"github.com/stickerverse/figmacionvert-v3-sub012/internal/usecase"
)

// ServerHandler serves the handoff server's API: direct and chunked
// capture ingestion plus the importer's polling endpoints.
type ServerHandler struct {
	ingest usecase.Ingest

	// directLimit is the largest single POST body accepted; larger
	// deliveries must use the chunked protocol and get a 413.
	directLimit int64
	startedAt   time.Time
}

func NewServerHandler(ingest usecase.Ingest, directLimit int64) *ServerHandler {
	return &ServerHandler{ingest: ingest, directLimit: directLimit, startedAt: time.Now()}
}

// HandleReceiveCapture ingests a capture delivered in one POST.
func (h *ServerHandler) HandleReceiveCapture(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.directLimit {
		writeJSONError(w, "Payload too large, use chunked transfer", http.StatusRequestEntityTooLarge)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, h.directLimit+1))
	if err != nil {
		writeJSONError(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	if int64(len(body)) > h.directLimit {
		writeJSONError(w, "Payload too large, use chunked transfer", http.StatusRequestEntityTooLarge)
		return
	}

	result, err := h.ingest.HandleDirect(r.Context(), body)
	if err != nil {
		if errors.Is(err, usecase.ErrMalformedPayload) {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("Failed to store capture", "error", err)
		writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, response.IngestResponse{
		Status:    "stored",
		CaptureID: result.CaptureID,
		Duplicate: result.Duplicate,
	})
}

// HandleChunkStart opens a chunk session.
func (h *ServerHandler) HandleChunkStart(w http.ResponseWriter, r *http.Request) {
	var req request.ChunkStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.CaptureID == "" {
		writeJSONError(w, "capture_id is required", http.StatusBadRequest)
		return
	}
	if err := h.ingest.StartSession(req.CaptureID, req.TotalChunks, req.TotalSize); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "collecting"})
}

// HandleChunkData writes one chunk into its session.
func (h *ServerHandler) HandleChunkData(w http.ResponseWriter, r *http.Request) {
	var req request.ChunkDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	err := h.ingest.AcceptChunk(req.CaptureID, entity.Chunk{Index: req.Index, Data: req.Data})
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, usecase.ErrUnknownSession) {
			status = http.StatusNotFound
		}
		writeJSONError(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "collecting"})
}

// HandleChunkComplete reassembles and stores a chunked capture. The
// error codes keep the sender's diagnostics honest: incomplete
// transfers and malformed payloads are different failures.
func (h *ServerHandler) HandleChunkComplete(w http.ResponseWriter, r *http.Request) {
	var req request.ChunkCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.ingest.CompleteSession(r.Context(), req.CaptureID, req.TotalChunks)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrUnknownSession):
			writeJSONError(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, chunk.ErrIncompleteTransfer):
			writeJSONError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, usecase.ErrMalformedPayload):
			writeJSONError(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			slog.Error("Failed to complete chunk session", "capture_id", req.CaptureID, "error", err)
			writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, response.IngestResponse{
		Status:    "stored",
		CaptureID: result.CaptureID,
		Duplicate: result.Duplicate,
	})
}

// HandleGetCapture returns the full stored payload for one capture.
func (h *ServerHandler) HandleGetCapture(w http.ResponseWriter, r *http.Request) {
	captureID := r.PathValue("captureID")
	capture, err := h.ingest.FindCapture(r.Context(), captureID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSONError(w, "Capture not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to load capture", "capture_id", captureID, "error", err)
		writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(capture.Payload); err != nil {
		slog.Error("Failed to write capture payload", "capture_id", captureID, "error", err)
	}
}

// HandleListPending lists captures awaiting import, oldest first.
func (h *ServerHandler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	captures, err := h.ingest.ListPending(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to list pending captures", "error", err)
		writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	summaries := make([]response.CaptureSummaryResponse, 0, len(captures))
	for _, c := range captures {
		summaries = append(summaries, response.CaptureSummaryResponse{
			CaptureID:  c.CaptureID,
			URL:        c.URL,
			SizeBytes:  c.SizeBytes,
			AssetCount: c.AssetCount,
			ReceivedAt: c.ReceivedAt,
			ImportedAt: c.ImportedAt,
		})
	}
	writeJSON(w, http.StatusOK, summaries)
}

// HandleMarkImported records that the importer consumed a capture.
func (h *ServerHandler) HandleMarkImported(w http.ResponseWriter, r *http.Request) {
	captureID := r.PathValue("captureID")
	if err := h.ingest.MarkImported(r.Context(), captureID); err != nil {
		slog.Error("Failed to mark capture imported", "capture_id", captureID, "error", err)
		writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "imported"})
}

// HandleHealthCheck reports open session count and uptime-based
// heartbeat age.
func (h *ServerHandler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, response.HealthResponse{
		Status:              "ok",
		OpenSessions:        h.ingest.OpenSessions(),
		HeartbeatAgeSeconds: time.Since(h.startedAt).Seconds(),
	})
}
