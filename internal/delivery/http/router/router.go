package router

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stickerverse/figmacionvert-v3-sub012/internal/delivery/http/handler"
	"github.com/stickerverse/figmacionvert-v3-sub012/internal/delivery/http/middleware"
)

// NewAgent builds the capture agent's local API.
func NewAgent(h *handler.AgentHandler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/capture", h.HandleSubmitCapture)
	mux.HandleFunc("GET /api/status", h.HandleStatus)
	mux.HandleFunc("GET /api/health", h.HandleHealthCheck)

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	return chain(mux)
}

// NewServer builds the handoff server's API.
func NewServer(h *handler.ServerHandler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/captures", h.HandleReceiveCapture)
	mux.HandleFunc("POST /api/captures/chunked-start", h.HandleChunkStart)
	mux.HandleFunc("POST /api/captures/chunked-data", h.HandleChunkData)
	mux.HandleFunc("POST /api/captures/chunked-complete", h.HandleChunkComplete)

	mux.HandleFunc("GET /api/captures", h.HandleListPending)
	mux.HandleFunc("GET /api/captures/{captureID}", h.HandleGetCapture)
	mux.HandleFunc("POST /api/captures/{captureID}/imported", h.HandleMarkImported)

	mux.HandleFunc("GET /api/health", h.HandleHealthCheck)

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	return chain(mux)
}

func chain(mux http.Handler) http.Handler {
	var chained http.Handler = mux
	chained = middleware.Metrics(chained)
	chained = middleware.Logging(chained)
	return chained
}
