package response

import (
	"time"

	"github.com/stickerverse/figmacionvert-v3-sub012/internal/entity"
)

type EnqueueResponse struct {
	Status    string                     `json:"status"`
	Message   string                     `json:"message"`
	JobID     string                     `json:"job_id,omitempty"`
	CaptureID string                     `json:"capture_id,omitempty"`
	Report    *entity.OptimizationReport `json:"optimization_report,omitempty"`
}

// HealthResponse is the simple poll both binaries expose: queue or
// session depth plus the age of the last heartbeat.
type HealthResponse struct {
	Status              string  `json:"status"`
	PendingJobs         int     `json:"pending_jobs,omitempty"`
	OpenSessions        int     `json:"open_sessions,omitempty"`
	HeartbeatAgeSeconds float64 `json:"heartbeat_age_seconds"`
}

type IngestResponse struct {
	Status    string `json:"status"`
	CaptureID string `json:"capture_id"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// CaptureSummaryResponse is one row of the importer's pending list;
// payload bytes are fetched per capture.
type CaptureSummaryResponse struct {
	CaptureID  string     `json:"capture_id"`
	URL        string     `json:"url,omitempty"`
	SizeBytes  int64      `json:"size_bytes"`
	AssetCount int        `json:"asset_count"`
	ReceivedAt time.Time  `json:"received_at"`
	ImportedAt *time.Time `json:"imported_at,omitempty"`
}
