package request

// The three chunk transfer control messages. Together they fully
// define the wire-level contract the chunk codec implements; CaptureID
// routes messages to the right session when transfers interleave.

type ChunkStartRequest struct {
	CaptureID   string `json:"capture_id"`
	TotalChunks int    `json:"total_chunks"`
	TotalSize   int64  `json:"total_size"`
}

type ChunkDataRequest struct {
	CaptureID string `json:"capture_id"`
	Index     int    `json:"index"`
	Data      string `json:"data"`
}

type ChunkCompleteRequest struct {
	CaptureID   string `json:"capture_id"`
	TotalChunks int    `json:"total_chunks"`
}
