package entity

import "time"

// StoredCapture mirrors the `captures` PostgreSQL table schema on the
// handoff server. Payload holds the full serialized capture; the
// importer polls for pending rows and marks them imported once
// consumed.
type StoredCapture struct {
	ID         string
	CaptureID  string
	URL        string
	Payload    []byte
	SizeBytes  int64
	AssetCount int
	ReceivedAt time.Time
	ImportedAt *time.Time
}
