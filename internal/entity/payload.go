package entity

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Viewport records the page viewport at capture time. The classifier
// uses it to judge how much of the visible page an asset covers.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// CapturedPayload is the canonical in-memory form of one capture: the
// structural tree produced by the external extractor plus its asset
// registry and optional raster preview. The pipeline owns it from
// ingestion until it is delivered or discarded.
type CapturedPayload struct {
	// CaptureID groups payloads originating from the same logical
	// capture event; the delivery queue deduplicates on it.
	CaptureID string `json:"capture_id"`
	URL       string `json:"url,omitempty"`

	// Capture is the structural tree. The pipeline never interprets
	// it; it only sizes, compresses and ships it.
	Capture json.RawMessage `json:"capture"`

	// Assets is the registry of embedded binaries keyed by content
	// hash.
	Assets map[string]*AssetRecord `json:"assets,omitempty"`

	// Screenshot is an optional base64 raster preview of the page.
	Screenshot string   `json:"screenshot,omitempty"`
	Viewport   Viewport `json:"viewport"`

	// Report is attached by the optimizer for downstream diagnostics.
	Report *OptimizationReport `json:"optimization_report,omitempty"`
}

// OptimizationReport is the append-only audit trail of one optimizer
// run over a payload.
type OptimizationReport struct {
	Applied                       bool     `json:"applied"`
	OriginalSizeMB                float64  `json:"original_size_mb"`
	OptimizedSizeMB               float64  `json:"optimized_size_mb"`
	RoundsRun                     int      `json:"rounds_run"`
	PreservedAssetIDs             []string `json:"preserved_asset_ids,omitempty"`
	AggressivelyOptimizedAssetIDs []string `json:"aggressively_optimized_asset_ids,omitempty"`
	RemovedAssetIDs               []string `json:"removed_asset_ids,omitempty"`
}

// ErrEmptyPayload is returned when normalization unwraps to nothing.
var ErrEmptyPayload = errors.New("payload is empty after unwrapping")

// payloadEnvelope covers the wrapped shapes upstream senders produce:
// {"payload": ...} with the inner value either an object or a
// serialized string of one.
type payloadEnvelope struct {
	Payload json.RawMessage `json:"payload"`
}

const maxUnwrapDepth = 3

// NormalizePayload accepts the raw bytes handed over by an extractor
// and produces the one canonical payload shape everything downstream
// consumes. Senders variously deliver a bare payload object, a
// {"payload": ...} wrapper, a double wrapper, or a JSON string holding
// a serialized payload; unwrapping happens here exactly once.
func NormalizePayload(raw []byte) (*CapturedPayload, error) {
	for depth := 0; depth < maxUnwrapDepth; depth++ {
		if len(raw) == 0 {
			return nil, ErrEmptyPayload
		}

		// A JSON string is a serialized payload; unquote and retry.
		if raw[0] == '"' {
			var inner string
			if err := json.Unmarshal(raw, &inner); err != nil {
				return nil, fmt.Errorf("unquoting serialized payload: %w", err)
			}
			raw = []byte(inner)
			continue
		}

		var env payloadEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("parsing payload: %w", err)
		}
		if len(env.Payload) > 0 {
			raw = env.Payload
			continue
		}

		var p CapturedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("parsing payload: %w", err)
		}
		if len(p.Capture) == 0 {
			return nil, ErrEmptyPayload
		}
		if p.Assets == nil {
			p.Assets = map[string]*AssetRecord{}
		}
		return &p, nil
	}
	return nil, fmt.Errorf("payload wrapped deeper than %d levels", maxUnwrapDepth)
}
