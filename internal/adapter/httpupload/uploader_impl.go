// Package httpupload transmits captures to the remote handoff server
// over HTTP, choosing between a single POST and the chunked transfer
// protocol based on serialized size.
package httpupload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/stickerverse/figmacionvert-v3-sub012/internal/chunk"
	"github.com/stickerverse/figmacionvert-v3-sub012/internal/delivery/http/request"
	"github.com/stickerverse/figmacionvert-v3-sub012/internal/entity"
	"github.com/stickerverse/figmacionvert-v3-sub012/internal/repository"
	"github.com/stickerverse/figmacionvert-v3-sub012/internal/wire"
)

// Uploader implements repository.UploadRepository against the handoff
// server's HTTP API.
type Uploader struct {
	client      *http.Client
	baseURL     string
	directLimit int64
	chunkBytes  int
}

// NewUploader creates an uploader for the given endpoint. Payloads
// whose compressed wire form exceeds directLimit bytes are sent as
// chunkBytes-sized pieces through the chunked protocol.
func NewUploader(baseURL string, directLimit int64, chunkBytes int) repository.UploadRepository {
	return &Uploader{
		client:      &http.Client{Timeout: 0}, // per-attempt deadline comes from ctx
		baseURL:     baseURL,
		directLimit: directLimit,
		chunkBytes:  chunkBytes,
	}
}

// Upload serializes, compresses and transmits one capture. It returns
// nil only when the server acknowledged receipt.
func (u *Uploader) Upload(ctx context.Context, payload *entity.CapturedPayload) error {
	serialized, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("serializing capture %s: %w", payload.CaptureID, err)
	}

	body, err := wire.Compress(serialized)
	if err != nil {
		return fmt.Errorf("compressing capture %s: %w", payload.CaptureID, err)
	}

	if int64(len(body)) <= u.directLimit {
		return u.direct(ctx, payload.CaptureID, body)
	}
	return u.chunked(ctx, payload.CaptureID, string(body))
}

func (u *Uploader) direct(ctx context.Context, captureID string, body []byte) error {
	slog.Debug("Sending capture directly", "capture_id", captureID, "bytes", len(body))
	return u.post(ctx, "/api/captures", body)
}

// chunked drives the three-message transfer: start with the declared
// totals, one data message per chunk, then complete.
func (u *Uploader) chunked(ctx context.Context, captureID, serialized string) error {
	chunks := chunk.Split(serialized, u.chunkBytes)
	slog.Info("Sending capture in chunks",
		"capture_id", captureID, "chunks", len(chunks), "total_bytes", len(serialized))

	start := request.ChunkStartRequest{
		CaptureID:   captureID,
		TotalChunks: len(chunks),
		TotalSize:   int64(len(serialized)),
	}
	if err := u.postJSON(ctx, "/api/captures/chunked-start", start); err != nil {
		return fmt.Errorf("starting chunked transfer: %w", err)
	}

	for _, c := range chunks {
		msg := request.ChunkDataRequest{CaptureID: captureID, Index: c.Index, Data: c.Data}
		if err := u.postJSON(ctx, "/api/captures/chunked-data", msg); err != nil {
			return fmt.Errorf("sending chunk %d/%d: %w", c.Index+1, len(chunks), err)
		}
	}

	done := request.ChunkCompleteRequest{CaptureID: captureID, TotalChunks: len(chunks)}
	if err := u.postJSON(ctx, "/api/captures/chunked-complete", done); err != nil {
		return fmt.Errorf("completing chunked transfer: %w", err)
	}
	return nil
}

func (u *Uploader) postJSON(ctx context.Context, path string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return u.post(ctx, path, body)
}

func (u *Uploader) post(ctx context.Context, path string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := u.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	slog.Debug("Handoff POST finished",
		"path", path, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: %s", repository.ErrPayloadTooLarge, path)
	default:
		return fmt.Errorf("%w: %s returned status %d", repository.ErrRemoteRejected, path, resp.StatusCode)
	}
}
