// Package wire implements the compressed payload wrapper both sides
// of the handoff speak: a small JSON envelope carrying zstd-compressed
// payload bytes. Compression is a pluggable byte reducer layered above
// serialization and below chunking; the chunk codec never sees it.
package wire

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Envelope wraps compressed payload bytes on the wire.
type Envelope struct {
	Encoding string `json:"encoding"` // "zstd" or "none"
	Data     string `json:"data"`     // base64 of the (compressed) payload
}

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil)
)

// Compress wraps serialized payload bytes into a zstd envelope. When
// compression does not pay (already-compressed asset data dominates
// many captures), the envelope falls back to "none" so the receiver
// never decompresses noise.
func Compress(serialized []byte) ([]byte, error) {
	compressed := encoder.EncodeAll(serialized, nil)

	env := Envelope{Encoding: "zstd", Data: base64.StdEncoding.EncodeToString(compressed)}
	if len(env.Data) >= len(serialized) {
		env = Envelope{Encoding: "none", Data: base64.StdEncoding.EncodeToString(serialized)}
	}
	return json.Marshal(env)
}

// Decompress unwraps a body that may be an envelope or raw payload
// JSON. Raw bodies pass through untouched, keeping the endpoint
// compatible with senders that skip compression entirely.
func Decompress(body []byte) ([]byte, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Data == "" {
		return body, nil
	}

	raw, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return nil, fmt.Errorf("decoding envelope data: %w", err)
	}
	switch env.Encoding {
	case "none":
		return raw, nil
	case "zstd":
		out, err := decoder.DecodeAll(raw, nil)
		if err != nil {
			return nil, fmt.Errorf("decompressing envelope: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown envelope encoding %q", env.Encoding)
	}
}
