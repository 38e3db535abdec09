package httpupload

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stickerverse/figmacionvert-v3-sub012/internal/chunk"
	"github.com/stickerverse/figmacionvert-v3-sub012/internal/delivery/http/request"
	"github.com/stickerverse/figmacionvert-v3-sub012/internal/entity"
	"github.com/stickerverse/figmacionvert-v3-sub012/internal/repository"
	"github.com/stickerverse/figmacionvert-v3-sub012/internal/wire"
)

// handoffServer mimics the receiving side: direct bodies land whole,
// chunked transfers are reassembled through a session.
type handoffServer struct {
	mu       sync.Mutex
	direct   [][]byte
	sessions map[string]*chunk.Session
	received [][]byte
	paths    []string
}

func newHandoffServer() *handoffServer {
	return &handoffServer{sessions: map[string]*chunk.Session{}}
}

func (s *handoffServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/captures", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		s.mu.Lock()
		s.direct = append(s.direct, body)
		s.paths = append(s.paths, r.URL.Path)
		s.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("POST /api/captures/chunked-start", func(w http.ResponseWriter, r *http.Request) {
		var req request.ChunkStartRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		sess, err := chunk.NewSession(req.TotalChunks, req.TotalSize)
		require.NoError(t, err)
		s.mu.Lock()
		s.sessions[req.CaptureID] = sess
		s.paths = append(s.paths, r.URL.Path)
		s.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("POST /api/captures/chunked-data", func(w http.ResponseWriter, r *http.Request) {
		var req request.ChunkDataRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		s.mu.Lock()
		sess := s.sessions[req.CaptureID]
		s.paths = append(s.paths, r.URL.Path)
		s.mu.Unlock()
		require.NotNil(t, sess)
		require.NoError(t, sess.Accept(entity.Chunk{Index: req.Index, Data: req.Data}))
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("POST /api/captures/chunked-complete", func(w http.ResponseWriter, r *http.Request) {
		var req request.ChunkCompleteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		s.mu.Lock()
		sess := s.sessions[req.CaptureID]
		s.paths = append(s.paths, r.URL.Path)
		s.mu.Unlock()
		require.NotNil(t, sess)
		body, err := sess.Complete()
		require.NoError(t, err)
		s.mu.Lock()
		s.received = append(s.received, []byte(body))
		s.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})
	return mux
}

func samplePayload() *entity.CapturedPayload {
	return &entity.CapturedPayload{
		CaptureID: "cap-wire",
		URL:       "https://example.com",
		Capture:   json.RawMessage(`{"type":"FRAME","children":[` + strings.Repeat(`{"type":"TEXT"},`, 100) + `{"type":"TEXT"}]}`),
		Assets: map[string]*entity.AssetRecord{
			"a": {ID: "a", Width: 10, Height: 10, MimeType: "image/png", Data: "aGVsbG8=", Tier: entity.TierLow},
		},
	}
}

func TestUpload_DirectUnderLimit(t *testing.T) {
	backend := newHandoffServer()
	srv := httptest.NewServer(backend.handler(t))
	defer srv.Close()

	up := NewUploader(srv.URL, 1<<20, 256)
	require.NoError(t, up.Upload(context.Background(), samplePayload()))

	require.Equal(t, []string{"/api/captures"}, backend.paths)
	require.Len(t, backend.direct, 1)

	serialized, err := wire.Decompress(backend.direct[0])
	require.NoError(t, err)
	var got entity.CapturedPayload
	require.NoError(t, json.Unmarshal(serialized, &got))
	require.Equal(t, "cap-wire", got.CaptureID)
}

func TestUpload_ChunkedOverLimit(t *testing.T) {
	backend := newHandoffServer()
	srv := httptest.NewServer(backend.handler(t))
	defer srv.Close()

	// directLimit of 1 forces the chunked path for any real payload.
	up := NewUploader(srv.URL, 1, 64)
	p := samplePayload()
	require.NoError(t, up.Upload(context.Background(), p))

	require.Len(t, backend.received, 1)
	require.Equal(t, "/api/captures/chunked-start", backend.paths[0])
	require.Equal(t, "/api/captures/chunked-complete", backend.paths[len(backend.paths)-1])
	require.Greater(t, len(backend.paths), 3, "expected multiple data chunks")

	serialized, err := wire.Decompress(backend.received[0])
	require.NoError(t, err)
	var got entity.CapturedPayload
	require.NoError(t, json.Unmarshal(serialized, &got))
	require.Equal(t, p.CaptureID, got.CaptureID)
	require.Equal(t, p.Assets["a"].Data, got.Assets["a"].Data)
}

func TestUpload_TooLargeMapsToSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	}))
	defer srv.Close()

	up := NewUploader(srv.URL, 1<<20, 256)
	err := up.Upload(context.Background(), samplePayload())
	require.ErrorIs(t, err, repository.ErrPayloadTooLarge)
}

func TestUpload_RejectionMapsToSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	up := NewUploader(srv.URL, 1<<20, 256)
	err := up.Upload(context.Background(), samplePayload())
	require.ErrorIs(t, err, repository.ErrRemoteRejected)
}
