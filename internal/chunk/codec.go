// Package chunk splits an oversized serialized payload into bounded
// pieces and reassembles them exactly once on the receiving side.
// Splitting is pure byte-offset slicing: no reordering and no
// compression (compression, when used, is applied before splitting).
package chunk

import "github.com/stickerverse/figmacionvert-v3-sub012/internal/entity"

// Split slices a serialized payload into chunks of at most
// maxChunkBytes bytes, indexed in order. An empty input yields no
// chunks.
func Split(serialized string, maxChunkBytes int) []entity.Chunk {
	if maxChunkBytes <= 0 || serialized == "" {
		return nil
	}
	n := (len(serialized) + maxChunkBytes - 1) / maxChunkBytes
	chunks := make([]entity.Chunk, 0, n)
	for i := 0; i < n; i++ {
		start := i * maxChunkBytes
		end := start + maxChunkBytes
		if end > len(serialized) {
			end = len(serialized)
		}
		chunks = append(chunks, entity.Chunk{Index: i, Data: serialized[start:end]})
	}
	return chunks
}

// Join concatenates chunks in index order. Chunks must already be
// ordered by index, as Split produces them.
func Join(chunks []entity.Chunk) string {
	var size int
	for _, c := range chunks {
		size += len(c.Data)
	}
	buf := make([]byte, 0, size)
	for _, c := range chunks {
		buf = append(buf, c.Data...)
	}
	return string(buf)
}
