package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const seenCapturePrefix = "handoff:seen:"

// SeenRepoImpl provides a concrete implementation for the
// SeenRepository interface using Redis TTL keys.
type SeenRepoImpl struct {
	client *redis.Client
}

// NewSeenRepo creates a new instance of SeenRepoImpl.
func NewSeenRepo(client *redis.Client) *SeenRepoImpl {
	return &SeenRepoImpl{client: client}
}

func (r *SeenRepoImpl) key(captureID string) string {
	return fmt.Sprintf("%s%s", seenCapturePrefix, captureID)
}

// MarkSeen records a capture identity with an expiry. SETEX is atomic
// and sets the key with its TTL in one step.
func (r *SeenRepoImpl) MarkSeen(ctx context.Context, captureID string, expiry time.Duration) error {
	return r.client.SetEx(ctx, r.key(captureID), "1", expiry).Err()
}

// IsSeen checks whether a capture identity was received recently.
func (r *SeenRepoImpl) IsSeen(ctx context.Context, captureID string) (bool, error) {
	val, err := r.client.Exists(ctx, r.key(captureID)).Result()
	if err != nil {
		return false, err
	}
	return val == 1, nil
}

// Remove forgets a capture identity so a re-send is accepted again.
func (r *SeenRepoImpl) Remove(ctx context.Context, captureID string) error {
	return r.client.Del(ctx, r.key(captureID)).Err()
}
