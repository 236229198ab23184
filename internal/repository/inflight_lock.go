package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const inflightKeyPrefix = "eco:moderation:inflight:"

// Deletes the key only while it still holds our owner token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// InflightLock keeps two deliveries of the same record from processing concurrently
type InflightLock struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewInflightLock(client *redis.Client, ttl time.Duration, logger *zap.Logger) *InflightLock {
	return &InflightLock{client: client, ttl: ttl, logger: logger}
}

// Acquire takes the lock for audioID. When acquired is false another worker holds it.
// The returned release func is safe to call once the work is done.
func (l *InflightLock) Acquire(ctx context.Context, audioID string) (release func(), acquired bool, err error) {
	key := inflightKeyPrefix + audioID
	owner := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, owner, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire inflight lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func() {
		// the request context may already be done
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, owner).Err(); err != nil {
			l.logger.Warn("Failed to release inflight lock", zap.String("audio_id", audioID), zap.Error(err))
		}
	}
	return release, true, nil
}
