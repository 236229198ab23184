package token

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const consumedKeyPrefix = "eco:links:consumed:"

// ConsumedStore remembers action tokens that have already been used
type ConsumedStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewConsumedStore(client *redis.Client, ttl time.Duration) *ConsumedStore {
	return &ConsumedStore{client: client, ttl: ttl}
}

// Consume marks token as used. It returns false when the token was already consumed.
func (s *ConsumedStore) Consume(ctx context.Context, recordID, token string) (bool, error) {
	ok, err := s.client.SetNX(ctx, consumedKey(token), recordID, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record consumed token: %w", err)
	}
	return ok, nil
}

// Tokens can be long JWTs; the key holds only their digest
func consumedKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return consumedKeyPrefix + hex.EncodeToString(sum[:])
}
