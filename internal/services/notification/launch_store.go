package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	lastResponseKeyPrefix = "notifications:last_response:"
	consumedKeyPrefix     = "notifications:consumed:"

	DefaultConsumedTTL = 24 * time.Hour
)

// RedisLaunchStore keeps the most recent response per device so a freshly
// started process can recover the notification that launched it.
type RedisLaunchStore struct {
	client      *redis.Client
	device      string
	consumedTTL time.Duration
}

// NewRedisLaunchStore creates a launch store scoped to one device
func NewRedisLaunchStore(client *redis.Client, device string, consumedTTL time.Duration) *RedisLaunchStore {
	if consumedTTL <= 0 {
		consumedTTL = DefaultConsumedTTL
	}
	return &RedisLaunchStore{
		client:      client,
		device:      device,
		consumedTTL: consumedTTL,
	}
}

// Record replaces the stored last response
func (s *RedisLaunchStore) Record(ctx context.Context, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	if err := s.client.Set(ctx, lastResponseKeyPrefix+s.device, data, s.consumedTTL).Err(); err != nil {
		return fmt.Errorf("failed to record last response: %w", err)
	}
	return nil
}

// LastResponse returns the stored response, or nil when there is none or it
// was already acknowledged.
func (s *RedisLaunchStore) LastResponse(ctx context.Context) (*Response, error) {
	data, err := s.client.Get(ctx, lastResponseKeyPrefix+s.device).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode last response: %w", err)
	}

	n, err := s.client.Exists(ctx, consumedKeyPrefix+resp.Key()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check consumed marker: %w", err)
	}
	if n > 0 {
		return nil, nil
	}
	return &resp, nil
}

// Acknowledge marks the response with the given Response.Key as handled
func (s *RedisLaunchStore) Acknowledge(ctx context.Context, key string) error {
	if err := s.client.Set(ctx, consumedKeyPrefix+key, 1, s.consumedTTL).Err(); err != nil {
		return fmt.Errorf("failed to acknowledge %s: %w", key, err)
	}
	return nil
}
