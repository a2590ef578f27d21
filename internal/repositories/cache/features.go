package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	cachekeys "fintrust/internal/utils/cache"
)

const deviceTTL = 30 * 24 * time.Hour

// FeatureStore keeps the behavioural counters the risk scorer reads.
type FeatureStore struct {
	client *redis.Client
	window time.Duration
}

func NewFeatureStore(client *redis.Client, window time.Duration) *FeatureStore {
	return &FeatureStore{client: client, window: window}
}

func (s *FeatureStore) Window() time.Duration { return s.window }

// SenderVelocity returns how many transfers the sender made in the current window.
func (s *FeatureStore) SenderVelocity(ctx context.Context, sender string) (int64, error) {
	n, err := s.client.Get(ctx, cachekeys.VelocityKey(sender)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

// DeviceReuse returns how many distinct senders have used the device.
func (s *FeatureStore) DeviceReuse(ctx context.Context, deviceID string) (int64, error) {
	if deviceID == "" {
		return 0, nil
	}
	return s.client.SCard(ctx, cachekeys.DeviceKey(deviceID)).Result()
}

// Observe records a scored transfer.
func (s *FeatureStore) Observe(ctx context.Context, sender, deviceID string) error {
	key := cachekeys.VelocityKey(sender)
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	if n == 1 {
		if err := s.client.Expire(ctx, key, s.window).Err(); err != nil {
			return err
		}
	}
	if deviceID == "" {
		return nil
	}
	deviceKey := cachekeys.DeviceKey(deviceID)
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, deviceKey, sender)
		p.Expire(ctx, deviceKey, deviceTTL)
		return nil
	})
	return err
}
