package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fintrust/internal/domain/transfer"
	cachekeys "fintrust/internal/utils/cache"
)

// CacheService is a JSON read-through cache. Committed audit records never
// change, so they are cached under their transfer id.
type CacheService struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCacheService(client *redis.Client, defaultTTL time.Duration) *CacheService {
	return &CacheService{
		client: client,
		ttl:    defaultTTL,
	}
}

func (s *CacheService) Set(ctx context.Context, key string, value interface{}) error {
	return s.SetWithTTL(ctx, key, value, s.ttl)
}

func (s *CacheService) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("failed to get cache value: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return true, nil
}

func (s *CacheService) GetRecord(ctx context.Context, transferID string) (*transfer.AuditRecord, bool) {
	var rec transfer.AuditRecord
	found, err := s.Get(ctx, cachekeys.CommittedKey(transferID), &rec)
	if err != nil || !found {
		return nil, false
	}
	return &rec, true
}

func (s *CacheService) SetRecord(ctx context.Context, rec *transfer.AuditRecord) {
	if rec == nil || rec.Kind != transfer.RecordCommitted {
		return
	}
	_ = s.Set(ctx, cachekeys.CommittedKey(rec.Request.ID), rec)
}

func (s *CacheService) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	return nil
}

func (s *CacheService) Close() error {
	return s.client.Close()
}
