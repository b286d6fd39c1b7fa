package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"saas-tenancy-api/internal/domain/entity"
)

const usageSnapshotPrefix = "usage:snapshot:"

// UsageSnapshotStore 用量快照缓存
type UsageSnapshotStore struct {
	cache *Cache
	ttl   time.Duration
}

// NewUsageSnapshotStore 创建用量快照缓存
func NewUsageSnapshotStore(cache *Cache, ttl time.Duration) *UsageSnapshotStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &UsageSnapshotStore{cache: cache, ttl: ttl}
}

// Save 写入组织的最新快照
func (s *UsageSnapshotStore) Save(ctx context.Context, snapshot *entity.UsageSnapshot) error {
	return s.cache.Set(ctx, usageSnapshotPrefix+snapshot.OrganizationID, snapshot, s.ttl)
}

// Latest 读取组织的最新快照，不存在时返回 nil
func (s *UsageSnapshotStore) Latest(ctx context.Context, organizationID string) (*entity.UsageSnapshot, error) {
	raw, err := s.cache.Get(ctx, usageSnapshotPrefix+organizationID)
	if err != nil {
		if IsNil(err) {
			return nil, nil
		}
		return nil, err
	}

	var snapshot entity.UsageSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode usage snapshot: %w", err)
	}
	return &snapshot, nil
}
