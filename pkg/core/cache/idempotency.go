package cache

import (
	"context"
	"time"

	"github.com/LENAX/workflow-engine/pkg/core/types"
	"github.com/LENAX/workflow-engine/pkg/core/workflow"
)

// CachedIdempotencyStore 带读缓存的幂等存储
// 写入直达底层存储后回填缓存；未命中不缓存
type CachedIdempotencyStore struct {
	next  types.IdempotencyStore
	cache ResultCache
	ttl   time.Duration
}

// NewCachedIdempotencyStore 创建带缓存的幂等存储
func NewCachedIdempotencyStore(next types.IdempotencyStore, cache ResultCache, ttl time.Duration) *CachedIdempotencyStore {
	return &CachedIdempotencyStore{next: next, cache: cache, ttl: ttl}
}

func idempotencyCacheKey(route, key string) string {
	return "idem|" + route + "|" + key
}

// Lookup 先查缓存，再查底层存储
func (s *CachedIdempotencyStore) Lookup(ctx context.Context, route, key string) (*workflow.IdempotencyRecord, error) {
	cacheKey := idempotencyCacheKey(route, key)
	if v, ok := s.cache.Get(cacheKey); ok {
		rec := v.(*workflow.IdempotencyRecord)
		if rec.ExpiresAt == nil || rec.ExpiresAt.After(time.Now()) {
			return rec, nil
		}
		_ = s.cache.Delete(cacheKey)
	}

	rec, err := s.next.Lookup(ctx, route, key)
	if err != nil || rec == nil {
		return rec, err
	}
	_ = s.cache.Set(cacheKey, rec, s.ttl)
	return rec, nil
}

// Save 写底层存储并回填缓存
func (s *CachedIdempotencyStore) Save(ctx context.Context, record *workflow.IdempotencyRecord) error {
	if err := s.next.Save(ctx, record); err != nil {
		return err
	}
	_ = s.cache.Set(idempotencyCacheKey(record.Route, record.Key), record, s.ttl)
	return nil
}

var _ types.IdempotencyStore = (*CachedIdempotencyStore)(nil)
