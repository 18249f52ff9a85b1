package cache

import (
	"sync"
	"time"
)

// ResultCache 进程内缓存接口（对外导出）
// 用于已解析DSL与幂等记录的读缓存
type ResultCache interface {
	// Set 设置缓存值，ttl<=0 表示不过期
	Set(key string, value any, ttl time.Duration) error

	// Get 获取缓存值
	// 返回: 缓存值和是否存在
	Get(key string) (any, bool)

	// Delete 删除缓存值
	Delete(key string) error

	// Clear 清空所有缓存
	Clear() error

	// Len 当前条目数（含尚未清理的过期条目）
	Len() int
}

// cacheEntry 缓存条目（内部使用）
type cacheEntry struct {
	value      any
	expireTime time.Time // 零值表示不过期
}

func (e *cacheEntry) expired(now time.Time) bool {
	return !e.expireTime.IsZero() && now.After(e.expireTime)
}

// MemoryResultCache 内存缓存实现（对外导出）
type MemoryResultCache struct {
	mu     sync.RWMutex
	cache  map[string]*cacheEntry
	stopCh chan struct{}
	once   sync.Once
}

// NewMemoryResultCache 创建内存缓存实例（对外导出）
// cleanInterval<=0 时默认每分钟清理一次过期条目
func NewMemoryResultCache(cleanInterval time.Duration) *MemoryResultCache {
	if cleanInterval <= 0 {
		cleanInterval = time.Minute
	}
	c := &MemoryResultCache{
		cache:  make(map[string]*cacheEntry),
		stopCh: make(chan struct{}),
	}
	go c.cleanupExpired(cleanInterval)
	return c
}

// Set 设置缓存值
func (c *MemoryResultCache) Set(key string, value any, ttl time.Duration) error {
	if key == "" {
		return nil // 空key，忽略
	}

	entry := &cacheEntry{value: value}
	if ttl > 0 {
		entry.expireTime = time.Now().Add(ttl)
	}

	c.mu.Lock()
	c.cache[key] = entry
	c.mu.Unlock()
	return nil
}

// Get 获取缓存值
func (c *MemoryResultCache) Get(key string) (any, bool) {
	if key == "" {
		return nil, false
	}

	c.mu.RLock()
	entry, exists := c.cache[key]
	c.mu.RUnlock()
	if !exists {
		return nil, false
	}

	if entry.expired(time.Now()) {
		c.mu.Lock()
		if cur, ok := c.cache[key]; ok && cur == entry {
			delete(c.cache, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return entry.value, true
}

// Delete 删除缓存值
func (c *MemoryResultCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, key)
	return nil
}

// Clear 清空所有缓存
func (c *MemoryResultCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*cacheEntry)
	return nil
}

// Len 当前条目数
func (c *MemoryResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// Close 停止清理协程
func (c *MemoryResultCache) Close() {
	c.once.Do(func() { close(c.stopCh) })
}

// cleanupExpired 清理过期缓存（内部方法）
func (c *MemoryResultCache) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, entry := range c.cache {
				if entry.expired(now) {
					delete(c.cache, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

var _ ResultCache = (*MemoryResultCache)(nil)
