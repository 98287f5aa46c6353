package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"zapis/internal/domain"
	"zapis/internal/models"
	"zapis/internal/timegrid"
)

// MemoryStaffLocker держит по одному семафору на мастера внутри процесса.
type MemoryStaffLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewMemoryStaffLocker() *MemoryStaffLocker {
	return &MemoryStaffLocker{locks: make(map[string]chan struct{})}
}

func (l *MemoryStaffLocker) semaphore(staffID string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.locks[staffID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[staffID] = ch
	}
	return ch
}

func (l *MemoryStaffLocker) Lock(ctx context.Context, staffID string) (func(), error) {
	ch := l.semaphore(staffID)
	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("lock staff %s: %w", staffID, ctx.Err())
	}
}

type cacheEntry struct {
	slots     []models.Slot
	expiresAt time.Time
}

// MemorySlotCache is the in-process SlotCache used without Redis and as the failover target.
type MemorySlotCache struct {
	mu          sync.Mutex
	ttl         time.Duration
	now         func() time.Time
	generations map[string]int64
	entries     map[string]map[string]cacheEntry
}

func NewMemorySlotCache(ttl time.Duration) *MemorySlotCache {
	if ttl <= 0 {
		ttl = models.DefaultSlotCacheTTL * time.Second
	}
	return &MemorySlotCache{
		ttl:         ttl,
		now:         time.Now,
		generations: make(map[string]int64),
		entries:     make(map[string]map[string]cacheEntry),
	}
}

func dayKey(shopID string, date time.Time) string {
	return shopID + ":" + date.Format(timegrid.DateLayout)
}

func entryKey(key domain.SlotCacheKey) string {
	return fmt.Sprintf("%d:%s:%s", key.Generation, key.ServiceID, key.Staff)
}

func (c *MemorySlotCache) Generation(_ context.Context, shopID string, date time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[dayKey(shopID, date)], nil
}

func (c *MemorySlotCache) Get(_ context.Context, key domain.SlotCacheKey) ([]models.Slot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	day := dayKey(key.ShopID, key.Date)
	if key.Generation != c.generations[day] {
		return nil, false, nil
	}
	bucket := c.entries[day]
	entry, ok := bucket[entryKey(key)]
	if !ok {
		return nil, false, nil
	}
	if c.now().After(entry.expiresAt) {
		delete(bucket, entryKey(key))
		return nil, false, nil
	}
	return cloneSlots(entry.slots), true, nil
}

func (c *MemorySlotCache) Set(_ context.Context, key domain.SlotCacheKey, slots []models.Slot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	day := dayKey(key.ShopID, key.Date)
	if key.Generation != c.generations[day] {
		// посчитано до инвалидации
		return nil
	}
	bucket, ok := c.entries[day]
	if !ok {
		bucket = make(map[string]cacheEntry)
		c.entries[day] = bucket
	}
	bucket[entryKey(key)] = cacheEntry{slots: cloneSlots(slots), expiresAt: c.now().Add(c.ttl)}
	return nil
}

func (c *MemorySlotCache) Invalidate(_ context.Context, shopID string, date time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	day := dayKey(shopID, date)
	c.generations[day]++
	delete(c.entries, day)
	return nil
}

func cloneSlots(slots []models.Slot) []models.Slot {
	out := make([]models.Slot, len(slots))
	for i, s := range slots {
		out[i] = models.Slot{Start: s.Start, StaffIDs: append([]string(nil), s.StaffIDs...)}
	}
	return out
}
