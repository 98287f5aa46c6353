package repository

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"zapis/internal/domain"
	"zapis/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// failover remembers that the primary backend is down and retries it once per recoveryInterval.
type failover struct {
	name      string
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func (f *failover) usePrimary() bool {
	if !f.isDown.Load() {
		return true
	}
	// Try to recover after 1 minute
	return time.Since(time.Unix(0, f.lastCheck.Load())) > recoveryInterval
}

func (f *failover) fail(err error) {
	if !f.isDown.Swap(true) {
		f.logger.Error().Err(err).Str("backend", f.name).Msg("Primary backend failed, falling back to memory")
	}
	f.lastCheck.Store(time.Now().UnixNano())
}

func (f *failover) ok() {
	if f.isDown.Swap(false) {
		f.logger.Info().Str("backend", f.name).Msg("Primary backend recovered")
	}
}

// contextual errors say nothing about backend health
func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

type FailoverStaffLocker struct {
	failover
	primary  domain.StaffLocker
	fallback domain.StaffLocker
}

func NewFailoverStaffLocker(primary, fallback domain.StaffLocker, logger *zerolog.Logger) *FailoverStaffLocker {
	return &FailoverStaffLocker{
		failover: failover{name: "staff_locker", logger: logger},
		primary:  primary,
		fallback: fallback,
	}
}

func (l *FailoverStaffLocker) Lock(ctx context.Context, staffID string) (func(), error) {
	if l.usePrimary() {
		unlock, err := l.primary.Lock(ctx, staffID)
		if err == nil {
			l.ok()
			return unlock, nil
		}
		if isContextErr(err) {
			return nil, err
		}
		l.fail(err)
	}
	return l.fallback.Lock(ctx, staffID)
}

// FailoverSlotCache reads through the primary cache while it is healthy.
// Invalidations always reach the fallback too, so that switching over never
// serves entries the fallback missed invalidations for.
type FailoverSlotCache struct {
	failover
	primary  domain.SlotCache
	fallback domain.SlotCache
}

func NewFailoverSlotCache(primary, fallback domain.SlotCache, logger *zerolog.Logger) *FailoverSlotCache {
	return &FailoverSlotCache{
		failover: failover{name: "slot_cache", logger: logger},
		primary:  primary,
		fallback: fallback,
	}
}

func (c *FailoverSlotCache) Generation(ctx context.Context, shopID string, date time.Time) (int64, error) {
	if c.usePrimary() {
		gen, err := c.primary.Generation(ctx, shopID, date)
		if err == nil {
			c.ok()
			return gen, nil
		}
		c.fail(err)
	}
	return c.fallback.Generation(ctx, shopID, date)
}

func (c *FailoverSlotCache) Get(ctx context.Context, key domain.SlotCacheKey) ([]models.Slot, bool, error) {
	if c.usePrimary() {
		slots, ok, err := c.primary.Get(ctx, key)
		if err == nil {
			c.ok()
			return slots, ok, nil
		}
		c.fail(err)
	}
	return c.fallback.Get(ctx, key)
}

func (c *FailoverSlotCache) Set(ctx context.Context, key domain.SlotCacheKey, slots []models.Slot) error {
	if c.usePrimary() {
		err := c.primary.Set(ctx, key, slots)
		if err == nil {
			c.ok()
			return nil
		}
		c.fail(err)
	}
	return c.fallback.Set(ctx, key, slots)
}

func (c *FailoverSlotCache) Invalidate(ctx context.Context, shopID string, date time.Time) error {
	if c.usePrimary() {
		if err := c.primary.Invalidate(ctx, shopID, date); err != nil {
			c.fail(err)
		} else {
			c.ok()
		}
	}
	return c.fallback.Invalidate(ctx, shopID, date)
}
