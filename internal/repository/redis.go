package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"zapis/internal/config"
	"zapis/internal/domain"
	"zapis/internal/models"
	"zapis/internal/timegrid"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	slotKeyPrefix = "zapis:slots:"
	lockKeyPrefix = "zapis:lock:staff:"

	lockRetryInterval = 25 * time.Millisecond
)

var errNilClient = errors.New("redis client is nil")

// снимаем блокировку только если она все еще наша
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

// RedisStaffLocker is a per-staff lease shared by all API instances.
type RedisStaffLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStaffLocker(client *redis.Client, ttl time.Duration) *RedisStaffLocker {
	if ttl <= 0 {
		ttl = models.DefaultStaffLockTTL * time.Second
	}
	return &RedisStaffLocker{client: client, ttl: ttl}
}

func (l *RedisStaffLocker) Lock(ctx context.Context, staffID string) (func(), error) {
	if l.client == nil {
		return nil, errNilClient
	}
	key := lockKeyPrefix + staffID
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("lock staff %s: %w", staffID, ctx.Err())
			}
			return nil, fmt.Errorf("failed to acquire staff lock: %w", err)
		}
		if ok {
			unlock := func() {
				// контекст запроса мог уже завершиться
				_ = unlockScript.Run(context.Background(), l.client, []string{key}, token).Err()
			}
			return unlock, nil
		}

		timer := time.NewTimer(lockRetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("lock staff %s: %w", staffID, ctx.Err())
		case <-timer.C:
		}
	}
}

// RedisSlotCache stores slot lists per shop and date. Invalidation bumps a
// generation counter instead of scanning keys.
type RedisSlotCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSlotCache(client *redis.Client, ttl time.Duration) *RedisSlotCache {
	if ttl <= 0 {
		ttl = models.DefaultSlotCacheTTL * time.Second
	}
	return &RedisSlotCache{client: client, ttl: ttl}
}

func generationKey(shopID string, date time.Time) string {
	return fmt.Sprintf("%sgen:%s:%s", slotKeyPrefix, shopID, date.Format(timegrid.DateLayout))
}

func slotKey(key domain.SlotCacheKey) string {
	return fmt.Sprintf("%s%s:%s:%d:%s:%s", slotKeyPrefix, key.ShopID, key.Date.Format(timegrid.DateLayout),
		key.Generation, key.ServiceID, key.Staff)
}

// generation key must outlive every entry written under it
func (c *RedisSlotCache) generationTTL() time.Duration {
	return 2*c.ttl + time.Minute
}

func (c *RedisSlotCache) Generation(ctx context.Context, shopID string, date time.Time) (int64, error) {
	if c.client == nil {
		return 0, errNilClient
	}
	gen, err := c.client.Get(ctx, generationKey(shopID, date)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get slot generation: %w", err)
	}
	return gen, nil
}

func (c *RedisSlotCache) Get(ctx context.Context, key domain.SlotCacheKey) ([]models.Slot, bool, error) {
	if c.client == nil {
		return nil, false, errNilClient
	}
	val, err := c.client.Get(ctx, slotKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get slots from redis: %w", err)
	}

	var slots []models.Slot
	if err := json.Unmarshal(val, &slots); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal slots: %w", err)
	}
	return slots, true, nil
}

func (c *RedisSlotCache) Set(ctx context.Context, key domain.SlotCacheKey, slots []models.Slot) error {
	if c.client == nil {
		return errNilClient
	}
	if slots == nil {
		slots = []models.Slot{}
	}
	data, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("failed to marshal slots: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, slotKey(key), data, c.ttl)
	pipe.Expire(ctx, generationKey(key.ShopID, key.Date), c.generationTTL())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set slots in redis: %w", err)
	}
	return nil
}

func (c *RedisSlotCache) Invalidate(ctx context.Context, shopID string, date time.Time) error {
	if c.client == nil {
		return errNilClient
	}
	key := generationKey(shopID, date)

	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, c.generationTTL())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to invalidate slots: %w", err)
	}
	return nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
