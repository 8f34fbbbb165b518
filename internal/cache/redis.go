package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mvoronin91/washbooking/config"
	"github.com/mvoronin91/washbooking/internal/domain"
	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	client      *redis.Client
	servicesTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, servicesTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:      redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		servicesTTL: servicesTTL,
	}
}

func (c *RedisCache) GetServices(ctx context.Context) ([]domain.Service, error) {
	data, err := c.client.Get(ctx, servicesKey()).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var services []domain.Service
	if err := json.Unmarshal(data, &services); err != nil {
		return nil, err
	}
	return services, nil
}

func (c *RedisCache) SetServices(ctx context.Context, services []domain.Service) error {
	payload, err := json.Marshal(services)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, servicesKey(), payload, c.servicesTTL).Err()
}

// AcquireSlotLock is the cheap first gate against two callers booking the
// same resource around the same start time. The reservation transaction
// remains the authority; this only shortcuts the obvious races.
func (c *RedisCache) AcquireSlotLock(ctx context.Context, resourceID int64, slot time.Time, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, slotLockKey(resourceID, slot), "locked", ttl).Result()
}

func (c *RedisCache) ReleaseSlotLock(ctx context.Context, resourceID int64, slot time.Time) error {
	return c.client.Del(ctx, slotLockKey(resourceID, slot)).Err()
}

func servicesKey() string {
	return "cache:services"
}

func slotLockKey(resourceID int64, slot time.Time) string {
	return fmt.Sprintf("lock:resource:%d:slot:%d", resourceID, slot.UTC().Unix())
}
