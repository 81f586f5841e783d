package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/steadybooks-integration/internal/domain"
	"github.com/Dhoini/steadybooks-integration/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	// Префиксы ключей для различных типов данных
	subscriptionKeyPrefix       = "subscription:"
	tenantSubscriptionKeyPrefix = "tenant_subscription:"

	// DefaultCacheTTL время жизни записи в кеше
	DefaultCacheTTL = 15 * time.Minute
)

// NewRedisClient подключается к Redis и проверяет соединение.
func NewRedisClient(ctx context.Context, addr, password string, db int, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Errorw("Failed to connect to Redis", "error", err)
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Infow("Connected to Redis successfully", "addr", addr)
	return client, nil
}

// RedisCache кеширует подписки по Stripe ID и по тенанту.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedisCache создает кеш поверх готового клиента.
func NewRedisCache(client *redis.Client, ttl time.Duration, log *logger.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl, log: log}
}

// CacheSubscription кладет подписку под оба ключа.
func (r *RedisCache) CacheSubscription(ctx context.Context, sub *domain.Subscription) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, subscriptionKeyPrefix+sub.StripeSubscriptionID, data, r.ttl)
	pipe.Set(ctx, tenantSubscriptionKeyPrefix+sub.TenantID, data, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache subscription: %w", err)
	}

	r.log.Debugw("Subscription cached successfully", "stripeSubscriptionID", sub.StripeSubscriptionID)
	return nil
}

// GetByStripeID читает подписку из кеша. Промах дает (nil, nil).
func (r *RedisCache) GetByStripeID(ctx context.Context, stripeSubscriptionID string) (*domain.Subscription, error) {
	return r.get(ctx, subscriptionKeyPrefix+stripeSubscriptionID)
}

// GetByTenant читает подписку тенанта из кеша. Промах дает (nil, nil).
func (r *RedisCache) GetByTenant(ctx context.Context, tenantID string) (*domain.Subscription, error) {
	return r.get(ctx, tenantSubscriptionKeyPrefix+tenantID)
}

func (r *RedisCache) get(ctx context.Context, key string) (*domain.Subscription, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get subscription from cache: %w", err)
	}

	var sub domain.Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached subscription: %w", err)
	}
	return &sub, nil
}

// Invalidate удаляет подписку из кеша под всеми переданными ключами.
func (r *RedisCache) Invalidate(ctx context.Context, tenantID string, stripeSubscriptionIDs ...string) error {
	keys := []string{tenantSubscriptionKeyPrefix + tenantID}
	for _, id := range stripeSubscriptionIDs {
		if id != "" {
			keys = append(keys, subscriptionKeyPrefix+id)
		}
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate subscription cache: %w", err)
	}
	return nil
}
