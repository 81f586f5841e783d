package repository

import (
	"context"

	"github.com/Dhoini/steadybooks-integration/internal/domain"
	"github.com/Dhoini/steadybooks-integration/pkg/logger"
)

// CachedSubscriptionStore оборачивает Store кешем подписок. Ошибки кеша не влияют на результат.
// После записи ключи инвалидируются, а не перезаписываются, чтобы параллельные
// вебхуки не оставили в кеше устаревшую версию.
type CachedSubscriptionStore struct {
	Store
	cache *RedisCache
	log   *logger.Logger
}

// NewCachedSubscriptionStore создает хранилище с кешированием.
func NewCachedSubscriptionStore(store Store, cache *RedisCache, log *logger.Logger) *CachedSubscriptionStore {
	return &CachedSubscriptionStore{
		Store: store,
		cache: cache,
		log:   log,
	}
}

// LoadSubscriptionByStripeID сначала ищет в кеше, потом в хранилище.
func (r *CachedSubscriptionStore) LoadSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*domain.Subscription, error) {
	cached, err := r.cache.GetByStripeID(ctx, stripeSubscriptionID)
	if err != nil {
		r.log.Warnw("Error getting subscription from cache", "error", err, "stripeSubscriptionID", stripeSubscriptionID)
	}
	if cached != nil {
		return cached, nil
	}

	sub, err := r.Store.LoadSubscriptionByStripeID(ctx, stripeSubscriptionID)
	if err != nil {
		return nil, err
	}
	r.fill(ctx, sub)
	return sub, nil
}

// LoadSubscriptionByTenant сначала ищет в кеше, потом в хранилище.
func (r *CachedSubscriptionStore) LoadSubscriptionByTenant(ctx context.Context, tenantID string) (*domain.Subscription, error) {
	cached, err := r.cache.GetByTenant(ctx, tenantID)
	if err != nil {
		r.log.Warnw("Error getting tenant subscription from cache", "error", err, "tenantID", tenantID)
	}
	if cached != nil {
		return cached, nil
	}

	sub, err := r.Store.LoadSubscriptionByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	r.fill(ctx, sub)
	return sub, nil
}

// UpsertSubscription пишет в хранилище и сбрасывает ключи тенанта.
func (r *CachedSubscriptionStore) UpsertSubscription(ctx context.Context, sub *domain.Subscription) error {
	var previousID string
	if cached, _ := r.cache.GetByTenant(ctx, sub.TenantID); cached != nil {
		previousID = cached.StripeSubscriptionID
	}

	if err := r.Store.UpsertSubscription(ctx, sub); err != nil {
		return err
	}

	if err := r.cache.Invalidate(ctx, sub.TenantID, sub.StripeSubscriptionID, previousID); err != nil {
		r.log.Warnw("Failed to invalidate subscription cache", "error", err, "tenantID", sub.TenantID)
	}
	return nil
}

func (r *CachedSubscriptionStore) fill(ctx context.Context, sub *domain.Subscription) {
	if err := r.cache.CacheSubscription(ctx, sub); err != nil {
		r.log.Warnw("Failed to cache subscription after fetching", "error", err, "stripeSubscriptionID", sub.StripeSubscriptionID)
	}
}
