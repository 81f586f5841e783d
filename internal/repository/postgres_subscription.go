package repository

import (
	"context"
	"time"

	"github.com/Dhoini/steadybooks-integration/internal/domain"
	"github.com/Dhoini/steadybooks-integration/pkg/logger"
	"github.com/jmoiron/sqlx"
)

const subscriptionColumns = `
        id, tenant_id, stripe_customer_id, stripe_subscription_id, stripe_price_id,
        plan, status, amount, currency, billing_interval,
        current_period_start, current_period_end, cancel_at, canceled_at,
        trial_start, trial_end, created_at, updated_at`

// PostgresStore реализует Store для PostgreSQL.
type PostgresStore struct {
	db  *sqlx.DB
	log *logger.Logger
	now func() time.Time
}

// NewPostgresStore создает новый экземпляр хранилища для PostgreSQL.
func NewPostgresStore(db *sqlx.DB, log *logger.Logger) *PostgresStore {
	return &PostgresStore{
		db:  db,
		log: log,
		now: time.Now,
	}
}

// LoadSubscriptionByStripeID возвращает подписку по ее Stripe ID.
func (r *PostgresStore) LoadSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*domain.Subscription, error) {
	var sub domain.Subscription
	query := `SELECT` + subscriptionColumns + `
        FROM subscriptions
        WHERE stripe_subscription_id = $1`

	if err := r.db.GetContext(ctx, &sub, query, stripeSubscriptionID); err != nil {
		err = wrapErr("load subscription by stripe id", err)
		if err != ErrNotFound {
			r.log.Errorw("Failed to get subscription from DB", "error", err, "stripeSubscriptionID", stripeSubscriptionID)
		}
		return nil, err
	}
	return &sub, nil
}

// LoadSubscriptionByTenant возвращает подписку тенанта.
func (r *PostgresStore) LoadSubscriptionByTenant(ctx context.Context, tenantID string) (*domain.Subscription, error) {
	var sub domain.Subscription
	query := `SELECT` + subscriptionColumns + `
        FROM subscriptions
        WHERE tenant_id = $1`

	if err := r.db.GetContext(ctx, &sub, query, tenantID); err != nil {
		err = wrapErr("load subscription by tenant", err)
		if err != ErrNotFound {
			r.log.Errorw("Failed to get tenant subscription from DB", "error", err, "tenantID", tenantID)
		}
		return nil, err
	}
	return &sub, nil
}

// UpsertSubscription вставляет подписку или обновляет запись тенанта на месте.
// Конфликт по tenant_id сохраняет одну запись на тенанта.
func (r *PostgresStore) UpsertSubscription(ctx context.Context, sub *domain.Subscription) error {
	now := r.now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now

	query := `
        INSERT INTO subscriptions (
            tenant_id, stripe_customer_id, stripe_subscription_id, stripe_price_id,
            plan, status, amount, currency, billing_interval,
            current_period_start, current_period_end, cancel_at, canceled_at,
            trial_start, trial_end, created_at, updated_at
        ) VALUES (
            :tenant_id, :stripe_customer_id, :stripe_subscription_id, :stripe_price_id,
            :plan, :status, :amount, :currency, :billing_interval,
            :current_period_start, :current_period_end, :cancel_at, :canceled_at,
            :trial_start, :trial_end, :created_at, :updated_at
        )
        ON CONFLICT (tenant_id) DO UPDATE SET
            stripe_customer_id = EXCLUDED.stripe_customer_id,
            stripe_subscription_id = EXCLUDED.stripe_subscription_id,
            stripe_price_id = EXCLUDED.stripe_price_id,
            plan = EXCLUDED.plan,
            status = EXCLUDED.status,
            amount = EXCLUDED.amount,
            currency = EXCLUDED.currency,
            billing_interval = EXCLUDED.billing_interval,
            current_period_start = EXCLUDED.current_period_start,
            current_period_end = EXCLUDED.current_period_end,
            cancel_at = EXCLUDED.cancel_at,
            canceled_at = EXCLUDED.canceled_at,
            trial_start = EXCLUDED.trial_start,
            trial_end = EXCLUDED.trial_end,
            updated_at = EXCLUDED.updated_at
        RETURNING id`

	rows, err := r.db.NamedQueryContext(ctx, query, sub)
	if err != nil {
		r.log.Errorw("Failed to upsert subscription in DB", "error", err, "tenantID", sub.TenantID, "stripeSubscriptionID", sub.StripeSubscriptionID)
		return wrapErr("upsert subscription", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&sub.ID); err != nil {
			return wrapErr("upsert subscription", err)
		}
	}
	if err := rows.Err(); err != nil {
		return wrapErr("upsert subscription", err)
	}

	r.log.Debugw("Subscription upserted", "tenantID", sub.TenantID, "stripeSubscriptionID", sub.StripeSubscriptionID, "status", sub.Status)
	return nil
}
