package repository

import (
	"context"

	"github.com/Dhoini/steadybooks-integration/internal/domain"
)

// ConnectionStore хранилище связей с QuickBooks. Отсутствующая запись дает ErrNotFound.
type ConnectionStore interface {
	// LoadConnection возвращает связь дашборда.
	LoadConnection(ctx context.Context, dashboardID int64) (*domain.Connection, error)

	// SaveConnection сохраняет связь целиком, токены и сроки одной записью.
	SaveConnection(ctx context.Context, conn *domain.Connection) error

	// DisconnectConnection очищает токены и переводит связь в Disconnected.
	DisconnectConnection(ctx context.Context, dashboardID int64) error
}

// DashboardConfigStore настройки виджетов дашборда.
type DashboardConfigStore interface {
	// LoadDashboardConfig возвращает настройки; без записи используются значения по умолчанию.
	LoadDashboardConfig(ctx context.Context, dashboardID int64) (*domain.DashboardConfig, error)
}

// SubscriptionStore определяет методы для работы с хранилищем подписок.
type SubscriptionStore interface {
	// LoadSubscriptionByStripeID возвращает подписку по ее Stripe ID.
	LoadSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*domain.Subscription, error)

	// LoadSubscriptionByTenant возвращает подписку тенанта.
	LoadSubscriptionByTenant(ctx context.Context, tenantID string) (*domain.Subscription, error)

	// UpsertSubscription создает или обновляет подписку тенанта на месте.
	// У тенанта никогда не бывает двух записей.
	UpsertSubscription(ctx context.Context, sub *domain.Subscription) error
}

// TenantStore денормализованные поля тенанта, которые меняют вебхуки.
type TenantStore interface {
	LoadTenant(ctx context.Context, tenantID string) (*domain.Tenant, error)
	UpdateTenantPlan(ctx context.Context, tenantID string, plan domain.Plan) error
	SetTenantCustomer(ctx context.Context, tenantID, stripeCustomerID string) error
}

// Store полный контракт хранилища интеграционного слоя.
type Store interface {
	ConnectionStore
	DashboardConfigStore
	SubscriptionStore
	TenantStore
}
