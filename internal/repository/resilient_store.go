package repository

import (
	"context"

	"github.com/Dhoini/steadybooks-integration/internal/domain"
	"github.com/Dhoini/steadybooks-integration/internal/resilience"
)

// ResilientStore выполняет каждое обращение к хранилищу через политику класса storage.
type ResilientStore struct {
	next   Store
	policy *resilience.Policy
}

// NewResilientStore оборачивает хранилище политикой устойчивости.
func NewResilientStore(next Store, policy *resilience.Policy) *ResilientStore {
	return &ResilientStore{next: next, policy: policy}
}

func (s *ResilientStore) LoadConnection(ctx context.Context, dashboardID int64) (*domain.Connection, error) {
	return resilience.Execute(ctx, s.policy, resilience.ClassStorage, func(ctx context.Context) (*domain.Connection, error) {
		return s.next.LoadConnection(ctx, dashboardID)
	})
}

func (s *ResilientStore) SaveConnection(ctx context.Context, conn *domain.Connection) error {
	return s.policy.Run(ctx, resilience.ClassStorage, func(ctx context.Context) error {
		return s.next.SaveConnection(ctx, conn)
	})
}

func (s *ResilientStore) DisconnectConnection(ctx context.Context, dashboardID int64) error {
	return s.policy.Run(ctx, resilience.ClassStorage, func(ctx context.Context) error {
		return s.next.DisconnectConnection(ctx, dashboardID)
	})
}

func (s *ResilientStore) LoadDashboardConfig(ctx context.Context, dashboardID int64) (*domain.DashboardConfig, error) {
	return resilience.Execute(ctx, s.policy, resilience.ClassStorage, func(ctx context.Context) (*domain.DashboardConfig, error) {
		return s.next.LoadDashboardConfig(ctx, dashboardID)
	})
}

func (s *ResilientStore) LoadSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*domain.Subscription, error) {
	return resilience.Execute(ctx, s.policy, resilience.ClassStorage, func(ctx context.Context) (*domain.Subscription, error) {
		return s.next.LoadSubscriptionByStripeID(ctx, stripeSubscriptionID)
	})
}

func (s *ResilientStore) LoadSubscriptionByTenant(ctx context.Context, tenantID string) (*domain.Subscription, error) {
	return resilience.Execute(ctx, s.policy, resilience.ClassStorage, func(ctx context.Context) (*domain.Subscription, error) {
		return s.next.LoadSubscriptionByTenant(ctx, tenantID)
	})
}

func (s *ResilientStore) UpsertSubscription(ctx context.Context, sub *domain.Subscription) error {
	return s.policy.Run(ctx, resilience.ClassStorage, func(ctx context.Context) error {
		return s.next.UpsertSubscription(ctx, sub)
	})
}

func (s *ResilientStore) LoadTenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	return resilience.Execute(ctx, s.policy, resilience.ClassStorage, func(ctx context.Context) (*domain.Tenant, error) {
		return s.next.LoadTenant(ctx, tenantID)
	})
}

func (s *ResilientStore) UpdateTenantPlan(ctx context.Context, tenantID string, plan domain.Plan) error {
	return s.policy.Run(ctx, resilience.ClassStorage, func(ctx context.Context) error {
		return s.next.UpdateTenantPlan(ctx, tenantID, plan)
	})
}

func (s *ResilientStore) SetTenantCustomer(ctx context.Context, tenantID, stripeCustomerID string) error {
	return s.policy.Run(ctx, resilience.ClassStorage, func(ctx context.Context) error {
		return s.next.SetTenantCustomer(ctx, tenantID, stripeCustomerID)
	})
}

var (
	_ Store = (*ResilientStore)(nil)
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
	_ Store = (*CachedSubscriptionStore)(nil)
)
