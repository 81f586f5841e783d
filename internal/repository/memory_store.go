package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Dhoini/steadybooks-integration/internal/domain"
)

// MemoryStore реализует Store в памяти процесса. Используется в тестах и в режиме без базы.
// Методы возвращают копии, чтобы вызывающий код не менял состояние хранилища напрямую.
type MemoryStore struct {
	mu            sync.RWMutex
	connections   map[int64]domain.Connection
	configs       map[int64]domain.DashboardConfig
	subscriptions map[string]domain.Subscription // по tenant ID
	byStripeID    map[string]string              // stripe subscription ID -> tenant ID
	tenants       map[string]domain.Tenant
	nextID        int64
	now           func() time.Time
}

// NewMemoryStore создает пустое хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		connections:   make(map[int64]domain.Connection),
		configs:       make(map[int64]domain.DashboardConfig),
		subscriptions: make(map[string]domain.Subscription),
		byStripeID:    make(map[string]string),
		tenants:       make(map[string]domain.Tenant),
		now:           time.Now,
	}
}

// PutTenant добавляет или заменяет тенанта.
func (s *MemoryStore) PutTenant(t domain.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[t.ID] = t
}

// PutDashboardConfig добавляет или заменяет настройки дашборда.
func (s *MemoryStore) PutDashboardConfig(cfg domain.DashboardConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.DashboardID] = cfg
}

func (s *MemoryStore) LoadConnection(ctx context.Context, dashboardID int64) (*domain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, ok := s.connections[dashboardID]
	if !ok {
		return nil, ErrNotFound
	}
	return &conn, nil
}

func (s *MemoryStore) SaveConnection(ctx context.Context, conn *domain.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conn.ID == 0 {
		if existing, ok := s.connections[conn.DashboardID]; ok {
			conn.ID = existing.ID
		} else {
			s.nextID++
			conn.ID = s.nextID
		}
	}
	if conn.ConnectedAt.IsZero() {
		conn.ConnectedAt = s.now().UTC()
	}
	s.connections[conn.DashboardID] = *conn
	return nil
}

func (s *MemoryStore) DisconnectConnection(ctx context.Context, dashboardID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.connections[dashboardID]
	if !ok {
		return ErrNotFound
	}
	conn.Disconnect(s.now().UTC())
	s.connections[dashboardID] = conn
	return nil
}

func (s *MemoryStore) LoadDashboardConfig(ctx context.Context, dashboardID int64) (*domain.DashboardConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[dashboardID]
	if !ok {
		cfg = domain.DefaultDashboardConfig(dashboardID)
	}
	return &cfg, nil
}

func (s *MemoryStore) LoadSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tenantID, ok := s.byStripeID[stripeSubscriptionID]
	if !ok {
		return nil, ErrNotFound
	}
	sub := s.subscriptions[tenantID]
	return &sub, nil
}

func (s *MemoryStore) LoadSubscriptionByTenant(ctx context.Context, tenantID string) (*domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subscriptions[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	return &sub, nil
}

func (s *MemoryStore) UpsertSubscription(ctx context.Context, sub *domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.byStripeID[sub.StripeSubscriptionID]; ok && owner != sub.TenantID {
		return &StorageError{
			Op:  "upsert subscription",
			Err: fmt.Errorf("stripe subscription %s belongs to another tenant", sub.StripeSubscriptionID),
		}
	}

	now := s.now().UTC()
	if existing, ok := s.subscriptions[sub.TenantID]; ok {
		sub.ID = existing.ID
		if sub.CreatedAt.IsZero() {
			sub.CreatedAt = existing.CreatedAt
		}
		if existing.StripeSubscriptionID != sub.StripeSubscriptionID {
			delete(s.byStripeID, existing.StripeSubscriptionID)
		}
	} else {
		s.nextID++
		sub.ID = s.nextID
		if sub.CreatedAt.IsZero() {
			sub.CreatedAt = now
		}
	}
	sub.UpdatedAt = now

	s.subscriptions[sub.TenantID] = *sub
	s.byStripeID[sub.StripeSubscriptionID] = sub.TenantID
	return nil
}

func (s *MemoryStore) LoadTenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (s *MemoryStore) UpdateTenantPlan(ctx context.Context, tenantID string, plan domain.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return ErrNotFound
	}
	t.CurrentPlan = plan
	s.tenants[tenantID] = t
	return nil
}

func (s *MemoryStore) SetTenantCustomer(ctx context.Context, tenantID, stripeCustomerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return ErrNotFound
	}
	t.StripeCustomerID = stripeCustomerID
	s.tenants[tenantID] = t
	return nil
}
