package service

import (
	"context"
	"errors"
	"time"

	"github.com/Dhoini/steadybooks-integration/internal/domain"
	"github.com/Dhoini/steadybooks-integration/internal/kafka"
	"github.com/Dhoini/steadybooks-integration/internal/metrics"
	"github.com/Dhoini/steadybooks-integration/internal/repository"
	"github.com/Dhoini/steadybooks-integration/internal/resilience"
	"github.com/Dhoini/steadybooks-integration/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// Показатели снимка, имена используются в логах и метриках.
const (
	FigureCashBalance         = "cash_balance"
	FigureProfitLoss          = "profit_loss"
	FigureTaxesDue            = "taxes_due"
	FigureOutstandingInvoices = "outstanding_invoices"
)

// TokenRefresher обновляет токен связи перед запросами к API.
type TokenRefresher interface {
	EnsureFreshToken(ctx context.Context, conn *domain.Connection) error
}

// AccountingAPI запросы показателей к бухгалтерскому API.
type AccountingAPI interface {
	CashBalance(ctx context.Context, accessToken, realmID string) (float64, error)
	ProfitLoss(ctx context.Context, accessToken, realmID string, period domain.DateRange) (domain.ProfitLoss, error)
	TaxLiability(ctx context.Context, accessToken, realmID string) (float64, error)
	OutstandingInvoices(ctx context.Context, accessToken, realmID string) (float64, error)
}

// SyncStore часть хранилища, нужная синхронизации.
type SyncStore interface {
	repository.ConnectionStore
	repository.DashboardConfigStore
}

// SyncService собирает финансовый снимок дашборда из QuickBooks.
type SyncService struct {
	store     SyncStore
	tokens    TokenRefresher
	api       AccountingAPI
	publisher kafka.Publisher
	metrics   metrics.SyncMetrics
	log       *logger.Logger
	now       func() time.Time
}

// NewSyncService создает сервис синхронизации.
func NewSyncService(
	store SyncStore,
	tokens TokenRefresher,
	api AccountingAPI,
	publisher kafka.Publisher,
	m metrics.SyncMetrics,
	log *logger.Logger,
) *SyncService {
	if publisher == nil {
		publisher = kafka.NopPublisher{}
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &SyncService{
		store:     store,
		tokens:    tokens,
		api:       api,
		publisher: publisher,
		metrics:   m,
		log:       log.With("component", "sync"),
		now:       time.Now,
	}
}

// Sync возвращает свежий снимок или nil. nil означает, что вызывающий код должен
// использовать запасной источник данных: связи нет, токен не обновился или хранилище
// недоступно. Состояние связи при этом сохраняется в хранилище.
func (s *SyncService) Sync(ctx context.Context, dashboardID int64) *domain.Snapshot {
	start := time.Now()
	snapshot, outcome := s.sync(ctx, dashboardID)
	s.metrics.ObserveSync(outcome, time.Since(start))
	return snapshot
}

func (s *SyncService) sync(ctx context.Context, dashboardID int64) (*domain.Snapshot, string) {
	conn, err := s.store.LoadConnection(ctx, dashboardID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !conn.Usable()) {
		s.log.Debugw("No active QuickBooks connection", "dashboardID", dashboardID)
		return nil, "no_connection"
	}
	if err != nil {
		s.log.Errorw("Failed to load QuickBooks connection", "dashboardID", dashboardID, "kind", resilience.KindOf(err).String(), "error", err)
		return nil, "storage_error"
	}

	previous := conn.Status

	cfg, err := s.store.LoadDashboardConfig(ctx, dashboardID)
	if err != nil {
		s.fail(ctx, conn, previous, err)
		return nil, "storage_error"
	}

	if err := s.tokens.EnsureFreshToken(ctx, conn); err != nil {
		s.log.Warnw("QuickBooks token is not usable, skipping sync", "dashboardID", dashboardID, "error", err)
		if conn.Status != domain.ConnectionStatusExpired {
			conn.MarkHealth(domain.ConnectionStatusError, err.Error(), s.now().UTC())
		}
		s.persistHealth(ctx, conn, previous)
		return nil, "token_error"
	}

	snapshot, err := s.fetch(ctx, conn, *cfg)
	if err != nil {
		s.log.Warnw("Sync cancelled", "dashboardID", dashboardID, "error", err)
		return nil, "cancelled"
	}

	now := s.now().UTC()
	conn.LastSyncAt = &now
	conn.MarkHealth(domain.ConnectionStatusConnected, "", now)
	if err := s.store.SaveConnection(ctx, conn); err != nil {
		s.fail(ctx, conn, previous, err)
		return nil, "storage_error"
	}
	s.publishHealth(ctx, conn, previous)

	s.log.Infow("Dashboard synced",
		"dashboardID", dashboardID,
		"cash", snapshot.CashBalance,
		"revenue", snapshot.Revenue,
		"expenses", snapshot.Expenses,
		"taxesDue", snapshot.TaxesDue,
		"outstandingInvoices", snapshot.OutstandingInvoices,
	)
	return snapshot, "success"
}

// fetch запускает включенные запросы параллельно. Ошибка одного запроса обнуляет
// только его показатель. Ошибка возвращается лишь при отмене ctx.
func (s *SyncService) fetch(ctx context.Context, conn *domain.Connection, cfg domain.DashboardConfig) (*domain.Snapshot, error) {
	var (
		cash, taxes, invoices float64
		pl                    domain.ProfitLoss
	)
	token, realm := conn.AccessToken, conn.RealmID
	period := domain.DateRangeFor(cfg, s.now())

	g, gctx := errgroup.WithContext(ctx)

	if cfg.ShowCashBalance {
		g.Go(func() error {
			v, err := s.api.CashBalance(gctx, token, realm)
			cash = v
			return s.degrade(gctx, conn.DashboardID, FigureCashBalance, err)
		})
	}
	if cfg.ShowProfit {
		g.Go(func() error {
			v, err := s.api.ProfitLoss(gctx, token, realm, period)
			pl = v
			return s.degrade(gctx, conn.DashboardID, FigureProfitLoss, err)
		})
	}
	if cfg.ShowTaxesDue {
		g.Go(func() error {
			v, err := s.api.TaxLiability(gctx, token, realm)
			taxes = v
			return s.degrade(gctx, conn.DashboardID, FigureTaxesDue, err)
		})
	}
	if cfg.ShowOutstandingInvoices {
		g.Go(func() error {
			v, err := s.api.OutstandingInvoices(gctx, token, realm)
			invoices = v
			return s.degrade(gctx, conn.DashboardID, FigureOutstandingInvoices, err)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return domain.NewSnapshot(cash, pl, taxes, invoices, s.now().UTC()), nil
}

// degrade гасит ошибку показателя. Отмена ctx пробрасывается, чтобы остановить остальные запросы.
func (s *SyncService) degrade(ctx context.Context, dashboardID int64, figure string, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.metrics.IncFigureFailure(figure)
	s.log.Warnw("Figure query failed, using zero",
		"dashboardID", dashboardID,
		"figure", figure,
		"kind", resilience.KindDegradedPartial.String(),
		"cause", resilience.KindOf(err).String(),
		"error", err,
	)
	return nil
}

// fail помечает связь как Error после сбоя хранилища. Сохранение best effort.
func (s *SyncService) fail(ctx context.Context, conn *domain.Connection, previous domain.ConnectionStatus, err error) {
	s.log.Errorw("Sync aborted", "dashboardID", conn.DashboardID, "kind", resilience.KindOf(err).String(), "error", err)
	conn.MarkHealth(domain.ConnectionStatusError, err.Error(), s.now().UTC())
	s.persistHealth(ctx, conn, previous)
}

func (s *SyncService) persistHealth(ctx context.Context, conn *domain.Connection, previous domain.ConnectionStatus) {
	if err := s.store.SaveConnection(ctx, conn); err != nil {
		s.log.Errorw("Failed to persist connection health", "dashboardID", conn.DashboardID, "status", conn.Status, "error", err)
		return
	}
	s.publishHealth(ctx, conn, previous)
}

func (s *SyncService) publishHealth(ctx context.Context, conn *domain.Connection, previous domain.ConnectionStatus) {
	if conn.Status == previous {
		return
	}
	err := s.publisher.PublishConnectionHealthChanged(ctx, kafka.ConnectionHealthChanged{
		DashboardID: conn.DashboardID,
		RealmID:     conn.RealmID,
		From:        previous,
		To:          conn.Status,
		Reason:      conn.LastErrorString(),
		OccurredAt:  s.now().UTC(),
	})
	if err != nil {
		s.log.Warnw("Failed to publish connection health event", "dashboardID", conn.DashboardID, "error", err)
	}
}
