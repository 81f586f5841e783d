package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dhoini/steadybooks-integration/internal/config"
	"github.com/Dhoini/steadybooks-integration/internal/db"
	"github.com/Dhoini/steadybooks-integration/internal/domain"
	"github.com/Dhoini/steadybooks-integration/internal/http/handlers"
	"github.com/Dhoini/steadybooks-integration/internal/http/routes"
	"github.com/Dhoini/steadybooks-integration/internal/integration/quickbooks"
	"github.com/Dhoini/steadybooks-integration/internal/integration/stripe"
	"github.com/Dhoini/steadybooks-integration/internal/kafka"
	"github.com/Dhoini/steadybooks-integration/internal/metrics"
	"github.com/Dhoini/steadybooks-integration/internal/middleware"
	"github.com/Dhoini/steadybooks-integration/internal/repository"
	"github.com/Dhoini/steadybooks-integration/internal/resilience"
	"github.com/Dhoini/steadybooks-integration/internal/service"
	"github.com/Dhoini/steadybooks-integration/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// App представляет собой контейнер для всех компонентов приложения
type App struct {
	Config    *config.Config
	Logger    *logger.Logger
	Registry  *prometheus.Registry
	Policy    *resilience.Policy
	Store     repository.Store
	Publisher kafka.Publisher

	Tokens   *quickbooks.TokenManager
	Sync     *service.SyncService
	Webhooks *service.WebhookService
	Billing  *service.BillingService

	Router *gin.Engine

	closers []func() error
}

// New собирает зависимости. Postgres, Redis и Kafka необязательны вне production:
// без них используются хранилище в памяти, state в памяти и NopPublisher.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{
		Config:   cfg,
		Logger:   log,
		Registry: metrics.NewRegistry(),
	}
	pingers := map[string]handlers.Pinger{}

	a.Policy = resilience.NewPolicy(cfg.Resilience.Settings(), metrics.NewResilienceMetrics(a.Registry), log)

	store, err := a.initStore(ctx, pingers)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	states := a.initRedis(ctx, &store, pingers)
	a.Store = store
	a.Publisher = a.initPublisher()

	syncMetrics := metrics.NewSyncMetrics(a.Registry)
	endpoints := cfg.QuickBooks.Endpoints()
	qbCfg := quickbooks.Config{
		ClientID:          cfg.QuickBooks.ClientID,
		ClientSecret:      cfg.QuickBooks.ClientSecret,
		RedirectURI:       cfg.QuickBooks.RedirectURI,
		Scopes:            cfg.QuickBooks.Scopes,
		AuthURL:           endpoints.AuthURL,
		TokenURL:          endpoints.TokenURL,
		APIBaseURL:        endpoints.APIBaseURL,
		RequestsPerMinute: cfg.QuickBooks.RequestsPerMinute,
	}
	qbClient := quickbooks.NewClient(qbCfg, a.Policy, log)
	a.Tokens = quickbooks.NewTokenManager(qbCfg, qbClient, store, a.Policy, syncMetrics, log)
	a.Sync = service.NewSyncService(store, a.Tokens, qbClient, a.Publisher, syncMetrics, log)

	prices := PriceTable(cfg.Stripe.Prices)
	stripeClient := stripe.NewClient(stripe.Config{
		SecretKey:       cfg.Stripe.SecretKey,
		WebhookSecret:   cfg.Stripe.WebhookSecret,
		SuccessURL:      cfg.Stripe.SuccessURL,
		CancelURL:       cfg.Stripe.CancelURL,
		PortalReturnURL: cfg.Stripe.PortalReturnURL,
		Prices:          prices,
	}, a.Policy, log)

	a.Webhooks = service.NewWebhookService(store, a.Publisher, metrics.NewWebhookMetrics(a.Registry), log).
		WithPlanResolver(prices)
	a.Billing = service.NewBillingService(store, stripeClient, a.Webhooks, log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	a.Router = gin.New()
	routes.SetupRoutes(a.Router, routes.Handlers{
		Auth:       middleware.NewJWTMiddleware(&middleware.HMACTokenValidator{Secret: []byte(cfg.Auth.JWTSecret)}, log),
		Webhook:    handlers.NewWebhookHandler(stripe.NewWebhookVerifier(cfg.Stripe.WebhookSecret), a.Webhooks, log),
		QuickBooks: handlers.NewQuickBooksHandler(a.Tokens, states, store, log),
		Sync:       handlers.NewSyncHandler(a.Sync, log),
		Billing:    handlers.NewBillingHandler(a.Billing, log),
		Health:     handlers.NewHealthHandler(a.Policy, pingers),
		Registry:   a.Registry,
	}, log)

	return a, nil
}

func (a *App) initStore(ctx context.Context, pingers map[string]handlers.Pinger) (repository.Store, error) {
	cfg := a.Config.Database
	if cfg.DSN == "" {
		a.Logger.Warnw("Database DSN is empty, using in-memory store")
		return repository.NewResilientStore(repository.NewMemoryStore(), a.Policy), nil
	}

	dbClient, err := db.NewDBClient(ctx, cfg.DSN, db.PoolSettings{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, a.Logger.Zap())
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, dbClient.Close)

	if err := dbClient.Migrate(ctx); err != nil {
		return nil, err
	}
	pingers["database"] = dbClient

	return repository.NewResilientStore(repository.NewPostgresStore(dbClient.DB(), a.Logger), a.Policy), nil
}

// initRedis подключает кеш подписок и хранилище OAuth state. Недоступный Redis не фатален.
func (a *App) initRedis(ctx context.Context, store *repository.Store, pingers map[string]handlers.Pinger) repository.OAuthStateStore {
	cfg := a.Config.Redis
	if cfg.Addr == "" {
		a.Logger.Infow("Redis is not configured, OAuth state kept in memory")
		return repository.NewMemoryOAuthStateStore()
	}

	client, err := repository.NewRedisClient(ctx, cfg.Addr, cfg.Password, cfg.DB, a.Logger)
	if err != nil {
		a.Logger.Warnw("Failed to initialize Redis, continuing without caching", "error", err)
		return repository.NewMemoryOAuthStateStore()
	}
	a.closers = append(a.closers, client.Close)
	pingers["redis"] = handlers.PingFunc(func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})

	*store = repository.NewCachedSubscriptionStore(*store, repository.NewRedisCache(client, cfg.TTL, a.Logger), a.Logger)
	a.Logger.Infow("Using cached subscription store")
	return repository.NewRedisOAuthStateStore(client)
}

func (a *App) initPublisher() kafka.Publisher {
	cfg := kafka.NewConfig(a.Config.Kafka.Brokers)
	if a.Config.Kafka.ClientID != "" {
		cfg.ClientID = a.Config.Kafka.ClientID
	}
	if !cfg.Enabled() {
		a.Logger.Infow("Kafka brokers are not configured, events are not published")
		return kafka.NopPublisher{}
	}

	if a.Config.Kafka.EnsureTopic {
		if err := kafka.EnsureTopics(cfg, a.Logger); err != nil {
			a.Logger.Warnw("Failed to ensure Kafka topics", "error", err)
		}
	}

	producer, err := kafka.NewProducer(cfg, a.Logger)
	if err != nil {
		a.Logger.Errorw("Failed to initialize Kafka producer, continuing without event publishing", "error", err)
		return kafka.NopPublisher{}
	}
	a.closers = append(a.closers, producer.Close)
	return producer
}

// PriceTable переводит цены из конфигурации в таблицу платных планов. Нераспознанные
// ключи и бесплатный план пропускаются.
func PriceTable(prices map[string]config.PlanPrices) stripe.PriceTable {
	table := make(stripe.PriceTable, len(prices))
	for name, p := range prices {
		plan := domain.ParsePlan(name)
		if plan == domain.DefaultPlan {
			continue
		}
		table[plan] = stripe.PlanPrices{Month: p.Month, Year: p.Year}
	}
	return table
}

// Close освобождает ресурсы в обратном порядке создания.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		a.Logger.Errorw("Errors while closing resources", "error", errors.Join(errs...))
		return fmt.Errorf("close app: %w", errors.Join(errs...))
	}
	return nil
}
