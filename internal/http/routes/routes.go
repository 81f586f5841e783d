package routes

import (
	"net/http"

	"github.com/Dhoini/steadybooks-integration/internal/http/handlers"
	"github.com/Dhoini/steadybooks-integration/internal/middleware"
	"github.com/Dhoini/steadybooks-integration/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers набор обработчиков и мидлварей, собранный в app.
type Handlers struct {
	Auth       *middleware.JWTMiddleware
	Webhook    *handlers.WebhookHandler
	QuickBooks *handlers.QuickBooksHandler
	Sync       *handlers.SyncHandler
	Billing    *handlers.BillingHandler
	Health     *handlers.HealthHandler
	Registry   *prometheus.Registry
}

// SetupRoutes настраивает все маршруты API для Gin роутера
func SetupRoutes(router *gin.Engine, h Handlers, log *logger.Logger) {
	// Промежуточное ПО для всех запросов
	router.Use(middleware.RequestLogger(log))
	router.Use(gin.Recovery())

	router.GET("/health", h.Health.HealthCheck)
	if h.Registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.Registry, promhttp.HandlerOpts{Registry: h.Registry})))
	}

	api := router.Group("/api/v1")
	{
		// Публичные маршруты: подпись Stripe и state OAuth проверяются в обработчиках
		api.POST("/webhooks/stripe", h.Webhook.HandleStripeWebhook)
		api.GET("/quickbooks/callback", h.QuickBooks.Callback)

		auth := api.Group("")
		auth.Use(h.Auth.RequireAuth())

		// Маршруты дашборда требуют JWT, но не проверяют владельца: хранилище
		// не связывает dashboard_id с тенантом, это делает вызывающее приложение.
		dashboards := auth.Group("/dashboards/:dashboard_id")
		{
			dashboards.GET("/quickbooks/connect", h.QuickBooks.Connect)
			dashboards.GET("/quickbooks", h.QuickBooks.Status)
			dashboards.DELETE("/quickbooks", h.QuickBooks.Disconnect)
			dashboards.POST("/sync", h.Sync.Sync)
		}

		billing := auth.Group("/billing")
		{
			billing.POST("/checkout", h.Billing.Checkout)
			billing.POST("/portal", h.Billing.Portal)
			billing.POST("/reconcile", h.Billing.Reconcile)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	log.Infow("API routes successfully configured")
}
