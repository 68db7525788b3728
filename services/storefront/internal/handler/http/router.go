package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rajkumarkushi/sartree-ecommerce/pkg/health"
	"github.com/rajkumarkushi/sartree-ecommerce/pkg/middleware"
)

// RouterConfig holds the request-handling settings of the storefront API.
type RouterConfig struct {
	JWTSecret      string
	CORS           middleware.CORSConfig
	RateLimitRPS   int
	RateLimitBurst int
}

// NewRouter creates a chi router with all storefront routes registered.
func NewRouter(
	sessions Sessions,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("storefront"))
	r.Use(middleware.Tracing("storefront"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	cartHandler := NewCartHandler(sessions, logger)

	r.Route("/api/v1/storefront/cart", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.JWTSecret, logger))
		r.Use(middleware.RequestLogger(logger))
		r.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst,
			middleware.HeaderOrIP(middleware.DeviceIDHeader), logger))
		r.Use(ContentTypeJSON)
		r.Use(RequireDevice)

		r.Get("/", cartHandler.GetCart)
		r.Delete("/", cartHandler.ClearCart)
		r.Post("/sync", cartHandler.SyncCart)

		r.Post("/items", cartHandler.AddItem)
		r.Put("/items/{productId}", cartHandler.UpdateItemQuantity)
		r.Delete("/items/{productId}", cartHandler.RemoveItem)
	})

	return r
}
