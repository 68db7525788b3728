package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/rajkumarkushi/sartree-ecommerce/pkg/database"
	"github.com/rajkumarkushi/sartree-ecommerce/pkg/health"
	"github.com/rajkumarkushi/sartree-ecommerce/pkg/httpclient"
	pkgkafka "github.com/rajkumarkushi/sartree-ecommerce/pkg/kafka"
	"github.com/rajkumarkushi/sartree-ecommerce/pkg/middleware"
	"github.com/rajkumarkushi/sartree-ecommerce/pkg/tracing"
	"github.com/rajkumarkushi/sartree-ecommerce/services/storefront/internal/cartsync"
	"github.com/rajkumarkushi/sartree-ecommerce/services/storefront/internal/config"
	"github.com/rajkumarkushi/sartree-ecommerce/services/storefront/internal/event"
	"github.com/rajkumarkushi/sartree-ecommerce/services/storefront/internal/gateway"
	handler "github.com/rajkumarkushi/sartree-ecommerce/services/storefront/internal/handler/http"
	"github.com/rajkumarkushi/sartree-ecommerce/services/storefront/internal/session"
	"github.com/rajkumarkushi/sartree-ecommerce/services/storefront/internal/store"
)

const serviceName = "storefront"

// App wires together all dependencies and runs the storefront service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	rdb            *redis.Client
	producer       *pkgkafka.Producer
	sessions       *session.Manager
	tracerShutdown func(context.Context) error
	httpServer     *http.Server
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	// Tracing.
	tcfg := tracing.DefaultConfig(serviceName)
	tcfg.Environment = cfg.Environment
	tcfg.Enabled = cfg.OTELEnabled
	tcfg.OTLPEndpoint = cfg.OTELEndpoint
	tcfg.SampleRate = cfg.OTELSampleRate
	shutdown, err := tracing.InitTracer(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = shutdown

	healthHandler := health.NewHandler()

	// Local persistence.
	kv, err := a.newStore(ctx, healthHandler)
	if err != nil {
		return nil, err
	}

	// Cart backend client.
	remote := a.newGateway(healthHandler)

	// Cart events.
	var events cartsync.EventPublisher
	if cfg.KafkaEnabled() {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		events = event.NewProducer(a.producer, logger)
		healthHandler.RegisterOptional("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	} else {
		logger.Info("kafka brokers not configured, cart events disabled")
	}

	a.sessions = session.NewManager(kv, remote, events, logger, cfg.SessionIdleTTL)

	// HTTP router.
	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSOrigins
	cors.Environment = cfg.Environment
	router := handler.NewRouter(a.sessions, healthHandler, handler.RouterConfig{
		JWTSecret:      cfg.JWTSecret,
		CORS:           cors,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}, logger)

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return a, nil
}

func (a *App) newStore(ctx context.Context, healthHandler *health.Handler) (store.KV, error) {
	if a.cfg.StoreBackend != config.StoreRedis {
		a.logger.Info("using in-memory cart store")
		return store.NewMemoryKV(), nil
	}

	rcfg := database.DefaultRedisConfig()
	rcfg.Addr = a.cfg.RedisAddr
	rcfg.Password = a.cfg.RedisPass
	rcfg.DB = a.cfg.RedisDB
	rdb, err := database.NewRedisClient(ctx, rcfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	err = database.RegisterPoolMetrics(prometheus.DefaultRegisterer, rdb, serviceName)
	if err != nil && !errors.As(err, &prometheus.AlreadyRegisteredError{}) {
		_ = rdb.Close()
		return nil, fmt.Errorf("register redis pool metrics: %w", err)
	}
	a.rdb = rdb
	healthHandler.Register("redis", database.RedisChecker(rdb))

	a.logger.Info("connected to Redis",
		slog.String("addr", a.cfg.RedisAddr),
		slog.Int("db", a.cfg.RedisDB),
	)
	return store.NewRedisKV(rdb, a.cfg.CartTTLDuration()), nil
}

func (a *App) newGateway(healthHandler *health.Handler) *gateway.Gateway {
	hcfg := httpclient.DefaultConfig()
	hcfg.Timeout = a.cfg.RemoteCartTimeout
	hcfg.MaxRetries = a.cfg.RemoteCartMaxRetries
	client := httpclient.NewCircuitBreakerClient(
		httpclient.New(hcfg),
		httpclient.DefaultCircuitBreakerConfig("cart-backend"),
		a.logger,
	)

	healthURL := a.cfg.RemoteCartBaseURL + "/health"
	healthHandler.RegisterOptional("cart_backend", func(ctx context.Context) error {
		resp, err := client.Get(ctx, healthURL)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("cart backend health returned %d", resp.StatusCode)
		}
		return nil
	})

	return gateway.New(a.cfg.RemoteCartBaseURL, client, a.logger)
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	// Graceful HTTP server shutdown with a 10-second deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	a.sessions.Close()

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}

	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
		}
	}

	if err := a.tracerShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}
