// Command mockcart serves an in-memory cart backend for local development
// of the storefront service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rajkumarkushi/sartree-ecommerce/pkg/logger"
	"github.com/rajkumarkushi/sartree-ecommerce/pkg/middleware"
	"github.com/rajkumarkushi/sartree-ecommerce/services/storefront/internal/config"
	"github.com/rajkumarkushi/sartree-ecommerce/services/storefront/internal/mockbackend"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New("mock-cart-backend", cfg.LogLevel)
	backend := mockbackend.New(mockbackend.DefaultCatalog(), log)

	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestLogging(log))
	r.Mount("/", backend.Routes())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.MockCartPort),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		log.Info("starting mock cart backend", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("mock cart backend failed", slog.String("error", err.Error()))
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("mock cart backend shutdown error", slog.String("error", err.Error()))
	}
	log.Info("mock cart backend stopped")
}
