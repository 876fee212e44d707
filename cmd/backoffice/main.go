// Package main запускает HTTP-сервер бэк-офиса.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/cod-backoffice/internal/commission"
	"github.com/mmeshcher/cod-backoffice/internal/config"
	"github.com/mmeshcher/cod-backoffice/internal/currency"
	"github.com/mmeshcher/cod-backoffice/internal/handler"
	"github.com/mmeshcher/cod-backoffice/internal/metrics"
	"github.com/mmeshcher/cod-backoffice/internal/middleware"
	"github.com/mmeshcher/cod-backoffice/internal/notify"
	"github.com/mmeshcher/cod-backoffice/internal/repository"
	"github.com/mmeshcher/cod-backoffice/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	var repo service.Repository
	if cfg.DatabaseURI != "" {
		repo, err = repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
	} else {
		sugar.Warn("DATABASE_URI is empty, using the in-memory store")
		repo = repository.NewMemoryRepository()
	}

	hook := currency.WithFallbackHook(metrics.CurrencyFallbackHook)
	rates, err := cfg.Rates(hook)
	if err != nil {
		sugar.Fatalw("currency table error", "error", err.Error())
	}
	settlement, err := cfg.Settlement(hook)
	if err != nil {
		sugar.Fatalw("settlement table error", "error", err.Error())
	}

	var publisher notify.Publisher = notify.NewLogPublisher(logger)
	if cfg.RedisAddress != "" {
		rp, err := notify.NewRedisPublisher(cfg.RedisAddress, cfg.RedisChannel)
		if err != nil {
			sugar.Fatalw("redis initialization error", "error", err.Error())
		}
		publisher = rp
	}

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithMinRemittance(cfg.MinRemittance),
	}
	if cfg.RatesAddress != "" {
		opts = append(opts, service.WithRatesClient(currency.NewClient(cfg.RatesAddress)))
	}

	svc := service.NewService(repo, currency.NewProvider(rates), commission.NewEngine(cfg.AgentCommissionPct, settlement), publisher, opts...)
	defer svc.Close()

	if cfg.OwnerID != "" {
		ownerID, err := uuid.Parse(cfg.OwnerID)
		if err != nil {
			sugar.Fatalw("invalid OWNER_ID", "error", err.Error())
		}
		if _, err := svc.BootstrapOwner(context.Background(), ownerID, cfg.OwnerName); err != nil {
			sugar.Fatalw("bootstrap owner error", "error", err.Error())
		}
	}

	if cfg.AuthSecret == "" {
		sugar.Warn("AUTH_SECRET is empty, sessions will not survive a restart")
	}
	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	if cfg.SessionKey == "" {
		sugar.Warn("SESSION_KEY is empty, POST /api/session is disabled")
	}
	h := handler.NewHandler(svc, logger, authMiddleware, handler.WithSessionKey(cfg.SessionKey))

	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Фоновое обновление курсов валют
	g.Go(func() error {
		svc.StartRateUpdates(ctx, cfg.RatesInterval)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting backoffice server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
