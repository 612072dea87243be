// Package main запускает HTTP-сервер платформы Olea Controls.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/olea-platform/internal/config"
	"github.com/mmeshcher/olea-platform/internal/connectivity"
	"github.com/mmeshcher/olea-platform/internal/handler"
	"github.com/mmeshcher/olea-platform/internal/metrics"
	"github.com/mmeshcher/olea-platform/internal/middleware"
	"github.com/mmeshcher/olea-platform/internal/repository"
	"github.com/mmeshcher/olea-platform/internal/service"
	"github.com/mmeshcher/olea-platform/internal/upstream"
)

func openRepository(ctx context.Context, cfg *config.Config) (service.Repository, error) {
	switch cfg.Storage {
	case config.StoragePostgres:
		return repository.NewPostgresRepository(cfg.DatabaseURI)
	case config.StorageSQLite:
		return repository.NewSQLiteRepository(ctx, cfg.SQLitePath)
	default:
		return repository.NewMemoryRepository(), nil
	}
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		sugar.Fatalw("storage initialization error", "storage", cfg.Storage, "error", err.Error())
	}

	m := metrics.New()
	opts := []service.Option{service.WithLogger(logger), service.WithMetrics(m)}

	var (
		conn    service.Connectivity = connectivity.Static(true)
		monitor *connectivity.Monitor
	)
	if cfg.UpstreamAddress != "" {
		client := upstream.NewClient(cfg.UpstreamAddress)
		monitor = connectivity.NewMonitor(client, cfg.SyncInterval,
			connectivity.WithLogger(logger),
			connectivity.WithStateHook(m.SetOnline),
		)
		conn = monitor
		opts = append(opts, service.WithUploader(client))
	} else {
		m.SetOnline(true)
	}

	svc := service.NewService(repo, conn, opts...)
	defer svc.Close()

	if monitor != nil {
		monitor.Subscribe(func(ctx context.Context) error {
			n, err := svc.SyncPendingExpenses(ctx)
			if err != nil {
				logger.Error("reconnect sync error", zap.Error(err), zap.Int("synced", n))
			}
			return err
		})
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware, m)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	if monitor != nil {
		g.Go(func() error {
			sugar.Infow("starting back office monitor", "upstream", cfg.UpstreamAddress, "interval", cfg.SyncInterval)
			monitor.Start(ctx)
			<-ctx.Done()
			monitor.Stop()
			return nil
		})
	}

	g.Go(func() error {
		sugar.Infow("starting olea server", "addr", cfg.RunAddress, "storage", cfg.Storage)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

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
