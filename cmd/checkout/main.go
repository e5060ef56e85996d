package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/and161185/checkout/internal/config"
	"github.com/and161185/checkout/internal/deps"
	"github.com/and161185/checkout/internal/gateway"
	"github.com/and161185/checkout/internal/gateway/providers"
	"github.com/and161185/checkout/internal/orders"
	"github.com/and161185/checkout/internal/server"
	"github.com/and161185/checkout/internal/storage"
	"github.com/and161185/checkout/internal/storage/memory"
	"github.com/and161185/checkout/internal/wallet"
	"github.com/and161185/checkout/internal/webhook"
	"github.com/and161185/checkout/internal/withdrawal"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type backend interface {
	server.UserStorage
	orders.Storage
	wallet.Storage
	webhook.Storage
	withdrawal.Storage
	Close()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// .env необязателен
	_ = godotenv.Load()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal(err)
	}

	deps, err := deps.NewDependencies(cfg.SecretKey, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	logger := deps.Logger
	defer logger.Sync()

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatal(err)
	}
	defer store.Close()

	platform, err := config.NewPlatformStore(cfg.PlatformConfigPath)
	if err != nil {
		logger.Fatal(err)
	}

	list, err := providers.Build(platform.Platform(), logger)
	if err != nil {
		logger.Fatal(err)
	}
	router := gateway.NewRouter(list...)
	logger.Infow("providers_registered", "providers", router.Providers(), "routing", platform.Routing())

	go reloadOnHangup(ctx, platform, router, logger)

	walletLedger := wallet.NewLedger(store, logger)
	orderLedger := orders.NewLedger(store, router, platform, walletLedger, logger, func(id string) string {
		return providers.NotificationURL(cfg.PublicURL, id)
	})
	reconciler := webhook.NewReconciler(store, router, orderLedger, logger)
	workflow := withdrawal.NewWorkflow(store, logger)

	srv := server.NewServer(store, server.Services{
		Orders:      orderLedger,
		Webhooks:    reconciler,
		Wallet:      walletLedger,
		Withdrawals: workflow,
	}, cfg, deps)

	logger.Infow("server_starting", "address", cfg.RunAddress)
	if err := srv.Run(ctx); err != nil {
		logger.Fatal(err)
	}
}

func openStorage(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (backend, error) {
	if cfg.DatabaseURI == "" {
		logger.Warn("DATABASE_URI is empty, using in-memory storage")
		return memory.New(), nil
	}

	if err := storage.Migrate(cfg.DatabaseURI); err != nil {
		return nil, err
	}
	return storage.NewPostgreStorage(ctx, cfg.DatabaseURI)
}

// по SIGHUP перечитываем настройки и пересобираем провайдеров
func reloadOnHangup(ctx context.Context, platform *config.PlatformStore, router *gateway.Router, logger *zap.SugaredLogger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := platform.Reload(); err != nil {
				logger.Errorw("platform_reload_failed", "error", err)
				continue
			}
			list, err := providers.Build(platform.Platform(), logger)
			if err != nil {
				logger.Errorw("platform_reload_failed", "error", err)
				continue
			}
			for _, p := range list {
				router.Register(p)
			}
			logger.Infow("platform_reloaded", "providers", router.Providers(), "routing", platform.Routing())
		}
	}
}
