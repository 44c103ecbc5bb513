package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bazaarly/bazaarly-backend/api/routes"
	"github.com/bazaarly/bazaarly-backend/internal/ads"
	"github.com/bazaarly/bazaarly-backend/internal/notifications"
	"github.com/bazaarly/bazaarly-backend/internal/orders"
	"github.com/bazaarly/bazaarly-backend/internal/products"
	"github.com/bazaarly/bazaarly-backend/internal/subscriptions"
	"github.com/bazaarly/bazaarly-backend/internal/wallet"
	gatewaysvc "github.com/bazaarly/bazaarly-backend/internal/webhooks/gateway"
	"github.com/bazaarly/bazaarly-backend/pkg/config"
	"github.com/bazaarly/bazaarly-backend/pkg/db"
	"github.com/bazaarly/bazaarly-backend/pkg/gateway"
	"github.com/bazaarly/bazaarly-backend/pkg/logger"
	"github.com/bazaarly/bazaarly-backend/pkg/metrics"
	"github.com/bazaarly/bazaarly-backend/pkg/migrate"
	"github.com/bazaarly/bazaarly-backend/pkg/outbox"
	"github.com/bazaarly/bazaarly-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	ledgerMetrics := metrics.NewLedgerMetrics(prometheus.DefaultRegisterer)
	productsRepo := products.NewRepository(dbClient.DB())

	walletService, err := wallet.NewService(wallet.ServiceParams{
		Repo:    wallet.NewRepository(dbClient.DB()),
		Outbox:  outboxService,
		Metrics: ledgerMetrics,
		Logger:  logg,
		Tx:      dbClient,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create wallet service", err)
		os.Exit(1)
	}

	adsService, err := ads.NewService(ads.ServiceParams{
		Repo:     ads.NewRepository(dbClient.DB()),
		Products: productsRepo,
		Wallets:  walletService,
		Tx:       dbClient,
		Outbox:   outboxService,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ads service", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:     orders.NewRepository(dbClient.DB()),
		Products: productsRepo,
		Wallets:  walletService,
		Tx:       dbClient,
		Outbox:   outboxService,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	subscriptionsService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:     subscriptions.NewRepository(dbClient.DB()),
		Products: productsRepo,
		Orders:   orders.NewRepository(dbClient.DB()),
		Wallets:  walletService,
		Tx:       dbClient,
		Outbox:   outboxService,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscriptions service", err)
		os.Exit(1)
	}

	notificationsService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	verifier, err := gateway.NewVerifier(cfg.Gateway.WebhookSecret)
	if err != nil {
		logg.Error(context.Background(), "failed to create signature verifier", err)
		os.Exit(1)
	}

	gatewayService, err := gatewaysvc.NewService(gatewaysvc.ServiceParams{
		Repo:        gatewaysvc.NewRepository(dbClient.DB()),
		Verifier:    verifier,
		Idempotency: redisClient,
		Wallets:     walletService,
		Orders:      ordersService,
		Tx:          dbClient,
		Outbox:      outboxService,
		Logger:      logg,
		EventTTL:    cfg.Gateway.EventTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create gateway service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, routes.Services{
			Wallet:        walletService,
			Ads:           adsService,
			Orders:        ordersService,
			Subscriptions: subscriptionsService,
			Notifications: notificationsService,
			Gateway:       gatewayService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
