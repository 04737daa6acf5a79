package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"learncode/internal/apperr"
	"learncode/internal/auth"
	"learncode/internal/catalog"
	"learncode/internal/config"
	"learncode/internal/coupon"
	"learncode/internal/db"
	"learncode/internal/events"
	"learncode/internal/gateway"
	"learncode/internal/logger"
	"learncode/internal/payment"
	"learncode/internal/purchase"
	"learncode/internal/queue"
	"learncode/internal/server"
	"learncode/internal/session"
	"learncode/internal/tracing"
	"learncode/internal/user"
	"learncode/internal/wallet"
)

// @title LearnCode API
// @version 1.0
// @description Wallet, payments and purchases for the LearnCode platform.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	logger.Init()
	logger.Info("Starting LearnCode application")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if err := logger.Configure(cfg.LogLevel, cfg.LogFile); err != nil {
		logger.Fatalf("Failed to configure logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Fatalf("Application error: %v", err)
	}
	logger.Info("Server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	shutdownTracing, err := tracing.Init("learncode-api", cfg.JaegerEndpoint)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	logger.Info("Connecting to database...")
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()
	logger.Info("Database connected")

	if err := db.RunMigrations(database); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("Migrations completed")

	tx := db.NewTxRunner(database)

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		logger.Info("Event publisher initialized", "topic", cfg.KafkaTopic)
	}
	defer publisher.Close()

	wallets := wallet.NewRepository(database, cfg.DBTimeout)
	registry := session.NewRegistry(session.NewRepository(database, cfg.DBTimeout), tx, cfg.SessionTTL, cfg.SessionDeviceCap)
	userSvc := user.NewService(user.NewRepository(database, cfg.DBTimeout), wallets, registry, tx, cfg.JWTSecret, registry.TTL())
	catalogSvc := catalog.NewService(catalog.NewRepository(database, cfg.DBTimeout))
	couponSvc := coupon.NewService(coupon.NewRepository(database, cfg.DBTimeout))
	purchaseSvc := purchase.NewService(catalogSvc, wallets, publisher)

	signer := gateway.NewSigner(cfg.GatewayKeySecret, cfg.GatewayWebhookSecret)
	paymentSvc := payment.NewService(payment.Deps{
		Repo:    payment.NewRepository(database, cfg.DBTimeout),
		Wallets: wallets,
		Coupons: couponSvc,
		Gateway: gateway.NewClient(gateway.Config{
			BaseURL:    cfg.GatewayBaseURL,
			KeyID:      cfg.GatewayKeyID,
			KeySecret:  cfg.GatewayKeySecret,
			Timeout:    cfg.GatewayTimeout,
			MaxRetries: cfg.GatewayMaxRetries,
		}),
		Verifier:  signer,
		Tx:        tx,
		Publisher: publisher,
		KeyID:     cfg.GatewayKeyID,
	})

	var webhooks *queue.WebhookQueue
	var enqueuer payment.Enqueuer
	if cfg.WebhookAsync {
		webhooks = queue.New(cfg.RedisAddr, func(ctx context.Context, body []byte) error {
			var event gateway.WebhookEvent
			if err := json.Unmarshal(body, &event); err != nil {
				return apperr.Wrap(apperr.Invalid, "malformed webhook payload", err)
			}
			return paymentSvc.HandleWebhook(ctx, event)
		})
		defer webhooks.Close()

		if err := webhooks.Ping(ctx); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		enqueuer = webhooks
		logger.Info("Webhook queue initialized", "redis", cfg.RedisAddr)
	}

	var identity user.IdentityVerifier
	if cfg.IdentitySecret != "" {
		identity = auth.NewIdentitySigner(cfg.IdentitySecret)
	} else {
		logger.Warn("IDENTITY_SECRET not set, provider login disabled")
	}

	srv := server.New(cfg, server.Handlers{
		Users:     user.NewHandler(userSvc, identity),
		Wallets:   wallet.NewHandler(wallets),
		Catalog:   catalog.NewHandler(catalogSvc),
		Coupons:   coupon.NewHandler(couponSvc),
		Payments:  payment.NewHandler(paymentSvc, signer, enqueuer),
		Purchases: purchase.NewHandler(purchaseSvc),
	}, registry, database)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Start)
	g.Go(func() error { return srv.RunLimiterCleanup(gctx) })
	g.Go(func() error {
		return payment.NewReconciler(paymentSvc, cfg.ReconcileInterval, cfg.ReconcileBatch, cfg.PaymentOrderTTL).Start(gctx)
	})
	g.Go(func() error { return registry.RunPurger(gctx, time.Hour, 24*time.Hour) })
	if webhooks != nil {
		g.Go(func() error { return webhooks.Start(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
