package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/DrXenon2/BuySell-sub000/internal/config"
	"github.com/DrXenon2/BuySell-sub000/internal/http/handlers"
	"github.com/DrXenon2/BuySell-sub000/internal/http/router"
	"github.com/DrXenon2/BuySell-sub000/internal/lock"
	"github.com/DrXenon2/BuySell-sub000/internal/modules/payments"
	"github.com/DrXenon2/BuySell-sub000/internal/modules/providers"
	"github.com/DrXenon2/BuySell-sub000/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("exit", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(mysql.Open(cfg.DBDSN), &gorm.Config{})
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	health := map[string]handlers.Pinger{"db": sqlDB}

	var locker lock.Locker = lock.NewMemory()
	if cfg.RedisAddr != "" {
		rl := lock.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.LockTTL)
		defer rl.Close()
		locker = rl
		health["redis"] = rl
		logger.Info("payment locks backed by redis", "addr", cfg.RedisAddr)
	}

	archive, err := storage.New(ctx, storage.Config{
		Driver:   cfg.ArchiveDriver,
		LocalDir: cfg.ArchiveLocalDir,
		S3: storage.S3Config{
			Region: cfg.S3Region,
			Bucket: cfg.S3Bucket,
			Prefix: cfg.S3Prefix,
		},
	})
	if err != nil {
		return err
	}
	logger.Info("webhook archive", "driver", archive.Driver)

	registry := providers.NewRegistry(buildAdapters(cfg, logger))
	store := payments.NewGormStore(db)

	paySvc := payments.NewService(store, registry)
	paySvc.SetLogger(logger)
	paySvc.SetLocker(locker)
	paySvc.SetCallbackBaseURL(cfg.PublicBaseURL)

	refundSvc := payments.NewRefundService(store, registry)
	refundSvc.SetLogger(logger)
	refundSvc.SetLocker(locker)

	webhookSvc := payments.NewWebhookService(store, registry)
	webhookSvc.SetLogger(logger)
	webhookSvc.SetLocker(locker)
	webhookSvc.SetArchive(archive.Archive)

	r := router.New(logger, router.Deps{
		Payments: paySvc,
		Refunds:  refundSvc,
		Methods:  registry,
		Webhooks: webhookSvc,
		Health:   health,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildAdapters only fills in the providers whose credentials are set.
func buildAdapters(cfg config.Config, logger *slog.Logger) providers.Adapters {
	opts := providers.Options{
		Timeout:            cfg.ProviderTimeout,
		RPS:                cfg.ProviderRPS,
		BreakerMaxFailures: cfg.BreakerMaxFailures,
		BreakerOpenTimeout: cfg.BreakerOpenTimeout,
		Logger:             logger,
	}

	var a providers.Adapters
	if cfg.MTN.Enabled() {
		a.MTN = providers.NewMTN(providers.MTNConfig{
			BaseURL:         cfg.MTN.BaseURL,
			SubscriptionKey: cfg.MTN.SubscriptionKey,
			APIUser:         cfg.MTN.APIUser,
			APIKey:          cfg.MTN.APIKey,
			TargetEnv:       cfg.MTN.TargetEnv,
			CallbackSecret:  cfg.MTN.CallbackSecret,
		}, opts)
	}
	if cfg.Orange.Enabled() {
		a.Orange = providers.NewOrange(providers.OrangeConfig{
			BaseURL:        cfg.Orange.BaseURL,
			ClientID:       cfg.Orange.ClientID,
			ClientSecret:   cfg.Orange.ClientSecret,
			MerchantKey:    cfg.Orange.MerchantKey,
			Country:        cfg.Orange.Country,
			CallbackSecret: cfg.Orange.CallbackSecret,
		}, opts)
	}
	if cfg.Wave.Enabled() {
		a.Wave = providers.NewWave(providers.WaveConfig{
			BaseURL:       cfg.Wave.BaseURL,
			APIKey:        cfg.Wave.APIKey,
			WebhookSecret: cfg.Wave.WebhookSecret,
		}, opts)
	}
	if cfg.Stripe.Enabled() {
		a.Card = providers.NewStripe(providers.StripeConfig{
			BaseURL:       cfg.Stripe.BaseURL,
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
		}, opts)
	}

	logger.Info("providers configured",
		"mtn", a.MTN != nil, "orange", a.Orange != nil, "wave", a.Wave != nil, "card", a.Card != nil)
	return a
}
