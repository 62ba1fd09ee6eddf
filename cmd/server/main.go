package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"potledger/config"
	"potledger/internal/alert"
	"potledger/internal/database"
	"potledger/internal/ledger"
	"potledger/internal/lock"
	"potledger/internal/middleware"
	"potledger/internal/pot"
	"potledger/internal/repository"
	"potledger/internal/router"
	"potledger/internal/service"
	"potledger/internal/worker"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := newLogger(cfg.Server.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(&cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	var rdb redis.UniversalClient
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer client.Close()
		rdb = client
		logger.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
	}

	alerter := alert.NewPublisher(rdb, logger)
	walletRepo := repository.NewWalletRepository(db)

	var ldg ledger.Ledger
	switch cfg.Ledger.Mode {
	case "atomic":
		ldg = walletRepo
	case "saga":
		saga := ledger.NewSaga(walletRepo, repository.NewCompensationRepository(db), alerter, ledger.SagaOptions{
			CASRetries:           cfg.Ledger.CASRetries,
			CompensationAttempts: cfg.Ledger.CompensationAttempts,
			CompensationBackoff:  cfg.Ledger.CompensationBackoff,
			OutboxMaxAttempts:    cfg.Ledger.OutboxMaxAttempts,
			OutboxBatch:          cfg.Ledger.OutboxBatch,
		}, logger)
		w := worker.NewCompensationWorker(saga, cfg.Ledger.OutboxInterval, logger)
		go w.Start(ctx)
		defer w.Stop()
		ldg = saga
	default:
		return fmt.Errorf("unknown ledger mode %q", cfg.Ledger.Mode)
	}
	logger.Info("ledger configured", zap.String("mode", cfg.Ledger.Mode))

	var locker lock.Locker
	switch cfg.Pot.LockBackend {
	case "local":
		locker = lock.NewLocal()
	case "redis":
		if rdb == nil {
			return errors.New("POT_LOCK_BACKEND=redis requires REDIS_ADDR")
		}
		locker = lock.NewRedis(rdb, cfg.Pot.LockTTL, cfg.Pot.LockWait)
	default:
		return fmt.Errorf("unknown lock backend %q", cfg.Pot.LockBackend)
	}

	settingRepo := repository.NewSettingRepository(db)
	settings, err := pot.LoadSettings(ctx, settingRepo)
	if err != nil {
		return err
	}

	notifications := service.NewNotificationService(repository.NewNotificationRepository(db), rdb, logger)

	var opts []pot.Option
	if cfg.Pot.PenaltyWalletID != "" {
		opts = append(opts, pot.WithPenaltyWallet(cfg.Pot.PenaltyWalletID))
	}
	mgr := pot.NewManager(pot.Deps{
		Pots:         repository.NewPotRepository(db),
		Transactions: repository.NewPotTransactionRepository(db),
		Ledger:       ldg,
		Notifier:     notifications,
		Locker:       locker,
		Alerter:      alerter,
		Logger:       logger,
	}, settings, opts...)

	limiter := middleware.NewIPRateLimiter(rate.Limit(cfg.Server.RateLimitRPS), cfg.Server.RateBurst)
	go limiter.RunCleanup(5*time.Minute, ctx.Done())

	engine := router.Setup(cfg, router.Deps{
		DB:            db,
		Pots:          mgr,
		Admin:         pot.NewAdmin(mgr, settingRepo),
		Notifications: notifications,
		Limiter:       limiter,
		Logger:        logger,
	})
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
