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

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/creditjambo/creditjambo/internal/accounts"
	"github.com/creditjambo/creditjambo/internal/app"
	"github.com/creditjambo/creditjambo/internal/credit"
	"github.com/creditjambo/creditjambo/internal/ledger"
	"github.com/creditjambo/creditjambo/internal/loans"
	"github.com/creditjambo/creditjambo/internal/platform/cache"
	"github.com/creditjambo/creditjambo/internal/platform/db"
	"github.com/creditjambo/creditjambo/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, db.Config{DSN: cfg.PGDSN, StatementTimeout: cfg.PGStatementTimeout})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	runner := db.PoolRunner{Pool: pool, MaxRetries: cfg.PGTxRetries}
	validate := validator.New()

	accountsRepo := accounts.NewRepository(pool)
	ledgerRepo := ledger.NewRepository(pool)
	creditRepo := credit.NewRepository(pool)
	loansRepo := loans.NewRepository(pool)

	accountsService := accounts.NewService(accountsRepo)
	ledgerService := ledger.NewService(runner, ledgerRepo, accountsRepo)
	creditService := credit.NewService(runner, creditRepo, accountsRepo, ledgerRepo, loansRepo, cfg.RepaymentSchedule)
	loansService := loans.NewService(runner, loansRepo, accountsRepo, ledgerRepo, cfg.RepaymentSchedule)

	if cfg.NotificationsEnabled {
		redisClient, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis unreachable, notifications disabled", slog.Any("error", err))
		} else {
			defer func() {
				if err := redisClient.Close(); err != nil {
					logger.Warn("redis close", slog.Any("error", err))
				}
			}()
			asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
			defer func() {
				if err := asynqClient.Close(); err != nil {
					logger.Warn("asynq close", slog.Any("error", err))
				}
			}()
			enqueuer := jobs.NewEnqueuer(asynqClient, logger)
			creditService.SetNotifier(enqueuer)
			loansService.SetNotifier(enqueuer)
		}
	}

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AccountsHandler: accounts.NewHandler(logger, accountsService, validate),
		LedgerHandler:   ledger.NewHandler(logger, ledgerService, validate),
		CreditHandler:   credit.NewHandler(logger, creditService, validate),
		LoansHandler:    loans.NewHandler(logger, loansService, validate),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
