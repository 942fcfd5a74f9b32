package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"workforce-billing/internal/config"
	"workforce-billing/internal/domain/model"
	payAdapters "workforce-billing/internal/infra/adapters/payment"
	pg "workforce-billing/internal/infra/db/postgres"
	"workforce-billing/internal/infra/logging"
	"workforce-billing/internal/infra/metrics"
	red "workforce-billing/internal/infra/redis"
	"workforce-billing/internal/infra/sched"
	"workforce-billing/internal/infra/web"
	"workforce-billing/internal/infra/worker"
	"workforce-billing/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, relaxed cookies)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("dev mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, int32(cfg.Database.PoolSize))
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer redisClient.Close()

	// ---- Repositories ----
	paymentRepo := pg.NewPaymentIntentRepo(pool)
	companyRepo := pg.NewCompanyRepo(pool)
	userRepo := pg.NewUserRepo(pool)
	planRepo := pg.NewPlanRepoCache(pg.NewPlanRepo(pool), redisClient, cfg.Redis.TTL, logger)
	tm := pg.NewTxManager(pool)

	// Drop plan entries cached by a previous deploy; prices may have changed.
	if err := planRepo.Invalidate(ctx,
		model.PlanSilverMonthly, model.PlanSilverYearly,
		model.PlanGoldMonthly, model.PlanGoldYearly,
	); err != nil {
		logger.Warn().Err(err).Msg("plan cache invalidation failed")
	}

	// ---- Gateway ----
	gateway, err := payAdapters.New(cfg.Payment, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("payment gateway init failed")
	}
	logger.Info().Str("provider", gateway.Name()).Msg("payment gateway selected")

	// ---- Use cases ----
	paymentUC := usecase.NewPaymentUseCase(
		paymentRepo, companyRepo, userRepo, planRepo,
		gateway, tm, cfg.Payment.CallbackURL, logger,
	)

	// ---- Background workers ----
	pool2 := worker.NewPool(cfg.Worker.Workers, logger)
	pool2.Start(ctx)
	defer pool2.Stop()

	reconciler := sched.NewPaymentReconciler(paymentUC, paymentRepo, cfg.Reconciler.Interval, cfg.Reconciler.StaleAfter, logger)
	go reconciler.Start(ctx)

	// ---- HTTP ----
	auth := web.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.SecureCookie && !cfg.Runtime.Dev, cfg.Auth.CookieDomain, cfg.Auth.SessionTTL)
	srv := web.NewServer(paymentUC, gateway, auth, pool2, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
	cancel()
}
