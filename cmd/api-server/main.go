package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/covermed/hospital-coverage-scheduling/internal/api"
	"github.com/covermed/hospital-coverage-scheduling/internal/assignment"
	"github.com/covermed/hospital-coverage-scheduling/internal/audit"
	"github.com/covermed/hospital-coverage-scheduling/internal/config"
	"github.com/covermed/hospital-coverage-scheduling/internal/db"
	"github.com/covermed/hospital-coverage-scheduling/internal/identity"
	"github.com/covermed/hospital-coverage-scheduling/internal/logging"
	"github.com/covermed/hospital-coverage-scheduling/internal/notify"
	"github.com/covermed/hospital-coverage-scheduling/internal/payment"
	redisclient "github.com/covermed/hospital-coverage-scheduling/internal/redis"
	"github.com/covermed/hospital-coverage-scheduling/internal/slot"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("dev", "api-server")
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	log := logging.New(cfg.Env, "api-server")
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.New(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		PoolSize: cfg.RedisPoolSize,
		Timeout:  cfg.RedisTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	auditor := audit.NewPgRecorder(pgPool, log)
	sink := notify.LogSink{Log: log}

	slotMgr := slot.NewManager(slot.NewPgRepository(pgPool), locker)
	assignSvc := assignment.NewService(assignment.NewPgRepository(pgPool), slotMgr, locker, cfg, auditor, sink, log)
	paySvc := payment.NewService(payment.NewPgRepository(pgPool), assignSvc, cfg.CommissionRate, auditor, sink, log)
	assignSvc.SetSettler(paySvc)

	router := api.NewRouter(api.RouterConfig{
		Slots:       slotMgr,
		Assignments: assignSvc,
		Payments:    paySvc,
		Identity:    identity.HeaderProvider{},
		PgPool:      pgPool,
		Redis:       rdb,
		Logger:      log,
		Env:         cfg.Env,
		Version:     version,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("api-server stopped")
}
