package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/careloop/teleconsult/internal/api"
	"github.com/careloop/teleconsult/internal/blobstore"
	"github.com/careloop/teleconsult/internal/config"
	"github.com/careloop/teleconsult/internal/db"
	"github.com/careloop/teleconsult/internal/notify"
	redisclient "github.com/careloop/teleconsult/internal/redis"
	"github.com/careloop/teleconsult/internal/scheduling"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	log := newLogger(cfg.Env)
	defer func() { _ = log.Sync() }()

	log.Info("api-server starting up",
		zap.String("env", cfg.Env), zap.String("http_port", cfg.HTTPPort))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	if err := db.Migrate(rootCtx, pgPool, cfg.MigrationsDir); err != nil {
		log.Fatal("migration error", zap.Error(err))
	}
	log.Info("migrations applied")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn("error closing redis", zap.Error(err))
		}
	}()
	log.Info("connected to Redis")

	repo := scheduling.NewPgRepository(pgPool)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	store := blobstore.NewMemory()
	notifier := notify.NewLogNotifier(log)
	svc := scheduling.NewService(repo, locker, store, notifier, cfg, log)

	sweeper := scheduling.NewSweeper(svc, cfg.SweepInterval, log)
	sweeper.Start(rootCtx)
	defer sweeper.Stop()

	router := api.NewRouter(api.RouterConfig{
		Service:   svc,
		PgPool:    pgPool,
		Redis:     rdb,
		Log:       log,
		JWTSecret: cfg.JWTSecret,
		Env:       cfg.Env,
		Version:   version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server error", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	log.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown error", zap.Error(err))
	}
}

func newLogger(env string) *zap.Logger {
	var logCfg zap.Config
	if env == "prod" {
		logCfg = zap.NewProductionConfig()
	} else {
		logCfg = zap.NewDevelopmentConfig()
	}
	logCfg.OutputPaths = []string{"stdout"}

	log, err := logCfg.Build()
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	return log
}
