// expiry-worker runs the hold sweep as a standalone process for
// deployments that prefer it outside the api-server. Running both is safe:
// the delete predicate is idempotent.
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/careloop/teleconsult/internal/config"
	"github.com/careloop/teleconsult/internal/db"
	"github.com/careloop/teleconsult/internal/notify"
	redisclient "github.com/careloop/teleconsult/internal/redis"
	"github.com/careloop/teleconsult/internal/scheduling"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	log, err := zap.NewProduction()
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	log.Info("expiry-worker starting up",
		zap.String("env", cfg.Env), zap.Duration("interval", cfg.SweepInterval))

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

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal("redis connection error", zap.Error(err))
	}
	defer func() { _ = rdb.Close() }()
	log.Info("connected to Redis")

	repo := scheduling.NewPgRepository(pgPool)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	svc := scheduling.NewService(repo, locker, nil, notify.NewLogNotifier(log), cfg, log)

	sweeper := scheduling.NewSweeper(svc, cfg.SweepInterval, log)
	sweeper.Start(rootCtx)

	<-rootCtx.Done()
	log.Info("shutdown signal received, stopping expiry worker")
	sweeper.Stop()
}
