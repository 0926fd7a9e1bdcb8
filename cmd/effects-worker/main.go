package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinicdesk/online-consultation-service/internal/analytics"
	"github.com/clinicdesk/online-consultation-service/internal/clinicalrecord"
	"github.com/clinicdesk/online-consultation-service/internal/config"
	"github.com/clinicdesk/online-consultation-service/internal/consultation"
	"github.com/clinicdesk/online-consultation-service/internal/db"
	"github.com/clinicdesk/online-consultation-service/internal/effects"
	"github.com/clinicdesk/online-consultation-service/internal/notification"
	redisclient "github.com/clinicdesk/online-consultation-service/internal/redis"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("effects-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running effects worker in env=%s queue=%s", cfg.Env, cfg.EffectQueueKey)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()
	log.Println("connected to Redis")

	sessions := consultation.NewPgRepository(pgPool)
	records := clinicalrecord.NewPgRepository(pgPool)
	metrics := analytics.NewPgRepository(pgPool)
	notifier := notification.NewLogNotifier(sessions)

	queue := effects.NewRedisQueue(rdb, cfg.EffectQueueKey)
	dispatcher := effects.NewDispatcher(sessions, records, metrics, notifier)

	for {
		env, err := queue.Dequeue(rootCtx, cfg.WorkerIdleWait)
		if err != nil {
			if errors.Is(err, context.Canceled) || rootCtx.Err() != nil {
				log.Println("shutdown signal received, stopping effects worker")
				return
			}
			log.Printf("dequeue error: %v", err)
			continue
		}
		if env == nil {
			// Idle poll timed out; check for shutdown and wait again.
			if rootCtx.Err() != nil {
				log.Println("shutdown signal received, stopping effects worker")
				return
			}
			continue
		}

		runOne(rootCtx, dispatcher, *env)
	}
}

func runOne(ctx context.Context, dispatcher *effects.Dispatcher, env consultation.EffectEnvelope) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	dispatcher.Run(runCtx, env)
	log.Printf("dispatched %d effects for consultation %s in %s", len(env.Effects), env.SessionID, time.Since(start))
}
