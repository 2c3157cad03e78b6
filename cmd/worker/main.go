package main

import (
	"context"
	"fmt"
	"github.com/amirsalarsafaei/sqlc-pgx-monitoring/dbtracer"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"log"
	"os"
	"os/signal"
	"splitform/config"
	"splitform/internal/payments"
	"splitform/internal/payments/workers"
	"sync"
	"syscall"
)

func main() {
	appConfig, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	cleanup, err := config.InitTracer(appConfig.Telemetry)
	if err != nil {
		log.Fatal(err)
	}
	defer cleanup()

	logger := config.NewLogger(appConfig)

	dbpool := setupDbPool(appConfig)
	defer dbpool.Close()

	redisClient := setupRedisClient(appConfig)
	defer redisClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pStore := payments.NewPaymentStore(dbpool, logger)
	if err := pStore.EnsureSchema(ctx); err != nil {
		log.Fatal(err)
	}

	batcher := workers.NewDbBatcher(pStore, logger)
	worker := workers.NewImportWorker(
		redisClient,
		batcher,
		appConfig.Redis.StreamName,
		appConfig.Redis.StreamGroup,
		appConfig.Redis.ConsumerName,
		logger,
	)

	if err := worker.EnsureGroup(ctx); err != nil {
		log.Fatalf("Failed to create group: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		batcher.Run(ctx)
	}()

	logger.Info("import worker started", "stream", appConfig.Redis.StreamName, "consumer", appConfig.Redis.ConsumerName)
	if err := worker.Run(ctx); err != nil {
		logger.Error("worker stopped", "error", err)
	}

	wg.Wait()
}

func setupDbPool(appConfig *config.AppConfig) *pgxpool.Pool {
	dbConfig, err := pgxpool.ParseConfig(appConfig.Postgres.URL)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Invalid database url: %v\n", err)
		os.Exit(1)
	}

	if appConfig.Telemetry.Enabled {
		dbTracer, _ := dbtracer.NewDBTracer("payments")
		dbConfig.ConnConfig.Tracer = dbTracer
	}

	dbpool, err := pgxpool.NewWithConfig(context.Background(), dbConfig)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	return dbpool
}

func setupRedisClient(appConfig *config.AppConfig) *redis.Client {
	opt, err := redis.ParseURL(appConfig.Redis.URL)
	if err != nil {
		log.Fatalf("Failed to parse Redis URL: %v", err)
	}

	redisClient := redis.NewClient(opt)

	if appConfig.Telemetry.Enabled {
		if err := redisotel.InstrumentTracing(redisClient); err != nil {
			panic(err)
		}

		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			panic(err)
		}
	}

	return redisClient
}
