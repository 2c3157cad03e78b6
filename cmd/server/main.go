package main

import (
	"context"
	"errors"
	"fmt"
	"github.com/amirsalarsafaei/sqlc-pgx-monitoring/dbtracer"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"splitform/config"
	"splitform/internal/payments"
	"splitform/internal/payments/handlers"
	"syscall"
	"time"
)

const shutdownTimeout = 5 * time.Second

// The payments resource: serves the list the form API fetches and accepts imports.
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

	pStore := payments.NewPaymentStore(dbpool, logger)
	if err := pStore.EnsureSchema(context.Background()); err != nil {
		log.Fatal(err)
	}

	redisClient := setupRedisClient(appConfig)
	defer redisClient.Close()
	queue := payments.NewImportQueue(redisClient, appConfig.Redis.StreamName)

	mux := http.NewServeMux()
	mux.Handle("GET /payments", handlers.NewListHandler(pStore, logger))
	mux.Handle("POST /payments", handlers.NewImportHandler(queue, logger))
	mux.Handle("GET /payments-summary", handlers.NewSummaryHandler(pStore))
	mux.Handle("POST /purge-payments", handlers.NewPurgeHandler(pStore, logger))
	mux.HandleFunc("GET /health", handlers.HealthHandler)

	var handler http.Handler = mux
	if appConfig.Telemetry.Enabled {
		handler = otelhttp.NewHandler(mux, "payments-source")
	}

	ln, err := net.Listen("tcp", appConfig.SourceAddr())
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting payments source", "addr", ln.Addr().String())
	if err := serve(ctx, &http.Server{Handler: handler}, ln); err != nil {
		logger.Error("server stopped", "error", err)
	}
}

// serve runs srv on ln until ctx is done, then lets in-flight requests finish.
func serve(ctx context.Context, srv *http.Server, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
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
	}

	return redisClient
}
