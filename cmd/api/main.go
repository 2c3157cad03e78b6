package main

import (
	"context"
	"errors"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"splitform/config"
	"splitform/internal/payments"
	"splitform/internal/payments/workers"
	"splitform/internal/splitform"
	"splitform/internal/splitform/handlers"
	"syscall"
	"time"
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
	httpClient := setupHttpClient(appConfig)

	sessions := setupSessionStore(appConfig, logger)

	monitor := workers.NewSourceMonitor(appConfig.Payments.HealthURL, appConfig.Payments.HealthInterval, httpClient, logger)
	go monitor.StartMonitoring()
	defer monitor.Stop()

	paymentService := payments.NewPaymentService(httpClient, appConfig.Payments.SourceURL)
	formHandler := handlers.NewFormHandler(paymentService, sessions, rulesFromConfig(appConfig.Split), logger)
	healthHandler := handlers.NewHealthHandler(monitor)

	e := echo.New()
	e.HideBanner = true

	if appConfig.Telemetry.Enabled {
		e.Use(otelecho.Middleware(appConfig.Telemetry.ServiceName))
	}
	e.Use(middleware.Recover())

	handlers.Register(e, formHandler)
	e.GET("/health", healthHandler.Handle)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting form api", "addr", appConfig.Addr(), "source", appConfig.Payments.SourceURL)
		if err := e.Start(appConfig.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

func rulesFromConfig(cfg *config.SplitConfig) splitform.Rules {
	return splitform.Rules{
		MaxMethods:      cfg.MaxMethods,
		MinPercentage:   cfg.MinPercentage,
		MaxPercentage:   cfg.MaxPercentage,
		TotalPercentage: cfg.TotalPercentage,
		ObservationsMin: cfg.ObservationsMin,
		ObservationsMax: cfg.ObservationsMax,
	}
}

func setupHttpClient(appConfig *config.AppConfig) *http.Client {
	transport := http.DefaultTransport
	if appConfig.Telemetry.Enabled {
		transport = otelhttp.NewTransport(http.DefaultTransport)
	}
	return &http.Client{
		Transport: transport,
		Timeout:   appConfig.Payments.FetchTimeout,
	}
}

func setupSessionStore(appConfig *config.AppConfig, logger *slog.Logger) splitform.SessionStore {
	if appConfig.Redis.URL == "" {
		logger.Warn("no redis url configured, keeping form sessions in memory")
		return splitform.NewMemorySessionStore()
	}
	return splitform.NewRedisSessionStore(setupRedisClient(appConfig), appConfig.Redis.SessionTTL)
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
