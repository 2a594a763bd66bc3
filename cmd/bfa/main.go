package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/cashflow-reports-bfa/internal/aggregation"
	"github.com/boddenberg/cashflow-reports-bfa/internal/config"
	"github.com/boddenberg/cashflow-reports-bfa/internal/domain"
	"github.com/boddenberg/cashflow-reports-bfa/internal/handler"
	"github.com/boddenberg/cashflow-reports-bfa/internal/infra/cache"
	"github.com/boddenberg/cashflow-reports-bfa/internal/infra/client"
	"github.com/boddenberg/cashflow-reports-bfa/internal/infra/observability"
	"github.com/boddenberg/cashflow-reports-bfa/internal/infra/resilience"
	"github.com/boddenberg/cashflow-reports-bfa/internal/infra/sqlite"
	"github.com/boddenberg/cashflow-reports-bfa/internal/infra/supabase"
	"github.com/boddenberg/cashflow-reports-bfa/internal/port"
	"github.com/boddenberg/cashflow-reports-bfa/internal/service"

	"go.uber.org/zap"

	_ "time/tzdata"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	loc, _ := cfg.Location()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("data_backend", cfg.DataBackend),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Bool("auth_enabled", cfg.AuthEnabled),
		zap.String("report_timezone", loc.String()),
		zap.Int("report_top_n", cfg.ReportTopN),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "cashflow-reports-bfa")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Cache ---
	reportCache := cache.New[*domain.CashflowReport](cfg.CacheTTL)
	defer reportCache.Close()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("transactions-store", logger)

	// --- Transactions store ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	var store port.TransactionsFetcher
	var health port.HealthChecker

	switch cfg.DataBackend {
	case config.BackendSupabase:
		logger.Info("using Supabase as data backend", zap.String("supabase_url", cfg.SupabaseURL))
		supabaseClient := supabase.NewClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			cb,
			resilienceCfg,
			logger,
		)
		store, health = supabaseClient, supabaseClient
	case config.BackendSQLite:
		logger.Info("using SQLite as data backend", zap.String("path", cfg.SQLiteDBPath))
		sqliteStore, err := sqlite.Open(cfg.SQLiteDBPath, logger)
		if err != nil {
			logger.Fatal("failed to open sqlite store", zap.Error(err))
		}
		defer sqliteStore.Close()
		store, health = sqliteStore, sqliteStore
	default:
		logger.Info("using HTTP Transactions API as data backend", zap.String("url", cfg.TransactionsAPIURL))
		store = client.NewTransactionsClient(httpClient, cfg.TransactionsAPIURL, cb, resilienceCfg)
	}

	// --- Services ---
	engine := aggregation.NewEngine(logger,
		aggregation.WithLocation(loc),
		aggregation.WithMaxBuckets(cfg.ReportMaxBuckets),
		aggregation.WithDefaultTopN(cfg.ReportTopN),
	)
	reportSvc := service.NewReportService(
		store,
		engine,
		reportCache,
		resilience.NewBulkhead(cfg.MaxConcurrency),
		metrics,
		logger,
	)

	var verifier *service.TokenVerifier
	if cfg.AuthEnabled {
		verifier = service.NewTokenVerifier(cfg.JWTSecret)
		logger.Info("bearer token auth enabled for customer routes")
	} else {
		logger.Warn("auth disabled: customer routes are public")
	}

	// --- Router ---
	router := handler.NewRouter(reportSvc, health, verifier, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
