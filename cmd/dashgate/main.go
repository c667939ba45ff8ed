package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/dashgate/dashgate/pkg/auth"
	"github.com/dashgate/dashgate/pkg/config"
	"github.com/dashgate/dashgate/pkg/httputil"
	"github.com/dashgate/dashgate/pkg/middleware"
	"github.com/dashgate/dashgate/pkg/observability"
	"github.com/dashgate/dashgate/pkg/rbac"
)

func main() {
	port := flag.String("port", "", "Port to listen on (overrides DASHGATE_PORT)")
	dbURL := flag.String("db-url", "", "Database URL (overrides DASHGATE_DB_URL)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *dbURL != "" {
		cfg.Database.URL = *dbURL
	}

	logger := observability.NewLogger(observability.ParseLogLevel(cfg.Logging.Level), os.Stdout)

	db, err := openDatabase(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("failed to open database")
		os.Exit(1)
	}

	ctx := context.Background()
	if err := rbac.RunMigrations(ctx, db, logger); err != nil {
		logger.WithError(err).Error("failed to run migrations")
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	store := rbac.NewStore(db, metrics)
	evaluator := rbac.NewEvaluator(store, metrics)

	// Identity resolution is external; deployments run behind an auth
	// proxy that sets X-User-ID after verifying the session.
	resolver := auth.ResolverFunc(func(ctx context.Context, r *http.Request) (*auth.User, error) {
		header := r.Header.Get("X-User-ID")
		if header == "" {
			return nil, rbac.ErrNotAuthenticated
		}
		userID, err := strconv.ParseInt(header, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id: %w", err)
		}
		return store.GetUser(ctx, userID)
	})

	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	rbac.NewHandlers(evaluator).RegisterRoutes(api)

	handler := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		metrics.HTTPMiddleware,
		httputil.RecoveryMiddleware,
		httputil.CORSMiddleware(cfg.Server.CORSOrigins),
		middleware.Authenticate(resolver),
	)(router)

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db))
	healthMux.Handle("/metrics", metrics.Handler())
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}

	go reportPoolStats(db, metrics)

	go func() {
		logger.WithField("addr", apiServer.Addr).Info("API server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("API server failed")
			os.Exit(1)
		}
	}()
	go func() {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
			os.Exit(1)
		}
	}()

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	shutdown.OnShutdown(func(context.Context) error {
		return db.Close()
	})
	if err := shutdown.Wait(); err != nil {
		os.Exit(1)
	}
}

func openDatabase(cfg *config.Config, logger *observability.Logger) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdle)
	db.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.PingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.WithField("driver", cfg.Database.Driver).Info("database connected")
	return db, nil
}

func reportPoolStats(db *sql.DB, metrics *observability.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		stats := db.Stats()
		metrics.DBConnectionsActive.Set(float64(stats.InUse))
		metrics.DBConnectionsIdle.Set(float64(stats.Idle))
	}
}
