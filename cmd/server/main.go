package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/prudhvinik1/episync/internal/config"
	"github.com/prudhvinik1/episync/internal/database"
	"github.com/prudhvinik1/episync/internal/handlers"
	"github.com/prudhvinik1/episync/internal/metrics"
	"github.com/prudhvinik1/episync/internal/repositories"
	"github.com/prudhvinik1/episync/internal/schedule"
	"github.com/prudhvinik1/episync/internal/services"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Initialize database connections
	postgresPool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to create postgres pool: %w", err)
	}
	defer postgresPool.Close()

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	defer redisClient.Close()

	localKV, closeLocal, err := openLocalStore(ctx, cfg, redisClient)
	if err != nil {
		return err
	}
	defer closeLocal()

	remoteKV := repositories.NewPostgresKVStore(postgresPool)
	local := repositories.NewStore(localKV, nil)
	remote := repositories.NewStore(remoteKV, nil)

	catalog := schedule.Default()
	engine := schedule.NewEngine(catalog, schedule.WithLocation(cfg.Location))
	opts := []services.Option{services.WithLogger(logger), services.WithMetrics(m)}

	authService := services.NewAuthService(local, repositories.NewRedisSessionRepository(redisClient), catalog, cfg.JWTSecret, cfg.JWTExpiry, opts...)
	childService := services.NewChildService(local, engine, opts...)
	vaccinationService := services.NewVaccinationService(local, engine, opts...)
	connectivity := remoteConnectivity(remoteKV, logger)
	syncService := services.NewSyncService(local, remote, connectivity, opts...)

	if cfg.AdminEmail != "" {
		facility := cfg.AdminFacility
		if facility == "" {
			facility = catalog.Facilities()[0]
		}
		if _, err := authService.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword, facility); err != nil {
			return err
		}
	}

	monitor := services.NewConnectivityMonitor(connectivity, syncService, cfg.ConnectivityInterval, logger)
	go monitor.Run(ctx)

	router := handlers.NewRouter(handlers.RouterConfig{
		Catalog:      catalog,
		Auth:         authService,
		Children:     childService,
		Vaccinations: vaccinationService,
		Sync:         syncService,
		Metrics:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:       logger,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// graceful shutdown
	go func() {
		<-ctx.Done()

		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("starting server", "port", cfg.ServerPort, "local_store", cfg.LocalStore)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}

// openLocalStore opens the on-device replica named by cfg.LocalStore.
func openLocalStore(ctx context.Context, cfg *config.Config, redisClient *redis.Client) (repositories.KVStore, func(), error) {
	switch cfg.LocalStore {
	case config.LocalStoreRedis:
		return repositories.NewRedisKVStore(redisClient).WithPrefix("episync:local:"), func() {}, nil
	default:
		db, err := database.NewSQLiteDB(ctx, cfg.LocalStorePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open local store: %w", err)
		}
		kv, err := repositories.NewSQLiteKVStore(ctx, db)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to prepare local store: %w", err)
		}
		return kv, func() { db.Close() }, nil
	}
}

// remoteConnectivity reports the remote replica online once it answers a
// ping and its schema exists.
func remoteConnectivity(remote *repositories.PostgresKVStore, logger *slog.Logger) services.Connectivity {
	ping := services.NewPingConnectivity(remote, 0)
	var schemaReady atomic.Bool

	return services.ConnectivityFunc(func(ctx context.Context) bool {
		if !ping.Online(ctx) {
			return false
		}
		if schemaReady.Load() {
			return true
		}
		if err := remote.EnsureSchema(ctx); err != nil {
			logger.Warn("remote schema not ready", "error", err)
			return false
		}
		schemaReady.Store(true)
		return true
	})
}
