package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coursehub/internal/api"
	"coursehub/internal/auth"
	"coursehub/internal/config"
	"coursehub/internal/course"
	"coursehub/internal/logger"
	"coursehub/internal/models"
	"coursehub/internal/observability"
	"coursehub/internal/ratelimit"
	"coursehub/internal/storage"
	"coursehub/internal/version"

	"github.com/joho/godotenv"
)

var (
	configFile    = flag.String("config", "", "Path to configuration file")
	envFile       = flag.String("env-file", ".env", "Path to an optional .env file")
	exampleConfig = flag.String("write-example-config", "", "Write an example configuration file to this path and exit")
	showVersion   = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()
	ver := version.GetInfo()

	if *showVersion {
		fmt.Println(ver.String())
		return
	}

	if *exampleConfig != "" {
		if err := config.SaveExample(*exampleConfig); err != nil {
			slog.Error("Failed to write example configuration", "error", err)
			os.Exit(1)
		}
		return
	}

	// A missing .env file is normal outside development.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load env file", "path", *envFile, "error", err)
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logging
	log, closer, err := logger.Setup(cfg.Logging, ver)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, ver)
	if err != nil {
		slog.Error("Failed to initialize observability", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	// Initialize storage
	store, err := storage.NewFactory().Create(cfg.Storage)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err, "type", cfg.Storage.Type)
		os.Exit(1)
	}
	defer store.Close()

	// Wrap storage with instrumentation if metrics are enabled
	activeStorage := store
	if cfg.Metrics.Enabled {
		instrumented, err := observability.NewInstrumentedStorage(store)
		if err != nil {
			slog.Error("Failed to create instrumented storage", "error", err)
			os.Exit(1)
		}
		activeStorage = instrumented
	}

	files, err := storage.NewFileStore(cfg.Storage.UploadDir, cfg.Storage.MaxUploadSize)
	if err != nil {
		slog.Error("Failed to initialize upload directory", "error", err, "dir", cfg.Storage.UploadDir)
		os.Exit(1)
	}

	tokens := auth.NewTokenManager(cfg.Security.JWTSecret, cfg.Security.TokenTTL)
	service := course.NewService(activeStorage, files, tokens, course.WithBcryptCost(cfg.Security.BcryptCost))

	if err := ensureBootstrapAdmin(context.Background(), service, cfg.Security.BootstrapAdmin); err != nil {
		slog.Error("Failed to create bootstrap admin", "error", err)
		os.Exit(1)
	}

	handlerOpts := []api.HandlerOption{
		api.WithMaxUploadSize(cfg.Storage.MaxUploadSize),
		api.WithVersion(ver.Version),
	}
	routeOpts := []api.RouteOption{}

	// Initialize rate limiter if enabled
	if cfg.Security.RateLimit.Enabled {
		bucketStore, err := newBucketStore(cfg)
		if err != nil {
			slog.Error("Failed to initialize rate limit store", "error", err)
			os.Exit(1)
		}
		defer bucketStore.Close()

		middleware, err := newRateLimitMiddleware(cfg.Security.RateLimit, bucketStore, tokens, cfg.Metrics.Enabled)
		if err != nil {
			slog.Error("Failed to initialize rate limiter", "error", err)
			os.Exit(1)
		}
		handlerOpts = append(handlerOpts, api.WithRateLimitStore(bucketStore))
		routeOpts = append(routeOpts, api.WithRateLimiter(middleware))
	}

	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}

	handlers := api.NewHandlers(service, activeStorage, handlerOpts...)
	router := api.SetupRoutes(handlers, tokens, cfg, routeOpts...)

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Starting server", "addr", server.Addr, "storage", cfg.Storage.Type,
			"rate_limit", cfg.Security.RateLimit.Enabled, "rate_limit_store", cfg.Security.RateLimit.Store)

		var err error
		if cfg.Server.TLSEnabled {
			slog.Info("Starting HTTPS server with TLS")
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			err = server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server shutdown complete")
}

// bucketStore is what the rate limiter and the health check need from the
// assembled store chain.
type bucketStore interface {
	ratelimit.BucketStore
	ratelimit.Pinger
	io.Closer
}

// newBucketStore builds the store chain: backend, optional instrumentation,
// then the circuit breaker outermost so an open breaker skips the backend.
func newBucketStore(cfg *models.Config) (bucketStore, error) {
	rl := cfg.Security.RateLimit

	var backend ratelimit.BucketStore
	switch rl.Store {
	case models.RateLimitStoreRedis:
		client := ratelimit.NewRedisClient(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB,
			cfg.Redis.PoolSize, cfg.Redis.DialTimeout, cfg.Redis.IOTimeout)
		backend = ratelimit.NewRedisStore(client, ratelimit.RedisOptions{Prefix: rl.KeyPrefix, TTL: rl.KeyTTL})

		pingCtx, cancel := context.WithTimeout(context.Background(), cfg.Redis.DialTimeout+time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			// Startup proceeds; requests are admitted while Redis is away.
			slog.Warn("Redis is unreachable, rate limiting fails open until it recovers", "addr", cfg.Redis.Addr(), "error", err)
		}
	case models.RateLimitStoreMemory:
		idle := rl.KeyTTL
		if idle == 0 {
			idle = 2 * rl.Window
		}
		backend = ratelimit.NewMemoryStore(idle, rl.Window)
	default:
		return nil, fmt.Errorf("unsupported rate limit store: %s", rl.Store)
	}

	if cfg.Metrics.Enabled {
		instrumented, err := observability.NewInstrumentedBucketStore(backend)
		if err != nil {
			return nil, fmt.Errorf("instrument bucket store: %w", err)
		}
		backend = instrumented
	}

	return ratelimit.NewBreakerStore(backend, rl.BreakerFailures, rl.BreakerTimeout), nil
}

func newRateLimitMiddleware(rl models.RateLimitConfig, store ratelimit.BucketStore, tokens *auth.TokenManager, withMetrics bool) (func(http.Handler) http.Handler, error) {
	limiter, err := ratelimit.NewLimiter(store, ratelimit.Config{
		Window:                rl.Window,
		AnonymousCapacity:     rl.AnonymousCapacity,
		AuthenticatedCapacity: rl.AuthenticatedCapacity,
		Atomic:                rl.Atomic,
	})
	if err != nil {
		return nil, err
	}

	proxies, err := ratelimit.ParseTrustedProxies(rl.TrustedProxies)
	if err != nil {
		return nil, err
	}

	opts := []ratelimit.Option{ratelimit.WithTrustedProxies(proxies)}
	if rl.VerifyCredentials {
		opts = append(opts, ratelimit.WithCredentialVerifier(tokens.Verify))
	}
	if withMetrics {
		recorder, err := observability.NewRateLimitMetrics()
		if err != nil {
			return nil, fmt.Errorf("rate limit metrics: %w", err)
		}
		opts = append(opts, ratelimit.WithRecorder(recorder))
	}
	return ratelimit.Middleware(limiter, opts...), nil
}

// ensureBootstrapAdmin creates the configured admin account if it does not
// exist yet. It is a no-op when no bootstrap admin is configured.
func ensureBootstrapAdmin(ctx context.Context, service *course.Service, admin models.BootstrapAdminConfig) error {
	if !admin.Enabled() {
		return nil
	}
	created, err := service.EnsureAdmin(ctx, admin.Name, admin.Email, admin.Password)
	if err != nil {
		return err
	}
	if created {
		slog.Info("Bootstrap admin created", "email", admin.Email)
	}
	return nil
}
