package main

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"stencil/internal/console"
	"stencil/internal/entitlement"
	"stencil/internal/httpapi"
	"stencil/internal/ims"
	"stencil/internal/pkg/logger"
	"stencil/internal/pkg/shutdown"
	"stencil/internal/repositories"
	"stencil/internal/review"
)

func main() {
	// Initialize logger
	log := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Format:      getEnv("LOG_FORMAT", "json"),
		ServiceName: "stencil-api",
		AddSource:   getEnv("LOG_SOURCE", "false") == "true",
	})

	log.Info("starting Stencil API",
		"version", "0.1.0",
	)

	// Load configuration
	httpPort := getEnv("HTTP_PORT", "8080")
	dbURL := mustEnv(log, "DATABASE_URL")
	redisAddr := mustEnv(log, "REDIS_ADDR")
	imsURL := mustEnv(log, "IMS_URL")
	imsClientID := mustEnv(log, "IMS_CLIENT_ID")
	imsClientSecret := mustEnv(log, "IMS_CLIENT_SECRET")
	consoleURL := mustEnv(log, "CONSOLE_URL")
	consoleAPIKey := mustEnv(log, "CONSOLE_API_KEY")
	githubRepo := mustEnv(log, "GITHUB_REPO")
	githubToken := mustEnv(log, "GITHUB_TOKEN")
	reviewCacheTTL := getDuration(log, "REVIEW_CACHE_TTL", time.Minute)

	ctx := context.Background()

	// Initialize shutdown manager
	shutdownMgr := shutdown.NewManager(log, 30*time.Second)

	// Connect to PostgreSQL
	log.Info("connecting to PostgreSQL")
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.LogFatal("failed to connect to PostgreSQL", err)
	}
	shutdownMgr.Register("postgres", func(ctx context.Context) error {
		pool.Close()
		return nil
	})

	// Verify PostgreSQL connection
	if err := pool.Ping(ctx); err != nil {
		log.LogFatal("failed to ping PostgreSQL", err)
	}
	log.Info("PostgreSQL connected")

	// Connect to Redis
	log.Info("connecting to Redis")
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	shutdownMgr.Register("redis", func(ctx context.Context) error {
		return rdb.Close()
	})

	// Verify Redis connection
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.LogFatal("failed to ping Redis", err)
	}
	log.Info("Redis connected")

	// Collaborator clients
	verifier := ims.NewClient(imsURL, imsClientID)
	serviceToken := ims.ServiceTokenSource(ctx, imsURL, imsClientID, imsClientSecret, []string{"system"})
	consoleClient := console.New(consoleURL, consoleAPIKey, serviceToken)
	reviewClient := review.NewClient("", githubRepo, githubToken, review.NewCache(rdb, reviewCacheTTL))
	evaluator := entitlement.New(consoleClient, consoleClient, log)

	// Create HTTP router
	deps := httpapi.Deps{
		Store:        repositories.NewTemplateRepository(pool),
		Entitlements: evaluator,
		Console:      consoleClient,
		Reviews:      reviewClient,
		Verifier:     verifier,
		Pool:         pool,
		RDB:          rdb,
		Log:          log,
	}
	router := httpapi.NewRouter(deps)

	// Create HTTP server
	server := &http.Server{
		Addr:         "0.0.0.0:" + httpPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Register server shutdown
	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	// Start server in goroutine
	go func() {
		log.Info("HTTP server listening",
			"addr", server.Addr,
			"port", httpPort,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	// Wait for shutdown signal
	shutdownMgr.Wait()
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	return v
}

// getDuration gets a duration environment variable with a default value.
func getDuration(log *logger.Logger, key string, defaultValue time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn("invalid duration, using default", "key", key, "value", v, "default", defaultValue.String())
		return defaultValue
	}
	return d
}

// mustEnv gets a required environment variable or exits.
func mustEnv(log *logger.Logger, key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		log.Error("missing required environment variable", "key", key)
		os.Exit(1)
	}
	return v
}
