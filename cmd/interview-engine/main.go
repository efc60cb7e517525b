package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/terra-clan/interview-engine/internal/api"
	"github.com/terra-clan/interview-engine/internal/assessment"
	"github.com/terra-clan/interview-engine/internal/cleanup"
	"github.com/terra-clan/interview-engine/internal/config"
	"github.com/terra-clan/interview-engine/internal/feedback"
	"github.com/terra-clan/interview-engine/internal/generator"
	"github.com/terra-clan/interview-engine/internal/generator/gemini"
	"github.com/terra-clan/interview-engine/internal/generator/scripted"
	"github.com/terra-clan/interview-engine/internal/health"
	"github.com/terra-clan/interview-engine/internal/interview"
	"github.com/terra-clan/interview-engine/internal/policy"
	"github.com/terra-clan/interview-engine/internal/router"
	"github.com/terra-clan/interview-engine/internal/skills"
	"github.com/terra-clan/interview-engine/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	slog.Info("starting interview-engine",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	checks := health.NewRegistry(2 * time.Second)

	// Initialize repository
	var repo storage.Repository
	if cfg.UsesPostgres() {
		pg, err := storage.NewPostgresRepository(initCtx, storage.PostgresConfig{
			DSN:          cfg.Database.DSN,
			MaxOpenConns: int32(cfg.Database.MaxOpenConns),
			MaxIdleConns: int32(cfg.Database.MaxIdleConns),
			MaxLifetime:  cfg.Database.MaxLifetime,
		})
		if err != nil {
			slog.Error("failed to create database repository", "error", err)
			os.Exit(1)
		}

		migrations, err := storage.Migrations(cfg.Database.MigrationsDir)
		if err != nil {
			slog.Error("failed to open migrations", "error", err)
			os.Exit(1)
		}
		slog.Info("running database migrations", "dir", cfg.Database.MigrationsDir)
		if err := storage.RunMigrations(initCtx, pg.Pool(), migrations); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}

		repo = pg
		slog.Info("database connected successfully")
	} else {
		repo = storage.NewMemoryRepository()
		slog.Warn("no DATABASE_DSN set, sessions are kept in memory")
	}
	defer repo.Close()
	checks.Register("database", health.CheckFunc(repo.Ping))

	// Load scoring policy and position profiles
	loader := policy.NewLoader()
	if cfg.Interview.PolicyDir != "" {
		if err := loader.LoadFromDir(cfg.Interview.PolicyDir); err != nil {
			slog.Error("failed to load policy", "dir", cfg.Interview.PolicyDir, "error", err)
			os.Exit(1)
		}
	}
	table, err := loader.Build()
	if err != nil {
		slog.Error("invalid scoring policy", "error", err)
		os.Exit(1)
	}

	// Initialize response generator
	var gen generator.ResponseGenerator
	if cfg.Gemini.APIKey != "" {
		g, err := gemini.New(initCtx, cfg.Gemini.APIKey, cfg.Gemini.Model, table)
		if err != nil {
			slog.Error("failed to create gemini generator", "error", err)
			os.Exit(1)
		}
		gen = g
		slog.Info("using gemini response generator", "model", g.Model())
	} else {
		gen = scripted.New(table)
		slog.Warn("no GEMINI_API_KEY set, using scripted response generator")
	}

	// Initialize interview orchestration
	analyzer := skills.NewAnalyzer(table.Vocabulary())
	normalizer := feedback.NewNormalizer(table)
	aggregator := assessment.NewAggregator(table, analyzer, normalizer, repo)
	manager := interview.NewOrchestrator(cfg.Interview, table, gen, normalizer, aggregator,
		skills.NewKeywordExtractor(analyzer), repo)
	sessions := router.New(manager, cfg.Interview.SubscriberBuffer)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Relay broadcasts across instances
	if cfg.UsesRedis() {
		client, err := router.NewRedisClient(initCtx, cfg.Redis)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer client.Close()

		relay := router.NewRedisRelay(client, sessions.Hub())
		if err := relay.Start(ctx); err != nil {
			slog.Error("failed to start redis relay", "error", err)
			os.Exit(1)
		}
		defer relay.Close()

		sessions.UseRelay(relay)
		checks.Register("redis", health.CheckFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
		slog.Info("redis relay started", "address", cfg.Redis.Address)
	}

	// Start idle session sweeper
	sweeper := cleanup.NewSweeper(repo, sessions, cfg.Cleanup.Schedule, cfg.Cleanup.IdleTimeout)
	if err := sweeper.Start(ctx); err != nil {
		slog.Error("failed to start session sweeper", "error", err)
		os.Exit(1)
	}

	// Setup HTTP server
	server := api.NewServer(cfg.Server, sessions, manager, table, checks, repo, cfg.Auth.BootstrapAPIKey)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
		// Streams watch this context, so shutdown closes them
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Cancel context to stop background workers and open streams
	cancel()
	sweeper.Stop()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("interview-engine stopped")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
