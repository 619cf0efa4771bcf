package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/kioku/internal/auth"
	"github.com/ashita-ai/kioku/internal/config"
	"github.com/ashita-ai/kioku/internal/conflicts"
	"github.com/ashita-ai/kioku/internal/llm"
	"github.com/ashita-ai/kioku/internal/mcp"
	"github.com/ashita-ai/kioku/internal/ratelimit"
	"github.com/ashita-ai/kioku/internal/server"
	"github.com/ashita-ai/kioku/internal/service/knowledge"
	"github.com/ashita-ai/kioku/internal/storage"
	"github.com/ashita-ai/kioku/internal/telemetry"
	"github.com/ashita-ai/kioku/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(os.Getenv("KIOKU_LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("kioku starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.ServiceName,
		Version:     version,
		Insecure:    cfg.OTELInsecure,
		SampleRatio: cfg.OTELSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	db, err := storage.New(ctx, cfg.DatabaseURL, cfg.NotifyURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close(context.Background())

	if err := telemetry.RegisterPoolMetrics(db.Pool()); err != nil {
		logger.Warn("pool metrics registration failed", "error", err)
	}

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	// Conflict oracle. A nil selection leaves detection disabled; check
	// requests then report zero conflicts without an error.
	llmClient := llm.NewClient(logger)
	defer func() { _ = llmClient.Close() }()
	selection := llm.Resolve(cfg.LLM)
	if selection != nil {
		logger.Info("conflict oracle: enabled", "provider", selection.Provider, "model", selection.Model)
	} else {
		logger.Warn("conflict oracle: disabled (no provider credentials or KIOKU_LLM_PROVIDER=none)")
	}

	engine := conflicts.NewEngine(conflicts.EngineConfig{
		Generator: llmClient,
		Selection: selection,
		Templates: db,
		Logger:    logger,
	})
	knowledgeSvc := knowledge.New(db, engine, logger)

	mcpSrv := mcp.New(knowledgeSvc, logger, version)

	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewMemoryLimiter(
			ratelimit.Quota{Rate: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst},
			map[string]ratelimit.Quota{
				"check": {Rate: cfg.CheckRateLimitRPS, Burst: cfg.CheckRateLimitBurst},
			},
		)
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst,
			"check_rps", cfg.CheckRateLimitRPS, "check_burst", cfg.CheckRateLimitBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}
	defer func() { _ = limiter.Close() }()

	srv := server.New(server.ServerConfig{
		DB:                  db,
		JWTMgr:              jwtMgr,
		Knowledge:           knowledgeSvc,
		Logger:              logger,
		Limiter:             limiter,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	if err := srv.Handlers().SeedAdmin(ctx, cfg.AdminAPIKey); err != nil {
		return err
	}

	if cfg.ConflictScanInterval > 0 {
		go conflictScanLoop(ctx, knowledgeSvc, logger, cfg.ConflictScanInterval)
	}
	if db.NotifyConn() != nil {
		go watchNotifications(ctx, db, logger)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	slog.Info("kioku shutting down")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := srv.Shutdown(httpCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	httpCancel()

	slog.Info("kioku stopped")
	return nil
}

// conflictScanLoop periodically runs contradiction detection over every
// project. Each replica runs its own loop; leave the interval at zero on all
// but one replica to avoid duplicate events.
func conflictScanLoop(ctx context.Context, svc *knowledge.Service, logger *slog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("conflict scan: enabled", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			if err := svc.ScanAllProjects(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("conflict scan failed", "error", err)
				continue
			}
			logger.Info("conflict scan complete", "duration_ms", time.Since(start).Milliseconds())
		}
	}
}

// watchNotifications logs conflict notifications published by any replica.
func watchNotifications(ctx context.Context, db *storage.DB, logger *slog.Logger) {
	if err := db.Listen(ctx, storage.ChannelConflicts); err != nil {
		logger.Warn("notify: listen failed", "error", err)
		return
	}
	for {
		channel, payload, err := db.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("notify: wait failed, stopping watcher", "error", err)
			}
			return
		}
		var n storage.ConflictNotification
		if err := json.Unmarshal([]byte(payload), &n); err != nil {
			logger.Warn("notify: bad payload", "channel", channel, "error", err)
			continue
		}
		logger.Info("conflicts recorded",
			"project_id", n.ProjectID,
			"item_type", n.ItemType,
			"conflicts", n.Conflicts,
			"events_recorded", n.EventsRecorded,
		)
	}
}
