package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/Reality-Reimagined/TruthScope/internal/analyzer"
	"github.com/Reality-Reimagined/TruthScope/internal/api"
	"github.com/Reality-Reimagined/TruthScope/internal/api/handler"
	mw "github.com/Reality-Reimagined/TruthScope/internal/api/middleware"
	"github.com/Reality-Reimagined/TruthScope/internal/cache"
	"github.com/Reality-Reimagined/TruthScope/internal/config"
	"github.com/Reality-Reimagined/TruthScope/internal/session"
	"github.com/Reality-Reimagined/TruthScope/internal/store"
)

const (
	shutdownTimeout = 30 * time.Second
	maxUploadBytes  = 500 << 20
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  "Start an HTTP server that accepts submissions, tracks the active analysis session and serves analysis history.",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides TRUTHSCOPE_PORT)")
	rootCmd.AddCommand(serveCmd)
}

// app holds the long-lived dependencies of the server. store and cache are
// nil when their URLs are not configured.
type app struct {
	cfg     *config.Config
	client  *analyzer.HTTPClient
	session *session.Controller
	pool    *pgxpool.Pool
	store   *store.PostgresStore
	cache   *cache.RedisCache
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(os.Stdout)
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "backend", cfg.Backend.BaseURL)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     a.routes(),
		ReadTimeout: 15 * time.Minute,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Event streams only end when the session closes.
	a.session.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// newApp connects the optional database and cache and builds the session
// controller that records into them.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:    cfg,
		client: analyzer.NewHTTPClient(cfg.Backend.BaseURL, cfg.Backend.Timeout),
	}

	var recorders session.MultiRecorder

	if cfg.Database.URL != "" {
		pool, err := store.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.pool = pool
		slog.Info("database connected")

		if err := store.RunMigrations(cfg.Database.URL); err != nil {
			a.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		slog.Info("database migrations applied")

		a.store = store.NewPostgresStore(pool)
		recorders = append(recorders, a.store)
	} else {
		slog.Info("DATABASE_URL not set, analysis history disabled")
	}

	if cfg.Redis.URL != "" {
		rc, err := cache.NewRedisCache(cfg.Redis.URL, cfg.Redis.SnapshotTTL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create redis cache: %w", err)
		}
		if err := rc.Ping(ctx); err != nil {
			_ = rc.Close()
			a.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		a.cache = rc
		recorders = append(recorders, rc)
		slog.Info("redis connected")
	} else {
		slog.Info("REDIS_URL not set, snapshot cache and rate limiting disabled")
	}

	opts := session.Options{Interval: cfg.Backend.PollInterval}
	if len(recorders) > 0 {
		opts.Recorder = recorders
	}
	a.session = session.New(a.client, opts)
	return a, nil
}

// routes builds the API router. Optional dependencies that are not
// configured are passed as nil interfaces so handlers can tell.
func (a *app) routes() http.Handler {
	var (
		history   handler.History
		snapshots handler.SnapshotCache
		limiter   cache.Cache
	)
	checks := map[string]handler.Pinger{
		"backend":  handler.PingFunc(a.client.Ready),
		"database": nil,
		"cache":    nil,
	}
	if a.store != nil {
		history = a.store
		checks["database"] = a.store
	}
	if a.cache != nil {
		snapshots = a.cache
		limiter = a.cache
		checks["cache"] = a.cache
	}

	auth := mw.NewAuth(a.cfg.Server.APIKeyHash)
	if !auth.Enabled() {
		slog.Warn("TRUTHSCOPE_API_KEY_HASH not set, API is unauthenticated")
	}

	return api.NewRouter(api.Dependencies{
		Auth:      auth,
		RateLimit: mw.NewRateLimit(limiter, a.cfg.Server.RateLimit),

		HealthHandler:        handler.NewHealthHandler(checks),
		SubmitHandler:        handler.NewSubmitHandler(a.session, maxUploadBytes),
		GetSessionHandler:    handler.NewGetSessionHandler(a.session),
		ResetSessionHandler:  handler.NewResetSessionHandler(a.session),
		SessionEvents:        handler.NewSessionEventsHandler(a.session),
		SessionResultHandler: handler.NewSessionResultHandler(a.session),
		ListAnalyses:         handler.NewListAnalysesHandler(history),
		GetAnalysis:          handler.NewGetAnalysisHandler(history, snapshots),
	})
}

// Close stops the session and releases connections. It is safe to call on
// a partially built app.
func (a *app) Close() {
	if a.session != nil {
		a.session.Close()
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			slog.Warn("close redis", "error", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
