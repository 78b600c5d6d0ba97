package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	afhttp "github.com/arenaforge/arenaforge/internal/adapter/http"
	"github.com/arenaforge/arenaforge/internal/adapter/otel"
	"github.com/arenaforge/arenaforge/internal/adapter/postgres"
	"github.com/arenaforge/arenaforge/internal/adapter/ws"
	"github.com/arenaforge/arenaforge/internal/bus"
	"github.com/arenaforge/arenaforge/internal/config"
	"github.com/arenaforge/arenaforge/internal/domain/event"
	"github.com/arenaforge/arenaforge/internal/logger"
	"github.com/arenaforge/arenaforge/internal/service"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			slog.Error("admin command failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	slog.SetDefault(logger.New(cfg.Logging))

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"roster_size", len(cfg.Arena.Roster),
		"llm_mode", cfg.LLM.Mode,
		"wallet_mode", cfg.Wallet.Mode,
		"source_mode", cfg.Source.Mode,
		"retrieval_mode", cfg.Retrieval.Mode,
	)

	ctx := context.Background()

	// --- Infrastructure ---

	var metrics *otel.Metrics
	if cfg.OTel.Enabled {
		shutdown, err := otel.Setup(ctx, cfg.Logging.Service, cfg.OTel.Endpoint)
		if err != nil {
			return fmt.Errorf("otel: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Warn("otel shutdown", "error", err)
			}
		}()

		metrics, err = otel.NewMetrics()
		if err != nil {
			return fmt.Errorf("otel metrics: %w", err)
		}
		slog.Info("telemetry enabled", "endpoint", cfg.OTel.Endpoint)
	}

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	store := postgres.NewStore(pool)

	// --- Collaborators ---

	solvers, completer, payer, src, err := buildCollaborators(cfg)
	if err != nil {
		return err
	}

	retrieve, closeRetrieval, err := buildRetrieval(ctx, cfg)
	if err != nil {
		return fmt.Errorf("retrieval: %w", err)
	}
	defer closeRetrieval()

	// --- Services ---

	b := bus.New()
	hub := ws.NewHub(store)
	unsubscribe := b.Subscribe(func(ev event.Event) {
		hub.Relay(ctx, ev)
	})
	defer unsubscribe()

	judgeAdapter := service.NewJudgeAdapter(completer, cfg.Arena.JudgeModel, cfg.Arena.JudgeTimeout, cfg.Arena.JudgeCodeCap)
	solverPool := service.NewPoolRunner(solvers, b, cfg.Arena.MaxParallel, cfg.Arena.SolveTimeout, cfg.Arena.ContextByteCeiling)
	settler := service.NewSettler(payer, store, cfg.Arena.ConfirmTimeout)

	payout, err := service.NewPayoutPolicy(cfg.Arena)
	if err != nil {
		return fmt.Errorf("payout policy: %w", err)
	}

	arena := service.NewArena(store, b, solverPool, judgeAdapter, settler, retrieve, src, payout, metrics, &cfg.Arena, cfg.Retrieval)

	// runCtx outlives individual requests: a competition launched by an
	// HTTP call keeps running after the caller disconnects, and is only
	// cancelled on shutdown.
	runCtx, cancelRuns := context.WithCancel(ctx)
	defer cancelRuns()

	handlers := afhttp.NewHandlers(runCtx, arena, store, hub, src)

	// --- HTTP ---

	r := chi.NewRouter()

	r.Use(afhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(afhttp.Logger)
	r.Use(afhttp.SecurityHeaders)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.OTel.Enabled {
		r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	}

	afhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")
	cancelRuns()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
