package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/me/gosched/internal/config"
	"github.com/me/gosched/internal/logging"
	"github.com/me/gosched/internal/server"
	"github.com/me/gosched/internal/store"
)

func main() {
	defaults := config.DefaultServerConfig()

	configFile := flag.String("config", "", "Path to a config file (YAML, JSON or TOML)")
	addr := flag.String("addr", defaults.Addr, "Listen address")
	logLevel := flag.String("log-level", defaults.LogLevel, "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", defaults.LogFormat, "Log format (text, json)")
	dbPath := flag.String("db", defaults.DBPath, "Database path (default ~/.gosched/gosched.db)")
	sessionTTL := flag.Duration("session-ttl", defaults.SessionTTL, "Idle interactive sessions are dropped after this long")
	maxSessions := flag.Int("max-sessions", defaults.MaxSessions, "Maximum number of open interactive sessions")
	quantum := flag.Int64("quantum", defaults.Simulation.Quantum, "Default time quantum for workloads that set none")
	verifyHeap := flag.Bool("verify-heap", false, "Check the heap invariant after every tick")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")

	flag.Parse()

	// Defaults, then file and GOSCHED_* env, then explicitly set flags.
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-format":
			cfg.LogFormat = *logFormat
		case "db":
			cfg.DBPath = *dbPath
		case "session-ttl":
			cfg.SessionTTL = *sessionTTL
		case "max-sessions":
			cfg.MaxSessions = *maxSessions
		case "quantum":
			cfg.Simulation.Quantum = *quantum
		case "verify-heap":
			cfg.Simulation.VerifyHeap = *verifyHeap
		}
	})
	if *debug {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	// Resolve database path.
	if cfg.DBPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot determine home directory: %v\n", err)
			os.Exit(1)
		}
		dir := filepath.Join(home, ".gosched")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "cannot create %s: %v\n", dir, err)
			os.Exit(1)
		}
		cfg.DBPath = filepath.Join(dir, "gosched.db")
	}

	// Open store and run migrations.
	st, err := store.NewSQLiteStore(cfg.DBPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Migrate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate database: %v\n", err)
		os.Exit(1)
	}
	logger.Info("database ready", "path", cfg.DBPath)

	srv := server.New(cfg, st, logger)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Handler(),
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Purge idle sessions in background.
	srv.StartJanitor(ctx)

	go func() {
		logger.Info("server starting", "addr", cfg.Addr,
			"quantum", cfg.Simulation.Quantum, "session_ttl", cfg.SessionTTL, "max_sessions", cfg.MaxSessions)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Open SSE streams end when their request contexts are cancelled.
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
