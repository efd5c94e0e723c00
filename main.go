package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/room4-2/bookingline/agent"
	"github.com/room4-2/bookingline/booking"
	"github.com/room4-2/bookingline/config"
	"github.com/room4-2/bookingline/escalation"
	"github.com/room4-2/bookingline/gemini"
	"github.com/room4-2/bookingline/intent"
	"github.com/room4-2/bookingline/logger"
	"github.com/room4-2/bookingline/server"
	"github.com/room4-2/bookingline/session"
	"github.com/room4-2/bookingline/store"
	"github.com/room4-2/bookingline/store/supabase"
)

// backend is what the agent needs from a store.
type backend interface {
	booking.Gateway
	escalation.Sink
	session.LogSink
}

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, closeDB, err := openBackend(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("Failed to open store", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	defer closeDB()

	// Remote intent fallback is optional
	var fallback intent.Fallback
	if cfg.GeminiAPIKey != "" {
		remote, err := gemini.NewClassifier(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			zl.Fatal("Failed to create Gemini classifier", zap.Error(err))
		}
		fallback = remote
		zl.Info("🧠 Remote intent fallback enabled", zap.String("model", cfg.GeminiModel))
	} else {
		zl.Info("🧠 No GEMINI_API_KEY, keyword rules only")
	}
	classifier := intent.NewClassifier(fallback, cfg.ClassifierTimeout, zl).AskToRephrase(cfg.RephraseUnclear)

	// Create session manager
	sessionManager, err := session.NewManager(cfg, zl)
	if err != nil {
		zl.Fatal("Failed to create session manager", zap.Error(err))
	}

	a := agent.New(sessionManager, classifier, db, db, db, agent.Options{
		Brand:            cfg.BrandName,
		CountryCode:      cfg.CountryCode,
		MaxPhoneAttempts: cfg.MaxPhoneAttempts,
		MaxSilentTurns:   cfg.MaxSilentTurns,
	}, zl)

	// Start cleanup routine
	go sessionManager.StartCleanupRoutine(ctx)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	type runnable interface {
		Start() error
		Shutdown(ctx context.Context) error
	}
	var servers []runnable

	switch cfg.ServerType {
	case "twilio":
		servers = append(servers, server.NewTwilioServer(cfg, a, sessionManager, zl))
	case "websocket":
		servers = append(servers, server.NewConsoleServer(cfg, a, sessionManager, zl))
	case "both":
		servers = append(servers,
			server.NewTwilioServer(cfg, a, sessionManager, zl),
			server.NewConsoleServer(cfg, a, sessionManager, zl),
		)
	default:
		zl.Fatal("Unknown SERVER_TYPE", zap.String("server_type", cfg.ServerType))
	}

	errs := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv runnable) {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- err
			}
		}(srv)
	}

	select {
	case <-sigChan:
		zl.Info("Received shutdown signal...")
	case err := <-errs:
		zl.Error("Server error", zap.Error(err))
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zl.Error("Server shutdown error", zap.Error(err))
		}
	}
	sessionManager.Shutdown()

	zl.Info("Server stopped")
}

func openBackend(ctx context.Context, cfg *config.Config, zl *zap.Logger) (backend, func(), error) {
	switch cfg.StoreBackend {
	case "supabase":
		st, err := supabase.New(cfg.SupabaseURL, cfg.SupabaseKey, cfg.DefaultBaseAmount, zl)
		if err != nil {
			return nil, nil, err
		}
		zl.Info("🗄️ Using Supabase store", zap.String("url", cfg.SupabaseURL))
		return st, func() {}, nil

	default:
		st, err := store.Open(cfg.DatabaseURL, cfg.DefaultBaseAmount, zl)
		if err != nil {
			return nil, nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, nil, err
		}
		zl.Info("🗄️ Using Postgres store")
		return st, func() { _ = st.Close() }, nil
	}
}
