package main

import (
	"bytes"
	"context"
	_ "embed"
	"flag"
	"io"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/room4-2/bookingline/config"
	"github.com/room4-2/bookingline/logger"
	"github.com/room4-2/bookingline/store"
)

//go:embed fixture.yaml
var defaultFixture []byte

func main() {
	file := flag.String("file", "", "YAML fixture to load (defaults to the bundled sample data)")
	migrateOnly := flag.Bool("migrate-only", false, "Create the tables and exit")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.StoreBackend != "postgres" {
		log.Fatalf("Seeding needs STORE_BACKEND=postgres, got %q", cfg.StoreBackend)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	st, err := store.Open(cfg.DatabaseURL, cfg.DefaultBaseAmount, zl)
	if err != nil {
		zl.Fatal("Failed to open database", zap.Error(err))
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := st.Migrate(ctx); err != nil {
		zl.Fatal("Migration failed", zap.Error(err))
	}
	zl.Info("✅ Schema migrated")
	if *migrateOnly {
		return
	}

	var r io.Reader = bytes.NewReader(defaultFixture)
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			zl.Fatal("Failed to open fixture", zap.String("file", *file), zap.Error(err))
		}
		defer f.Close()
		r = f
	}

	fixture, err := store.LoadFixture(r)
	if err != nil {
		zl.Fatal("Failed to parse fixture", zap.Error(err))
	}
	if err := st.Seed(ctx, fixture); err != nil {
		zl.Fatal("Seeding failed", zap.Error(err))
	}
	zl.Info("🌱 Sample data loaded", zap.Int("customers", len(fixture.Customers)))
}
