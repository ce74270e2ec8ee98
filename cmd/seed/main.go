// seed loads a YAML fixture (or the built-in demo) into the configured directory. Re-running is idempotent.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"qr-access-control/internal/config"
	"qr-access-control/internal/logging"
	"qr-access-control/internal/security"
	"qr-access-control/internal/seed"
	"qr-access-control/internal/store"
)

func main() {
	file := flag.String("file", "", "YAML fixture to load (defaults to SEED_FILE, then the demo fixture)")
	check := flag.Bool("check", false, "validate the fixture without writing")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "qr-access-control-seed"})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logging.Sync(logger)

	path := *file
	if path == "" {
		path = cfg.SeedFile
	}
	var fixture *seed.Fixture
	if path == "" {
		fixture, err = seed.Demo()
	} else {
		fixture, err = seed.LoadFile(path)
	}
	if err != nil {
		logger.Fatal("load fixture", zap.Error(err))
	}
	if *check {
		if err := fixture.Validate(); err != nil {
			logger.Fatal("invalid fixture", zap.Error(err))
		}
		logger.Info("fixture is valid", zap.Int("tickets", len(fixture.Tickets)), zap.Int("staff", len(fixture.Staff)))
		return
	}

	if cfg.DirectoryDriver == config.DriverMemory {
		logger.Fatal("DIRECTORY_DRIVER=memory does not persist; seed postgres or sqlite, or set SEED_FILE on the server")
	}
	stores, err := store.Open(cfg)
	if err != nil {
		logger.Fatal("open directory", zap.Error(err))
	}
	defer stores.Close()

	sum, err := seed.Apply(context.Background(), fixture, seed.Targets{
		Tickets:     stores.Tickets,
		Checkpoints: stores.Tickets,
		Staff:       stores.Staff,
		Hasher:      security.NewHasher(cfg.BcryptCost),
	})
	if err != nil {
		logger.Fatal("seed failed", zap.Error(err))
	}
	logger.Info("directory seeded",
		zap.String("driver", stores.Driver),
		zap.Int("tickets", sum.Tickets),
		zap.Int("zone_checkpoints", sum.ZoneCheckpoints),
		zap.Int("staff", sum.Staff),
	)
}
