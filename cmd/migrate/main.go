// migrate applies the embedded Postgres schema; run it before starting the server with DIRECTORY_DRIVER=postgres.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"qr-access-control/internal/config"
	"qr-access-control/internal/db/migrate"
	"qr-access-control/internal/logging"
)

func main() {
	directionFlag := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "qr-access-control-migrate"})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logging.Sync(logger)

	direction, err := migrate.ParseDirection(*directionFlag)
	if err != nil {
		logger.Fatal("invalid direction", zap.Error(err))
	}
	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	if err := migrate.Run(cfg.DatabaseURL, direction); err != nil {
		logger.Fatal("migrate failed", zap.Error(err))
	}
	logger.Info("migrations applied", zap.String("direction", string(direction)))
}
