package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"qr-access-control/internal/logging"
)

var logger *zap.Logger

var rootFlags struct {
	logLevel string
}

var rootCmd = &cobra.Command{
	Use:   "accessctl",
	Short: "Attendee and scanner client for the QR access control API",
	Long: `accessctl drives the access control API from a terminal: it can play an
attendee device showing rotating QR tokens, submit gate and zone scans,
check staff PINs and list a ticket's scan history.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(logging.Config{Level: rootFlags.logLevel, Format: "console", Service: "accessctl"})
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logging.Sync(logger)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.logLevel, "log-level", getEnv("LOG_LEVEL", "warn"), "log level (debug, info, warn, error)")
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
