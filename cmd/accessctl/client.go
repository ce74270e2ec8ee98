// Package main implements the accessctl CLI.
package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"qr-access-control/pkg/client"
)

type clientConfig struct {
	serverURL string
	timeout   time.Duration
}

func addClientFlags(cmd *cobra.Command, cfg *clientConfig) {
	cmd.Flags().StringVar(&cfg.serverURL, "server", getEnv("ACCESSCTL_SERVER", "http://localhost:8080"), "API server URL (env: ACCESSCTL_SERVER)")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 10*time.Second, "per-request timeout")
}

func (cfg *clientConfig) newClient() (*client.Client, error) {
	if cfg.serverURL == "" {
		return nil, fmt.Errorf("server URL required (use --server flag or ACCESSCTL_SERVER env var)")
	}
	return client.New(cfg.serverURL, &http.Client{Timeout: cfg.timeout}), nil
}

