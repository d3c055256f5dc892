package main

import (
	"fmt"
	"os"

	"github.com/rsclarke/botgate/internal/client"
	"github.com/spf13/cobra"
)

type clientConfig struct {
	token  string
	apiURL string
}

func addClientFlags(cmd *cobra.Command, cfg *clientConfig) {
	cmd.Flags().StringVar(&cfg.token, "token", os.Getenv("BOTGATE_TOKEN"), "bearer token (only needed when authorization is enabled)")
	cmd.Flags().StringVar(&cfg.apiURL, "api-url", envOr("BOTGATE_API_URL", "http://localhost:3000"), "gateway URL")
}

func (cfg *clientConfig) newClient() (*client.Client, error) {
	if cfg.apiURL == "" {
		return nil, fmt.Errorf("API URL required (use --api-url flag or BOTGATE_API_URL env var)")
	}
	return client.NewClient(cfg.apiURL, cfg.token), nil
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
