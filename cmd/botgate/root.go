package main

import (
	"fmt"
	"os"

	"github.com/rsclarke/botgate/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var logger *zap.Logger

var rootCmd = &cobra.Command{
	Use:   "botgate",
	Short: "Gateway in front of a fleet of bot and integration backends",
	Long: `botgate exposes one HTTP API in front of independently running bot
backends and integration backends. It keeps a registry of both, proxies
bot operations by name, records handled queries and aggregates integration
settings.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(logging.FromEnv())
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

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
