package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rsclarke/botgate/internal/api"
	"github.com/spf13/cobra"
)

var integrationsFlags struct {
	clientConfig
	bot string
}

var integrationsCmd = &cobra.Command{
	Use:   "integrations",
	Short: "Show the settings of every reachable integration",
	Long: `Query every integration visible to a bot (or only the global ones when
--bot is not given) and print their settings. Integrations that fail to
answer in time are left out.`,
	Args: cobra.NoArgs,
	RunE: runIntegrations,
}

var registerIntegrationFlags struct {
	clientConfig
	bot string
}

var registerIntegrationCmd = &cobra.Command{
	Use:   "register-integration <name> <url>",
	Short: "Register or upgrade an integration backend",
	Args:  cobra.ExactArgs(2),
	RunE:  runRegisterIntegration,
}

func init() {
	rootCmd.AddCommand(integrationsCmd, registerIntegrationCmd)

	addClientFlags(integrationsCmd, &integrationsFlags.clientConfig)
	integrationsCmd.Flags().StringVar(&integrationsFlags.bot, "bot", "", "include integrations owned by this bot")

	addClientFlags(registerIntegrationCmd, &registerIntegrationFlags.clientConfig)
	registerIntegrationCmd.Flags().StringVar(&registerIntegrationFlags.bot, "bot", "", "owning bot (global when empty)")
}

func runIntegrations(cmd *cobra.Command, args []string) error {
	c, err := integrationsFlags.newClient()
	if err != nil {
		return err
	}

	settings, err := c.Integrations(context.Background(), integrationsFlags.bot)
	if err != nil {
		return err
	}

	b, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}

func runRegisterIntegration(cmd *cobra.Command, args []string) error {
	c, err := registerIntegrationFlags.newClient()
	if err != nil {
		return err
	}

	req := api.RegisterIntegrationRequest{Name: args[0], URL: args[1]}
	if registerIntegrationFlags.bot != "" {
		req.Bot = &registerIntegrationFlags.bot
	}
	outcome, err := c.RegisterIntegration(context.Background(), req)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], outcome)
	return nil
}
