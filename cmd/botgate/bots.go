package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/rsclarke/botgate/internal/api"
	"github.com/spf13/cobra"
)

var botsFlags struct {
	clientConfig
}

var botsCmd = &cobra.Command{
	Use:   "bots",
	Short: "List registered bots",
	Args:  cobra.NoArgs,
	RunE:  runBots,
}

var registerBotFlags struct {
	clientConfig
	host string
	port int
	kind string
}

var registerBotCmd = &cobra.Command{
	Use:   "register-bot <name>",
	Short: "Register a bot backend",
	Long: `Register a bot backend under a unique name. The host may carry an
http:// or https:// prefix. Requires the admin role when authorization
is enabled.`,
	Args: cobra.ExactArgs(1),
	RunE: runRegisterBot,
}

var deleteBotFlags struct {
	clientConfig
}

var deleteBotCmd = &cobra.Command{
	Use:   "delete-bot <name>",
	Short: "Remove a bot from the registry",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeleteBot,
}

func init() {
	rootCmd.AddCommand(botsCmd, registerBotCmd, deleteBotCmd)

	addClientFlags(botsCmd, &botsFlags.clientConfig)

	addClientFlags(registerBotCmd, &registerBotFlags.clientConfig)
	registerBotCmd.Flags().StringVar(&registerBotFlags.host, "host", "localhost", "bot backend host")
	registerBotCmd.Flags().IntVar(&registerBotFlags.port, "port", 5000, "bot backend port")
	registerBotCmd.Flags().StringVar(&registerBotFlags.kind, "kind", "robert", "bot kind (charlotte or robert)")

	addClientFlags(deleteBotCmd, &deleteBotFlags.clientConfig)
}

func runBots(cmd *cobra.Command, args []string) error {
	c, err := botsFlags.newClient()
	if err != nil {
		return err
	}

	bots, err := c.ListBots(context.Background())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(bots) == 0 {
		fmt.Fprintln(out, "No bots registered.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tHOST\tPORT\tCREATED")
	for _, b := range bots {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", b.Name, b.Kind, b.Host, b.Port, shortTime(b.CreatedAt))
	}
	return tw.Flush()
}

func runRegisterBot(cmd *cobra.Command, args []string) error {
	c, err := registerBotFlags.newClient()
	if err != nil {
		return err
	}

	bot, err := c.RegisterBot(context.Background(), api.RegisterBotRequest{
		Name: args[0],
		Host: registerBotFlags.host,
		Port: registerBotFlags.port,
		Kind: registerBotFlags.kind,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Registered %s (%s) at %s:%d\n", bot.Name, bot.Kind, bot.Host, bot.Port)
	return nil
}

func runDeleteBot(cmd *cobra.Command, args []string) error {
	c, err := deleteBotFlags.newClient()
	if err != nil {
		return err
	}
	if err := c.DeleteBot(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
	return nil
}

func shortTime(rfc3339 string) string {
	t, err := time.Parse(time.RFC3339, rfc3339)
	if err != nil {
		return rfc3339
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
