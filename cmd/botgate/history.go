package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var historyFlags struct {
	clientConfig
}

var historyCmd = &cobra.Command{
	Use:   "history <bot>",
	Short: "Show the queries a bot has handled",
	Long:  `Show the recorded queries of a bot, oldest first, with the intent the bot resolved each one to.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	addClientFlags(historyCmd, &historyFlags.clientConfig)
}

func runHistory(cmd *cobra.Command, args []string) error {
	c, err := historyFlags.newClient()
	if err != nil {
		return err
	}

	records, err := c.History(context.Background(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(out, "No interactions recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tINTENT\tCONFIDENCE\tQUERY")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\n", shortTime(r.CreatedAt), r.Intent, r.Confidence, r.Query)
	}
	return tw.Flush()
}
