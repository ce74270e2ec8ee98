package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var attemptsFlags struct {
	clientConfig
	limit int
}

var attemptsCmd = &cobra.Command{
	Use:   "attempts <ticket-id>",
	Short: "List a ticket's recent scan attempts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := attemptsFlags.newClient()
		if err != nil {
			return err
		}
		list, err := c.Attempts(cmd.Context(), args[0], attemptsFlags.limit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(out, "No attempts found.")
			return nil
		}
		fmt.Fprintf(out, "%-19s  %-4s  %-12s  %-5s  %s\n", "TIME", "KIND", "CHECKPOINT", "DEC", "REASON")
		for _, a := range list {
			reason := a.Reason
			if reason == "" {
				reason = "-"
			}
			fmt.Fprintf(out, "%-19s  %-4s  %-12s  %-5s  %s\n", a.CreatedAt.Local().Format(time.DateTime), a.CheckpointKind, a.CheckpointID, a.Outcome, reason)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(attemptsCmd)
	addClientFlags(attemptsCmd, &attemptsFlags.clientConfig)
	attemptsCmd.Flags().IntVar(&attemptsFlags.limit, "limit", 0, "maximum attempts to list (server default when 0)")
}
