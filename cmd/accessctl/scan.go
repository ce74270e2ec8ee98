package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"qr-access-control/internal/checkpoint"
)

var scanFlags struct {
	clientConfig
	qr string
}

var gateID, zoneCheckpointID string

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Submit a scanned token to a checkpoint",
}

var scanGateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Scan at an entry gate",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := scanFlags.newClient()
		if err != nil {
			return err
		}
		d, err := c.ScanGate(cmd.Context(), scanFlags.qr, gateID)
		if err != nil {
			return err
		}
		return printDecision(cmd.OutOrStdout(), d)
	},
}

var scanZoneCmd = &cobra.Command{
	Use:   "zone",
	Short: "Scan at a zone checkpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := scanFlags.newClient()
		if err != nil {
			return err
		}
		d, err := c.ScanZone(cmd.Context(), scanFlags.qr, zoneCheckpointID)
		if err != nil {
			return err
		}
		return printDecision(cmd.OutOrStdout(), d)
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.AddCommand(scanGateCmd, scanZoneCmd)
	for _, cmd := range []*cobra.Command{scanGateCmd, scanZoneCmd} {
		addClientFlags(cmd, &scanFlags.clientConfig)
		cmd.Flags().StringVar(&scanFlags.qr, "qr", "", "scanned token")
		_ = cmd.MarkFlagRequired("qr")
	}
	scanGateCmd.Flags().StringVar(&gateID, "gate", "", "gate id")
	_ = scanGateCmd.MarkFlagRequired("gate")
	scanZoneCmd.Flags().StringVar(&zoneCheckpointID, "zone", "", "zone checkpoint id")
	_ = scanZoneCmd.MarkFlagRequired("zone")
}

// errDenied makes a DENY exit non-zero after the decision is printed.
var errDenied = errors.New("access denied")

func printDecision(w io.Writer, d checkpoint.Decision) error {
	if d.Allowed() {
		fmt.Fprintf(w, "ALLOW  ticket=%s\n", d.TicketID)
		for _, e := range d.Entitlements {
			fmt.Fprintf(w, "  %-10s %-12s reentry %d/%d\n", e.ZoneID, e.ZoneName, e.ReentryUsed, e.ReentryLimit)
		}
		return nil
	}
	line := fmt.Sprintf("DENY   reason=%s", d.Reason)
	if d.Unavailable {
		line += "  (service unavailable, retry)"
	}
	fmt.Fprintln(w, line)
	return errDenied
}
