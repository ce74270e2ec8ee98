package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var staffFlags struct {
	clientConfig
	staffID string
	pin     string
}

var staffCmd = &cobra.Command{
	Use:   "staff",
	Short: "Staff operations",
}

var staffLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Check a staff PIN and print the operator profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := staffFlags.newClient()
		if err != nil {
			return err
		}
		p, err := c.StaffLogin(cmd.Context(), staffFlags.staffID, staffFlags.pin)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s (%s)  role=%s\n", p.DisplayName, p.StaffID, p.Role)
		if p.GateID != "" {
			fmt.Fprintf(out, "  gate: %s\n", p.GateID)
		}
		if p.ZoneCheckpointID != "" {
			fmt.Fprintf(out, "  zone checkpoint: %s\n", p.ZoneCheckpointID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(staffCmd)
	staffCmd.AddCommand(staffLoginCmd)
	addClientFlags(staffLoginCmd, &staffFlags.clientConfig)
	staffLoginCmd.Flags().StringVar(&staffFlags.staffID, "id", "", "staff id")
	staffLoginCmd.Flags().StringVar(&staffFlags.pin, "pin", "", "staff PIN")
	_ = staffLoginCmd.MarkFlagRequired("id")
	_ = staffLoginCmd.MarkFlagRequired("pin")
}
