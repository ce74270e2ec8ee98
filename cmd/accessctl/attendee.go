package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"qr-access-control/internal/credential"
	"qr-access-control/internal/rotation"
)

var attendeeFlags struct {
	clientConfig
	ticketID     string
	eventID      string
	ttl          time.Duration
	skew         time.Duration
	syncInterval time.Duration
	keyBytes     int
	count        int
}

var attendeeCmd = &cobra.Command{
	Use:   "attendee",
	Short: "Show rotating tokens for a ticket",
	Long: `Run an attendee device: fetch the ticket's session context, print a freshly
signed token every ttl and re-sync the context in the background. Each printed
line is the QR payload a scanner would read.`,
	RunE: runAttendee,
}

func init() {
	rootCmd.AddCommand(attendeeCmd)
	addClientFlags(attendeeCmd, &attendeeFlags.clientConfig)
	f := attendeeCmd.Flags()
	f.StringVar(&attendeeFlags.ticketID, "ticket", "", "ticket id")
	f.StringVar(&attendeeFlags.eventID, "event", "", "event id used when the server omits it")
	f.DurationVar(&attendeeFlags.ttl, "ttl", 20*time.Second, "token lifetime, matching the server's QR_TTL")
	f.DurationVar(&attendeeFlags.skew, "skew", 0, "clock skew subtracted from issuedAt")
	f.DurationVar(&attendeeFlags.syncInterval, "sync-interval", rotation.DefaultSyncInterval, "session re-sync interval")
	f.IntVar(&attendeeFlags.keyBytes, "key-bytes", credential.DefaultKeyBytes, "session key length, matching the server's SESSION_KEY_BYTES")
	f.IntVar(&attendeeFlags.count, "count", 0, "exit after printing this many tokens (0 runs until interrupted)")
	_ = attendeeCmd.MarkFlagRequired("ticket")
}

func runAttendee(cmd *cobra.Command, args []string) error {
	c, err := attendeeFlags.newClient()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := cmd.OutOrStdout()
	printed := 0
	ctrl, err := rotation.NewController(c, credential.NewSigner(attendeeFlags.ttl, attendeeFlags.skew, attendeeFlags.keyBytes), rotation.Options{
		TicketID:      attendeeFlags.ticketID,
		EventID:       attendeeFlags.eventID,
		SyncInterval:  attendeeFlags.syncInterval,
		IssuerTimeout: attendeeFlags.timeout,
		Logger:        logger,
		OnToken: func(tok *credential.Token) {
			fmt.Fprintf(out, "%s  expires %s\n", tok.Raw, tok.ExpiresAt.Format(time.TimeOnly))
			printed++
			if attendeeFlags.count > 0 && printed >= attendeeFlags.count {
				cancel()
			}
		},
	})
	if err != nil {
		return err
	}
	if err := ctrl.Start(ctx); err != nil {
		return err
	}
	defer ctrl.Stop()

	// The controller never leaves FAILED on its own; report it and exit.
	poll := time.NewTicker(250 * time.Millisecond)
	defer poll.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-poll.C:
			if snap := ctrl.Snapshot(); snap.State == rotation.Failed {
				return fmt.Errorf("session unavailable: %v", snap.LastError)
			}
		}
	}
}
