package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxagent/internal/gmail"
	"github.com/teemow/inboxagent/internal/google"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage Gmail authorization",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "login",
		Short: "Authorize Gmail access",
		Long: `Run the Google OAuth consent flow and store the token in gmail.token_file.
Requires GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET (or gmail.client_id and
gmail.client_secret) of an OAuth client of type "Desktop app".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			ctx, cancelTimeout := context.WithTimeout(ctx, 5*time.Minute)
			defer cancelTimeout()
			return newOAuth().Login(ctx, cmd.OutOrStdout())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Check the stored Gmail token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return authStatus(cmd.Context(), cmd)
		},
	})

	return cmd
}

func newOAuth() *google.OAuth {
	return google.NewOAuth(cfg.Gmail.ClientID, cfg.Gmail.ClientSecret, cfg.Gmail.TokenFile)
}

// authStatus loads the token and lists the labels to prove it works.
func authStatus(ctx context.Context, cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	oauth := newOAuth()

	if !oauth.HasToken() {
		fmt.Fprintf(out, "Gmail: not authorized (no token at %s)\nRun 'inboxagent auth login'.\n", oauth.TokenFile())
		return nil
	}
	tok, err := oauth.LoadToken()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Token file: %s\n", oauth.TokenFile())
	if !tok.Expiry.IsZero() {
		fmt.Fprintf(out, "Access token expiry: %s\n", tok.Expiry.Format(time.RFC3339))
	}

	httpClient, err := oauth.HTTPClient(ctx)
	if err != nil {
		return err
	}
	client, err := gmail.NewClient(ctx, httpClient)
	if err != nil {
		return err
	}
	labels, err := client.Labels(ctx)
	if err != nil {
		fmt.Fprintf(out, "Gmail: token present but the API call failed: %v\n", err)
		return err
	}
	fmt.Fprintf(out, "Gmail: authorized (%d labels)\n", len(labels))
	return nil
}
