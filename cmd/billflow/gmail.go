package main

import (
	"fmt"

	"github.com/Veraticus/billflow/internal/cli"
	"github.com/Veraticus/billflow/internal/inbox"
	"github.com/spf13/cobra"
)

func gmailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gmail",
		Short: "Manage the Gmail message source",
	}
	cmd.AddCommand(gmailAuthCmd())
	return cmd
}

func gmailAuthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize read-only access to Gmail",
		Long: `Open the Google consent page and store the resulting token.

Requires gmail.client_id and gmail.client_secret (or GMAIL_CLIENT_ID and
GMAIL_CLIENT_SECRET) from a Google Cloud OAuth client of type "Desktop".
The token is written to gmail.token_file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, err = inbox.Authorize(cmd.Context(), gmailOAuth(settings), func(url string) {
				fmt.Fprintln(out, cli.FormatInfo("Open this URL to authorize billflow:"))
				fmt.Fprintln(out, url)
			})
			if err != nil {
				return fmt.Errorf("gmail authorization failed: %w", err)
			}

			fmt.Fprintln(out, cli.FormatSuccess("Gmail authorized, token saved to "+settings.Gmail.TokenFile))
			return nil
		},
	}
}
