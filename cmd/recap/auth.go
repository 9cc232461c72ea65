package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/recap/internal/config"
	"github.com/kalambet/recap/internal/schedule"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize external services",
}

var authGoogleCmd = &cobra.Command{
	Use:   "google",
	Short: "Authorize Google Calendar and Tasks",
	Long: `Authorize Google Calendar and Tasks.

Download the OAuth client secrets (desktop app) from the Google Cloud console
to schedule.credentials_file, run this command, open the printed URL and
paste back the code Google shows. The token is stored at schedule.token_file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		conf, err := schedule.OAuthConfig(cfg.Schedule.CredentialsFile)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Open this URL in your browser and authorize recap:\n\n  %s\n\n", schedule.AuthCodeURL(conf))
		fmt.Fprint(out, "Authorization code: ")

		code, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && strings.TrimSpace(code) == "" {
			return fmt.Errorf("reading authorization code: %w", err)
		}
		if strings.TrimSpace(code) == "" {
			return fmt.Errorf("no authorization code entered")
		}

		if err := schedule.Exchange(cmd.Context(), conf, code, cfg.Schedule.TokenFile); err != nil {
			return err
		}
		printSuccess("Google token saved to %s", cfg.Schedule.TokenFile)
		if cfg.Schedule.Backend != "google" {
			printWarning("schedule.backend is %q; run `recap config set schedule.backend google` to use it", cfg.Schedule.Backend)
		}
		return nil
	},
}

func init() {
	authCmd.AddCommand(authGoogleCmd)
}
