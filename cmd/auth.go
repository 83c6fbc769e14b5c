package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sarahdorsten/newsletter-digest/internal/config"
	"github.com/sarahdorsten/newsletter-digest/internal/google"
	"github.com/sarahdorsten/newsletter-digest/internal/logging"
)

func newAuthCmd() *cobra.Command {
	var (
		noBrowser bool
		reset     bool
	)

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize read-only Gmail access",
		Long: `Run the Google OAuth flow for the desktop client in credentials_file and
cache the resulting token in token_file. A browser window opens on the
consent page; the redirect is received on a loopback port.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			cfg, err := config.Load(globalFlags.configPath)
			if err != nil {
				return err
			}

			conf, err := google.LoadOAuthConfig(cfg.Google.CredentialsFile)
			if err != nil {
				return err
			}

			cache := google.NewTokenCache(cfg.Google.TokenFile)
			if cache.Exists() && !reset {
				fmt.Fprintf(cmd.OutOrStdout(), "A token is already cached at %s (use --reset to authorize again)\n", cache.Path())
				return nil
			}

			out := cmd.OutOrStdout()
			openURL := func(url string) error {
				fmt.Fprintf(out, "Open this URL in your browser to authorize Gmail access:\n\n  %s\n\n", url)
				if noBrowser {
					return nil
				}
				if err := google.OpenBrowser(url); err != nil {
					slog.Warn("could not open a browser, open the URL manually", logging.Err(err))
				}
				return nil
			}

			if _, err := google.Login(ctx, conf, cache, openURL); err != nil {
				return fmt.Errorf("authorization failed: %w", err)
			}
			fmt.Fprintf(out, "Token saved to %s\n", cache.Path())
			return nil
		},
	}

	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Print the consent URL instead of opening a browser")
	cmd.Flags().BoolVar(&reset, "reset", false, "Discard the cached token and authorize again")
	return cmd
}
