package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hupe1980/inboxmesh/config"
	"github.com/hupe1980/inboxmesh/google"
)

func newAuthCmd() *cobra.Command {
	var code string
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorise access to Gmail, Calendar and Tasks",
		Long: `Prints the Google consent URL, reads the authorization code and saves
the resulting token to the configured token file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			conf, err := google.OAuthConfig(cfg.Google.CredentialsFile)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if code == "" {
				fmt.Fprintf(out, "Open this URL in your browser and authorise inboxmesh:\n\n%s\n\n", google.AuthURL(conf))
				code, err = newConsole(cmd.InOrStdin(), out).readLine("Authorization code: ")
				if errors.Is(err, io.EOF) || (err == nil && code == "") {
					return errors.New("no authorization code given")
				}
				if err != nil {
					return err
				}
			}

			if err := google.Exchange(cmd.Context(), conf, code, cfg.Google.TokenFile); err != nil {
				return err
			}
			fmt.Fprintf(out, "Token saved to %s\n", cfg.Google.TokenFile)
			return nil
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "authorization code (prompted for when empty)")
	return cmd
}
