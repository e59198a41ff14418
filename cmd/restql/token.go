package main

import (
	"fmt"
	"time"

	"restql/internal/auth"

	"github.com/spf13/cobra"
)

// newTokenCmd prints a token minted by the configured jwt refresh. It is
// handy for checking signing settings and for calling a gateway that
// verifies the same issuer.
func newTokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token from the jwt refresh settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			refresh := cfg.Auth.Refresh
			if refresh.Type != auth.KindJWT {
				return fmt.Errorf("auth.refresh.type must be %q to mint tokens, got %q", auth.KindJWT, refresh.Type)
			}
			if ttl > 0 {
				refresh.TTL = ttl
			}

			minter, err := auth.NewJWTRefresher(refresh)
			if err != nil {
				return err
			}
			signed, err := minter.Mint()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (overrides auth.refresh.ttl)")
	return cmd
}
