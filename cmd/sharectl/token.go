package main

import (
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"

	"photocloud.io/internal/auth"
)

func newTokenCmd(a *app) *cobra.Command {
	var (
		user, email string
		ttl         time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with PHOTOCLOUD_TOKEN_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("PHOTOCLOUD_TOKEN_SECRET")
			if secret == "" {
				return errors.New("PHOTOCLOUD_TOKEN_SECRET is not set")
			}
			issuer, err := auth.NewTokenIssuer(secret, auth.WithIssuer(envOr("PHOTOCLOUD_TOKEN_ISSUER", "photocloud")))
			if err != nil {
				return err
			}
			token, expiresAt, err := issuer.Issue(user, email, ttl)
			if err != nil {
				return err
			}
			return a.print(map[string]any{"token": token, "expires_at": expiresAt}, token)
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "User id (token subject)")
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
