package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"photocloud.io/internal/auth"
	"photocloud.io/internal/share"
	"photocloud.io/internal/store/pg"
)

type roleWriter interface {
	SetRole(ctx context.Context, userID string, role auth.Role) error
}

// app carries the stores commands run against. Tests preset them; otherwise they are
// opened from --dsn before any command runs.
type app struct {
	out     io.Writer
	dsn     string
	baseURL string
	asJSON  bool

	store  share.Store
	roles  roleWriter
	closer io.Closer
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "sharectl",
		Short:         "Administer photo share links",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.store != nil || cmd.Name() == "token" {
				return nil
			}
			if a.dsn == "" {
				return errors.New("missing DSN: provide via --dsn or PHOTOCLOUD_PG_DSN")
			}
			store, err := pg.Open(a.dsn)
			if err != nil {
				return err
			}
			a.store, a.roles, a.closer = store, store.Roles(), store
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.closer != nil {
				return a.closer.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.dsn, "dsn", os.Getenv("PHOTOCLOUD_PG_DSN"), "PostgreSQL DSN")
	root.PersistentFlags().StringVar(&a.baseURL, "base-url", envOr("PHOTOCLOUD_PUBLIC_BASE_URL", "http://localhost:8080"), "Public base URL for share links")
	root.PersistentFlags().BoolVar(&a.asJSON, "json", false, "Print JSON instead of text")

	root.AddCommand(
		newCreateCmd(a),
		newListCmd(a),
		newStatusCmd(a, "revoke", false),
		newStatusCmd(a, "activate", true),
		newDeleteCmd(a),
		newResolveCmd(a),
		newRoleCmd(a),
		newTokenCmd(a),
	)
	return root
}

func (a *app) service() *share.Service {
	return share.NewService(a.store, a.baseURL)
}

func (a *app) print(v any, text string) error {
	if a.asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(a.out, text)
	return err
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
