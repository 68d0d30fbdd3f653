package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"photocloud.io/internal/auth"
	"photocloud.io/internal/share"
)

func newCreateCmd(a *app) *cobra.Command {
	var (
		owner, resource, password string
		expiresIn                 time.Duration
		maxDownloads              int
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a share link for a resource",
		Example: `  sharectl create --owner u1 --resource photo-42 --expires-in 72h --max-downloads 5
  sharectl create --owner u1 --resource photo-42 --password hunter2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := share.CreateInput{ResourceID: resource, Password: password}
			if expiresIn > 0 {
				at := time.Now().Add(expiresIn).UTC()
				in.ExpiresAt = &at
			}
			if maxDownloads > 0 {
				in.MaxDownloads = &maxDownloads
			}
			svc := a.service()
			rec, err := svc.Create(cmd.Context(), owner, in)
			if err != nil {
				return err
			}
			return a.print(rec, svc.Link(rec.Token))
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner user id")
	cmd.Flags().StringVar(&resource, "resource", "", "Resource id to share")
	cmd.Flags().StringVar(&password, "password", "", "Optional password")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "Lifetime of the link (0 = never expires)")
	cmd.Flags().IntVar(&maxDownloads, "max-downloads", 0, "Download limit (0 = unlimited)")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("resource")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	var owner, resource string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an owner's shares",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				recs []share.Record
				err  error
			)
			if resource != "" {
				recs, err = a.service().ListForResource(cmd.Context(), owner, resource)
			} else {
				recs, err = a.service().List(cmd.Context(), owner)
			}
			if err != nil {
				return err
			}
			return a.print(recs, formatTable(recs))
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner user id")
	cmd.Flags().StringVar(&resource, "resource", "", "Only shares of this resource")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newStatusCmd(a *app, use string, active bool) *cobra.Command {
	var owner string
	short := "Deactivate a share"
	if active {
		short = "Reactivate a share"
	}
	cmd := &cobra.Command{
		Use:   use + " SHARE_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := a.service().SetActive(cmd.Context(), owner, args[0], active)
			if err != nil {
				return err
			}
			return a.print(rec, fmt.Sprintf("%s active=%t", rec.ID, rec.IsActive))
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner user id")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "delete SHARE_ID",
		Short: "Delete a share",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.service().Delete(cmd.Context(), owner, args[0]); err != nil {
				return err
			}
			return a.print(map[string]string{"deleted": args[0]}, "deleted "+args[0])
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner user id")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newResolveCmd(a *app) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "resolve TOKEN",
		Short: "Check whether a share token would be granted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pw *string
			if cmd.Flags().Changed("password") {
				pw = &password
			}
			rec, err := share.NewValidator(a.store).Resolve(cmd.Context(), args[0], pw)
			if err != nil {
				if reason, ok := share.ReasonOf(err); ok {
					return a.print(map[string]any{"granted": false, "reason": reason}, "denied: "+string(reason))
				}
				return err
			}
			return a.print(map[string]any{"granted": true, "resource_id": rec.ResourceID},
				"granted: "+rec.ResourceID)
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "Password to try")
	return cmd
}

func newRoleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "role USER_ID ROLE",
		Short: "Set a user's role (user, admin, super_admin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := auth.ParseRole(args[1])
			if err != nil {
				return err
			}
			if a.roles == nil {
				return fmt.Errorf("role storage unavailable")
			}
			if err := a.roles.SetRole(cmd.Context(), args[0], role); err != nil {
				return err
			}
			return a.print(map[string]string{"user": args[0], "role": string(role)},
				fmt.Sprintf("%s is now %s", args[0], role))
		},
	}
}

func formatTable(recs []share.Record) string {
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tRESOURCE\tACTIVE\tDOWNLOADS\tEXPIRES\tPASSWORD")
	for _, r := range recs {
		limit := "-"
		if r.MaxDownloads != nil {
			limit = fmt.Sprint(*r.MaxDownloads)
		}
		expires := "never"
		if r.ExpiresAt != nil {
			expires = r.ExpiresAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%d/%s\t%s\t%t\n",
			r.ID, r.ResourceID, r.IsActive, r.DownloadCount, limit, expires, r.PasswordProtected())
	}
	_ = tw.Flush()
	return strings.TrimRight(b.String(), "\n")
}
