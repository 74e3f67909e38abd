package main

import (
	"context"

	"github.com/kursadbilgin/federation-engine/internal/app"
	"github.com/spf13/cobra"
)

func notificationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Inspect and retry notifications",
	}
	cmd.AddCommand(notificationsRetryCmd())
	return cmd
}

func notificationsRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id]",
		Short: "Re-dispatch a pending notification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				notification, err := a.Notifications.Retry(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), notification)
			})
		},
	}
}
