package main

import (
	"context"

	"github.com/kursadbilgin/federation-engine/internal/app"
	"github.com/spf13/cobra"
)

func whatsappCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whatsapp",
		Short: "WhatsApp instance tools",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the WhatsApp instance connection state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				status, err := a.WhatsApp.CheckConnectionStatus(ctx)
				body := map[string]string{"status": string(status)}
				if err != nil {
					body["error"] = err.Error()
				}
				return printJSON(cmd.OutOrStdout(), body)
			})
		},
	})
	return cmd
}
