package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/federation-engine/internal/app"
	"github.com/spf13/cobra"
)

func membershipCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "membership",
		Short: "Manage athlete memberships",
	}
	cmd.AddCommand(membershipActivateCmd())
	return cmd
}

func membershipActivateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activate",
		Short: "Activate a membership and send the confirmation messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			userID = strings.TrimSpace(userID)
			if userID == "" {
				return fmt.Errorf("--user is required")
			}

			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				result, err := a.Memberships.ActivateMembership(ctx, userID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"userId":           result.Athlete.UserID,
					"active":           result.Athlete.Active,
					"registrationYear": result.Athlete.RegistrationYear,
					"isRenewal":        result.IsRenewal,
					"protocolNumber":   result.ProtocolNumber,
					"emailQueued":      result.EmailQueued,
					"whatsappStatus":   string(result.WhatsAppStatus),
					"whatsappQueued":   result.WhatsAppQueued,
				})
			})
		},
	}

	cmd.Flags().StringP("user", "u", "", "User id of the athlete")
	return cmd
}
