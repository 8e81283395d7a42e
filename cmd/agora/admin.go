package main

import (
	"errors"
	"fmt"
	"os"

	"agora/internal/auth"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	adminName     string
	adminEmail    string
	adminPassword string
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage administrator accounts",
}

var adminCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an administrator account",
	Long: `Create an administrator account.

The password is read from --password or, when omitted, from AGORA_ADMIN_PASSWORD.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		password := adminPassword
		if password == "" {
			password = os.Getenv("AGORA_ADMIN_PASSWORD")
		}
		if password == "" {
			return errors.New("a password is required (--password or AGORA_ADMIN_PASSWORD)")
		}

		authService := auth.NewService(cfg.SessionTTL, cfg.AdminEmails)
		user, err := authService.CreateUser(cmd.Context(), db.DB, adminName, adminEmail, password, auth.RoleAdmin)
		if err != nil {
			return fmt.Errorf("failed to create administrator: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s administrator %s created (%s)\n", color.GreenString("v"), user.Email, user.ID)
		return nil
	},
}

var adminPromoteCmd = &cobra.Command{
	Use:   "promote <email>",
	Short: "Grant the admin role to an existing account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		authService := auth.NewService(cfg.SessionTTL, cfg.AdminEmails)
		if err := authService.SetRole(cmd.Context(), db.DB, args[0], auth.RoleAdmin); err != nil {
			if errors.Is(err, auth.ErrUserNotFound) {
				return fmt.Errorf("no account with email %s", args[0])
			}
			return fmt.Errorf("failed to promote %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s is now an administrator\n", color.GreenString("v"), args[0])
		return nil
	},
}

var adminDemoteCmd = &cobra.Command{
	Use:   "demote <email>",
	Short: "Revoke the admin role and sign the account out everywhere",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		authService := auth.NewService(cfg.SessionTTL, cfg.AdminEmails)
		user, err := authService.GetUserByEmail(cmd.Context(), db.DB, args[0])
		if err != nil {
			if errors.Is(err, auth.ErrUserNotFound) {
				return fmt.Errorf("no account with email %s", args[0])
			}
			return err
		}
		if err := authService.SetRole(cmd.Context(), db.DB, user.Email, auth.RoleUser); err != nil {
			return fmt.Errorf("failed to demote %s: %w", user.Email, err)
		}
		if err := authService.InvalidateUserSessions(cmd.Context(), db.DB, user.ID); err != nil {
			return fmt.Errorf("failed to sign out %s: %w", user.Email, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s is no longer an administrator\n", color.YellowString("v"), user.Email)
		return nil
	},
}

func init() {
	adminCreateCmd.Flags().StringVar(&adminName, "name", "", "display name")
	adminCreateCmd.Flags().StringVar(&adminEmail, "email", "", "login email")
	adminCreateCmd.Flags().StringVar(&adminPassword, "password", "", "password (at least 8 characters)")
	adminCreateCmd.MarkFlagRequired("name")
	adminCreateCmd.MarkFlagRequired("email")

	adminCmd.AddCommand(adminCreateCmd, adminPromoteCmd, adminDemoteCmd)
	rootCmd.AddCommand(adminCmd)
}
