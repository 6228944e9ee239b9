package cmd

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"ciforge/internal/store"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new user",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")

		if name == "" {
			return fmt.Errorf("--name is required")
		}
		email = strings.TrimSpace(strings.ToLower(email))
		if _, err := mail.ParseAddress(email); err != nil {
			return fmt.Errorf("invalid email %q", email)
		}

		ctx := context.Background()
		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		user := &store.User{
			ID:        uuid.NewString(),
			Name:      name,
			Email:     email,
			CreatedAt: time.Now().UTC(),
			IsActive:  true,
		}
		if err := s.CreateUser(ctx, user); err != nil {
			return err
		}

		cmd.Printf("User created\nID:    %s\nName:  %s\nEmail: %s\n", user.ID, user.Name, user.Email)
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all users",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		users, err := s.ListUsers(ctx)
		if err != nil {
			return err
		}

		cmd.Printf("%-36s  %-20s  %-30s  %s\n", "ID", "NAME", "EMAIL", "ACTIVE")
		for _, u := range users {
			cmd.Printf("%-36s  %-20s  %-30s  %t\n", u.ID, u.Name, u.Email, u.IsActive)
		}
		return nil
	},
}

var userDeactivateCmd = &cobra.Command{
	Use:   "deactivate [user-id]",
	Short: "Deactivate a user (users are never deleted)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.SetUserActive(ctx, args[0], false); err != nil {
			return err
		}
		cmd.Printf("User %s deactivated\n", args[0])
		return nil
	},
}

func init() {
	userCreateCmd.Flags().String("name", "", "Display name (required)")
	userCreateCmd.Flags().String("email", "", "Email address, unique across users (required)")

	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userDeactivateCmd)
	rootCmd.AddCommand(userCmd)
}
