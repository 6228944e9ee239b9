package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"ciforge/internal/auth"
	"ciforge/internal/store"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage API keys",
}

var keyMintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Mint a new API key for a user",
	Long: `Mint a new API key. The plaintext secret is printed exactly once and
never stored; only its hash is persisted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		name, _ := cmd.Flags().GetString("name")

		if userID == "" {
			return fmt.Errorf("--user is required")
		}
		if name == "" {
			return fmt.Errorf("--name is required")
		}

		ctx := context.Background()
		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		plaintext, hash, err := auth.GenerateKey()
		if err != nil {
			return err
		}

		key := &store.APIKey{
			ID:        uuid.NewString(),
			UserID:    userID,
			Name:      name,
			KeyHash:   hash,
			CreatedAt: time.Now().UTC(),
			IsActive:  true,
		}
		if err := s.CreateAPIKey(ctx, key); err != nil {
			return err
		}

		cmd.Printf("API key created\nID:  %s\nKey: %s\n\nStore this key now. It will not be shown again.\n", key.ID, plaintext)
		return nil
	},
}

var keyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys, optionally scoped to one user",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")

		ctx := context.Background()
		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		keys, err := s.ListAPIKeys(ctx, userID)
		if err != nil {
			return err
		}

		cmd.Printf("%-36s  %-36s  %-16s  %-7s  %s\n", "ID", "USER", "NAME", "ACTIVE", "LAST USED")
		for _, k := range keys {
			lastUsed := "never"
			if k.LastUsedAt != nil {
				lastUsed = k.LastUsedAt.Format("2006-01-02 15:04:05")
			}
			cmd.Printf("%-36s  %-36s  %-16s  %-7t  %s\n", k.ID, k.UserID, k.Name, k.IsActive, lastUsed)
		}
		return nil
	},
}

var keyRevokeCmd = &cobra.Command{
	Use:   "revoke [key-id]",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.RevokeAPIKey(ctx, args[0]); err != nil {
			return err
		}
		cmd.Printf("API key %s revoked\n", args[0])
		return nil
	},
}

func init() {
	keyMintCmd.Flags().String("user", "", "Owning user id (required)")
	keyMintCmd.Flags().String("name", "", "Key name, e.g. \"laptop\" (required)")
	keyListCmd.Flags().String("user", "", "Scope to one user id")

	keyCmd.AddCommand(keyMintCmd)
	keyCmd.AddCommand(keyListCmd)
	keyCmd.AddCommand(keyRevokeCmd)
	rootCmd.AddCommand(keyCmd)
}
