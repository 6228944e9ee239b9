// Package cmd implements the adminctl command tree. adminctl is a thin
// wrapper over store operations: it talks to Postgres directly rather
// than going through the HTTP API, so it works even when no API replica
// is up.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ciforge/internal/store/postgres"
)

var rootCmd = &cobra.Command{
	Use:   "adminctl",
	Short: "adminctl provisions CIForge users and API keys",
	Long: `adminctl is the administrative companion to the CIForge platform. It
creates users, mints and revokes API keys, and deactivates accounts by
operating on the store directly.

Configuration:
  CIFORGE_DATABASE_URL   Postgres connection string (or --database-url)`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("database-url", "", "Postgres connection string")
	viper.BindPFlag("database_url", rootCmd.PersistentFlags().Lookup("database-url"))
	viper.SetEnvPrefix("CIFORGE")
	viper.AutomaticEnv()
}

// openStore connects to the configured database.
func openStore(ctx context.Context) (*postgres.Store, error) {
	dbURL := viper.GetString("database_url")
	if dbURL == "" {
		return nil, fmt.Errorf("database URL not found. Set it with --database-url or the CIFORGE_DATABASE_URL environment variable")
	}
	return postgres.New(ctx, dbURL)
}
