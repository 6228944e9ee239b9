package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "cictl",
	Short: "cictl is a command line tool for interacting with the CIForge platform",
	Long: `cictl is the command-line interface for CIForge, a continuous-integration
job runner.

CIForge accepts zipped project trees over an authenticated HTTP API, runs
each project's test suite inside an isolated container, and streams the
container's output back in real time.

Common workflows:

  Submit a project and watch its tests run:
    cictl submit ./my-project

  Submit without waiting:
    cictl submit ./my-project --async

  List your jobs:
    cictl jobs

  Check one job:
    cictl status <job-id>

  Stream (or replay) a job's logs:
    cictl logs <job-id> --from-beginning

Configuration:
  Set the API endpoint and credentials via flags, environment variables or
  a config file:
    CIFORGE_API_URL    API endpoint (default: http://localhost:6161)
    CIFORGE_API_KEY    API key for authentication (ci_...)`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".cictl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".cictl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "CIFORGE_VARNAME"
	viper.SetEnvPrefix("CIFORGE")
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.cictl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:6161", "CIForge API URL")
	viper.BindPFlag("api_url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("key", "k", "", "API key for authentication")
	viper.BindPFlag("api_key", rootCmd.PersistentFlags().Lookup("key"))
}

// clientFromConfig builds an API client from the resolved configuration,
// or returns an error when no credential is available.
func clientFromConfig() (*Client, error) {
	url := viper.GetString("api_url")
	key := viper.GetString("api_key")

	if key == "" {
		return nil, fmt.Errorf("API key not found. Set it with --key, the CIFORGE_API_KEY environment variable, or api_key in the config file")
	}
	return NewClient(url, key), nil
}
