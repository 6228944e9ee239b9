package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var fromBeginning bool

var logsCmd = &cobra.Command{
	Use:   "logs [job-id]",
	Short: "Stream a job's logs",
	Long: `Stream log output for a job you own.

For a running job the stream follows the live output. For a finished job,
--from-beginning replays the full history before the verdict; without it
only the verdict is shown.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := clientFromConfig()
		if err != nil {
			return err
		}

		// Trap Ctrl+C to exit gracefully
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigChan
			os.Exit(130)
		}()

		result, err := client.StreamJob(args[0], fromBeginning, cmd.OutOrStdout())
		if err != nil {
			return err
		}

		if !result.Success {
			cmd.PrintErrln("Job did not succeed")
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	logsCmd.Flags().BoolVar(&fromBeginning, "from-beginning", false, "Replay the full log history")
	rootCmd.AddCommand(logsCmd)
}
