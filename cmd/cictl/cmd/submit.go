package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var submitAsync bool

var submitCmd = &cobra.Command{
	Use:   "submit [project-dir]",
	Short: "Zip a project directory and submit it for a test run",
	Long: `Zip the given project directory, upload it, and stream the test run's
output until it completes.

The project tree must contain a requirements.txt naming the test runner;
the run's verdict is the test process's exit status.

Examples:
  cictl submit ./my-project
  cictl submit ./my-project --async`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := clientFromConfig()
		if err != nil {
			return err
		}

		zipData, err := zipDir(args[0])
		if err != nil {
			return err
		}

		if submitAsync {
			jobID, err := client.SubmitAsync(zipData)
			if err != nil {
				return err
			}
			cmd.Printf("Job submitted: %s\n", jobID)
			return nil
		}

		// Trap Ctrl+C so an interrupted watch exits with the
		// conventional interrupt status.
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigChan
			os.Exit(130)
		}()

		result, err := client.SubmitStream(zipData, cmd.OutOrStdout())
		if err != nil {
			return err
		}

		if !result.Success {
			cmd.PrintErrln("Tests failed")
			os.Exit(1)
		}
		cmd.Printf("Job %s completed successfully\n", result.JobID)
		return nil
	},
}

func init() {
	submitCmd.Flags().BoolVar(&submitAsync, "async", false, "Return the job id immediately instead of streaming")
	rootCmd.AddCommand(submitCmd)
}
