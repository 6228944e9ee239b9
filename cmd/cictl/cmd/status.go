package cmd

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Show one job's record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := clientFromConfig()
		if err != nil {
			return err
		}

		job, err := client.GetJob(args[0])
		if err != nil {
			return err
		}

		cmd.Printf("Job:     %s\n", job.ID)
		cmd.Printf("Status:  %s\n", job.Status)
		if job.Success != nil {
			cmd.Printf("Success: %t\n", *job.Success)
		}
		if job.StartTime != nil {
			cmd.Printf("Started: %s\n", job.StartTime.Format("2006-01-02 15:04:05"))
		}
		if job.EndTime != nil {
			cmd.Printf("Ended:   %s\n", job.EndTime.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
