package cmd

import (
	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List your jobs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := clientFromConfig()
		if err != nil {
			return err
		}

		jobs, err := client.ListJobs()
		if err != nil {
			return err
		}

		if len(jobs) == 0 {
			cmd.Println("No jobs found")
			return nil
		}

		cmd.Printf("%-36s  %-10s  %-8s  %s\n", "JOB ID", "STATUS", "SUCCESS", "CREATED")
		for _, job := range jobs {
			success := "-"
			if job.Success != nil {
				if *job.Success {
					success = "true"
				} else {
					success = "false"
				}
			}
			cmd.Printf("%-36s  %-10s  %-8s  %s\n",
				job.ID, job.Status, success, job.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
}
