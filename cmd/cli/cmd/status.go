package cmd

import (
	"forgeplane/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the progress record of a job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		url := viper.GetString("url")
		token := viper.GetString("token")

		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the FORGEPLANE_TOKEN environment variable")
			return
		}

		client := NewClient(url, token)
		job, err := client.GetJob(args[0])
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Status failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Status failed: %v\n", err)
			}
			return
		}

		printJob(cmd, job)
	},
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List your active fabrication jobs",
	Run: func(cmd *cobra.Command, args []string) {
		url := viper.GetString("url")
		token := viper.GetString("token")

		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the FORGEPLANE_TOKEN environment variable")
			return
		}

		client := NewClient(url, token)
		jobs, err := client.ListJobs()
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("List failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("List failed: %v\n", err)
			}
			return
		}

		if len(jobs) == 0 {
			cmd.Println("No active jobs")
			return
		}
		for i := range jobs {
			printJob(cmd, &jobs[i])
			cmd.Println()
		}
	},
}

func printJob(cmd *cobra.Command, job *api.ProgressResponse) {
	cmd.Printf("Job ID: %s\n", job.JobID)
	cmd.Printf("Status: %s\n", job.Status)
	cmd.Printf("Progress: %d%%\n", job.PercentComplete)
	if job.Step != "" {
		cmd.Printf("Step: %s\n", job.Step)
	}
	if job.AssignedUnit != "" {
		cmd.Printf("Unit: %s\n", job.AssignedUnit)
	}
	if job.RerouteCount > 0 {
		cmd.Printf("Reroutes: %d\n", job.RerouteCount)
	}
	cmd.Printf("Estimated remaining: %ds\n", job.EstimatedRemainingSec)
	if job.CompletedAt != nil {
		cmd.Printf("Completed at: %s\n", job.CompletedAt.Format("2006-01-02 15:04:05"))
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(jobsCmd)
}
