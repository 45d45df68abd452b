package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a fabrication job",
	Long: `Request cancellation of a job.

A queued job is cancelled immediately. A job already on a unit is
stopped at the next safe checkpoint, so the final state arrives a
moment later; check with 'forgectl status'.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		url := viper.GetString("url")
		token := viper.GetString("token")

		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the FORGEPLANE_TOKEN environment variable")
			return
		}

		client := NewClient(url, token)
		result, err := client.CancelJob(args[0])
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Cancel failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Cancel failed: %v\n", err)
			}
			return
		}

		cmd.Printf("✓ Cancellation accepted for job %s\n", result.JobID)
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}
