package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Show the wait estimate for a capability class",
	Run: func(cmd *cobra.Command, args []string) {
		capability, _ := cmd.Flags().GetString("capability")

		url := viper.GetString("url")
		token := viper.GetString("token")

		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the FORGEPLANE_TOKEN environment variable")
			return
		}
		if capability == "" {
			cmd.Println("Error: --capability is required")
			return
		}

		client := NewClient(url, token)
		result, err := client.GetEstimate(capability)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Estimate failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Estimate failed: %v\n", err)
			}
			return
		}

		cmd.Printf("Capability: %s\n", result.Capability)
		cmd.Printf("Wait estimate: %ds\n", result.WaitEstimateSec)
		cmd.Printf("Queued jobs: %d\n", result.QueuedJobs)
		cmd.Printf("Units: %d\n", result.Units)
	},
}

func init() {
	estimateCmd.Flags().StringP("capability", "c", "", "Capability class: textile, additive or hybrid (required)")
	rootCmd.AddCommand(estimateCmd)
}
