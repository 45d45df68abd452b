package cmd

import (
	"forgeplane/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a fabrication job",
	Long: `Submit a fabrication job to the scheduler.

The job is validated at admission: the capability class must exist, the
estimated duration must be positive and a CAD reference is required.
The response includes the wait estimate for the capability class.

Example:
  forgectl submit --capability textile --duration 600 --cad cad://pattern-42
  forgectl submit --capability additive --duration 1800 --cad cad://bracket-7 --materials-pending`,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		capability, _ := flags.GetString("capability")
		duration, _ := flags.GetInt64("duration")
		cadRef, _ := flags.GetString("cad")
		materialsPending, _ := flags.GetBool("materials-pending")

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
		if cadRef == "" {
			cmd.Println("Error: --cad is required")
			return
		}
		if duration <= 0 {
			cmd.Println("Error: --duration must be a positive number of seconds")
			return
		}

		client := NewClient(url, token)
		result, err := client.SubmitJob(api.SubmitJobRequest{
			RequiredCapability:   capability,
			EstimatedDurationSec: duration,
			CADRef:               cadRef,
			MaterialsReady:       !materialsPending,
		})
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Submit failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Submit failed: %v\n", err)
			}
			return
		}

		cmd.Printf("✓ Job submitted!\nJob ID: %s\nWait estimate: %ds\n", result.JobID, result.WaitEstimateSec)
	},
}

func init() {
	flags := submitCmd.Flags()
	flags.StringP("capability", "c", "", "Capability class: textile, additive or hybrid (required)")
	flags.Int64P("duration", "d", 0, "Estimated fabrication time in seconds (required)")
	flags.String("cad", "", "Reference to the validated CAD pattern (required)")
	flags.Bool("materials-pending", false, "Hold the job until materials are confirmed available")

	rootCmd.AddCommand(submitCmd)
}
