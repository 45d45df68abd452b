package cmd

import (
	"forgeplane/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var unitsCmd = &cobra.Command{
	Use:   "units",
	Short: "Operator commands for the fabrication pool",
}

var unitsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the fabrication units and their state",
	Run: func(cmd *cobra.Command, args []string) {
		client, ok := operatorClient(cmd)
		if !ok {
			return
		}

		units, err := client.ListUnits()
		if err != nil {
			printAPIError(cmd, "List", err)
			return
		}

		if len(units) == 0 {
			cmd.Println("No units registered")
			return
		}
		for _, u := range units {
			cmd.Printf("%-12s %-10s %-10s", u.UnitID, u.CapabilityClass, u.Status)
			if u.CurrentJob != "" {
				cmd.Printf(" job=%s", u.CurrentJob)
			}
			cmd.Println()
		}
	},
}

var unitsRegisterCmd = &cobra.Command{
	Use:   "register <unit-id>",
	Short: "Register a fabrication unit",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		capability, _ := cmd.Flags().GetString("capability")
		if capability == "" {
			cmd.Println("Error: --capability is required")
			return
		}

		client, ok := operatorClient(cmd)
		if !ok {
			return
		}

		unit, err := client.RegisterUnit(api.RegisterUnitRequest{
			UnitID:          args[0],
			CapabilityClass: capability,
		})
		if err != nil {
			printAPIError(cmd, "Register", err)
			return
		}
		cmd.Printf("✓ Unit %s registered (%s, %s)\n", unit.UnitID, unit.CapabilityClass, unit.Status)
	},
}

var unitsRestoreCmd = &cobra.Command{
	Use:   "restore <unit-id>",
	Short: "Return a repaired unit to service",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, ok := operatorClient(cmd)
		if !ok {
			return
		}

		unit, err := client.RestoreUnit(args[0])
		if err != nil {
			printAPIError(cmd, "Restore", err)
			return
		}
		cmd.Printf("✓ Unit %s back in service (%s)\n", unit.UnitID, unit.Status)
	},
}

// operatorClient builds a client authenticated with the operator
// secret rather than a customer API key.
func operatorClient(cmd *cobra.Command) (*Client, bool) {
	secret := viper.GetString("secret")
	if secret == "" {
		cmd.Println("Operator secret not found. Please set it using the --secret flag or the FORGEPLANE_SECRET environment variable")
		return nil, false
	}
	return NewClient(viper.GetString("url"), secret), true
}

func printAPIError(cmd *cobra.Command, op string, err error) {
	if apiErr, ok := err.(*APIError); ok {
		cmd.Printf("%s failed (%d): %s\n", op, apiErr.StatusCode, apiErr.Message)
		return
	}
	cmd.Printf("%s failed: %v\n", op, err)
}

func init() {
	unitsRegisterCmd.Flags().StringP("capability", "c", "", "Capability class of the unit (required)")

	unitsCmd.AddCommand(unitsListCmd)
	unitsCmd.AddCommand(unitsRegisterCmd)
	unitsCmd.AddCommand(unitsRestoreCmd)
	rootCmd.AddCommand(unitsCmd)
}
