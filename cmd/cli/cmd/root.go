package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "forgectl",
	Short: "Forgectl is a command line tool for the forgeplane scheduler",
	Long: `forgectl is the command-line interface for the forgeplane
manufacturing resource scheduler.

The controller admits fabrication jobs, matches them to units of the
right capability class and tracks them through their lifecycle. Unit
agents (unitd) drive the hardware and report progress back.

Common workflows:

  Submit a fabrication job:
    forgectl submit --capability textile --duration 600 --cad cad://pattern-42

  Check a job:
    forgectl status <job-id>

  List your active jobs:
    forgectl jobs

  Cancel a job:
    forgectl cancel <job-id>

  Wait estimate for a capability class:
    forgectl estimate --capability additive

  Inspect the fabrication pool (operators):
    forgectl units list

Configuration:
  Set the API endpoint and credentials via environment variables or a config file:
    FORGEPLANE_URL      Controller URL (default: http://localhost:7171)
    FORGEPLANE_TOKEN    Customer API key for authentication
    FORGEPLANE_SECRET   Operator secret for the unit endpoints`,
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

		viper.AddConfigPath(home)
		viper.SetConfigName(".forgectl")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("FORGEPLANE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.forgectl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:7171", "Forgeplane Controller URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "Customer API key for authentication")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))

	rootCmd.PersistentFlags().String("secret", "", "Operator secret for unit pool commands")
	viper.BindPFlag("secret", rootCmd.PersistentFlags().Lookup("secret"))
}
