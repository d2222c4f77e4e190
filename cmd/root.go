package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "dog-tracker",
	Short: "DOG token holdings tracker",
	Long: `dog-tracker polls the OKX Web3 explorer API for the DOG balances and DOG-LP
pool positions of a list of users on X Layer, computes each user's change
against their starting balance and publishes the result as a JSON snapshot.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}
