// Package commands implements the filekv CLI.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile    string
	storageDir string
)

var rootCmd = &cobra.Command{
	Use:   "filekv",
	Short: "filekv - file-backed key-value store",
	Long: `filekv is a file-backed key-value storage engine: hierarchical keys map
onto regular files under a root directory, with a colocated metadata index
holding each key's logical timestamp and encoding.

Use "filekv [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		rootCmd.PrintErrf("Error: %v\n", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/filekv/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&storageDir, "dir", "", "storage root directory (overrides config)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(gcCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
