package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/filekv/filekv/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample filekv configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/filekv/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  filekv init

  # Initialize with custom path
  filekv init --config /etc/filekv/config.yaml

  # Force overwrite existing config
  filekv init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	cfg := config.DefaultConfig()
	if storageDir != "" {
		cfg.Storage.Dir = storageDir
	}
	if err := config.Save(cfg, path); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", path)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Set storage.dir to the directory that should hold your data")
	fmt.Println("  2. Store a value: filekv put some/key --data 'hello'")
	return nil
}
