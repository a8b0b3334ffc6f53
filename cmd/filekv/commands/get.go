package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	getOutput string
	getInfo   bool
)

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Read the value stored under a key",
	Long: `Read the value stored under a key. The payload goes to standard output
or to --output; --info prints the encoding and timestamp instead.

Examples:
  filekv get store/logs/app
  filekv get assets/logo --output logo.png
  filekv get store/conf --info`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func init() {
	getCmd.Flags().StringVarP(&getOutput, "output", "o", "", "write the payload to a file")
	getCmd.Flags().BoolVar(&getInfo, "info", false, "print metadata instead of the payload")
}

func runGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s, err := openStore(cfg, true)
	if err != nil {
		return err
	}
	ctx := context.Background()
	defer s.Close(ctx)

	entry, err := s.Get(ctx, args[0])
	if err != nil {
		return err
	}

	if getInfo {
		fmt.Printf("key:       %s\n", entry.Key)
		fmt.Printf("size:      %d\n", len(entry.Value.Payload))
		fmt.Printf("encoding:  %s\n", entry.Value.Encoding)
		fmt.Printf("timestamp: %s\n", entry.Timestamp)
		return nil
	}

	if getOutput != "" {
		return os.WriteFile(getOutput, entry.Value.Payload, 0o644)
	}
	_, err = os.Stdout.Write(entry.Value.Payload)
	return err
}
