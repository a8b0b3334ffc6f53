package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/filekv/filekv/pkg/storage"
	"github.com/filekv/filekv/pkg/timestamp"
)

var (
	putData     string
	putFile     string
	putEncoding string
)

var putCmd = &cobra.Command{
	Use:   "put <key>",
	Short: "Store a value under a key",
	Long: `Store a value under a key. The payload comes from --data, --file, or
standard input, in that order of preference.

Examples:
  filekv put store/logs/app --data 'hello'
  filekv put store/conf --file ./config.json --encoding application/json
  cat image.png | filekv put assets/logo --encoding image/png`,
	Args: cobra.ExactArgs(1),
	RunE: runPut,
}

func init() {
	putCmd.Flags().StringVar(&putData, "data", "", "payload as a literal string")
	putCmd.Flags().StringVar(&putFile, "file", "", "read the payload from a file")
	putCmd.Flags().StringVar(&putEncoding, "encoding", "", "encoding tag (default: application/octet-stream)")
}

func runPut(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var payload []byte
	switch {
	case putData != "":
		payload = []byte(putData)
	case putFile != "":
		payload, err = os.ReadFile(putFile)
		if err != nil {
			return fmt.Errorf("failed to read payload file: %w", err)
		}
	default:
		payload, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read payload from stdin: %w", err)
		}
	}

	s, err := openStore(cfg, false)
	if err != nil {
		return err
	}
	ctx := context.Background()
	defer s.Close(ctx)

	ts := timestamp.NewClock().Now()
	if err := s.Put(ctx, args[0], storage.Value{Payload: payload, Encoding: putEncoding}, ts); err != nil {
		return err
	}

	fmt.Printf("stored %s (%d bytes)\n", args[0], len(payload))
	return nil
}
