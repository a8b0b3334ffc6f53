package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Run one metadata garbage collection sweep",
	Long: `Run one garbage collection sweep over the metadata index, pruning
records whose backing file no longer exists and whose grace window has
passed.`,
	RunE: runGC,
}

func runGC(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s, err := openStore(cfg, false)
	if err != nil {
		return err
	}
	ctx := context.Background()
	defer s.Close(ctx)

	stats := s.Sweep(ctx)
	fmt.Printf("scanned %d records, pruned %d, %d errors\n",
		stats.Scanned, stats.Pruned, stats.Errors)
	return nil
}
