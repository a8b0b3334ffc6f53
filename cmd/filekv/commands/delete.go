package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/filekv/filekv/pkg/timestamp"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete the value stored under a key",
	Long: `Delete the value stored under a key. Deleting an absent key is not an
error; emptied parent directories are pruned.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func runDelete(cmd *cobra.Command, args []string) error {
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

	if err := s.Delete(ctx, args[0], timestamp.NewClock().Now()); err != nil {
		return err
	}

	fmt.Printf("deleted %s\n", args[0])
	return nil
}
