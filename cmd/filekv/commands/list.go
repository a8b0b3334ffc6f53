package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list [pattern]",
	Short: "List keys matching a glob pattern",
	Long: `List the keys of stored values that match a glob pattern. Without a
pattern every key is listed.

Patterns support *, ?, character classes and ** for any number of path
segments.

Examples:
  filekv list
  filekv list 'store/logs/*'
  filekv list 'store/**'`,
	Args: cobra.MaximumNArgs(1),
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pattern := "**"
	if len(args) == 1 {
		pattern = args[0]
	}

	s, err := openStore(cfg, true)
	if err != nil {
		return err
	}
	ctx := context.Background()
	defer s.Close(ctx)

	count := 0
	for key := range s.Matching(ctx, pattern) {
		fmt.Println(key)
		count++
	}
	if count == 0 {
		cmd.PrintErrln("no keys matched")
	}
	return nil
}
