package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Re-import every property token from the chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := newAPIClient().Sync()
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(result)
			}
			fmt.Printf("Synced %d tokens, removed %d.\n", result.Synced, result.Removed)
			return nil
		},
	}
}
