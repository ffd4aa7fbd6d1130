package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var indexRemoveCmd = &cobra.Command{
	Use:   "remove <photo-id>...",
	Short: "Remove photos from the face index",
	Long: `Remove photos from the face index by ID. A photo's ID is its path relative
to the gallery directory the index was built from. Unknown IDs are ignored.

Examples:
  face-search index remove 2024/holiday/IMG_0042.jpg`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIndexRemove,
}

func init() {
	indexCmd.AddCommand(indexRemoveCmd)
}

func runIndexRemove(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx, mustGetString(cmd, "store"))
	if err != nil {
		return err
	}
	defer a.Close()

	removed, err := a.index.OnPhotosRemoved(ctx, args)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d of %d photos from the face index\n", removed, len(args))
	return nil
}
