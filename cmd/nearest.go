package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-search/internal/database"
	"github.com/kozaktomas/face-search/internal/faceindex"
)

var nearestCmd = &cobra.Command{
	Use:   "nearest <image>",
	Short: "List the indexed faces with the closest descriptors",
	Long: `Detect the best-quality face in an image and list the indexed faces whose
descriptors are nearest to it by Euclidean distance.

Unlike search, no thresholds are applied and one photo may appear several
times. Only faces of at least INDEX_MIN_QUALITY are considered.

Examples:
  face-search nearest me.jpg --limit 20`,
	Args: cobra.ExactArgs(1),
	RunE: runNearest,
}

func init() {
	rootCmd.AddCommand(nearestCmd)

	nearestCmd.Flags().String("store", "", "Index store: file, sqlite, postgres or redis (overrides INDEX_STORE)")
	nearestCmd.Flags().Int("limit", 0, "Number of faces to return (0 = INDEX_MAX_RESULTS)")
	nearestCmd.Flags().Bool("json", false, "Output as JSON")
}

// NearestOutput is the JSON output of the nearest command.
type NearestOutput struct {
	Reference string              `json:"reference"`
	Results   []database.Neighbor `json:"results"`
	Count     int                 `json:"count"`
}

func runNearest(cmd *cobra.Command, args []string) error {
	reference := args[0]
	limit := mustGetInt(cmd, "limit")
	jsonOutput := mustGetBool(cmd, "json")
	ctx := context.Background()

	a, err := newApp(ctx, mustGetString(cmd, "store"))
	if err != nil {
		return err
	}
	defer a.Close()

	neighbors, err := a.index.Nearest(ctx, faceindex.Reference{Path: reference}, limit)
	switch {
	case errors.Is(err, faceindex.ErrNoReferenceFace):
		return fmt.Errorf("no usable face found in %s", reference)
	case err != nil:
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(NearestOutput{Reference: reference, Results: neighbors, Count: len(neighbors)})
	}

	if len(neighbors) == 0 {
		fmt.Println("No faces in the index")
		return nil
	}
	fmt.Printf("%-4s %-50s %-28s %8s\n", "#", "PHOTO", "FACE", "DISTANCE")
	for i, n := range neighbors {
		fmt.Printf("%-4d %-50s %-28s %8.4f\n", i+1, n.PhotoID, n.FaceID, n.Distance)
	}
	return nil
}
