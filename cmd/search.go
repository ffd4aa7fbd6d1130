package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-search/internal/faceindex"
	"github.com/kozaktomas/face-search/internal/facematch"
	"github.com/kozaktomas/face-search/internal/gallery"
)

var searchCmd = &cobra.Command{
	Use:   "search <image>",
	Short: "Find photos with a face similar to the face in an image",
	Long: `Detect the faces in a reference image, pick the best-quality one and rank
every indexed photo by how well its best face matches it. At most one result
is returned per photo.

Thresholds are the base values; small, partial or low-quality faces are
matched against relaxed thresholds. Values outside [0,1] are clamped.

Examples:
  # Search with the configured thresholds
  face-search search me.jpg

  # Bring the index up to date with a directory first
  face-search search me.jpg --dir ~/Pictures

  # Stricter matching, top 10 only, as JSON
  face-search search me.jpg --similarity 0.6 --limit 10 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().String("store", "", "Index store: file, sqlite, postgres or redis (overrides INDEX_STORE)")
	searchCmd.Flags().String("dir", "", "Update the index from this photo directory before searching")
	addMatchFlags(searchCmd)
	searchCmd.Flags().Bool("json", false, "Output as JSON")
}

// SearchOutput is the JSON output of the search command.
type SearchOutput struct {
	Reference string                  `json:"reference"`
	Results   []facematch.MatchResult `json:"results"`
	Count     int                     `json:"count"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	reference := args[0]
	dir := mustGetString(cmd, "dir")
	jsonOutput := mustGetBool(cmd, "json")
	match := matchFlags(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, mustGetString(cmd, "store"))
	if err != nil {
		return err
	}
	defer a.Close()

	if dir != "" {
		if err := refreshIndex(ctx, a, dir, jsonOutput); err != nil {
			return err
		}
	}

	results, err := a.index.Search(ctx, faceindex.Reference{Path: reference}, faceindex.SearchOptions{Match: match})
	switch {
	case errors.Is(err, faceindex.ErrNoReferenceFace):
		return fmt.Errorf("no usable face found in %s", reference)
	case errors.Is(err, faceindex.ErrIndexNotInitialized):
		return errors.New("face index is not initialized, run 'face-search index build' or pass --dir")
	case err != nil:
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(SearchOutput{Reference: reference, Results: results, Count: len(results)})
	}

	if len(results) == 0 {
		fmt.Println("No matching photos found")
		return nil
	}

	fmt.Printf("Found %d matching photos:\n\n", len(results))
	fmt.Printf("%-4s %-50s %10s %10s %8s  %s\n", "#", "PHOTO", "SIMILARITY", "CONFIDENCE", "QUALITY", "METHOD")
	for i, r := range results {
		fmt.Printf("%-4d %-50s %9.1f%% %9.1f%% %7.1f%%  %s\n",
			i+1, r.PhotoID, r.Similarity*100, r.Confidence*100, r.Quality.OverallQuality*100, r.Method)
	}
	return nil
}

// refreshIndex brings the index up to date with dir: it initializes an empty
// index and otherwise analyses only new and modified photos.
func refreshIndex(ctx context.Context, a *app, dir string, quiet bool) error {
	photos, err := gallery.Scan(dir)
	if err != nil {
		return err
	}
	if !a.index.NeedsUpdate(photos) {
		return nil
	}

	var onProgress faceindex.ProgressFunc
	if !quiet {
		fmt.Printf("Updating face index from %s...\n", dir)
		onProgress = func(current, total int, message string) {
			fmt.Printf("  [%d/%d] %s\n", current, total, message)
		}
	}

	var res faceindex.BatchResult
	if a.index.Status().Initialized {
		res, err = a.index.UpdatePhotos(ctx, photos, onProgress)
	} else {
		res, err = a.index.Initialize(ctx, photos, onProgress)
	}
	if err != nil {
		return fmt.Errorf("updating face index: %w", err)
	}
	if !quiet {
		fmt.Printf("Analysed %d photos, %d faces found\n\n", res.Analyzed, res.Faces)
	}
	return nil
}
