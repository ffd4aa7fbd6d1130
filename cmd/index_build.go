package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-search/internal/faceindex"
	"github.com/kozaktomas/face-search/internal/gallery"
)

var indexBuildCmd = &cobra.Command{
	Use:   "build <dir>",
	Short: "Analyse a photo directory and initialize the face index",
	Long: `Scan a photo directory and analyse every photo that is not yet in the
face index or was modified since it was analysed.

Photos are processed in natural order of their paths. Ctrl+C stops between
photos; the work done so far is kept.

Examples:
  # Build the index for a gallery
  face-search index build ~/Pictures

  # Also drop photos that no longer exist
  face-search index build ~/Pictures --prune

  # Store the index in PostgreSQL
  face-search index build ~/Pictures --store postgres`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndexBatch(cmd, args[0], true)
	},
}

var indexUpdateCmd = &cobra.Command{
	Use:   "update <dir>",
	Short: "Analyse new and modified photos of a directory",
	Long: `Scan a photo directory and analyse only the photos that are missing from
the face index or were modified since they were analysed. Requires an index
built with 'face-search index build'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndexBatch(cmd, args[0], false)
	},
}

func init() {
	indexCmd.AddCommand(indexBuildCmd)
	indexCmd.AddCommand(indexUpdateCmd)

	for _, c := range []*cobra.Command{indexBuildCmd, indexUpdateCmd} {
		c.Flags().Bool("prune", false, "Remove indexed photos that are no longer in the directory")
		c.Flags().Bool("json", false, "Output as JSON instead of progress bar")
	}
}

// IndexBatchResult is the outcome of an index build or update.
type IndexBatchResult struct {
	faceindex.BatchResult
	Removed       int    `json:"removed"`
	Cancelled     bool   `json:"cancelled,omitempty"`
	DurationMs    int64  `json:"duration_ms"`
	DurationHuman string `json:"duration_human,omitempty"`
}

func runIndexBatch(cmd *cobra.Command, dir string, initialize bool) error {
	prune := mustGetBool(cmd, "prune")
	jsonOutput := mustGetBool(cmd, "json")
	startTime := time.Now()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, mustGetString(cmd, "store"))
	if err != nil {
		return err
	}
	defer a.Close()

	if !initialize && !a.index.Status().Initialized {
		return errors.New("face index is not initialized, run 'face-search index build' first")
	}

	photos, err := gallery.Scan(dir)
	if err != nil {
		return err
	}
	if !jsonOutput {
		fmt.Printf("Found %d photos in %s\n", len(photos), dir)
		if !a.index.NeedsUpdate(photos) {
			fmt.Println("Face index is up to date")
		}
	}

	var bar *progressbar.ProgressBar
	var onProgress faceindex.ProgressFunc
	if !jsonOutput {
		onProgress = func(current, total int, message string) {
			if bar == nil {
				bar = newProgressBar(total, "Analysing faces")
			}
			bar.Describe(message)
			_ = bar.Set(current)
		}
	}

	var res faceindex.BatchResult
	if initialize {
		res, err = a.index.Initialize(ctx, photos, onProgress)
	} else {
		res, err = a.index.UpdatePhotos(ctx, photos, onProgress)
	}
	if bar != nil {
		_ = bar.Finish()
	}

	result := IndexBatchResult{BatchResult: res}
	switch {
	case errors.Is(err, context.Canceled):
		result.Cancelled = true
	case err != nil:
		return err
	}

	if prune && !result.Cancelled {
		if missing := gallery.Missing(a.index.Photos(), photos); len(missing) > 0 {
			removed, err := a.index.RemovePhotos(ctx, missing)
			if err != nil {
				return err
			}
			result.Removed = removed
		}
	}

	elapsed := time.Since(startTime)
	result.DurationMs = elapsed.Milliseconds()

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	result.DurationHuman = elapsed.Round(time.Second).String()
	if result.Cancelled {
		fmt.Println("\nCancelled, progress so far was saved")
	} else {
		fmt.Println("\nIndex update complete!")
	}
	printBatchSummary(result)
	return nil
}

func printBatchSummary(r IndexBatchResult) {
	fmt.Printf("  Photos:   %d\n", r.Total)
	fmt.Printf("  Analysed: %d\n", r.Analyzed)
	fmt.Printf("  Skipped:  %d (unchanged)\n", r.Skipped)
	fmt.Printf("  Faces:    %d\n", r.Faces)
	if r.Failed > 0 {
		fmt.Printf("  Failed:   %d\n", r.Failed)
	}
	if r.Removed > 0 {
		fmt.Printf("  Removed:  %d\n", r.Removed)
	}
	fmt.Printf("  Duration: %s\n", r.DurationHuman)
}

func newProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}

