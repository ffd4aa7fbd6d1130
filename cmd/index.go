package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Maintain the face index",
	Long: `Commands for building and maintaining the face index.

The index caches the faces found in every photo together with the photo's
modification time. Only photos that are new or were modified since they were
last analysed are sent to the face-analysis service again.`,
}

var indexStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show face index statistics",
	RunE:  runIndexStatus,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.PersistentFlags().String("store", "", "Index store: file, sqlite, postgres or redis (overrides INDEX_STORE)")

	indexCmd.AddCommand(indexStatusCmd)
	indexStatusCmd.Flags().Bool("json", false, "Output as JSON")
}

func runIndexStatus(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	ctx := context.Background()

	a, err := newApp(ctx, mustGetString(cmd, "store"))
	if err != nil {
		return err
	}
	defer a.Close()

	status := a.index.Status()
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	if !status.Initialized {
		fmt.Println("Face index is not initialized. Run 'face-search index build <dir>'.")
		return nil
	}
	fmt.Println("Face index:")
	fmt.Printf("  Photos:       %d\n", status.PhotoCount)
	fmt.Printf("  Faces:        %d\n", status.FaceCount)
	fmt.Printf("  Schema:       v%d\n", status.Version)
	if !status.LastUpdated.IsZero() {
		fmt.Printf("  Last updated: %s\n", status.LastUpdated.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}
