package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kozaktomas/face-search/internal/facematch"
)

// mustFlag reads a flag registered in init(). A lookup error is a
// programming bug, so it panics.
func mustFlag[T any](cmd *cobra.Command, name string, get func(*pflag.FlagSet, string) (T, error)) T {
	val, err := get(cmd.Flags(), name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

func mustGetBool(cmd *cobra.Command, name string) bool {
	return mustFlag(cmd, name, (*pflag.FlagSet).GetBool)
}

func mustGetInt(cmd *cobra.Command, name string) int {
	return mustFlag(cmd, name, (*pflag.FlagSet).GetInt)
}

func mustGetString(cmd *cobra.Command, name string) string {
	return mustFlag(cmd, name, (*pflag.FlagSet).GetString)
}

func mustGetFloat64(cmd *cobra.Command, name string) float64 {
	return mustFlag(cmd, name, (*pflag.FlagSet).GetFloat64)
}

// addMatchFlags registers the per-search threshold overrides. Zero keeps the
// configured value.
func addMatchFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("similarity", 0, "Base similarity threshold (0 = configured)")
	cmd.Flags().Float64("confidence", 0, "Base confidence threshold (0 = configured)")
	cmd.Flags().Float64("quality", 0, "Base face quality threshold (0 = configured)")
	cmd.Flags().Int("limit", 0, "Maximum number of results (0 = configured)")
}

// matchFlags reads the flags registered by addMatchFlags.
func matchFlags(cmd *cobra.Command) facematch.MatchConfig {
	return facematch.MatchConfig{
		SimilarityThreshold: mustGetFloat64(cmd, "similarity"),
		ConfidenceThreshold: mustGetFloat64(cmd, "confidence"),
		QualityThreshold:    mustGetFloat64(cmd, "quality"),
		MaxResults:          mustGetInt(cmd, "limit"),
	}
}
