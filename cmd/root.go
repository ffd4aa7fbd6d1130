package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-search/internal/config"
	"github.com/kozaktomas/face-search/internal/logging"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "face-search",
	Short: "Find photos containing a face similar to a reference image",
	Long: `Face Search indexes the faces found in a photo gallery and finds the
photos whose faces match a reference image.

Faces are detected by an external face-analysis service. Each face is scored
for quality, cached in a face index and ranked against the reference with
thresholds that adapt to small, partial or blurry faces.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadConfig reads the configuration and builds the process logger.
func loadConfig() (*config.Config, *logrus.Logger) {
	cfg := config.Load()
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, logging.New(cfg.Log)
}
