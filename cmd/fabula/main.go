package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fabula/internal/config"
	"fabula/internal/logging"
)

// Build metadata, set via -ldflags.
var (
	version = "dev"
	commit  = "none"
)

var (
	// Global flags
	configPath string
	debugMode  bool

	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "fabula",
	Short: "fabula - LLM-driven world simulation",
	Long: `fabula runs a turn-based world simulation where every character,
adjudication, and narration is generated by a language model.

Each tick runs a fixed phase sequence against a clone of the world and
commits atomically: a failed tick leaves the world exactly as it was.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if debugMode {
			cfg.Logging.DebugMode = true
		}
		if err := logging.Initialize(cfg.Logging.DataDir, cfg.Logging.DebugMode, cfg.Logging.Level); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fabula %s (%s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "fabula.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
