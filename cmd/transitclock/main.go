package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/transitclock/refresher/internal/platform/config"
	"github.com/transitclock/refresher/internal/platform/logging"
)

var (
	logger     zerolog.Logger
	cfg        config.Config
	configPath string
)

var rootCmd = &cobra.Command{
	Use:          "transitclock",
	Short:        "Transit departure estimates refresher",
	Long:         "transitclock keeps per-subscriber departure estimates fresh and schedules the next refresh at the earliest upcoming departure.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (defaults to $TRANSITCLOCK_CONFIG)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration and sets up logging for commands that need it.
func loadConfig() error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = logging.Setup(cfg.Environment, cfg.LogLevel)
	return nil
}
