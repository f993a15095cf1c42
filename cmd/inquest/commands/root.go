package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/inquest-app/inquest/cmd/inquest/internal/config"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Global configuration (loaded at init time)
	globalConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "inquest",
	Short: "Conversation server and client for assisted inquiry",
	Long: `inquest - a conversation server whose assistant replies carry
structured side channels: a private reflection, extracted signals
(assumptions, claims, open questions, tensions) and suggested actions.

The server streams each turn over SSE; the chat command is a terminal
client for it.

Configuration is stored in the OS config directory:
  macOS:   ~/Library/Application Support/inquest/config.yaml
  Linux:   ~/.config/inquest/config.yaml
  Windows: %AppData%/inquest/config.yaml

Examples:
  # Run the server with the configured generator backend
  inquest serve

  # Talk to it from another terminal
  inquest chat --url http://127.0.0.1:8600/v1/turn`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig, initLogging)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: OS config dir)")
}

// configLoadErr stores the error from config.Load() for deferred
// reporting, so commands that never touch config (version) still run.
var configLoadErr error

func initConfig() {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFrom(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		configLoadErr = err
		return
	}
	globalConfig = cfg
}

func initLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// GetConfig returns the global configuration, or the load error when the
// config could not be read.
func GetConfig() (*config.Config, error) {
	if globalConfig == nil {
		if configLoadErr != nil {
			return nil, fmt.Errorf("config not available: %w", configLoadErr)
		}
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("config not available: %w", err)
		}
		globalConfig = cfg
	}
	return globalConfig, nil
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}
