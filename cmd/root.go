package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dococr/internal/config"
	"dococr/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "dococr",
	Short: "dococr - document OCR and structured annotation via the Mistral OCR API",
	Long: `dococr uploads documents and images to the Mistral OCR API and returns
the recognized content, optionally with structured document-level and
bounding-box annotations extracted according to a field template.

Configuration is read from the environment (and a .env file in the
working directory). Run "dococr verify" to check the API key.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Debug().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the configuration for a command. Unlike main, commands
// fail on invalid settings instead of falling back to defaults.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
