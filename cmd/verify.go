package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"dococr/internal/logger"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the Mistral API key",
	Long: `Call GET /v1/models with the configured API key to confirm that the
key is accepted, and list the models it can use.`,
	Example: `  dococr verify`,
	Args:    cobra.NoArgs,
	RunE:    runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().Int("timeout", 30, "Timeout in seconds")
}

func runVerify(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("verify")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := createMistralClient(cfg, nil, log)
	if err != nil {
		return err
	}

	timeoutSecs, _ := cmd.Flags().GetInt("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(timeoutSecs)*time.Second)
	defer cancel()

	models, err := client.ListModels(ctx)
	if err != nil {
		return handleOCRError(err, log)
	}

	log.Info().
		Str("base_url", cfg.MistralBaseURL).
		Int("models", len(models)).
		Msg("API key verified")

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "API key OK (%s), %d models available\n", cfg.MistralBaseURL, len(models))
	for _, m := range models {
		fmt.Fprintf(out, "  %s\n", m.ID)
	}
	return nil
}
