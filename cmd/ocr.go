package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"dococr/internal/annotation"
	"dococr/internal/config"
	"dococr/internal/logger"
	"dococr/internal/mistral"
	"dococr/internal/ocr"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr [file-or-folder]...",
	Short: "Run Mistral OCR on documents and images",
	Long: `Process documents and images with the Mistral OCR API.

Each file is uploaded, a signed URL is requested for it and the OCR
endpoint is called with that URL. Folders are searched recursively for
supported files (PDF, images, office documents, LaTeX), processed in
sorted order.

With --operation ocrWithAnnotations the request also carries a strict
JSON schema describing the fields to extract, built from a document
template, a field collection file (--fields), custom fields JSON or, in
advanced mode, raw document and bbox annotation schemas. Schema flags
accept inline JSON or @path to read a file.

The output is a JSON array with one record per input file, in input
order. Each record is the provider response plus a "_metadata" object.
With --continue-on-fail a failed file yields {"error": "...", "item": N}
instead of stopping the run, where N is its zero-based input position.

Required environment variables:
  MISTRAL_API_KEY - Mistral API key`,
	Example: `  # Plain OCR of a PDF to stdout
  dococr ocr invoice.pdf

  # Extract invoice fields from every document in a folder
  dococr ocr ./inbox --operation ocrWithAnnotations --template invoice -o results.json

  # Custom fields from a YAML collection, pages 0-3 only
  dococr ocr scan.png --operation ocrWithAnnotations --fields fields.yaml --pages 0-3

  # Advanced mode with bounding box annotations
  dococr ocr paper.pdf --operation ocrWithAnnotations --advanced --bbox \
    --document-schema @doc-schema.json --bbox-schema @bbox-schema.json

  # Keep going when a file fails
  dococr ocr ./inbox --continue-on-fail`,
	Args: cobra.MinimumNArgs(1),
	RunE: runOCR,
}

func init() {
	rootCmd.AddCommand(ocrCmd)

	defaults := defaultItemOptions()
	flags := ocrCmd.Flags()
	flags.String("operation", defaults.Operation, "Operation: basicOcr or ocrWithAnnotations")
	flags.String("model", "", "OCR model (default: MISTRAL_MODEL or mistral-ocr-latest)")
	flags.String("template", defaults.Template, "Document template: "+strings.Join(annotation.TemplateNames(), ", "))
	flags.String("fields", "", "YAML file with the custom field collection (implies --template custom)")
	flags.String("custom-fields-json", "", "Custom fields as JSON or @file (implies --template custom)")
	flags.Bool("bbox", false, "Include bounding box annotations")
	flags.Bool("advanced", false, "Use raw document and bbox annotation schemas")
	flags.String("document-schema", "", "Document annotation schema for --advanced, JSON or @file")
	flags.String("bbox-schema", "", "BBox annotation schema for --advanced, JSON or @file")
	flags.String("pages", defaults.Pages, `Pages for document annotations, e.g. "0-7" or "0,2,4" (at most 8)`)
	flags.Bool("include-images", false, "Include base64 images in the response")
	flags.Int("expiry-hours", defaults.ExpiryHours, "Signed URL expiry in hours (1-168)")
	flags.Bool("continue-on-fail", false, "Emit an error record for failed files and continue (default: OCR_CONTINUE_ON_FAIL)")
	flags.StringP("output", "o", "", "Output file path (default: stdout)")
	flags.Int("timeout", 600, "Overall processing timeout in seconds")
}

func runOCR(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ocr")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	opts, err := itemOptionsFromFlags(cmd)
	if err != nil {
		return err
	}
	item, err := opts.item()
	if err != nil {
		return handleOCRError(err, log)
	}

	continueOnFail := cfg.ContinueOnFail
	if cmd.Flags().Changed("continue-on-fail") {
		continueOnFail, _ = cmd.Flags().GetBool("continue-on-fail")
	}
	outputPath, _ := cmd.Flags().GetString("output")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	files, err := expandInputs(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no supported documents found in %v", args)
	}

	log.Info().
		Int("files", len(files)).
		Str("operation", string(item.Operation)).
		Str("template", item.Annotation.Template).
		Bool("advanced", item.Annotation.AdvancedMode).
		Bool("continue_on_fail", continueOnFail).
		Msg("Starting OCR processing")

	client, err := createMistralClient(cfg, nil, log)
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	binaries := make(ocr.Binaries, len(files))
	items := make([]ocr.Item, len(files))
	for i, path := range files {
		binaries[i] = map[string]ocr.BinaryPayload{ocr.DefaultBinaryProperty: ocr.FilePayload(path)}
		items[i] = item
	}

	processor := ocr.NewProcessor(client, binaries, ocr.Config{
		DefaultModel:   cfg.MistralModel,
		RequiredPolicy: cfg.RequiredPolicy,
	})

	startTime := time.Now()
	results, runErr := processor.Run(ctx, items, continueOnFail)
	if runErr != nil {
		if len(results) > 0 {
			if err := writeResults(results, outputPath, log); err != nil {
				log.Warn().Err(err).Msg("Failed to write partial results")
			}
		}
		return handleOCRError(runErr, log)
	}

	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
			log.Warn().
				Str("file", files[r.Index]).
				Err(r.Err).
				Msg("File failed")
		}
	}

	log.Info().
		Int("files", len(files)).
		Int("failed", failed).
		Dur("duration", time.Since(startTime)).
		Msg("OCR processing completed")

	return writeResults(results, outputPath, log)
}

func itemOptionsFromFlags(cmd *cobra.Command) (itemOptions, error) {
	flags := cmd.Flags()
	opts := defaultItemOptions()

	opts.Operation, _ = flags.GetString("operation")
	opts.Model, _ = flags.GetString("model")
	opts.Template, _ = flags.GetString("template")
	opts.IncludeBBox, _ = flags.GetBool("bbox")
	opts.AdvancedMode, _ = flags.GetBool("advanced")
	opts.Pages, _ = flags.GetString("pages")
	opts.IncludeImages, _ = flags.GetBool("include-images")
	opts.ExpiryHours, _ = flags.GetInt("expiry-hours")

	var err error
	if fieldsPath, _ := flags.GetString("fields"); fieldsPath != "" {
		if opts.Collection, err = loadFieldCollection(fieldsPath); err != nil {
			return opts, err
		}
		opts.Template = annotation.CustomTemplate
	}
	if value, _ := flags.GetString("custom-fields-json"); value != "" {
		if opts.CustomFieldsJSON, err = readInlineOrFile(value); err != nil {
			return opts, err
		}
		opts.Template = annotation.CustomTemplate
	}
	if value, _ := flags.GetString("document-schema"); value != "" {
		if opts.DocumentSchema, err = readInlineOrFile(value); err != nil {
			return opts, err
		}
	}
	if value, _ := flags.GetString("bbox-schema"); value != "" {
		if opts.BBoxSchema, err = readInlineOrFile(value); err != nil {
			return opts, err
		}
	}

	return opts, nil
}

// expandInputs resolves file and folder arguments into the list of files to
// process. Folders are walked recursively and contribute supported files
// only, in sorted order; explicit files are kept as given.
func expandInputs(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("file not found: %s", arg)
			}
			return nil, fmt.Errorf("error accessing %s: %w", arg, err)
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		found, err := findDocumentFiles(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to scan folder %s: %w", arg, err)
		}
		files = append(files, found...)
	}
	return files, nil
}

func findDocumentFiles(folderPath string) ([]string, error) {
	var files []string

	err := filepath.Walk(folderPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && ocr.IsSupportedFileName(info.Name()) {
			files = append(files, path)
		}

		return nil
	})

	sort.Strings(files)
	return files, err
}

// createContextWithTimeout creates a context with timeout and signal handling
func createContextWithTimeout(timeoutSecs int, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSecs)*time.Second)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling OCR processing")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// createMistralClient checks the API key and builds the provider client
func createMistralClient(cfg *config.Config, recorder mistral.Recorder, log zerolog.Logger) (*mistral.Client, error) {
	if err := cfg.RequireAPIKey(); err != nil {
		log.Error().Msg("Mistral API key not configured")
		return nil, fmt.Errorf("Mistral API key not configured. Please set MISTRAL_API_KEY:\n\n" +
			"1. Export it in your shell:\n" +
			"   export MISTRAL_API_KEY=your-api-key\n\n" +
			"2. Or add it to the .env file in the working directory\n\n" +
			"Keys are managed at https://console.mistral.ai/api-keys")
	}

	client, err := mistral.New(cfg.MistralConfig(recorder))
	if err != nil {
		log.Error().Err(err).Msg("Failed to create Mistral client")
		return nil, fmt.Errorf("failed to create Mistral client: %w", err)
	}

	log.Debug().
		Str("base_url", cfg.MistralBaseURL).
		Bool("breaker", cfg.BreakerEnabled).
		Float64("requests_per_second", cfg.RequestsPerSecond).
		Msg("Mistral client created")
	return client, nil
}

// handleOCRError provides user-friendly error messages for OCR failures
func handleOCRError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("OCR processing failed")

	var statusErr *mistral.HTTPStatusError

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("OCR processing timed out. Try increasing --timeout or processing fewer files")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("OCR processing was canceled")
	case errors.Is(err, mistral.ErrRateLimitExceeded):
		return err
	case mistral.IsCircuitOpen(err):
		return fmt.Errorf("the Mistral API is failing repeatedly and requests are paused. Try again shortly: %w", err)
	case errors.Is(err, ocr.ErrFileTooLarge):
		return fmt.Errorf("file is too large (maximum 50MB). Try compressing or splitting it: %w", err)
	case errors.Is(err, ocr.ErrDocumentTooLong):
		return fmt.Errorf("document has too many pages (maximum %d). Try splitting it: %w", ocr.MaxTotalPages, err)
	case errors.Is(err, ocr.ErrTooManyPages):
		return fmt.Errorf("too many pages selected for document annotations (maximum %d). Narrow --pages: %w", ocr.MaxDocumentPages, err)
	case errors.Is(err, ocr.ErrUnsupportedFormat):
		return fmt.Errorf("unsupported file type. Supported are PDF, images, office documents and LaTeX: %w", err)
	case errors.Is(err, ocr.ErrEmptyOrCorruptData):
		return fmt.Errorf("file is empty or corrupted. Please check the file integrity: %w", err)
	case errors.Is(err, annotation.ErrInvalidSchemaJSON):
		return fmt.Errorf("annotation schema is not valid JSON. Check --custom-fields-json, --document-schema and --bbox-schema: %w", err)
	case errors.Is(err, annotation.ErrSchemaBuild):
		return fmt.Errorf("annotation fields are invalid. Field types must be string, number, boolean or array: %w", err)
	case errors.As(err, &statusErr) && (statusErr.StatusCode == 401 || statusErr.StatusCode == 403):
		return fmt.Errorf("Mistral API authentication failed. Please check MISTRAL_API_KEY or run \"dococr verify\": %w", err)
	case errors.Is(err, ocr.ErrUploadFailed), errors.Is(err, ocr.ErrSignedURLFailed), errors.Is(err, ocr.ErrOCRFailed):
		return fmt.Errorf("OCR processing failed. This may be due to network issues or service unavailability: %w", err)
	default:
		return fmt.Errorf("OCR processing failed: %w", err)
	}
}

// writeResults writes the result records as a JSON array
func writeResults(results []ocr.Result, outputPath string, log zerolog.Logger) error {
	records := make([]map[string]any, len(results))
	for i, r := range results {
		records[i] = r.JSON
	}

	outputData, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON output")
		return fmt.Errorf("failed to create JSON output: %w", err)
	}

	if outputPath == "" {
		outputData = append(outputData, '\n')
		if _, err := os.Stdout.Write(outputData); err != nil {
			log.Error().Err(err).Msg("Failed to write to stdout")
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}

	if err := os.WriteFile(outputPath, outputData, 0o644); err != nil {
		log.Error().
			Err(err).
			Str("output_file", outputPath).
			Msg("Failed to write output file")
		return fmt.Errorf("failed to write output file: %w", err)
	}

	log.Info().
		Str("output_file", outputPath).
		Int("records", len(records)).
		Msg("OCR results written to file")
	return nil
}
