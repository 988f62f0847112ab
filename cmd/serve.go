package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"dococr/internal/annotation"
	"dococr/internal/config"
	"dococr/internal/logger"
	"dococr/internal/metrics"
	"dococr/internal/mistral"
	"dococr/internal/ocr"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the OCR pipeline over HTTP",
	Long: `Start an HTTP server exposing the OCR pipeline.

Endpoints:
  POST /v1/ocr   multipart form, one or more "file" parts plus options
  GET  /healthz  liveness check
  GET  /metrics  Prometheus metrics

Form fields for POST /v1/ocr (all optional):
  operation                 basicOcr or ocrWithAnnotations
  model                     OCR model id
  documentTemplate          invoice, letter, contract, receipt, id_document,
                            research_paper or custom
  customFields              field collection as a JSON or YAML list
  customFieldsJson          custom fields as a JSON object
  includeBboxAnnotations    true or false
  advancedMode              true or false
  documentAnnotationSchema  raw document schema (advanced mode)
  bboxAnnotationSchema      raw bbox schema (advanced mode)
  pages                     page expression, default "0-7"
  includeImageBase64        true or false
  expiryHours               1-168, default 24
  continueOnFail            true or false, default OCR_CONTINUE_ON_FAIL

The response is a JSON array with one record per file, in upload order.
When some files failed under continueOnFail the status is 207.

Required environment variables:
  MISTRAL_API_KEY - Mistral API key

Optional environment variables:
  SERVER_ADDR          - Listen address (default: :8080)
  SERVER_MAX_UPLOAD_MB - Maximum request size in MB (default: 50)`,
	Example: `  dococr serve

  curl -F file=@invoice.pdf -F operation=ocrWithAnnotations \
    -F documentTemplate=invoice http://localhost:8080/v1/ocr`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (default: SERVER_ADDR)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.ServerAddr = addr
	}

	recorder := metrics.New()
	client, err := createMistralClient(cfg, recorder, log)
	if err != nil {
		return err
	}

	if zerolog.GlobalLevel() > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           newOCRServer(client, recorder, cfg).routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().
			Str("addr", cfg.ServerAddr).
			Int64("max_upload_mb", cfg.ServerMaxUploadMB).
			Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// ocrServer handles the HTTP adapter. Each request gets its own processor
// bound to the uploaded files; the provider client is shared.
type ocrServer struct {
	provider       ocr.Provider
	recorder       *metrics.Recorder
	defaultModel   string
	policy         annotation.RequiredPolicy
	continueOnFail bool
	maxUpload      int64
}

func newOCRServer(provider ocr.Provider, recorder *metrics.Recorder, cfg *config.Config) *ocrServer {
	return &ocrServer{
		provider:       provider,
		recorder:       recorder,
		defaultModel:   cfg.MistralModel,
		policy:         cfg.RequiredPolicy,
		continueOnFail: cfg.ContinueOnFail,
		maxUpload:      cfg.ServerMaxUploadMB << 20,
	}
}

func (s *ocrServer) routes() *gin.Engine {
	r := gin.New()
	r.Use(requestID(), requestLogger(), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(s.recorder.Handler()))
	r.POST("/v1/ocr", s.handleOCR)

	return r
}

func (s *ocrServer) handleOCR(c *gin.Context) {
	log := logger.WithRequestID(c.GetString("request_id"))

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("request exceeds %d bytes", s.maxUpload))
			return
		}
		respondError(c, http.StatusBadRequest, "multipart form is required")
		return
	}

	fileHeaders := form.File["file"]
	if len(fileHeaders) == 0 {
		respondError(c, http.StatusBadRequest, `at least one file is required in "file" field`)
		return
	}

	opts, continueOnFail, err := s.formOptions(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	item, err := opts.item()
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	binaries := make(ocr.Binaries, len(fileHeaders))
	items := make([]ocr.Item, len(fileHeaders))
	for i, fh := range fileHeaders {
		payload, err := uploadedPayload(fh)
		if err != nil {
			respondError(c, http.StatusBadRequest, fmt.Sprintf("failed to read uploaded file %q", fh.Filename))
			return
		}
		binaries[i] = map[string]ocr.BinaryPayload{ocr.DefaultBinaryProperty: payload}
		items[i] = item
	}

	processor := ocr.NewProcessor(s.provider, binaries, ocr.Config{
		DefaultModel:   s.defaultModel,
		RequiredPolicy: s.policy,
		Recorder:       s.recorder,
	})

	results, err := processor.Run(c.Request.Context(), items, continueOnFail)
	if err != nil {
		log.Warn().Err(err).Int("files", len(items)).Msg("OCR request failed")
		c.JSON(statusForError(err), gin.H{
			"error":   err.Error(),
			"results": resultRecords(results),
		})
		return
	}

	status := http.StatusOK
	for _, r := range results {
		if r.Failed() {
			status = http.StatusMultiStatus
			break
		}
	}
	c.JSON(status, resultRecords(results))
}

func (s *ocrServer) formOptions(c *gin.Context) (itemOptions, bool, error) {
	opts := defaultItemOptions()
	continueOnFail := s.continueOnFail

	var err error
	str := func(key string, dst *string) {
		if v, ok := c.GetPostForm(key); ok {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := c.GetPostForm(key); ok && v != "" && err == nil {
			if *dst, err = strconv.ParseBool(v); err != nil {
				err = fmt.Errorf("%s must be true or false", key)
			}
		}
	}

	str("operation", &opts.Operation)
	str("model", &opts.Model)
	str("documentTemplate", &opts.Template)
	str("customFieldsJson", &opts.CustomFieldsJSON)
	str("documentAnnotationSchema", &opts.DocumentSchema)
	str("bboxAnnotationSchema", &opts.BBoxSchema)
	str("pages", &opts.Pages)
	boolean("includeBboxAnnotations", &opts.IncludeBBox)
	boolean("advancedMode", &opts.AdvancedMode)
	boolean("includeImageBase64", &opts.IncludeImages)
	boolean("continueOnFail", &continueOnFail)
	if err != nil {
		return opts, false, err
	}

	if v := c.PostForm("expiryHours"); v != "" {
		if opts.ExpiryHours, err = strconv.Atoi(v); err != nil {
			return opts, false, fmt.Errorf("expiryHours must be an integer")
		}
	}
	if v := c.PostForm("customFields"); v != "" {
		if opts.Collection, err = parseFieldCollection([]byte(v)); err != nil {
			return opts, false, err
		}
	}

	return opts, continueOnFail, nil
}

// uploadedPayload reads one multipart file into an inline payload. Generic
// content types are dropped so the normalizer detects the real type.
func uploadedPayload(fh *multipart.FileHeader) (ocr.BinaryPayload, error) {
	f, err := fh.Open()
	if err != nil {
		return ocr.BinaryPayload{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return ocr.BinaryPayload{}, err
	}

	mimeType, _, _ := mime.ParseMediaType(fh.Header.Get("Content-Type"))
	if mimeType == "application/octet-stream" {
		mimeType = ""
	}
	return ocr.InlinePayload(data, mimeType, fh.Filename), nil
}

func resultRecords(results []ocr.Result) []map[string]any {
	records := make([]map[string]any, len(results))
	for i, r := range results {
		records[i] = r.JSON
	}
	return records
}

func statusForError(err error) int {
	var statusErr *mistral.HTTPStatusError
	switch {
	case ocr.IsValidation(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, mistral.ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	case mistral.IsCircuitOpen(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &statusErr), errors.Is(err, ocr.ErrUploadFailed),
		errors.Is(err, ocr.ErrSignedURLFailed), errors.Is(err, ocr.ErrOCRFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// requestID injects an X-Request-ID header into the request and response.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// requestLogger logs each HTTP request with method, path, status and latency.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log := logger.WithRequestID(c.GetString("request_id"))
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}
