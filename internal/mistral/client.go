// Package mistral is a client for the Mistral file and OCR endpoints.
//
// Every call carries the bearer token, is paced by an optional client-side
// limiter and is retried on HTTP 429 by a Retrier. An optional circuit
// breaker per endpoint stops hammering a provider that keeps failing.
package mistral

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"dococr/internal/annotation"
	"dococr/internal/logger"
)

const (
	DefaultBaseURL = "https://api.mistral.ai"
	DefaultModel   = "mistral-ocr-latest"
	DefaultTimeout = 120 * time.Second

	maxErrorBody = 2048
)

// Call names used for logging, metrics and breaker state.
const (
	CallUpload    = "upload"
	CallSignedURL = "signed_url"
	CallOCR       = "ocr"
	CallModels    = "models"
)

// Recorder receives per-call outcomes. Implementations must be safe for
// concurrent use.
type Recorder interface {
	UpstreamRequest(call, outcome string)
	RateLimitRetry(call string)
}

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	MaxRetries     int
	RetryBaseDelay time.Duration

	// RequestsPerSecond paces outgoing calls; zero disables pacing.
	RequestsPerSecond float64

	BreakerEnabled bool

	// HTTPClient overrides the transport; the bearer token is still added.
	HTTPClient *http.Client
	Recorder   Recorder
}

// Client talks to the provider API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retrier    *Retrier
	limiter    *rate.Limiter
	breakers   map[string]*gobreaker.CircuitBreaker[any]
	recorder   Recorder
}

// New builds a Client from cfg.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	base := http.DefaultTransport
	if cfg.HTTPClient != nil && cfg.HTTPClient.Transport != nil {
		base = cfg.HTTPClient.Transport
	}
	if cfg.HTTPClient != nil && cfg.HTTPClient.Timeout > 0 {
		timeout = cfg.HTTPClient.Timeout
	}

	retrier := NewRetrier(cfg.MaxRetries, cfg.RetryBaseDelay)
	retrier.Recorder = cfg.Recorder

	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: &bearerTransport{token: cfg.APIKey, base: base},
		},
		retrier:  retrier,
		recorder: cfg.Recorder,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	if cfg.BreakerEnabled {
		c.breakers = make(map[string]*gobreaker.CircuitBreaker[any])
		for _, call := range []string{CallUpload, CallSignedURL, CallOCR, CallModels} {
			c.breakers[call] = newBreaker(call)
		}
	}
	return c, nil
}

// Retrier exposes the retry policy so callers and tests can adjust it.
func (c *Client) Retrier() *Retrier { return c.retrier }

// UploadedFile is the upload response.
type UploadedFile struct {
	ID        string `json:"id"`
	Object    string `json:"object,omitempty"`
	Bytes     int64  `json:"bytes,omitempty"`
	CreatedAt int64  `json:"created_at,omitempty"`
	Filename  string `json:"filename,omitempty"`
	Purpose   string `json:"purpose,omitempty"`
}

// SignedURL is the signed URL response.
type SignedURL struct {
	URL string `json:"url"`
}

// DocumentURL references a document by URL.
type DocumentURL struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url"`
}

// OCRRequest is the body of POST /v1/ocr.
type OCRRequest struct {
	Model                    string                         `json:"model"`
	Document                 DocumentURL                    `json:"document"`
	IncludeImageBase64       bool                           `json:"include_image_base64"`
	DocumentAnnotationFormat *annotation.JSONSchemaEnvelope `json:"document_annotation_format,omitempty"`
	BBoxAnnotationFormat     *annotation.JSONSchemaEnvelope `json:"bbox_annotation_format,omitempty"`
	Pages                    []int                          `json:"pages,omitempty"`
}

// Model is one entry of GET /v1/models.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// UploadFile uploads data for OCR and returns the provider's file record.
func (c *Client) UploadFile(ctx context.Context, fileName, mimeType string, data []byte) (*UploadedFile, error) {
	body, contentType, err := multipartBody(fileName, mimeType, data)
	if err != nil {
		return nil, fmt.Errorf("build upload body: %w", err)
	}

	var out UploadedFile
	err = c.call(ctx, CallUpload, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/files", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create upload request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/json")
		return c.do(req, CallUpload, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SignedURL requests a temporary URL for an uploaded file.
func (c *Client) SignedURL(ctx context.Context, fileID string, expiryHours int) (*SignedURL, error) {
	endpoint := fmt.Sprintf("%s/v1/files/%s/url?expiry=%s", c.baseURL, url.PathEscape(fileID), strconv.Itoa(expiryHours))

	var out SignedURL
	err := c.call(ctx, CallSignedURL, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("create signed url request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		return c.do(req, CallSignedURL, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// OCR submits an OCR request. The response is returned undecoded beyond
// its top-level keys; numbers keep their original text.
func (c *Client) OCR(ctx context.Context, ocrReq *OCRRequest) (map[string]any, error) {
	body, err := json.Marshal(ocrReq)
	if err != nil {
		return nil, fmt.Errorf("marshal ocr request: %w", err)
	}

	var out map[string]any
	err = c.call(ctx, CallOCR, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/ocr", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create ocr request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return c.do(req, CallOCR, &out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListModels lists the models visible to the API key. It doubles as a
// credential check.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	var out struct {
		Data []Model `json:"data"`
	}
	err := c.call(ctx, CallModels, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
		if err != nil {
			return fmt.Errorf("create models request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		return c.do(req, CallModels, &out)
	})
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}

// call runs fn under pacing, retry and, if enabled, the endpoint's breaker.
func (c *Client) call(ctx context.Context, name string, fn func(context.Context) error) error {
	attempt := func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		err := fn(ctx)
		c.record(name, err)
		return err
	}

	run := func() error { return c.retrier.Do(ctx, name, attempt) }

	breaker, ok := c.breakers[name]
	if !ok {
		return run()
	}
	_, err := breaker.Execute(func() (any, error) { return nil, run() })
	return err
}

func (c *Client) do(req *http.Request, operation string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mistral %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPStatusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func (c *Client) record(call string, err error) {
	if c.recorder == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case IsRateLimited(err):
		outcome = "rate_limited"
	default:
		outcome = "error"
	}
	c.recorder.UpstreamRequest(call, outcome)
}

func multipartBody(fileName, mimeType string, data []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("purpose", "ocr"); err != nil {
		return nil, "", err
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	header.Set("Content-Type", mimeType)

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// bearerTransport adds the API key to every request.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(r)
}

func newBreaker(call string) *gobreaker.CircuitBreaker[any] {
	log := logger.WithComponent("mistral")
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        call,
		MaxRequests: 2,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			if errors.Is(err, ErrRateLimitExceeded) {
				return false
			}
			// Client errors say nothing about provider health.
			var statusErr *HTTPStatusError
			if errors.As(err, &statusErr) {
				return statusErr.StatusCode < 500
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("call", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
}

// IsCircuitOpen reports whether err came from an open breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
