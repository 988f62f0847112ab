package mistral_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dococr/internal/annotation"
	"dococr/internal/mistral"
)

func newTestClient(t *testing.T, serverURL string, rec mistral.Recorder) *mistral.Client {
	t.Helper()
	c, err := mistral.New(mistral.Config{
		BaseURL:    serverURL,
		APIKey:     "test-key",
		Timeout:    5 * time.Second,
		MaxRetries: 3,
		Recorder:   rec,
	})
	require.NoError(t, err)
	c.Retrier().Sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := mistral.New(mistral.Config{})
	assert.ErrorIs(t, err, mistral.ErrMissingAPIKey)
}

func TestClient_UploadFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/files", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "ocr", r.FormValue("purpose"))

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		assert.Equal(t, "invoice.pdf", header.Filename)
		assert.Equal(t, "application/pdf", header.Header.Get("Content-Type"))
		data, _ := io.ReadAll(file)
		assert.Equal(t, "%PDF-1.4 test", string(data))

		_, _ = w.Write([]byte(`{"id":"file-123","object":"file","purpose":"ocr"}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)
	uploaded, err := c.UploadFile(context.Background(), "invoice.pdf", "application/pdf", []byte("%PDF-1.4 test"))
	require.NoError(t, err)
	assert.Equal(t, "file-123", uploaded.ID)
}

func TestClient_SignedURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/files/file-123/url", r.URL.Path)
		assert.Equal(t, "24", r.URL.Query().Get("expiry"))
		_, _ = w.Write([]byte(`{"url":"https://files.example/signed"}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)
	signed, err := c.SignedURL(context.Background(), "file-123", 24)
	require.NoError(t, err)
	assert.Equal(t, "https://files.example/signed", signed.URL)
}

func TestClient_OCRRequestBody(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/ocr", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"pages":[{"index":0,"markdown":"# Invoice"}],"usage_info":{"pages_processed":1,"doc_size_bytes":12345678901}}`))
	}))
	defer server.Close()

	env, err := annotation.BuildJSONSchema(annotation.DefaultBBoxSchema(), annotation.BBoxSchemaName, annotation.RequiredSelected)
	require.NoError(t, err)

	c := newTestClient(t, server.URL, nil)
	out, err := c.OCR(context.Background(), &mistral.OCRRequest{
		Model:                mistral.DefaultModel,
		Document:             mistral.DocumentURL{Type: "document_url", DocumentURL: "https://files.example/signed"},
		BBoxAnnotationFormat: env,
	})
	require.NoError(t, err)

	assert.Equal(t, "mistral-ocr-latest", body["model"])
	assert.Equal(t, false, body["include_image_base64"])
	assert.Equal(t, map[string]any{"type": "document_url", "document_url": "https://files.example/signed"}, body["document"])
	assert.Contains(t, body, "bbox_annotation_format")
	assert.NotContains(t, body, "document_annotation_format")
	assert.NotContains(t, body, "pages")

	usage := out["usage_info"].(map[string]any)
	assert.Equal(t, json.Number("12345678901"), usage["doc_size_bytes"])
}

func TestClient_RetriesRateLimitThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, `{"message":"Requests rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"url":"https://files.example/signed"}`))
	}))
	defer server.Close()

	rec := newCountingRecorder()
	c := newTestClient(t, server.URL, rec)
	signed, err := c.SignedURL(context.Background(), "file-1", 1)
	require.NoError(t, err)
	assert.Equal(t, "https://files.example/signed", signed.URL)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 2, rec.outcomes["signed_url/rate_limited"])
	assert.Equal(t, 1, rec.outcomes["signed_url/ok"])
	assert.Equal(t, 2, rec.retries["signed_url"])
}

func TestClient_RateLimitExhausted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)
	_, err := c.OCR(context.Background(), &mistral.OCRRequest{Model: "m"})
	assert.ErrorIs(t, err, mistral.ErrRateLimitExceeded)
	assert.Equal(t, int32(4), calls.Load())
}

func TestClient_NotFoundMentioning429IsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message":"file 7f3a4291-aa not found"}`)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)
	_, err := c.SignedURL(context.Background(), "7f3a4291-aa", 24)
	require.Error(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.NotErrorIs(t, err, mistral.ErrRateLimitExceeded)
	var statusErr *mistral.HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, mistral.CallSignedURL, statusErr.Operation)
}

func TestClient_HTTPErrorIncludesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid model", http.StatusBadRequest)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)
	_, err := c.OCR(context.Background(), &mistral.OCRRequest{Model: "nope"})
	require.Error(t, err)

	var statusErr *mistral.HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Equal(t, mistral.CallOCR, statusErr.Operation)
	assert.Contains(t, err.Error(), "invalid model")
}

func TestClient_ListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"mistral-ocr-latest","object":"model"}]}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)
	models, err := c.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "mistral-ocr-latest", models[0].ID)
}

func TestClient_BreakerOpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c, err := mistral.New(mistral.Config{BaseURL: server.URL, APIKey: "k", BreakerEnabled: true})
	require.NoError(t, err)

	var lastErr error
	for i := 0; i < 12; i++ {
		_, lastErr = c.ListModels(context.Background())
	}
	assert.True(t, mistral.IsCircuitOpen(lastErr))
	assert.Equal(t, int32(10), calls.Load())
}
