package ocr_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dococr/internal/mistral"
)

// buildPDF returns a well-formed PDF with the given number of blank pages.
func buildPDF(pages int) []byte {
	var buf bytes.Buffer
	offsets := make([]int, 0, pages+2)

	buf.WriteString("%PDF-1.4\n")

	offsets = append(offsets, buf.Len())
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	kids := make([]string, pages)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	offsets = append(offsets, buf.Len())
	fmt.Fprintf(&buf, "2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 612 792] /Resources << >> >>\nendobj\n",
		strings.Join(kids, " "), pages)

	for i := 0; i < pages; i++ {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n<< /Type /Page /Parent 2 0 R >>\nendobj\n", i+3)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

type recordedCall struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

// fakeProvider stands in for the OCR API and records every call.
type fakeProvider struct {
	t      *testing.T
	server *httptest.Server

	mu    sync.Mutex
	calls []recordedCall
	files int

	// uploadBody overrides the upload response when set.
	uploadBody string
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	f := &fakeProvider{t: t}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeProvider) handle(w http.ResponseWriter, r *http.Request) {
	assert.Equal(f.t, "Bearer test-key", r.Header.Get("Authorization"))

	call := recordedCall{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/files":
		if !assert.NoError(f.t, r.ParseMultipartForm(8<<20)) {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		assert.Equal(f.t, "ocr", r.FormValue("purpose"))
		f.calls = append(f.calls, call)
		if f.uploadBody != "" {
			_, _ = w.Write([]byte(f.uploadBody))
			return
		}
		f.files++
		_ = json.NewEncoder(w).Encode(map[string]any{"id": fmt.Sprintf("file-%d", f.files), "object": "file"})

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/files/") && strings.HasSuffix(r.URL.Path, "/url"):
		f.calls = append(f.calls, call)
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/files/"), "/url")
		_ = json.NewEncoder(w).Encode(map[string]any{"url": "https://signed.example/" + id})

	case r.Method == http.MethodPost && r.URL.Path == "/v1/ocr":
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&call.Body))
		f.calls = append(f.calls, call)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": call.Body["model"],
			"pages": []map[string]any{{"index": 0, "markdown": "# Invoice 42"}},
			"usage_info": map[string]any{
				"pages_processed": 1,
			},
		})

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeProvider) Calls() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.calls...)
}

func (f *fakeProvider) Client(t *testing.T) *mistral.Client {
	t.Helper()
	c, err := mistral.New(mistral.Config{
		BaseURL: f.server.URL,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	c.Retrier().Sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func strPtr(s string) *string { return &s }
