package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dococr/internal/annotation"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"MISTRAL_API_KEY", "MISTRAL_BASE_URL", "MISTRAL_MODEL", "MISTRAL_TIMEOUT_SECONDS",
		"OCR_MAX_RETRIES", "OCR_RETRY_BASE_DELAY_MS", "OCR_REQUIRED_POLICY", "OCR_CONTINUE_ON_FAIL",
		"MISTRAL_REQUESTS_PER_SECOND", "MISTRAL_BREAKER_ENABLED", "SERVER_ADDR", "SERVER_MAX_UPLOAD_MB",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.mistral.ai", cfg.MistralBaseURL)
	assert.Equal(t, "mistral-ocr-latest", cfg.MistralModel)
	assert.Equal(t, 120*time.Second, cfg.MistralTimeout)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryBaseDelay)
	assert.Equal(t, annotation.RequiredSelected, cfg.RequiredPolicy)
	assert.False(t, cfg.ContinueOnFail)
	assert.False(t, cfg.BreakerEnabled)
	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, int64(50), cfg.ServerMaxUploadMB)
	assert.Error(t, cfg.RequireAPIKey())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MISTRAL_API_KEY", "secret")
	t.Setenv("OCR_MAX_RETRIES", "5")
	t.Setenv("OCR_RETRY_BASE_DELAY_MS", "250")
	t.Setenv("OCR_REQUIRED_POLICY", "all")
	t.Setenv("OCR_CONTINUE_ON_FAIL", "true")
	t.Setenv("MISTRAL_REQUESTS_PER_SECOND", "2.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.NoError(t, cfg.RequireAPIKey())
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryBaseDelay)
	assert.Equal(t, annotation.RequiredAll, cfg.RequiredPolicy)
	assert.True(t, cfg.ContinueOnFail)

	mc := cfg.MistralConfig(nil)
	assert.Equal(t, "secret", mc.APIKey)
	assert.Equal(t, 2.5, mc.RequestsPerSecond)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"OCR_MAX_RETRIES":         "many",
		"OCR_REQUIRED_POLICY":     "some",
		"MISTRAL_TIMEOUT_SECONDS": "-1",
		"OCR_CONTINUE_ON_FAIL":    "perhaps",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}
