package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"dococr/internal/annotation"
	"dococr/internal/logger"
	"dococr/internal/mistral"
)

type Config struct {
	// Mistral API Configuration
	MistralAPIKey  string
	MistralBaseURL string
	MistralModel   string
	MistralTimeout time.Duration

	// Request pacing and resilience
	MaxRetries        int
	RetryBaseDelay    time.Duration
	RequestsPerSecond float64
	BreakerEnabled    bool

	// Processing defaults
	RequiredPolicy annotation.RequiredPolicy
	ContinueOnFail bool

	// HTTP adapter
	ServerAddr        string
	ServerMaxUploadMB int64

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

// Load reads the configuration from the environment. The API key is not
// required here; commands that talk to the provider check it themselves.
func Load() (*Config, error) {
	var errs []string
	intEnv := func(key string, def int) int {
		v, err := strconv.Atoi(getEnv(key, strconv.Itoa(def)))
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s must be an integer", key))
			return def
		}
		return v
	}
	floatEnv := func(key string, def float64) float64 {
		v, err := strconv.ParseFloat(getEnv(key, strconv.FormatFloat(def, 'f', -1, 64)), 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s must be a number", key))
			return def
		}
		return v
	}
	boolEnv := func(key string, def bool) bool {
		v, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(def)))
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s must be a boolean", key))
			return def
		}
		return v
	}

	policy, err := annotation.ParseRequiredPolicy(getEnv("OCR_REQUIRED_POLICY", string(annotation.RequiredSelected)))
	if err != nil {
		errs = append(errs, "OCR_REQUIRED_POLICY: "+err.Error())
	}

	config := &Config{
		MistralAPIKey:     getEnv("MISTRAL_API_KEY", ""),
		MistralBaseURL:    getEnv("MISTRAL_BASE_URL", mistral.DefaultBaseURL),
		MistralModel:      getEnv("MISTRAL_MODEL", mistral.DefaultModel),
		MistralTimeout:    time.Duration(intEnv("MISTRAL_TIMEOUT_SECONDS", 120)) * time.Second,
		MaxRetries:        intEnv("OCR_MAX_RETRIES", mistral.DefaultMaxRetries),
		RetryBaseDelay:    time.Duration(intEnv("OCR_RETRY_BASE_DELAY_MS", 1000)) * time.Millisecond,
		RequestsPerSecond: floatEnv("MISTRAL_REQUESTS_PER_SECOND", 0),
		BreakerEnabled:    boolEnv("MISTRAL_BREAKER_ENABLED", false),
		RequiredPolicy:    policy,
		ContinueOnFail:    boolEnv("OCR_CONTINUE_ON_FAIL", false),
		ServerAddr:        getEnv("SERVER_ADDR", ":8080"),
		ServerMaxUploadMB: int64(intEnv("SERVER_MAX_UPLOAD_MB", 50)),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:     getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:         getEnv("LOG_OUTPUT", "stderr"),
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.MistralTimeout <= 0 {
		return fmt.Errorf("MISTRAL_TIMEOUT_SECONDS must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("OCR_MAX_RETRIES must not be negative")
	}
	if c.RetryBaseDelay <= 0 {
		return fmt.Errorf("OCR_RETRY_BASE_DELAY_MS must be positive")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("MISTRAL_REQUESTS_PER_SECOND must not be negative")
	}
	if c.ServerMaxUploadMB <= 0 {
		return fmt.Errorf("SERVER_MAX_UPLOAD_MB must be positive")
	}
	return nil
}

// RequireAPIKey fails when no Mistral API key is configured.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.MistralAPIKey) == "" {
		return fmt.Errorf("MISTRAL_API_KEY is required")
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

// MistralConfig returns the provider client configuration.
func (c *Config) MistralConfig(recorder mistral.Recorder) mistral.Config {
	return mistral.Config{
		BaseURL:           c.MistralBaseURL,
		APIKey:            c.MistralAPIKey,
		Timeout:           c.MistralTimeout,
		MaxRetries:        c.MaxRetries,
		RetryBaseDelay:    c.RetryBaseDelay,
		RequestsPerSecond: c.RequestsPerSecond,
		BreakerEnabled:    c.BreakerEnabled,
		Recorder:          recorder,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
