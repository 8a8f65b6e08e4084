// Package config loads screening settings from environment variables.
// Settings are constructed once at startup and passed explicitly into
// the components that need them; nothing in this package is a global.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Settings holds every tunable of the screening pipeline.
type Settings struct {
	AppName  string
	LogLevel string

	// Oracle client.
	GeminiModel       string
	OracleTimeout     time.Duration
	MaxOracleAttempts int // transport-level retry attempts per call

	// Processing.
	AmountThresholdKZT  decimal.Decimal
	MaxConcurrentCalls  int
	FuzzyMatchThreshold float64
	BatchSize           int

	// Validation retry loop.
	MaxRetries       int
	Temperature      float64
	RetryTemperature float64

	// Output.
	TempStoragePath string
	ResultsBucket   string // optional GCS sink for exported workbooks

	// Reference data.
	OffshoreListFile string // optional override for the embedded list
}

// Default returns the settings used when no environment overrides are set.
func Default() Settings {
	return Settings{
		AppName:             "offshore-radar",
		LogLevel:            "info",
		GeminiModel:         "gemini-2.5-flash",
		OracleTimeout:       60 * time.Second,
		MaxOracleAttempts:   3,
		AmountThresholdKZT:  decimal.NewFromInt(5_000_000),
		MaxConcurrentCalls:  5,
		FuzzyMatchThreshold: 0.80,
		BatchSize:           10,
		MaxRetries:          3,
		Temperature:         0.1,
		RetryTemperature:    0.3,
		TempStoragePath:     "/tmp/offshore-radar",
	}
}

// Load builds Settings from the environment on top of the defaults and
// validates the result.
func Load() (Settings, error) {
	s := Default()

	if v := os.Getenv("APP_NAME"); v != "" {
		s.AppName = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		s.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		s.GeminiModel = v
	}
	if v := os.Getenv("TEMP_STORAGE_PATH"); v != "" {
		s.TempStoragePath = v
	}
	if v := os.Getenv("RESULTS_BUCKET"); v != "" {
		s.ResultsBucket = v
	}
	if v := os.Getenv("OFFSHORE_COUNTRIES_FILE"); v != "" {
		s.OffshoreListFile = v
	}

	var err error
	if s.OracleTimeout, err = envSeconds("LLM_TIMEOUT_SECONDS", s.OracleTimeout); err != nil {
		return s, err
	}
	if s.MaxOracleAttempts, err = envInt("LLM_TRANSPORT_ATTEMPTS", s.MaxOracleAttempts); err != nil {
		return s, err
	}
	if s.AmountThresholdKZT, err = envDecimal("AMOUNT_THRESHOLD_KZT", s.AmountThresholdKZT); err != nil {
		return s, err
	}
	if s.MaxConcurrentCalls, err = envInt("MAX_CONCURRENT_LLM_CALLS", s.MaxConcurrentCalls); err != nil {
		return s, err
	}
	if s.FuzzyMatchThreshold, err = envFloat("FUZZY_MATCH_THRESHOLD", s.FuzzyMatchThreshold); err != nil {
		return s, err
	}
	if s.BatchSize, err = envInt("BATCH_SIZE", s.BatchSize); err != nil {
		return s, err
	}
	if s.MaxRetries, err = envInt("LLM_MAX_RETRIES", s.MaxRetries); err != nil {
		return s, err
	}
	if s.Temperature, err = envFloat("LLM_TEMPERATURE", s.Temperature); err != nil {
		return s, err
	}
	if s.RetryTemperature, err = envFloat("LLM_RETRY_TEMPERATURE", s.RetryTemperature); err != nil {
		return s, err
	}

	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Validate checks the ranges the pipeline depends on.
func (s Settings) Validate() error {
	if s.MaxConcurrentCalls < 1 || s.MaxConcurrentCalls > 50 {
		return fmt.Errorf("config: MAX_CONCURRENT_LLM_CALLS must be between 1 and 50, got %d", s.MaxConcurrentCalls)
	}
	if s.FuzzyMatchThreshold < 0 || s.FuzzyMatchThreshold > 1 {
		return fmt.Errorf("config: FUZZY_MATCH_THRESHOLD must be between 0.0 and 1.0, got %g", s.FuzzyMatchThreshold)
	}
	if s.BatchSize < 1 {
		return fmt.Errorf("config: BATCH_SIZE must be at least 1, got %d", s.BatchSize)
	}
	if s.MaxRetries < 1 {
		return fmt.Errorf("config: LLM_MAX_RETRIES must be at least 1, got %d", s.MaxRetries)
	}
	if s.MaxOracleAttempts < 1 {
		return fmt.Errorf("config: LLM_TRANSPORT_ATTEMPTS must be at least 1, got %d", s.MaxOracleAttempts)
	}
	if s.AmountThresholdKZT.IsNegative() {
		return fmt.Errorf("config: AMOUNT_THRESHOLD_KZT must be non-negative, got %s", s.AmountThresholdKZT)
	}
	if s.OracleTimeout <= 0 {
		return fmt.Errorf("config: LLM_TIMEOUT_SECONDS must be positive, got %s", s.OracleTimeout)
	}
	return nil
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("config: %s=%q is not an integer: %w", key, v, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("config: %s=%q is not a number: %w", key, v, err)
	}
	return f, nil
}

func envDecimal(key string, def decimal.Decimal) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return def, fmt.Errorf("config: %s=%q is not a decimal: %w", key, v, err)
	}
	return d, nil
}

func envSeconds(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("config: %s=%q is not a number of seconds: %w", key, v, err)
	}
	return time.Duration(n) * time.Second, nil
}
