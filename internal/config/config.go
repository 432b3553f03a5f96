package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/R1cK-ChaN/doc-parser/internal/logger"
)

type Config struct {
	// TextIn API Configuration
	TextinAppID         string
	TextinSecretCode    string
	TextinParseMode     string
	TextinMaxConcurrent int

	// LLM Configuration (text extraction)
	LLMAPIKey       string
	LLMBaseURL      string
	LLMModel        string
	LLMMaxTokens    int
	LLMTemperature  float64
	LLMContextChars int

	// VLM Configuration (chart and table enhancement)
	VLMModel     string
	VLMMaxTokens int

	// Extraction Configuration
	ExtractionProvider string

	// Storage Configuration
	DataDir     string
	DatabaseURL string

	// Google Drive Configuration
	GoogleCredentialsFile string
	GoogleCredentialsJSON string

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	config := &Config{
		TextinAppID:           getEnv("TEXTIN_APP_ID", ""),
		TextinSecretCode:      getEnv("TEXTIN_SECRET_CODE", ""),
		TextinParseMode:       getEnv("TEXTIN_PARSE_MODE", "auto"),
		TextinMaxConcurrent:   getEnvInt("TEXTIN_MAX_CONCURRENT", 3),
		LLMAPIKey:             getEnv("LLM_API_KEY", ""),
		LLMBaseURL:            getEnv("LLM_BASE_URL", "https://openrouter.ai/api/v1"),
		LLMModel:              getEnv("LLM_MODEL", "openai/gpt-4o-mini"),
		LLMMaxTokens:          getEnvInt("LLM_MAX_TOKENS", 1024),
		LLMTemperature:        getEnvFloat("LLM_TEMPERATURE", 0.0),
		LLMContextChars:       getEnvInt("LLM_CONTEXT_CHARS", 4000),
		VLMModel:              getEnv("VLM_MODEL", ""),
		VLMMaxTokens:          getEnvInt("VLM_MAX_TOKENS", 300),
		ExtractionProvider:    getEnv("EXTRACTION_PROVIDER", "textin"),
		DataDir:               getEnv("DATA_DIR", "data"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		GoogleCredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		GoogleCredentialsJSON: getEnv("GOOGLE_CREDENTIALS", ""),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:         getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:             getEnv("LOG_OUTPUT", "stdout"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.TextinAppID == "" {
		return fmt.Errorf("TEXTIN_APP_ID is required")
	}
	if c.TextinSecretCode == "" {
		return fmt.Errorf("TEXTIN_SECRET_CODE is required")
	}
	if c.TextinParseMode != "auto" && c.TextinParseMode != "scan" {
		return fmt.Errorf("TEXTIN_PARSE_MODE must be auto or scan, got %q", c.TextinParseMode)
	}
	if c.TextinMaxConcurrent < 1 {
		return fmt.Errorf("TEXTIN_MAX_CONCURRENT must be at least 1")
	}
	if c.ExtractionProvider != "textin" && c.ExtractionProvider != "llm" {
		return fmt.Errorf("EXTRACTION_PROVIDER must be textin or llm, got %q", c.ExtractionProvider)
	}
	if c.ExtractionProvider == "llm" && c.LLMAPIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required when EXTRACTION_PROVIDER is llm")
	}
	if c.VLMModel != "" && c.LLMAPIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required when VLM_MODEL is set")
	}
	return nil
}

// VLMEnabled reports whether chart and table enhancement is configured.
func (c *Config) VLMEnabled() bool {
	return c.VLMModel != ""
}

// ParsedPath returns the directory where parse results are stored.
func (c *Config) ParsedPath() string {
	return filepath.Join(c.DataDir, "parsed")
}

// ExtractionPath returns the directory where extraction results are stored.
func (c *Config) ExtractionPath() string {
	return filepath.Join(c.DataDir, "extraction")
}

// EnsureDirs creates the data directories if they do not exist.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.ParsedPath(), c.ExtractionPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
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

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
