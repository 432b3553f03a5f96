package config_test

import (
	"strings"
	"testing"

	"github.com/R1cK-ChaN/doc-parser/internal/config"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("TEXTIN_APP_ID", "app")
	t.Setenv("TEXTIN_SECRET_CODE", "secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TextinParseMode != "auto" {
		t.Errorf("parse mode = %q, want auto", cfg.TextinParseMode)
	}
	if cfg.TextinMaxConcurrent != 3 {
		t.Errorf("max concurrent = %d, want 3", cfg.TextinMaxConcurrent)
	}
	if cfg.ExtractionProvider != "textin" {
		t.Errorf("extraction provider = %q, want textin", cfg.ExtractionProvider)
	}
	if cfg.DataDir != "data" {
		t.Errorf("data dir = %q, want data", cfg.DataDir)
	}
	if cfg.VLMEnabled() {
		t.Error("VLM must be disabled by default")
	}
	if cfg.LLMBaseURL != "https://openrouter.ai/api/v1" {
		t.Errorf("llm base url = %q", cfg.LLMBaseURL)
	}
}

func TestLoadMissingCredentials(t *testing.T) {
	t.Setenv("TEXTIN_APP_ID", "")
	t.Setenv("TEXTIN_SECRET_CODE", "")

	if _, err := config.Load(); err == nil || !strings.Contains(err.Error(), "TEXTIN_APP_ID") {
		t.Errorf("expected TEXTIN_APP_ID error, got %v", err)
	}
}

func TestLoadInvalidParseMode(t *testing.T) {
	setRequired(t)
	t.Setenv("TEXTIN_PARSE_MODE", "turbo")

	if _, err := config.Load(); err == nil || !strings.Contains(err.Error(), "TEXTIN_PARSE_MODE") {
		t.Errorf("expected parse mode error, got %v", err)
	}
}

func TestLoadInvalidProvider(t *testing.T) {
	setRequired(t)
	t.Setenv("EXTRACTION_PROVIDER", "gemini")

	if _, err := config.Load(); err == nil || !strings.Contains(err.Error(), "EXTRACTION_PROVIDER") {
		t.Errorf("expected provider error, got %v", err)
	}
}

func TestLLMProviderRequiresKey(t *testing.T) {
	setRequired(t)
	t.Setenv("EXTRACTION_PROVIDER", "llm")
	t.Setenv("LLM_API_KEY", "")

	if _, err := config.Load(); err == nil || !strings.Contains(err.Error(), "LLM_API_KEY") {
		t.Errorf("expected LLM_API_KEY error, got %v", err)
	}
}

func TestVLMRequiresKey(t *testing.T) {
	setRequired(t)
	t.Setenv("VLM_MODEL", "openai/gpt-4o")
	t.Setenv("LLM_API_KEY", "")

	if _, err := config.Load(); err == nil || !strings.Contains(err.Error(), "LLM_API_KEY") {
		t.Errorf("expected LLM_API_KEY error, got %v", err)
	}
}

func TestStoragePaths(t *testing.T) {
	setRequired(t)
	t.Setenv("DATA_DIR", "/tmp/docparser")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.ParsedPath(); got != "/tmp/docparser/parsed" {
		t.Errorf("parsed path = %q", got)
	}
	if got := cfg.ExtractionPath(); got != "/tmp/docparser/extraction" {
		t.Errorf("extraction path = %q", got)
	}
}
