package extraction_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/R1cK-ChaN/doc-parser/internal/extraction"
)

func TestLLMExtractSendsZeroTemperature(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"resp-1","choices":[{"message":{"role":"assistant","content":"{\"title\":\"Quarterly Review\"}"}}]}`))
	}))
	defer srv.Close()

	p := extraction.NewLLMProvider(extraction.LLMConfig{
		APIKey:    "key",
		BaseURL:   srv.URL,
		Model:     "test-model",
		MaxTokens: 64,
	})

	result, err := p.Extract(context.Background(), extraction.Request{Markdown: "# Doc"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if result.Fields["title"] != "Quarterly Review" {
		t.Errorf("fields = %v", result.Fields)
	}

	temp, ok := body["temperature"]
	if !ok {
		t.Fatalf("temperature missing from request body: %v", body)
	}
	f, ok := temp.(float64)
	if !ok || f <= 0 || f > 1e-6 {
		t.Errorf("temperature = %v, want smallest positive value", temp)
	}
}

func TestLLMExtractSendsConfiguredTemperature(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"resp-2","choices":[{"message":{"role":"assistant","content":"{}"}}]}`))
	}))
	defer srv.Close()

	p := extraction.NewLLMProvider(extraction.LLMConfig{
		APIKey:      "key",
		BaseURL:     srv.URL,
		Model:       "test-model",
		Temperature: 0.7,
	})

	if _, err := p.Extract(context.Background(), extraction.Request{Markdown: "# Doc"}); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	f, ok := body["temperature"].(float64)
	if !ok {
		t.Fatalf("temperature missing from request body: %v", body)
	}
	if f < 0.69 || f > 0.71 {
		t.Errorf("temperature = %v, want 0.7", f)
	}
}
