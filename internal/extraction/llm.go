package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/R1cK-ChaN/doc-parser/internal/logger"
	"github.com/R1cK-ChaN/doc-parser/internal/textin"
)

const llmSystemPromptTemplate = `You are a financial document metadata extractor. Extract the following fields from the document text. Return ONLY valid JSON with these keys:

%s

For any field you cannot determine, use null.`

const (
	llmMaxAttempts = 3
	llmBaseBackoff = 4 * time.Second
	llmMaxBackoff  = 16 * time.Second
)

// LLMConfig configures the OpenAI-compatible extraction provider.
type LLMConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int
	Temperature  float64
	ContextChars int
}

// LLMProvider extracts fields by prompting a chat completions endpoint with
// the parsed Markdown.
type LLMProvider struct {
	client *openai.Client
	cfg    LLMConfig

	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// NewLLMProvider creates an LLM-backed extraction provider.
func NewLLMProvider(cfg LLMConfig) *LLMProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &LLMProvider{
		client:      openai.NewClientWithConfig(clientCfg),
		cfg:         cfg,
		baseBackoff: llmBaseBackoff,
		maxBackoff:  llmMaxBackoff,
	}
}

func (p *LLMProvider) Extract(ctx context.Context, req Request) (*textin.ExtractionResult, error) {
	const op = "Extract"

	if req.Markdown == "" {
		return nil, ErrMarkdownRequired
	}
	fields := req.Fields
	if fields == nil {
		fields = textin.DefaultExtractionFields
	}

	var lines []string
	for _, f := range fields {
		lines = append(lines, fmt.Sprintf("- %q: %s", f.Key, f.Description))
	}
	systemPrompt := fmt.Sprintf(llmSystemPromptTemplate, strings.Join(lines, "\n"))

	docText := req.Markdown
	if p.cfg.ContextChars > 0 && len(docText) > p.cfg.ContextChars {
		docText = docText[:p.cfg.ContextChars]
	}

	log := logger.WithComponent("extraction")
	log.Info().
		Str("model", p.cfg.Model).
		Int("context_chars", len(docText)).
		Msg("LLM extraction")

	request := openai.ChatCompletionRequest{
		Model: p.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: docText},
		},
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: wireTemperature(float32(p.cfg.Temperature)),
	}

	resp, err := p.complete(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("extraction: %s: %w", op, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("extraction: %s: empty completion response", op)
	}

	extracted, err := ParseJSONResponse(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("extraction: %s: %w", op, err)
	}

	return &textin.ExtractionResult{
		Fields:    extracted,
		RequestID: resp.ID,
	}, nil
}

// complete calls the chat completions endpoint, retrying server errors.
func (p *LLMProvider) complete(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	backoff := p.baseBackoff
	var lastErr error

	for attempt := 1; attempt <= llmMaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return openai.ChatCompletionResponse{}, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > p.maxBackoff {
				backoff = p.maxBackoff
			}
		}

		resp, err := p.client.CreateChatCompletion(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !isRetryableLLM(err) || ctx.Err() != nil {
			return openai.ChatCompletionResponse{}, err
		}
		lastErr = err
	}
	return openai.ChatCompletionResponse{}, lastErr
}

// wireTemperature keeps an exact-zero temperature on the wire. The client
// omits zero-valued temperatures from the request body, which would let the
// provider default apply instead.
func wireTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

func isRetryableLLM(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode >= 500
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

func (p *LLMProvider) Close() error {
	return nil
}

// ParseJSONResponse extracts a JSON object of field values from an LLM
// reply, tolerating Markdown code fences around the JSON. Null values are
// dropped.
func ParseJSONResponse(text string) (map[string]string, error) {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		lines := strings.Split(cleaned, "\n")
		var kept []string
		for _, line := range lines[1:] {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				continue
			}
			kept = append(kept, line)
		}
		cleaned = strings.Join(kept, "\n")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, fmt.Errorf("parsing LLM reply as JSON: %w", err)
	}

	fields := make(map[string]string, len(raw))
	for key, value := range raw {
		if string(value) == "null" {
			continue
		}
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			fields[key] = s
		} else {
			fields[key] = string(value)
		}
	}
	return fields, nil
}
