package enhance

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// System prompts. The chart variant asks for free text, the table variant
// for a re-transcribed Markdown table. Both forbid fabricating values that
// are not visible in the image.

const chartSystemPrompt = "You are a concise chart/graph analyst. Describe the chart in the image: " +
	"what type it is (bar, line, pie, etc.), what the axes represent, key data " +
	"points, and the main takeaway. Be brief (2-4 sentences). Do not fabricate " +
	"specific numbers unless they are clearly visible in the chart."

const tableSystemPrompt = "You are a precise table reader. Transcribe the table in the image into a " +
	"Markdown table that reflects the actual cell contents visible in the image. " +
	"Preserve the header row and cell order. Output only the Markdown table, " +
	"with no commentary. Do not invent values that are not visible."

// Summarizer turns a region image into replacement text.
type Summarizer interface {
	// SummarizeChart returns a natural-language description of a chart image.
	SummarizeChart(ctx context.Context, image []byte, pageText string) (string, error)

	// SummarizeTable returns a Markdown re-transcription of a table image.
	SummarizeTable(ctx context.Context, image []byte, pageText string) (string, error)
}

// VLMConfig configures the vision-language summarizer.
type VLMConfig struct {
	Model     string // e.g. "qwen/qwen2.5-vl-72b-instruct"
	MaxTokens int    // completion token cap per call
}

// OpenAISummarizer calls an OpenAI-compatible chat completions endpoint with
// a base64 data-URL image, one element at a time.
type OpenAISummarizer struct {
	client *openai.Client
	config VLMConfig
}

// NewOpenAISummarizer creates a summarizer against an OpenAI-compatible
// gateway. An empty baseURL means the OpenAI default.
func NewOpenAISummarizer(apiKey, baseURL string, config VLMConfig) *OpenAISummarizer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAISummarizer{
		client: openai.NewClientWithConfig(cfg),
		config: config,
	}
}

// SummarizeChart implements Summarizer.
func (s *OpenAISummarizer) SummarizeChart(ctx context.Context, image []byte, pageText string) (string, error) {
	return s.complete(ctx, chartSystemPrompt, image, pageText)
}

// SummarizeTable implements Summarizer.
func (s *OpenAISummarizer) SummarizeTable(ctx context.Context, image []byte, pageText string) (string, error) {
	return s.complete(ctx, tableSystemPrompt, image, pageText)
}

func (s *OpenAISummarizer) complete(ctx context.Context, systemPrompt string, image []byte, pageText string) (string, error) {
	const op = "complete"

	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(image)

	parts := []openai.ChatMessagePart{
		{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: dataURL},
		},
	}
	if pageText != "" {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: "Surrounding text from the same page, for context:\n\n" + pageText,
		})
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.config.Model,
		Temperature: wireTemperature(0),
		MaxTokens:   s.config.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
	})
	if err != nil {
		return "", fmt.Errorf("vlm: %s: %w", op, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("vlm: %s: no response choices", op)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
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
