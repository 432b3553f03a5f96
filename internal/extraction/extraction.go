// Package extraction selects and drives a metadata extraction provider.
//
// Two providers are available: "textin" sends the raw file to the TextIn
// entity extraction endpoint, "llm" sends the parsed Markdown to an
// OpenAI-compatible chat completions endpoint.
package extraction

import (
	"context"
	"errors"

	"github.com/R1cK-ChaN/doc-parser/internal/config"
	"github.com/R1cK-ChaN/doc-parser/internal/textin"
	"github.com/R1cK-ChaN/doc-parser/pkg/models"
)

var (
	// ErrFilePathRequired is returned by the TextIn provider when no file
	// path is given.
	ErrFilePathRequired = errors.New("extraction: file path is required")

	// ErrMarkdownRequired is returned by the LLM provider when no markdown
	// text is given.
	ErrMarkdownRequired = errors.New("extraction: markdown text is required")
)

// Request carries the inputs an extraction provider may use. TextIn needs
// FilePath; the LLM provider needs Markdown.
type Request struct {
	FilePath string
	Markdown string
	Fields   []textin.Field
}

// Provider extracts structured metadata fields from a document.
type Provider interface {
	Extract(ctx context.Context, req Request) (*textin.ExtractionResult, error)
	Close() error
}

// NewProvider creates the provider selected by cfg.ExtractionProvider.
func NewProvider(cfg *config.Config) (Provider, error) {
	if cfg.ExtractionProvider == "llm" {
		return NewLLMProvider(LLMConfig{
			APIKey:       cfg.LLMAPIKey,
			BaseURL:      cfg.LLMBaseURL,
			Model:        cfg.LLMModel,
			MaxTokens:    cfg.LLMMaxTokens,
			Temperature:  cfg.LLMTemperature,
			ContextChars: cfg.LLMContextChars,
		}), nil
	}

	client, err := textin.NewClient(cfg.TextinAppID, cfg.TextinSecretCode, cfg.TextinParseMode)
	if err != nil {
		return nil, err
	}
	return NewTextinProvider(client), nil
}

// TextinProvider delegates to the TextIn entity extraction endpoint.
type TextinProvider struct {
	client *textin.Client
}

// NewTextinProvider creates a provider backed by the given TextIn client.
func NewTextinProvider(client *textin.Client) *TextinProvider {
	return &TextinProvider{client: client}
}

func (p *TextinProvider) Extract(ctx context.Context, req Request) (*textin.ExtractionResult, error) {
	if req.FilePath == "" {
		return nil, ErrFilePathRequired
	}
	return p.client.ExtractEntities(ctx, req.FilePath, req.Fields)
}

func (p *TextinProvider) Close() error {
	return nil
}

// MetaFromFields converts an extracted field map into a ReportMeta.
func MetaFromFields(fields map[string]string) models.ReportMeta {
	return models.ReportMeta{
		Title:         fields["title"],
		Broker:        fields["broker"],
		Authors:       fields["authors"],
		PublishDate:   fields["publish_date"],
		Market:        fields["market"],
		Sector:        fields["sector"],
		DocumentType:  fields["document_type"],
		TargetCompany: fields["target_company"],
		TickerSymbol:  fields["ticker_symbol"],
	}
}
