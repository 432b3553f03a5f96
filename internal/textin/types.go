package textin

import (
	"encoding/base64"
	"encoding/json"

	"github.com/R1cK-ChaN/doc-parser/pkg/models"
)

// ParseResult is the structured result of a parse invocation, from either
// the legacy sync endpoint or ParseX.
type ParseResult struct {
	Markdown        string           `json:"markdown"`
	Detail          []models.Element `json:"detail"`
	Pages           []models.Page    `json:"pages"`
	ExcelBase64     string           `json:"excel,omitempty"`
	TotalPageNumber int              `json:"total_page_number"`
	ValidPageNumber int              `json:"valid_page_number"`
	DurationMS      int              `json:"duration"`
	RequestID       string           `json:"request_id"`
	SrcPageCount    int              `json:"src_page_count"`

	// HasChart is true when the detail list contains at least one chart image.
	HasChart bool `json:"has_chart"`
}

// WatermarkResult is the result of the watermark removal endpoint.
type WatermarkResult struct {
	ImageBase64 string `json:"image"`
	DurationMS  int    `json:"duration"`
}

// ExtractionResult is the result of the entity extraction endpoint.
type ExtractionResult struct {
	// Fields maps field keys to their first extracted value.
	Fields map[string]string `json:"fields"`

	Category        json.RawMessage `json:"category,omitempty"`
	DetailStructure json.RawMessage `json:"details_list,omitempty"`
	PageCount       int             `json:"page_count"`
	DurationMS      int             `json:"duration"`
	RequestID       string          `json:"request_id"`
}

// Field describes one entity to extract.
type Field struct {
	Key         string `json:"key"`
	Description string `json:"description"`
}

// DefaultExtractionFields are the bibliographic fields extracted from
// financial research documents when no explicit field list is given.
var DefaultExtractionFields = []Field{
	{Key: "title", Description: "Document title or report title"},
	{Key: "broker", Description: "Brokerage firm or financial institution that published the report"},
	{Key: "authors", Description: "Author names, analysts who wrote the report"},
	{Key: "publish_date", Description: "Publication date of the report"},
	{Key: "market", Description: "Target market (e.g., US, China, Hong Kong, Global)"},
	{Key: "sector", Description: "Industry sector (e.g., Technology, Healthcare, Energy)"},
	{Key: "document_type", Description: "Type of document (e.g., Research Report, Market Commentary, Earnings Review)"},
	{Key: "target_company", Description: "Primary company being analyzed"},
	{Key: "ticker_symbol", Description: "Stock ticker symbol of the target company"},
}

// DecodeExcel decodes the base64-encoded Excel attachment from a parse
// response.
func DecodeExcel(b64 string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(b64)
}
