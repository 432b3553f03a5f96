package models

import "encoding/json"

// Element is one structural unit from the TextIn parse detail list.
//
// Position arrives in several wire shapes (flat coordinate list, quad point
// list, x/y/width/height object), so it is kept as raw JSON and interpreted
// lazily by the enhancement layer.
type Element struct {
	Type       string          `json:"type"`                  // "text", "image", "table", ...
	SubType    string          `json:"sub_type,omitempty"`    // "chart" marks chart images
	ImageType  string          `json:"image_type,omitempty"`  // image kind reported by the legacy parse endpoint
	Text       string          `json:"text,omitempty"`        // literal HTML/text rendering of the region
	PageID     int             `json:"page_id,omitempty"`     // 1-based; takes precedence over PageNumber
	PageNumber int             `json:"page_number,omitempty"` // 1-based; legacy field name
	Position   json.RawMessage `json:"position,omitempty"`

	CharPosStart int    `json:"char_pos_start,omitempty"`
	CharPosEnd   int    `json:"char_pos_end,omitempty"`
	OutlineLevel int    `json:"outline_level,omitempty"`
	ContentFlag  string `json:"content,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
}

// Page returns the element's 1-based page identifier, defaulting to 1.
func (e Element) Page() int {
	if e.PageID > 0 {
		return e.PageID
	}
	if e.PageNumber > 0 {
		return e.PageNumber
	}
	return 1
}

// IsChart reports whether the element is a chart image.
func (e Element) IsChart() bool {
	return e.Type == "image" && e.SubType == "chart"
}

// IsTable reports whether the element is a table.
func (e Element) IsTable() bool {
	return e.Type == "table"
}

// Page describes one page of the parsed document as TextIn saw it.
// Width and Height are the dimensions TextIn used when computing element
// bounding boxes; they may differ from the PDF's native page size.
type Page struct {
	PageID int     `json:"page_id"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Angle  int     `json:"angle,omitempty"`
}

// ReportMeta holds the bibliographic fields extracted from a financial
// research document.
type ReportMeta struct {
	Title         string `json:"title,omitempty"`
	Broker        string `json:"broker,omitempty"`
	Authors       string `json:"authors,omitempty"`
	PublishDate   string `json:"publish_date,omitempty"`
	Market        string `json:"market,omitempty"`
	Sector        string `json:"sector,omitempty"`
	DocumentType  string `json:"document_type,omitempty"`
	TargetCompany string `json:"target_company,omitempty"`
	TickerSymbol  string `json:"ticker_symbol,omitempty"`
}
