// Package textin provides a client for the TextIn API suite: document
// parsing to Markdown, image watermark removal, and entity extraction.
//
// Required Environment Variables:
//   - TEXTIN_APP_ID: application ID from the TextIn console
//   - TEXTIN_SECRET_CODE: secret code from the TextIn console
//
// All endpoints accept the raw file as an application/octet-stream body
// (extraction sends base64 JSON instead) and wrap results in a
// {"code": 200, "result": {...}} envelope. Calls are retried up to three
// times with exponential backoff on 5xx statuses and transport errors.
package textin

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/R1cK-ChaN/doc-parser/internal/logger"
)

// API endpoints
const (
	SyncEndpoint       = "https://api.textin.com/ai/service/v1/pdf_to_markdown"
	WatermarkEndpoint  = "https://api.textin.com/ai/service/v1/image/watermark_remove"
	ParseXEndpoint     = "https://api.textin.com/ai/service/v1/x_to_markdown"
	ExtractionEndpoint = "https://api.textin.com/ai/service/v2/entity_extraction"
)

// Retry policy defaults
const (
	defaultMaxAttempts = 3
	defaultBaseBackoff = 4 * time.Second
	defaultMaxBackoff  = 16 * time.Second

	requestTimeout = 300 * time.Second
)

// ParseOptions control the legacy sync parse endpoint.
type ParseOptions struct {
	ParseMode  string // overrides the client's default when set
	GetExcel   bool
	ApplyChart bool
}

// DefaultParseOptions returns parse options with Excel export and chart
// recognition enabled.
func DefaultParseOptions() ParseOptions {
	return ParseOptions{GetExcel: true, ApplyChart: true}
}

// ParseXOptions control the ParseX (x_to_markdown) endpoint.
type ParseXOptions struct {
	ParseMode string
	GetExcel  bool
	MDDetail  int
}

// DefaultParseXOptions returns ParseX options with Excel export enabled and
// detail level 2.
func DefaultParseXOptions() ParseXOptions {
	return ParseXOptions{GetExcel: true, MDDetail: 2}
}

// Client calls the TextIn API suite.
type Client struct {
	appID            string
	secretCode       string
	defaultParseMode string

	httpClient *http.Client
	log        zerolog.Logger

	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration

	// endpoint overrides, used by tests
	syncURL       string
	watermarkURL  string
	parsexURL     string
	extractionURL string
}

// NewClient creates a TextIn client with the given credentials.
// defaultParseMode is used by parse calls that do not override it.
func NewClient(appID, secretCode, defaultParseMode string) (*Client, error) {
	if appID == "" || secretCode == "" {
		return nil, ErrMissingCredentials
	}
	if defaultParseMode == "" {
		defaultParseMode = "auto"
	}
	return &Client{
		appID:            appID,
		secretCode:       secretCode,
		defaultParseMode: defaultParseMode,
		httpClient:       &http.Client{Timeout: requestTimeout},
		log:              logger.WithComponent("textin"),
		maxAttempts:      defaultMaxAttempts,
		baseBackoff:      defaultBaseBackoff,
		maxBackoff:       defaultMaxBackoff,
		syncURL:          SyncEndpoint,
		watermarkURL:     WatermarkEndpoint,
		parsexURL:        ParseXEndpoint,
		extractionURL:    ExtractionEndpoint,
	}, nil
}

// NewClientWithHTTPClient creates a TextIn client with an explicit HTTP
// client and base URL (for testing).
func NewClientWithHTTPClient(appID, secretCode string, httpClient *http.Client, baseURL string) *Client {
	return &Client{
		appID:            appID,
		secretCode:       secretCode,
		defaultParseMode: "auto",
		httpClient:       httpClient,
		log:              logger.WithComponent("textin"),
		maxAttempts:      defaultMaxAttempts,
		baseBackoff:      defaultBaseBackoff,
		maxBackoff:       defaultMaxBackoff,
		syncURL:          baseURL + "/ai/service/v1/pdf_to_markdown",
		watermarkURL:     baseURL + "/ai/service/v1/image/watermark_remove",
		parsexURL:        baseURL + "/ai/service/v1/x_to_markdown",
		extractionURL:    baseURL + "/ai/service/v2/entity_extraction",
	}
}

// ParseFile parses a file via the legacy sync endpoint.
func (c *Client) ParseFile(ctx context.Context, path string, opts ParseOptions) (*ParseResult, error) {
	const op = "ParseFile"

	params := c.ParseConfig(opts)
	fileBytes, err := readFile(path)
	if err != nil {
		return nil, WrapTextinError(op, err, path)
	}

	c.log.Info().
		Str("file", filepath.Base(path)).
		Int("bytes", len(fileBytes)).
		Str("parse_mode", params.Get("parse_mode")).
		Msg("Sending file to TextIn")

	result, err := c.postEnvelope(ctx, op, c.syncURL, params, fileBytes, "application/octet-stream")
	if err != nil {
		return nil, err
	}
	return parseResponse(op, result)
}

// ParseConfig returns the query parameters ParseFile would send, for
// recording alongside stored results.
func (c *Client) ParseConfig(opts ParseOptions) url.Values {
	mode := opts.ParseMode
	if mode == "" {
		mode = c.defaultParseMode
	}
	params := url.Values{
		"parse_mode":       {mode},
		"remove_watermark": {"1"},
		"apply_chart":      {"1"},
		"get_excel":        {"1"},
		"page_details":     {"1"},
		"markdown_details": {"1"},
		"apply_merge":      {"1"},
		"table_flavor":     {"html"},
		"dpi":              {"144"},
	}
	if !opts.GetExcel {
		params.Set("get_excel", "0")
	}
	if !opts.ApplyChart {
		params.Set("apply_chart", "0")
	}
	return params
}

// ParseFileX parses a file via the ParseX (x_to_markdown) endpoint.
func (c *Client) ParseFileX(ctx context.Context, path string, opts ParseXOptions) (*ParseResult, error) {
	const op = "ParseFileX"

	params := c.ParseXConfig(opts)
	fileBytes, err := readFile(path)
	if err != nil {
		return nil, WrapTextinError(op, err, path)
	}

	c.log.Info().
		Str("file", filepath.Base(path)).
		Int("bytes", len(fileBytes)).
		Str("parse_mode", params.Get("pdf_parse_mode")).
		Msg("Sending file to TextIn ParseX")

	result, err := c.postEnvelope(ctx, op, c.parsexURL, params, fileBytes, "application/octet-stream")
	if err != nil {
		return nil, err
	}
	return parseResponse(op, result)
}

// ParseXConfig returns the query parameters ParseFileX would send.
func (c *Client) ParseXConfig(opts ParseXOptions) url.Values {
	params := url.Values{
		"pdf_parse_mode":   {"auto"},
		"remove_watermark": {"0"},
		"md_detail":        {"2"},
		"md_table_flavor":  {"html"},
		"md_title":         {"1"},
		"pdf_dpi":          {"144"},
	}
	if opts.ParseMode != "" {
		params.Set("pdf_parse_mode", opts.ParseMode)
	}
	if opts.GetExcel {
		params.Set("get_excel", "1")
	} else {
		params.Set("get_excel", "0")
	}
	if opts.MDDetail != 0 {
		params.Set("md_detail", strconv.Itoa(opts.MDDetail))
	}
	return params
}

// RemoveWatermark removes visual watermarks from an image file, returning
// the cleaned image as base64.
func (c *Client) RemoveWatermark(ctx context.Context, path string) (*WatermarkResult, error) {
	const op = "RemoveWatermark"

	fileBytes, err := readFile(path)
	if err != nil {
		return nil, WrapTextinError(op, err, path)
	}

	c.log.Info().
		Str("file", filepath.Base(path)).
		Int("bytes", len(fileBytes)).
		Msg("Removing watermark")

	result, err := c.postEnvelope(ctx, op, c.watermarkURL, nil, fileBytes, "application/octet-stream")
	if err != nil {
		return nil, err
	}

	var wr WatermarkResult
	if err := json.Unmarshal(result, &wr); err != nil {
		return nil, WrapTextinError(op, err, "decoding watermark result")
	}
	return &wr, nil
}

// ExtractEntities extracts structured fields from a file. When fields is
// nil, DefaultExtractionFields is used.
func (c *Client) ExtractEntities(ctx context.Context, path string, fields []Field) (*ExtractionResult, error) {
	const op = "ExtractEntities"

	fileBytes, err := readFile(path)
	if err != nil {
		return nil, WrapTextinError(op, err, path)
	}
	if fields == nil {
		fields = DefaultExtractionFields
	}

	payload, err := json.Marshal(map[string]any{
		"file":   base64.StdEncoding.EncodeToString(fileBytes),
		"fields": fields,
	})
	if err != nil {
		return nil, WrapTextinError(op, err, "encoding request payload")
	}

	c.log.Info().
		Str("file", filepath.Base(path)).
		Int("bytes", len(fileBytes)).
		Int("fields", len(fields)).
		Msg("Extracting entities")

	result, err := c.postEnvelope(ctx, op, c.extractionURL, nil, payload, "application/json")
	if err != nil {
		return nil, err
	}
	return extractionResponse(op, result)
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	return data, nil
}

// postEnvelope posts the body with retry, unwraps the TextIn response
// envelope, and returns the raw result object.
func (c *Client) postEnvelope(ctx context.Context, op, endpoint string, params url.Values, body []byte, contentType string) (json.RawMessage, error) {
	data, err := c.postWithRetry(ctx, op, endpoint, params, body, contentType)
	if err != nil {
		return nil, WrapTextinError(op, err, "")
	}

	var env struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, WrapTextinError(op, err, "decoding response envelope")
	}
	if env.Code != 200 {
		msg := env.Message
		if msg == "" {
			msg = "Unknown TextIn error"
		}
		return nil, WrapTextinError(op, &APIError{Code: env.Code, Message: msg}, "")
	}
	if len(env.Result) == 0 {
		return json.RawMessage("{}"), nil
	}
	return env.Result, nil
}

func (c *Client) postWithRetry(ctx context.Context, op, endpoint string, params url.Values, body []byte, contentType string) ([]byte, error) {
	backoff := c.baseBackoff
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			c.log.Warn().
				Str("op", op).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Err(lastErr).
				Msg("Retrying TextIn request")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > c.maxBackoff {
				backoff = c.maxBackoff
			}
		}

		data, err := c.post(ctx, endpoint, params, body, contentType)
		if err == nil {
			return data, nil
		}
		if !isRetryable(err) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Client) post(ctx context.Context, endpoint string, params url.Values, body []byte, contentType string) ([]byte, error) {
	target := endpoint
	if len(params) > 0 {
		target = endpoint + "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-ti-app-id", c.appID)
	req.Header.Set("x-ti-secret-code", c.secretCode)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}
	return data, nil
}

// isRetryable reports whether the call should be retried: 5xx statuses and
// transport errors qualify, API envelope errors and 4xx statuses do not.
func isRetryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// Anything else from the transport (connect failures, timeouts).
	return true
}

func parseResponse(op string, result json.RawMessage) (*ParseResult, error) {
	var pr ParseResult
	if err := json.Unmarshal(result, &pr); err != nil {
		return nil, WrapTextinError(op, err, "decoding parse result")
	}
	for _, el := range pr.Detail {
		if el.IsChart() {
			pr.HasChart = true
			break
		}
	}
	return &pr, nil
}

func extractionResponse(op string, result json.RawMessage) (*ExtractionResult, error) {
	var raw struct {
		Details         map[string]json.RawMessage `json:"details"`
		Category        json.RawMessage            `json:"category"`
		DetailStructure json.RawMessage            `json:"details_list"`
		PageCount       int                        `json:"page_count"`
		DurationMS      int                        `json:"duration"`
		RequestID       string                     `json:"request_id"`
	}
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, WrapTextinError(op, err, "decoding extraction result")
	}

	fields := make(map[string]string, len(raw.Details))
	for key, entry := range raw.Details {
		if v, ok := firstValue(entry); ok {
			fields[key] = v
		}
	}

	return &ExtractionResult{
		Fields:          fields,
		Category:        raw.Category,
		DetailStructure: raw.DetailStructure,
		PageCount:       raw.PageCount,
		DurationMS:      raw.DurationMS,
		RequestID:       raw.RequestID,
	}, nil
}

// firstValue pulls the "value" out of a details entry, which is either a
// list of objects or a single object.
func firstValue(entry json.RawMessage) (string, bool) {
	var list []struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(entry, &list); err == nil {
		if len(list) == 0 {
			return "", false
		}
		return rawToString(list[0].Value), true
	}

	var obj struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(entry, &obj); err == nil {
		return rawToString(obj.Value), true
	}
	return "", false
}

func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
