package enhance

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/R1cK-ChaN/doc-parser/internal/logger"
	"github.com/R1cK-ChaN/doc-parser/internal/watermark"
	"github.com/R1cK-ChaN/doc-parser/pkg/models"
)

const (
	// chartSummaryPrefix marks chart replacements in the output markdown.
	chartSummaryPrefix = "[Chart Summary] "

	// pageTextLimit is a hard character cutoff for the context text sent
	// alongside each region image. Truncated, not summarized.
	pageTextLimit = 1000
)

// Result is the outcome of one enhancement pass over a document.
type Result struct {
	Markdown   string `json:"markdown"`
	ChartCount int    `json:"chart_count"`
	TableCount int    `json:"table_count"`
}

// Enhancer replaces hallucinated chart/table text in parsed markdown with
// VLM-generated content. Elements are processed sequentially, one VLM call
// at a time, which keeps substitution order deterministic and bounds
// outstanding calls to one per document.
type Enhancer struct {
	renderer   PageRenderer
	summarizer Summarizer
	scale      float64
	log        zerolog.Logger
}

// NewEnhancer creates an enhancer rendering at DefaultScale.
func NewEnhancer(renderer PageRenderer, summarizer Summarizer) *Enhancer {
	return &Enhancer{
		renderer:   renderer,
		summarizer: summarizer,
		scale:      DefaultScale,
		log:        logger.WithComponent("enhance"),
	}
}

// Enhance finds every chart and table element in detail, replaces each one's
// hallucinated text in markdown with VLM output grounded on the rendered
// page region, and applies the watermark filter once over the final
// document.
//
// With no chart or table elements the input markdown is returned unchanged
// and no watermark stripping happens — callers that want clean markdown for
// unenhanced documents strip it themselves. One failing element never aborts
// the batch: it is logged, left un-replaced, and excluded from the counts.
//
// Re-running Enhance on its own output is a no-op by construction: the
// original hallucinated fragments are gone, so nothing matches.
func (e *Enhancer) Enhance(ctx context.Context, path, markdown string, detail []models.Element, pages []models.Page) Result {
	var charts, tables []int
	for i, el := range detail {
		switch {
		case el.IsChart():
			charts = append(charts, i)
		case el.IsTable():
			tables = append(tables, i)
		}
	}
	if len(charts) == 0 && len(tables) == 0 {
		return Result{Markdown: markdown}
	}

	sizes := pageSizeIndex(pages)

	res := Result{Markdown: markdown}
	// Charts first, then tables: deterministic output ordering.
	for _, i := range charts {
		if e.enhanceElement(ctx, path, detail, i, sizes, &res, true) {
			res.ChartCount++
		}
	}
	for _, i := range tables {
		if e.enhanceElement(ctx, path, detail, i, sizes, &res, false) {
			res.TableCount++
		}
	}

	res.Markdown = watermark.Strip(res.Markdown)
	return res
}

// enhanceElement processes one chart or table element and reports success.
func (e *Enhancer) enhanceElement(ctx context.Context, path string, detail []models.Element, idx int, sizes map[int]Size, res *Result, chart bool) bool {
	el := detail[idx]
	pageID := el.Page()

	if el.Text == "" || isNullPosition(el.Position) {
		e.log.Warn().
			Int("page", pageID).
			Str("type", el.Type).
			Msg("Element missing text or position, skipping")
		return false
	}

	var hint *Size
	if s, ok := sizes[pageID]; ok {
		hint = &s
	}

	pageText := gatherPageText(detail, pageID, idx)

	image, err := ExtractRegion(e.renderer, path, pageID-1, el.Position, hint, e.scale)
	if err != nil {
		e.log.Warn().Err(err).Int("page", pageID).Msg("Failed to extract region image, skipping element")
		return false
	}

	var replacement string
	if chart {
		summary, err := e.summarizer.SummarizeChart(ctx, image, pageText)
		if err != nil {
			e.log.Warn().Err(err).Int("page", pageID).Msg("Chart summarization failed, skipping element")
			return false
		}
		replacement = chartSummaryPrefix + summary
	} else {
		table, err := e.summarizer.SummarizeTable(ctx, image, pageText)
		if err != nil {
			e.log.Warn().Err(err).Int("page", pageID).Msg("Table transcription failed, skipping element")
			return false
		}
		replacement = table
	}

	// First occurrence only: if the identical fragment appears twice, the
	// second stays untouched, bounding the blast radius of a collision.
	res.Markdown = strings.Replace(res.Markdown, el.Text, replacement, 1)

	e.log.Info().
		Int("page", pageID).
		Bool("chart", chart).
		Str("summary", truncate(replacement, 80)).
		Msg("Enhanced element")
	return true
}

// pageSizeIndex keys TextIn page sizes by 1-based page identifier. Pages
// missing either dimension or the identifier are skipped.
func pageSizeIndex(pages []models.Page) map[int]Size {
	idx := make(map[int]Size, len(pages))
	for _, p := range pages {
		if p.PageID == 0 || p.Width <= 0 || p.Height <= 0 {
			continue
		}
		idx[p.PageID] = Size{Width: p.Width, Height: p.Height}
	}
	return idx
}

// gatherPageText concatenates text from the other, non-image elements on the
// same page, in original order, truncated to pageTextLimit characters.
func gatherPageText(detail []models.Element, pageID, skip int) string {
	var parts []string
	for i, el := range detail {
		if i == skip || el.Type == "image" || el.Text == "" {
			continue
		}
		if el.Page() != pageID {
			continue
		}
		parts = append(parts, el.Text)
	}
	text := strings.Join(parts, "\n")
	if len(text) > pageTextLimit {
		text = strings.ToValidUTF8(text[:pageTextLimit], "")
	}
	return text
}

func isNullPosition(raw []byte) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
