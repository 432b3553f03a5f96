package enhance_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/R1cK-ChaN/doc-parser/internal/enhance"
	"github.com/R1cK-ChaN/doc-parser/pkg/models"
)

// fakeRenderer serves a single-page document with a fixed native rectangle
// and records every clip rectangle it is asked to render.
type fakeRenderer struct {
	rect      enhance.Rect
	renderErr error
	openErr   error

	clips  []enhance.Rect
	opens  int
	closes int
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{rect: enhance.Rect{X0: 0, Y0: 0, X1: 612, Y1: 792}}
}

func (f *fakeRenderer) Open(path string) (enhance.RenderedDocument, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opens++
	return &fakeDocument{r: f}, nil
}

type fakeDocument struct {
	r *fakeRenderer
}

func (d *fakeDocument) PageRect(index int) (enhance.Rect, error) {
	return d.r.rect, nil
}

func (d *fakeDocument) RenderRegion(index int, clip enhance.Rect, scale float64) ([]byte, error) {
	if d.r.renderErr != nil {
		return nil, d.r.renderErr
	}
	d.r.clips = append(d.r.clips, clip)
	return []byte("png-bytes"), nil
}

func (d *fakeDocument) Close() error {
	d.r.closes++
	return nil
}

// fakeSummarizer returns queued chart summaries and a fixed table, recording
// the page text context it receives.
type fakeSummarizer struct {
	chartOut  []string
	chartErrs []error
	chartCall int

	tableOut string
	tableErr error

	pageTexts []string
}

func (f *fakeSummarizer) SummarizeChart(ctx context.Context, image []byte, pageText string) (string, error) {
	f.pageTexts = append(f.pageTexts, pageText)
	i := f.chartCall
	f.chartCall++
	if i < len(f.chartErrs) && f.chartErrs[i] != nil {
		return "", f.chartErrs[i]
	}
	if i < len(f.chartOut) {
		return f.chartOut[i], nil
	}
	return "a chart", nil
}

func (f *fakeSummarizer) SummarizeTable(ctx context.Context, image []byte, pageText string) (string, error) {
	f.pageTexts = append(f.pageTexts, pageText)
	if f.tableErr != nil {
		return "", f.tableErr
	}
	return f.tableOut, nil
}

func chartElement(html string, page int, pos string) models.Element {
	return models.Element{
		Type:     "image",
		SubType:  "chart",
		Text:     html,
		PageID:   page,
		Position: json.RawMessage(pos),
	}
}

func TestEnhanceSingleChart(t *testing.T) {
	html := `<table border="1"><tr><td>Fake Q1</td><td>100</td></tr></table>`
	markdown := "# Report\n\nSome text\n\n" + html + "\n\nConclusion"

	detail := []models.Element{
		{Type: "text", Text: "Report", PageID: 1},
		chartElement(html, 1, `{"x":100,"y":100,"width":300,"height":200}`),
	}

	renderer := newFakeRenderer()
	vlm := &fakeSummarizer{chartOut: []string{"S"}}
	e := enhance.NewEnhancer(renderer, vlm)

	res := e.Enhance(context.Background(), "test.pdf", markdown, detail, nil)

	if res.ChartCount != 1 || res.TableCount != 0 {
		t.Fatalf("counts = (%d,%d), want (1,0)", res.ChartCount, res.TableCount)
	}
	if strings.Contains(res.Markdown, html) {
		t.Errorf("hallucinated fragment survived: %q", res.Markdown)
	}
	if !strings.Contains(res.Markdown, "[Chart Summary] S") {
		t.Errorf("summary line missing: %q", res.Markdown)
	}
	for _, want := range []string{"# Report", "Some text", "Conclusion"} {
		if !strings.Contains(res.Markdown, want) {
			t.Errorf("surrounding text %q damaged: %q", want, res.Markdown)
		}
	}
	if renderer.opens != renderer.closes {
		t.Errorf("document handle leaked: %d opens, %d closes", renderer.opens, renderer.closes)
	}
}

func TestEnhanceNoElementsPassthrough(t *testing.T) {
	// No chart/table elements: markdown is returned unchanged, without the
	// watermark pass — even when it contains watermark noise.
	markdown := "# Report\nmacroamy整理\nJust text."
	detail := []models.Element{{Type: "text", Text: "Report", PageID: 1}}

	e := enhance.NewEnhancer(newFakeRenderer(), &fakeSummarizer{})
	res := e.Enhance(context.Background(), "test.pdf", markdown, detail, nil)

	if res.Markdown != markdown {
		t.Errorf("markdown changed: %q", res.Markdown)
	}
	if res.ChartCount != 0 || res.TableCount != 0 {
		t.Errorf("counts = (%d,%d), want (0,0)", res.ChartCount, res.TableCount)
	}
}

func TestEnhanceSecondChartFailureKeepsFirst(t *testing.T) {
	chart1 := `<table><tr><td>Chart1</td></tr></table>`
	chart2 := `<table><tr><td>Chart2</td></tr></table>`
	markdown := "A\n" + chart1 + "\nB\n" + chart2 + "\nC"

	detail := []models.Element{
		chartElement(chart1, 1, `{"x":10,"y":10,"width":50,"height":50}`),
		chartElement(chart2, 1, `{"x":10,"y":100,"width":50,"height":50}`),
	}

	vlm := &fakeSummarizer{
		chartOut:  []string{"first summary", ""},
		chartErrs: []error{nil, errors.New("vlm timeout")},
	}
	e := enhance.NewEnhancer(newFakeRenderer(), vlm)
	res := e.Enhance(context.Background(), "test.pdf", markdown, detail, nil)

	if res.ChartCount != 1 {
		t.Errorf("chart count = %d, want 1", res.ChartCount)
	}
	if !strings.Contains(res.Markdown, "[Chart Summary] first summary") {
		t.Errorf("first substitution missing: %q", res.Markdown)
	}
	if !strings.Contains(res.Markdown, chart2) {
		t.Errorf("failed element's fragment must remain untouched: %q", res.Markdown)
	}
}

func TestEnhanceRenderFailureSkipsElement(t *testing.T) {
	html := `<table><tr><td>x</td></tr></table>`
	detail := []models.Element{chartElement(html, 1, `[0,0,10,10]`)}

	renderer := newFakeRenderer()
	renderer.renderErr = errors.New("render blew up")
	e := enhance.NewEnhancer(renderer, &fakeSummarizer{})

	res := e.Enhance(context.Background(), "test.pdf", "T\n"+html+"\nB", detail, nil)
	if res.ChartCount != 0 {
		t.Errorf("chart count = %d, want 0", res.ChartCount)
	}
	if !strings.Contains(res.Markdown, html) {
		t.Errorf("fragment must remain when extraction fails: %q", res.Markdown)
	}
}

func TestEnhanceTable(t *testing.T) {
	html := `<table border="1"><tr><th>Q1</th><th>Q2</th></tr><tr><td>100</td><td>200</td></tr></table>`
	markdown := "# Data\n\n" + html + "\n\nEnd"

	detail := []models.Element{
		{Type: "table", Text: html, PageID: 1, Position: json.RawMessage(`{"x":100,"y":100,"width":300,"height":200}`)},
	}

	vlm := &fakeSummarizer{tableOut: "| Q1 | Q2 |\n| --- | --- |\n| 100 | 200 |"}
	e := enhance.NewEnhancer(newFakeRenderer(), vlm)
	res := e.Enhance(context.Background(), "test.pdf", markdown, detail, nil)

	if res.ChartCount != 0 || res.TableCount != 1 {
		t.Fatalf("counts = (%d,%d), want (0,1)", res.ChartCount, res.TableCount)
	}
	if strings.Contains(res.Markdown, html) {
		t.Errorf("table HTML survived: %q", res.Markdown)
	}
	// Tables are substituted verbatim, with no prefix.
	if !strings.Contains(res.Markdown, "| Q1 | Q2 |") || strings.Contains(res.Markdown, "[Chart Summary]") {
		t.Errorf("table substitution wrong: %q", res.Markdown)
	}
}

func TestEnhanceChartsBeforeTables(t *testing.T) {
	chartHTML := `<table><tr><td>ChartData</td></tr></table>`
	tableHTML := `<table><tr><th>Col A</th></tr><tr><td>Val</td></tr></table>`
	markdown := "# R\n\n" + tableHTML + "\n\nmid\n\n" + chartHTML + "\n\nEnd"

	// Table listed before chart in detail; charts are still processed first.
	detail := []models.Element{
		{Type: "table", Text: tableHTML, PageID: 1, Position: json.RawMessage(`[0,300,100,400]`)},
		chartElement(chartHTML, 1, `[0,0,100,100]`),
	}

	vlm := &fakeSummarizer{chartOut: []string{"bar chart"}, tableOut: "| Col A |\n| --- |\n| Val |"}
	e := enhance.NewEnhancer(newFakeRenderer(), vlm)
	res := e.Enhance(context.Background(), "test.pdf", markdown, detail, nil)

	if res.ChartCount != 1 || res.TableCount != 1 {
		t.Fatalf("counts = (%d,%d), want (1,1)", res.ChartCount, res.TableCount)
	}
	if !strings.Contains(res.Markdown, "[Chart Summary] bar chart") || !strings.Contains(res.Markdown, "| Col A |") {
		t.Errorf("both substitutions expected: %q", res.Markdown)
	}
}

func TestEnhanceFirstOccurrenceOnly(t *testing.T) {
	html := `<table><tr><td>dup</td></tr></table>`
	markdown := "Before\n" + html + "\nMiddle\n" + html + "\nAfter"
	detail := []models.Element{chartElement(html, 1, `[0,0,10,10]`)}

	vlm := &fakeSummarizer{chartOut: []string{"only once"}}
	e := enhance.NewEnhancer(newFakeRenderer(), vlm)
	res := e.Enhance(context.Background(), "test.pdf", markdown, detail, nil)

	if strings.Count(res.Markdown, "[Chart Summary]") != 1 {
		t.Errorf("expected exactly one substitution: %q", res.Markdown)
	}
	if strings.Count(res.Markdown, html) != 1 {
		t.Errorf("second occurrence must remain: %q", res.Markdown)
	}
}

func TestEnhanceSkipsMissingTextOrPosition(t *testing.T) {
	ok := `<table><tr><td>good</td></tr></table>`
	detail := []models.Element{
		{Type: "image", SubType: "chart", Text: "", PageID: 1, Position: json.RawMessage(`[0,0,1,1]`)},
		{Type: "image", SubType: "chart", Text: "<table>no pos</table>", PageID: 1},
		{Type: "image", SubType: "chart", Text: "<table>null pos</table>", PageID: 1, Position: json.RawMessage(`null`)},
		chartElement(ok, 1, `[0,0,10,10]`),
	}
	markdown := "X\n" + ok + "\nY"

	vlm := &fakeSummarizer{chartOut: []string{"kept"}}
	e := enhance.NewEnhancer(newFakeRenderer(), vlm)
	res := e.Enhance(context.Background(), "test.pdf", markdown, detail, nil)

	if res.ChartCount != 1 {
		t.Errorf("chart count = %d, want 1 (skips not counted)", res.ChartCount)
	}
}

func TestEnhancePageSizeHintScalesClip(t *testing.T) {
	html := `<table><tr><td>Q1</td></tr></table>`
	detail := []models.Element{
		chartElement(html, 1, `[200,200,800,200,800,600,200,600]`),
	}
	pages := []models.Page{{PageID: 1, Width: 1224, Height: 1584}}

	renderer := newFakeRenderer() // native 612x792, exactly half the hint
	vlm := &fakeSummarizer{chartOut: []string{"scaled"}}
	e := enhance.NewEnhancer(renderer, vlm)
	e.Enhance(context.Background(), "test.pdf", "A\n"+html+"\nB", detail, pages)

	if len(renderer.clips) != 1 {
		t.Fatalf("expected 1 render, got %d", len(renderer.clips))
	}
	want := enhance.Rect{X0: 100, Y0: 100, X1: 400, Y1: 300}
	if !rectEq(renderer.clips[0], want) {
		t.Errorf("clip = %+v, want %+v", renderer.clips[0], want)
	}
}

func TestEnhancePassesPageContext(t *testing.T) {
	html := `<table><tr><td>c</td></tr></table>`
	detail := []models.Element{
		{Type: "text", Text: "Revenue discussion", PageID: 1},
		{Type: "text", Text: "Other page", PageID: 2},
		chartElement(html, 1, `[0,0,10,10]`),
	}

	vlm := &fakeSummarizer{chartOut: []string{"s"}}
	e := enhance.NewEnhancer(newFakeRenderer(), vlm)
	e.Enhance(context.Background(), "test.pdf", "A\n"+html+"\nB", detail, nil)

	if len(vlm.pageTexts) != 1 {
		t.Fatalf("expected 1 VLM call, got %d", len(vlm.pageTexts))
	}
	if !strings.Contains(vlm.pageTexts[0], "Revenue discussion") {
		t.Errorf("same-page context missing: %q", vlm.pageTexts[0])
	}
	if strings.Contains(vlm.pageTexts[0], "Other page") {
		t.Errorf("other-page text leaked into context: %q", vlm.pageTexts[0])
	}
	if strings.Contains(vlm.pageTexts[0], "<table>") {
		t.Errorf("image element text leaked into context: %q", vlm.pageTexts[0])
	}
}

func TestEnhanceStripsWatermarksOnce(t *testing.T) {
	wm := "<!-- macroamy watermark -->"
	html := `<table><tr><td>Fake</td></tr></table>`
	markdown := "# Report\n" + wm + "\nIntro\n" + wm + "\n\n" + html + "\n\n" + wm + "\nEnd"

	detail := []models.Element{
		{Type: "text", Text: "Intro", PageID: 1},
		chartElement(html, 1, `{"x":100,"y":100,"width":300,"height":200}`),
	}

	vlm := &fakeSummarizer{chartOut: []string{"A chart."}}
	e := enhance.NewEnhancer(newFakeRenderer(), vlm)
	res := e.Enhance(context.Background(), "test.pdf", markdown, detail, nil)

	if strings.Contains(res.Markdown, wm) {
		t.Errorf("repeated watermark comment survived: %q", res.Markdown)
	}
	if !strings.Contains(res.Markdown, "[Chart Summary] A chart.") {
		t.Errorf("substitution missing: %q", res.Markdown)
	}
}

func TestGatherPageTextTruncated(t *testing.T) {
	long := strings.Repeat("A", 1200)
	html := `<table><tr><td>c</td></tr></table>`
	detail := []models.Element{
		{Type: "text", Text: long, PageID: 1},
		chartElement(html, 1, `[0,0,10,10]`),
	}

	vlm := &fakeSummarizer{chartOut: []string{"s"}}
	e := enhance.NewEnhancer(newFakeRenderer(), vlm)
	e.Enhance(context.Background(), "test.pdf", "A\n"+html+"\nB", detail, nil)

	if len(vlm.pageTexts) != 1 || len(vlm.pageTexts[0]) > 1000 {
		t.Errorf("context must be hard-truncated to 1000 chars, got %d", len(vlm.pageTexts[0]))
	}
}

func TestElementPageIDPrecedence(t *testing.T) {
	el := models.Element{PageID: 3, PageNumber: 7}
	if got := el.Page(); got != 3 {
		t.Errorf("page_id must win, got %d", got)
	}
	el = models.Element{PageNumber: 7}
	if got := el.Page(); got != 7 {
		t.Errorf("page_number fallback, got %d", got)
	}
	el = models.Element{}
	if got := el.Page(); got != 1 {
		t.Errorf("default page is 1, got %d", got)
	}
}
