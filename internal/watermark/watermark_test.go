package watermark_test

import (
	"strings"
	"testing"

	"github.com/R1cK-ChaN/doc-parser/internal/watermark"
)

func TestStripMarkerLines(t *testing.T) {
	md := "# Report\n本文由macroamy提供\nReal content line\n扫一扫关注我们\nMore content"
	got := watermark.Strip(md)

	if strings.Contains(got, "macroamy") {
		t.Errorf("marker line survived: %q", got)
	}
	if strings.Contains(got, "扫一扫") {
		t.Errorf("promo line survived: %q", got)
	}
	if !strings.Contains(got, "Real content line") || !strings.Contains(got, "More content") {
		t.Errorf("legitimate content was removed: %q", got)
	}
}

func TestStripGarbledMarkers(t *testing.T) {
	for _, marker := range []string{"nacroany", "mroamy", "macrcy"} {
		md := "keep this\nnoise " + marker + " noise\nand this"
		got := watermark.Strip(md)
		if strings.Contains(got, marker) {
			t.Errorf("garbled marker %q survived", marker)
		}
		if !strings.Contains(got, "keep this") || !strings.Contains(got, "and this") {
			t.Errorf("content lost while removing %q: %q", marker, got)
		}
	}
}

func TestInlineFragmentKeepsSentence(t *testing.T) {
	md := "数据来源：Wind，私营部roamy整理\nNext line"
	got := watermark.Strip(md)

	if !strings.Contains(got, "数据来源：Wind，私营部") {
		t.Errorf("surrounding sentence was damaged: %q", got)
	}
	if strings.Contains(got, "roamy整理") {
		t.Errorf("inline fragment survived: %q", got)
	}
}

func TestAnchoredLinePatterns(t *testing.T) {
	cases := []string{
		"专业的宏观研究平台",
		"专业的宏",
		"<!-- **联系我们** -->",
		"<!-- 联系我们 -->",
		"<!-- contact @Degg for more -->",
		"<!-- 微博 -->",
	}
	for _, line := range cases {
		md := "before\n" + line + "\nafter"
		got := watermark.Strip(md)
		if strings.Contains(got, line) {
			t.Errorf("pattern line %q survived", line)
		}
		if !strings.Contains(got, "before") || !strings.Contains(got, "after") {
			t.Errorf("content lost around %q: %q", line, got)
		}
	}
}

func TestPatternRequiresFullLineMatch(t *testing.T) {
	// A sentence merely containing the tagline prefix is not dropped.
	md := "该机构自称专业的宏观研究团队如何如何"
	got := watermark.Strip(md)
	if !strings.Contains(got, "该机构自称") {
		t.Errorf("partial match dropped a legitimate line: %q", got)
	}
}

func TestEmptyHTMLCommentRemoved(t *testing.T) {
	got := watermark.Strip("a<!--  -->b\nc<!-- -->d")
	if strings.Contains(got, "<!--") {
		t.Errorf("empty comment survived: %q", got)
	}
	if !strings.Contains(got, "ab") || !strings.Contains(got, "cd") {
		t.Errorf("line content damaged: %q", got)
	}
}

func TestGlyphNoiseLineDropped(t *testing.T) {
	got := watermark.Strip("keep\nxx ()■() xx\nkeep too")
	if strings.Contains(got, "■") {
		t.Errorf("glyph noise line survived: %q", got)
	}
}

func TestSocialTableBothMarkersRemoved(t *testing.T) {
	tbl := "<table border=\"1\">\n<tr><td>粉丝 10万</td></tr>\n<tr><td>转评赞 5000</td></tr>\n</table>"
	md := "Intro\n" + tbl + "\nOutro"
	got := watermark.Strip(md)

	if strings.Contains(got, "<table") {
		t.Errorf("social stats table survived: %q", got)
	}
	if !strings.Contains(got, "Intro") || !strings.Contains(got, "Outro") {
		t.Errorf("surrounding text lost: %q", got)
	}
}

func TestFinancialTableSingleMarkerPreserved(t *testing.T) {
	tbl := "<table border=\"1\"><tr><td>粉丝经济板块</td><td>营收</td></tr></table>"
	md := "A\n" + tbl + "\nB"
	got := watermark.Strip(md)

	if !strings.Contains(got, tbl) {
		t.Errorf("table with one marker must be preserved byte for byte: %q", got)
	}
}

func TestRepeatedCommentBoundary(t *testing.T) {
	comment := "<!-- page stamp -->"

	twice := "A\n" + comment + "\nB\n" + comment + "\nC"
	if got := watermark.Strip(twice); strings.Count(got, comment) != 2 {
		t.Errorf("comment occurring twice must survive, got %q", got)
	}

	thrice := "A\n" + comment + "\nB\n" + comment + "\nC\n" + comment + "\nD"
	got := watermark.Strip(thrice)
	if strings.Contains(got, comment) {
		t.Errorf("comment occurring 3 times must be removed, got %q", got)
	}
	for _, want := range []string{"A", "B", "C", "D"} {
		if !strings.Contains(got, want) {
			t.Errorf("content %q lost: %q", want, got)
		}
	}
}

func TestRepeatedCommentMixedWithUnique(t *testing.T) {
	stamp := "<!-- watermark -->"
	note := "<!-- keep this note -->"
	md := "A\n" + stamp + "\nB\n" + note + "\nC\n" + stamp + "\nD\n" + stamp + "\nE"
	got := watermark.Strip(md)

	if strings.Contains(got, stamp) {
		t.Errorf("repeated stamp survived: %q", got)
	}
	if !strings.Contains(got, note) {
		t.Errorf("unique note was removed: %q", got)
	}
}

func TestRepeatedCommentRemovalCompactsNewlines(t *testing.T) {
	stamp := "<!-- s -->"
	md := "A\n\n" + stamp + "\n\nB\n" + stamp + "\nC\n" + stamp + "\nD"
	got := watermark.Strip(md)

	if strings.Contains(got, "\n\n\n") {
		t.Errorf("removal left a blank-line cluster: %q", got)
	}
	if !strings.HasSuffix(got, "\n") {
		t.Errorf("non-empty output must end with one trailing newline: %q", got)
	}
}

func TestAdjacentRepeatedCommentsDeterministic(t *testing.T) {
	a := "<!-- a -->"
	b := "<!-- b -->"
	md := "Head\n" + a + "\n" + a + "\n" + b + "\nMid\n" + a + "\n" + b + "\nTail\n" + b

	want := "Head\nMid\nTail\n"
	for i := 0; i < 20; i++ {
		if got := watermark.Strip(md); got != want {
			t.Fatalf("run %d: got %q, want %q", i, got, want)
		}
	}
}

func TestIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"plain text\nno watermarks at all",
		"# Report\nmacroamy整理\n<!-- s -->\nx\n<!-- s -->\ny\n<!-- s -->\nz",
		"<table >粉丝转评赞</table>\n付费内容\nreal line",
	}
	for _, in := range inputs {
		once := watermark.Strip(in)
		twice := watermark.Strip(once)
		if once != twice {
			t.Errorf("Strip not idempotent for %q:\n once=%q\ntwice=%q", in, once, twice)
		}
	}
}

func TestNoCommentsPassthrough(t *testing.T) {
	md := "just text\nwith lines"
	if got := watermark.Strip(md); got != md {
		t.Errorf("clean input must pass through unchanged, got %q", got)
	}
}
