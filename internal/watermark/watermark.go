// Package watermark removes publisher watermark noise from parsed Markdown.
//
// Financial research PDFs redistributed by the "macroamy" publisher carry
// promotional stamps that survive OCR in several forms: inline attribution
// fragments glued to real sentences, whole promotional lines (including
// OCR-garbled misspellings of the brand name), decorative social media
// follower tables, and HTML comments repeated on every page.
//
// Strip applies four layers in a fixed order:
//  1. Inline fragment elision — before any line is dropped, embedded
//     "signature+整理" fragments are excised so the surrounding sentence
//     survives.
//  2. Line-level removal — marker substrings and anchored line patterns.
//  3. Social media stats table removal — <table> blocks containing both
//     follower and engagement markers.
//  4. Repeated HTML comment removal — comments appearing 3+ times.
//
// All layers are pure text transforms. Strip is deterministic and idempotent.
package watermark

import (
	"regexp"
	"strings"
)

// markers drop an entire line on plain substring match. The misspellings
// ("nacroany", "mroamy", ...) are common OCR confusions of the brand name.
var markers = []string{
	"macroamy",
	"nacroany",
	"mroamy",
	"macrcy",
	"roamy",
	"付费",
	"扫一扫",
	"坦途宏观",
	"查看微博主页",
	"微信收藏",
	"GMF Research（坦途宏观）",
}

// linePatterns drop a line when its trimmed form matches in full.
var linePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^专业的宏(?:观.*)?$`),
	regexp.MustCompile(`^<!--\s*\*{0,2}联系我们\*{0,2}\s*-->$`),
	regexp.MustCompile(`^<!--.*?@Degg.*?-->$`),
	regexp.MustCompile(`^<!--\s*微博\s*-->$`),
}

// inlineFragments are excised in place, keeping the rest of the line.
var inlineFragments = []string{
	"macroamy整理",
	"nacroany整理",
	"roamy整理",
}

// glyphNoise is a decorative sequence that only ever appears in stamp lines.
const glyphNoise = "()■()"

var (
	emptyCommentRe = regexp.MustCompile(`<!--\s*-->`)
	tableRe        = regexp.MustCompile(`(?s)<table[\s>].*?</table>`)
	commentRe      = regexp.MustCompile(`(?s)<!--.*?-->`)
)

// Strip returns markdown with watermark artifacts removed.
func Strip(markdown string) string {
	text := stripInlineFragments(markdown)
	text = stripMarkedLines(text)
	text = stripSocialTables(text)
	return stripRepeatedComments(text)
}

// stripInlineFragments runs before line removal so partial matches like
// "私营部roamy整理" reduce to "私营部" instead of losing the whole line.
func stripInlineFragments(text string) string {
	for _, frag := range inlineFragments {
		text = strings.ReplaceAll(text, frag, "")
	}
	return text
}

func stripMarkedLines(text string) string {
	text = emptyCommentRe.ReplaceAllString(text, "")

	lines := strings.Split(text, "\n")
	kept := lines[:0]
line:
	for _, ln := range lines {
		for _, m := range markers {
			if strings.Contains(ln, m) {
				continue line
			}
		}
		trimmed := strings.TrimSpace(ln)
		for _, p := range linePatterns {
			if p.MatchString(trimmed) {
				continue line
			}
		}
		if strings.Contains(ln, glyphNoise) {
			continue
		}
		kept = append(kept, ln)
	}
	return strings.Join(kept, "\n")
}

// stripSocialTables deletes <table> blocks that contain both the follower
// marker and the engagement marker. Tables with only one of the two may be
// legitimate financial content and are preserved byte for byte.
func stripSocialTables(text string) string {
	return tableRe.ReplaceAllStringFunc(text, func(tbl string) string {
		if strings.Contains(tbl, "粉丝") && strings.Contains(tbl, "转评赞") {
			return ""
		}
		return tbl
	})
}

// stripRepeatedComments removes HTML comments that occur 3 or more times.
// One-off and twice-occurring comments are kept: they may be meaningful
// annotations rather than per-page stamps.
func stripRepeatedComments(text string) string {
	comments := commentRe.FindAllString(text, -1)
	if len(comments) == 0 {
		return text
	}

	counts := make(map[string]int, len(comments))
	for _, c := range comments {
		counts[c]++
	}

	// Deletion order affects how adjacent newlines compact, so repeated
	// comments are removed in first-occurrence order, not map order.
	removed := make(map[string]bool, len(counts))
	for _, comment := range comments {
		if removed[comment] || counts[comment] < 3 {
			continue
		}
		removed[comment] = true
		// Swallow adjacent newlines so removal doesn't leave blank-line
		// clusters behind.
		re := regexp.MustCompile(`\n*` + regexp.QuoteMeta(comment) + `\n*`)
		text = re.ReplaceAllString(text, "\n")
	}

	if strings.TrimSpace(text) == "" {
		return text
	}
	return strings.Trim(text, "\n") + "\n"
}
