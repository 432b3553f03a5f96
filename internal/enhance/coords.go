// Package enhance replaces hallucinated chart and table regions in parsed
// Markdown with VLM-generated content grounded on the rendered page image.
//
// TextIn frequently invents cell values when it force-fits a chart into an
// HTML table. This package crops the original region out of the source PDF,
// shows it to a vision-language model together with surrounding page text,
// and substitutes the model's answer for the hallucinated fragment.
package enhance

import (
	"encoding/json"

	"github.com/R1cK-ChaN/doc-parser/internal/logger"
)

// Rect is an axis-aligned rectangle in page coordinate space.
// X0 <= X1 and Y0 <= Y1 always hold for rectangles produced by ToRect.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// Width returns the horizontal extent of the rectangle.
func (r Rect) Width() float64 { return r.X1 - r.X0 }

// Height returns the vertical extent of the rectangle.
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

// Size is a page size hint: the dimensions the OCR provider used when it
// computed bounding boxes, which may differ from the render target's native
// page size (DPI, rotation, unit mismatches).
type Size struct {
	Width, Height float64
}

// position mirrors the keyed wire shapes of a TextIn bounding region.
type position struct {
	Quad   [][]float64 `json:"quad"`
	Points [][]float64 `json:"points"`
	X      *float64    `json:"x"`
	Y      *float64    `json:"y"`
	Width  float64     `json:"width"`
	Height float64     `json:"height"`
}

// ToRect normalizes any supported bounding-region wire format into a single
// rectangle, then rescales it into the render coordinate space when a page
// size hint is supplied.
//
// Supported shapes: a flat list of 8 numbers (four corner points, envelope
// taken), a flat list of 4 numbers (x0,y0,x1,y1), an object with "quad" or
// "points" (lists of [x,y] pairs), and an object with "x"/"y" and optional
// "width"/"height". Anything else falls back to the full page rectangle —
// a deliberate safety net, not an error.
//
// The result is not clamped to the page: out-of-page rectangles are the
// caller's concern.
func ToRect(raw json.RawMessage, page Rect, hint *Size) Rect {
	return scale(dispatch(raw, page), page, hint)
}

func dispatch(raw json.RawMessage, page Rect) Rect {
	log := logger.WithComponent("enhance")

	if len(raw) == 0 {
		log.Warn().Msg("Empty position, using full page")
		return page
	}

	var flat []float64
	if err := json.Unmarshal(raw, &flat); err == nil {
		switch len(flat) {
		case 8:
			return envelope([][]float64{
				{flat[0], flat[1]}, {flat[2], flat[3]},
				{flat[4], flat[5]}, {flat[6], flat[7]},
			})
		case 4:
			return Rect{
				X0: min(flat[0], flat[2]), Y0: min(flat[1], flat[3]),
				X1: max(flat[0], flat[2]), Y1: max(flat[1], flat[3]),
			}
		default:
			log.Warn().Int("len", len(flat)).Msg("Unrecognized flat position length, using full page")
			return page
		}
	}

	var pos position
	if err := json.Unmarshal(raw, &pos); err != nil {
		log.Warn().RawJSON("position", raw).Msg("Unrecognized position format, using full page")
		return page
	}

	switch {
	case validPairs(pos.Quad):
		return envelope(pos.Quad)
	case validPairs(pos.Points):
		return envelope(pos.Points)
	case pos.X != nil && pos.Y != nil:
		return Rect{
			X0: *pos.X,
			Y0: *pos.Y,
			X1: *pos.X + pos.Width,
			Y1: *pos.Y + pos.Height,
		}
	default:
		log.Warn().RawJSON("position", raw).Msg("Unrecognized position format, using full page")
		return page
	}
}

func validPairs(pts [][]float64) bool {
	if len(pts) == 0 {
		return false
	}
	for _, p := range pts {
		if len(p) < 2 {
			return false
		}
	}
	return true
}

// envelope returns the min/max bounding box of a point list. The quad is not
// necessarily axis-aligned, so each coordinate is considered independently.
func envelope(pts [][]float64) Rect {
	r := Rect{X0: pts[0][0], Y0: pts[0][1], X1: pts[0][0], Y1: pts[0][1]}
	for _, p := range pts[1:] {
		r.X0 = min(r.X0, p[0])
		r.Y0 = min(r.Y0, p[1])
		r.X1 = max(r.X1, p[0])
		r.Y1 = max(r.Y1, p[1])
	}
	return r
}

// scale converts from the OCR provider's coordinate space into the render
// space. Scaling happens after shape dispatch so every candidate point has
// already contributed to the envelope. No hint means pass-through.
func scale(r Rect, page Rect, hint *Size) Rect {
	if hint == nil || hint.Width <= 0 || hint.Height <= 0 {
		return r
	}
	sx := page.Width() / hint.Width
	sy := page.Height() / hint.Height
	return Rect{X0: r.X0 * sx, Y0: r.Y0 * sy, X1: r.X1 * sx, Y1: r.Y1 * sy}
}
