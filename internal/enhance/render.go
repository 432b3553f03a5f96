package enhance

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"

	"github.com/gen2brain/go-fitz"
)

// DefaultScale renders at 2x the document's native resolution,
// which is 144 DPI for a standard 72-DPI page.
const DefaultScale = 2.0

// ErrEmptyRegion is returned when a clip rectangle has no overlap with the
// rendered page raster.
var ErrEmptyRegion = errors.New("clip rectangle does not intersect the page")

// PageRenderer opens paginated documents for rasterization.
type PageRenderer interface {
	Open(path string) (RenderedDocument, error)
}

// RenderedDocument is one open document handle. Callers must Close it on
// every exit path.
type RenderedDocument interface {
	// PageRect returns the native rectangle of the 0-based page.
	PageRect(index int) (Rect, error)

	// RenderRegion rasterizes the clipped region of the 0-based page at
	// scale times the native resolution and returns PNG bytes.
	RenderRegion(index int, clip Rect, scale float64) ([]byte, error)

	Close() error
}

// ExtractRegion crops a rectangular region out of a rendered document page.
//
// The clip rectangle is computed from the OCR position via ToRect, using the
// page's native rectangle and the optional OCR page size hint. Rendering and
// I/O failures propagate to the caller; retry and skip policy belongs to the
// enhancement orchestrator.
func ExtractRegion(renderer PageRenderer, path string, pageIndex int, pos json.RawMessage, hint *Size, scale float64) ([]byte, error) {
	doc, err := renderer.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer doc.Close()

	pageRect, err := doc.PageRect(pageIndex)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", pageIndex, err)
	}

	clip := ToRect(pos, pageRect, hint)
	return doc.RenderRegion(pageIndex, clip, scale)
}

// FitzRenderer rasterizes pages with MuPDF.
type FitzRenderer struct{}

// NewFitzRenderer returns the production page renderer.
func NewFitzRenderer() PageRenderer { return FitzRenderer{} }

// Open opens a PDF or image document.
func (FitzRenderer) Open(path string) (RenderedDocument, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	return &fitzDocument{doc: doc}, nil
}

type fitzDocument struct {
	doc *fitz.Document
}

func (d *fitzDocument) PageRect(index int) (Rect, error) {
	bound, err := d.doc.Bound(index)
	if err != nil {
		return Rect{}, err
	}
	return Rect{
		X0: float64(bound.Min.X), Y0: float64(bound.Min.Y),
		X1: float64(bound.Max.X), Y1: float64(bound.Max.Y),
	}, nil
}

// RenderRegion renders the full page at scale and crops the clip out of the
// raster. MuPDF's Go binding has no clip parameter, so the crop rectangle is
// intersected with the page raster; a clip that falls entirely outside the
// page yields ErrEmptyRegion.
func (d *fitzDocument) RenderRegion(index int, clip Rect, scale float64) ([]byte, error) {
	img, err := d.doc.ImageDPI(index, 72*scale)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", index, err)
	}

	crop := image.Rect(
		int(clip.X0*scale), int(clip.Y0*scale),
		int(clip.X1*scale+0.5), int(clip.Y1*scale+0.5),
	).Intersect(img.Bounds())
	if crop.Empty() {
		return nil, fmt.Errorf("page %d clip (%.0f,%.0f)-(%.0f,%.0f): %w",
			index, clip.X0, clip.Y0, clip.X1, clip.Y1, ErrEmptyRegion)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img.SubImage(crop)); err != nil {
		return nil, fmt.Errorf("encode page %d region: %w", index, err)
	}
	return buf.Bytes(), nil
}

func (d *fitzDocument) Close() error {
	return d.doc.Close()
}
