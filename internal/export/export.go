// Package export renders a note to a paginated PDF.
//
// The note is laid out on an off-screen surface the width of the page's
// content area, rasterized once at a fixed oversampling factor and sliced
// into page-height bands. Every page gets the same chrome (background and
// header) drawn before its band.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"math"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/starford/puffnotes/internal/apperr"
)

// Options configures page geometry and chrome.
type Options struct {
	PageSize    string
	MarginMM    float64
	FooterMM    float64
	PxPerMM     float64
	Oversample  int
	HeaderText  string
	HeaderTopMM float64
	HeaderPt    float64

	// MaxRasterPixels caps the oversampled raster. Longer documents fail
	// with ErrTooLong before anything is allocated.
	MaxRasterPixels int64
}

// ErrTooLong is returned when a document's raster would exceed
// Options.MaxRasterPixels.
var ErrTooLong = errors.New("document too long to export")

// DefaultOptions returns A4 pages with 18mm margins and a 3x raster.
func DefaultOptions() Options {
	return Options{
		PageSize:    "A4",
		MarginMM:    18,
		FooterMM:    10,
		PxPerMM:     3.78,
		Oversample:  3,
		HeaderText:  "puffnotes",
		HeaderTopMM: 15,
		HeaderPt:    9,

		// 1 GiB of RGBA.
		MaxRasterPixels: 1 << 28,
	}
}

// Geometry is the page layout derived from Options. Lengths are in mm.
type Geometry struct {
	PageW, PageH       float64
	Margin             float64
	ContentW, ContentH float64
	SurfacePX          int
}

// RowsPerPage returns how many raster rows fit one page's content area when
// a raster rasterW pixels wide is drawn at the content width. It is fixed
// for a document so that pages share one height.
func (g Geometry) RowsPerPage(rasterW int) int {
	if rasterW <= 0 {
		return 0
	}
	scale := g.ContentW / float64(rasterW)
	return max(1, int(math.Floor(g.ContentH/scale)))
}

// Document is a finished export.
type Document struct {
	Data         []byte
	Pages        int
	RasterHeight int
	RowsPerPage  int
}

// Exporter turns note text into PDF documents.
type Exporter struct {
	opts      Options
	logger    *slog.Logger
	onRelease func()
}

// New returns an Exporter. Zero-valued options take their defaults.
func New(opts Options, logger *slog.Logger) *Exporter {
	def := DefaultOptions()
	if opts.PageSize == "" {
		opts.PageSize = def.PageSize
	}
	if opts.MarginMM <= 0 {
		opts.MarginMM = def.MarginMM
	}
	if opts.FooterMM < 0 {
		opts.FooterMM = 0
	}
	if opts.PxPerMM <= 0 {
		opts.PxPerMM = def.PxPerMM
	}
	if opts.Oversample < 1 {
		opts.Oversample = def.Oversample
	}
	if opts.HeaderTopMM <= 0 {
		opts.HeaderTopMM = def.HeaderTopMM
	}
	if opts.HeaderPt <= 0 {
		opts.HeaderPt = def.HeaderPt
	}
	if opts.MaxRasterPixels <= 0 {
		opts.MaxRasterPixels = def.MaxRasterPixels
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{opts: opts, logger: logger}
}

// Geometry computes the page layout for the configured page size.
func (e *Exporter) Geometry() (Geometry, error) {
	pdf := fpdf.New("P", "mm", e.opts.PageSize, "")
	if pdf.Err() {
		return Geometry{}, fmt.Errorf("page size %q: %w", e.opts.PageSize, pdf.Error())
	}
	w, h := pdf.GetPageSize()
	g := Geometry{
		PageW:    w,
		PageH:    h,
		Margin:   e.opts.MarginMM,
		ContentW: w - 2*e.opts.MarginMM,
		ContentH: h - 2*e.opts.MarginMM - e.opts.FooterMM,
	}
	if g.ContentW <= 0 || g.ContentH <= 0 {
		return Geometry{}, fmt.Errorf("margins leave no content area on %s", e.opts.PageSize)
	}
	g.SurfacePX = int(math.Floor(g.ContentW * e.opts.PxPerMM))
	return g, nil
}

// Export renders content under theme into a PDF. Nothing is returned
// unless every page was produced.
func (e *Exporter) Export(ctx context.Context, content string, theme Theme) (*Document, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperr.ErrEmptyDocument
	}
	g, err := e.Geometry()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrExport, err)
	}

	surf, err := Render(content, g.SurfacePX)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrRender, err)
	}
	defer e.release(surf)

	pal, err := Resolve(theme)
	if err != nil {
		return nil, exportError(err)
	}
	if px := surf.RasterPixels(e.opts.Oversample); px > e.opts.MaxRasterPixels {
		e.logger.Warn("export: raster over budget",
			slog.Int64("pixels", px),
			slog.Int64("limit", e.opts.MaxRasterPixels))
		return nil, exportError(ErrTooLong)
	}
	img, err := surf.Rasterize(pal, e.opts.Oversample)
	if err != nil {
		return nil, exportError(err)
	}

	rows := g.RowsPerPage(img.Bounds().Dx())
	bands, err := Paginate(img.Bounds().Dy(), rows)
	if err != nil {
		return nil, exportError(err)
	}

	data, err := e.assemble(ctx, img, bands, g, pal)
	if err != nil {
		return nil, exportError(err)
	}

	e.logger.Info("export: document ready",
		slog.String("theme", theme.Name),
		slog.Int("pages", len(bands)),
		slog.Int("bytes", len(data)))
	return &Document{Data: data, Pages: len(bands), RasterHeight: img.Bounds().Dy(), RowsPerPage: rows}, nil
}

func (e *Exporter) assemble(ctx context.Context, img *image.RGBA, bands []Band, g Geometry, pal Palette) ([]byte, error) {
	pdf := fpdf.New("P", "mm", e.opts.PageSize, "")
	pdf.SetMargins(g.Margin, g.Margin, g.Margin)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator("puffnotes", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	width := img.Bounds().Dx()
	scale := g.ContentW / float64(width)
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	opt := fpdf.ImageOptions{ImageType: "PNG"}

	for i, b := range bands {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pdf.AddPage()
		e.chrome(pdf, g, pal, tr)

		var buf bytes.Buffer
		band := img.SubImage(image.Rect(0, b.Y, width, b.Y+b.Height))
		if err := enc.Encode(&buf, band); err != nil {
			return nil, fmt.Errorf("encode page %d: %w", i+1, err)
		}
		name := fmt.Sprintf("band-%d", i)
		pdf.RegisterImageOptionsReader(name, opt, &buf)
		// Drawn at its own height: a short final band is never stretched.
		pdf.ImageOptions(name, g.Margin, g.Margin, g.ContentW, float64(b.Height)*scale, false, opt, 0, "")
		if pdf.Err() {
			return nil, pdf.Error()
		}
	}

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func (e *Exporter) chrome(pdf *fpdf.Fpdf, g Geometry, pal Palette, tr func(string) string) {
	page := pal.Page()
	pdf.SetFillColor(int(page.R), int(page.G), int(page.B))
	pdf.Rect(0, 0, g.PageW, g.PageH, "F")

	if e.opts.HeaderText == "" {
		return
	}
	hc := pal.Header()
	pdf.SetFont("Times", "", e.opts.HeaderPt)
	pdf.SetTextColor(int(hc.R), int(hc.G), int(hc.B))
	pdf.Text(g.Margin, e.opts.HeaderTopMM, tr(e.opts.HeaderText))
}

func (e *Exporter) release(s *Surface) {
	s.Release()
	if e.onRelease != nil {
		e.onRelease()
	}
}

func exportError(err error) error {
	if errors.Is(err, ErrUnsupportedColor) {
		return fmt.Errorf("%w: a style used in the note might not be supported: %w", apperr.ErrExport, err)
	}
	return fmt.Errorf("%w: %w", apperr.ErrExport, err)
}

// Filename returns the export file name for a note name.
func Filename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "untitled"
	}
	return name + ".pdf"
}
