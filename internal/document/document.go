// Package document opens PDFs and rasterizes their pages for the stamping workflow.
//
// The template is rendered once at a preview resolution and its native page size is
// kept for coordinate mapping. The overlay is rendered at a higher resolution so that
// crops keep their detail when they are burned into the output.
package document

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfstamp/internal/config"
	"github.com/local/pdfstamp/internal/geometry"
	"github.com/local/pdfstamp/internal/metrics"
)

// Doc abstracts an opened PDF.
type Doc interface {
	NumPage() int
	// PageSize returns the native size of page i in points.
	PageSize(i int) (geometry.SizeF, error)
	// Render rasterizes page i at dpi.
	Render(i int, dpi float64) (*image.RGBA, error)
	Close() error
}

// Opener abstracts opening a PDF path into a Doc.
type Opener interface {
	Open(path string) (Doc, error)
}

// defaultOpener is provided in doc_open_fitz.go using go-fitz.
var defaultOpener Opener

// setDefaultOpener allows swapping the default opener, useful for alternate backends.
func setDefaultOpener(o Opener) { defaultOpener = o }

// Template is the rendered first page of the template document.
type Template struct {
	Path   string
	Raster *image.RGBA
	// Native is the page size in points.
	Native geometry.SizeF
	// Preview is the raster size in pixels.
	Preview image.Point
	Pages   int
}

// Overlay is the rendered first page of the overlay document, used for selection.
type Overlay struct {
	Path   string
	Raster *image.RGBA
	Pages  int
}

// Loader renders template and overlay documents at their configured resolutions.
type Loader struct {
	opener      Opener
	templateDPI float64
	overlayDPI  float64
}

// NewLoader returns a Loader backed by the default opener.
func NewLoader(cfg config.RenderConfig) *Loader {
	return NewLoaderWithOpener(defaultOpener, cfg)
}

// NewLoaderWithOpener returns a Loader that opens documents with o.
func NewLoaderWithOpener(o Opener, cfg config.RenderConfig) *Loader {
	l := &Loader{opener: o, templateDPI: cfg.TemplateDPI, overlayDPI: cfg.OverlayDPI}
	if l.templateDPI <= 0 {
		l.templateDPI = 150
	}
	if l.overlayDPI <= 0 {
		l.overlayDPI = 300
	}
	return l
}

// OverlayDPI is the resolution overlay pages are rendered at.
func (l *Loader) OverlayDPI() float64 { return l.overlayDPI }

// TemplateDPI is the resolution the template preview is rendered at.
func (l *Loader) TemplateDPI() float64 { return l.templateDPI }

// LoadTemplate renders page 0 of the template and records its native size.
func (l *Loader) LoadTemplate(path string) (*Template, error) {
	doc, n, err := l.open(path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	native, err := doc.PageSize(0)
	if err != nil {
		return nil, &DocumentOpenError{Path: path, Err: fmt.Errorf("page size: %w", err)}
	}
	img, err := l.render(doc, path, 0, l.templateDPI, "template")
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	t := &Template{
		Path:    path,
		Raster:  img,
		Native:  native,
		Preview: image.Pt(b.Dx(), b.Dy()),
		Pages:   n,
	}
	log.Info().
		Str("file", path).
		Int("pages", n).
		Float64("width_pt", native.Width).
		Float64("height_pt", native.Height).
		Int("preview_w", t.Preview.X).
		Int("preview_h", t.Preview.Y).
		Msg("template loaded")
	return t, nil
}

// LoadOverlayFirst renders page 0 of the overlay for region selection.
func (l *Loader) LoadOverlayFirst(path string) (*Overlay, error) {
	doc, n, err := l.open(path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	img, err := l.render(doc, path, 0, l.overlayDPI, "overlay")
	if err != nil {
		return nil, err
	}
	log.Info().Str("file", path).Int("pages", n).Msg("overlay loaded")
	return &Overlay{Path: path, Raster: img, Pages: n}, nil
}

// LoadOverlayAll renders every overlay page in order.
func (l *Loader) LoadOverlayAll(path string) ([]*image.RGBA, error) {
	src, err := l.OverlayPages(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	out := make([]*image.RGBA, 0, src.Len())
	for i := 0; i < src.Len(); i++ {
		img, err := src.Page(i)
		if err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, nil
}

// OverlayPages opens the overlay and returns a source that renders pages on demand.
// The caller must Close it.
func (l *Loader) OverlayPages(path string) (*PageSource, error) {
	doc, n, err := l.open(path)
	if err != nil {
		return nil, err
	}
	return &PageSource{loader: l, doc: doc, path: path, n: n}, nil
}

func (l *Loader) open(path string) (Doc, int, error) {
	if l.opener == nil {
		return nil, 0, &DocumentOpenError{Path: path, Err: errors.New("no PDF opener configured")}
	}
	doc, err := l.opener.Open(path)
	if err != nil {
		var openErr *DocumentOpenError
		if errors.As(err, &openErr) {
			return nil, 0, err
		}
		return nil, 0, &DocumentOpenError{Path: path, Err: err}
	}
	n := doc.NumPage()
	if n <= 0 {
		doc.Close()
		return nil, 0, &EmptyDocumentError{Path: path}
	}
	return doc, n, nil
}

func (l *Loader) render(doc Doc, path string, page int, dpi float64, role string) (*image.RGBA, error) {
	start := time.Now()
	img, err := doc.Render(page, dpi)
	metrics.ObserveRender(role, time.Since(start))
	if err != nil {
		if page == 0 {
			return nil, &NoPagesProducedError{Path: path, Err: err}
		}
		return nil, fmt.Errorf("render %s page %d: %w", path, page+1, err)
	}
	if img == nil || img.Bounds().Empty() {
		if page == 0 {
			return nil, &NoPagesProducedError{Path: path}
		}
		return nil, fmt.Errorf("render %s page %d: empty raster", path, page+1)
	}
	return img, nil
}

// PageSource renders overlay pages lazily.
type PageSource struct {
	loader *Loader
	doc    Doc
	path   string
	n      int
}

// Len is the overlay page count.
func (s *PageSource) Len() int { return s.n }

// Page renders page i at the overlay resolution.
func (s *PageSource) Page(i int) (*image.RGBA, error) {
	if i < 0 || i >= s.n {
		return nil, fmt.Errorf("page %d out of range [0,%d)", i, s.n)
	}
	return s.loader.render(s.doc, s.path, i, s.loader.overlayDPI, "overlay")
}

// Close releases the underlying document.
func (s *PageSource) Close() error {
	if s.doc == nil {
		return nil
	}
	err := s.doc.Close()
	s.doc = nil
	return err
}
