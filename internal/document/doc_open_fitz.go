package document

import (
	"errors"
	"fmt"
	"image"

	fitz "github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfstamp/internal/filetype"
	"github.com/local/pdfstamp/internal/geometry"
	"github.com/local/pdfstamp/internal/imagerender"
)

// fitzOpener implements Opener using github.com/gen2brain/go-fitz for rasterization and
// pdfcpu for native page dimensions.
type fitzOpener struct {
	detector *filetype.Detector
}

func (o fitzOpener) Open(path string) (Doc, error) {
	ok, info, err := o.detector.IsPDF(path)
	if err != nil {
		return nil, &DocumentOpenError{Path: path, Err: err}
	}
	if !ok {
		return nil, &DocumentOpenError{Path: path, Err: errors.New(info.Description)}
	}
	doc, err := fitz.New(path)
	if err != nil {
		return nil, &DocumentOpenError{Path: path, Err: err}
	}
	d := &fitzDoc{doc: doc}
	// pdfcpu is stricter than MuPDF; when it cannot parse the file the sizes come from
	// MuPDF's page bounds instead.
	if dims, err := api.PageDimsFile(path); err == nil {
		d.dims = make([]geometry.SizeF, len(dims))
		for i, dim := range dims {
			d.dims[i] = geometry.SizeF{Width: dim.Width, Height: dim.Height}
		}
	} else {
		log.Warn().Err(err).Str("file", path).Msg("pdfcpu page dimensions unavailable, using renderer bounds")
	}
	return d, nil
}

// Ensure default opener is set to fitz-based implementation.
func init() {
	setDefaultOpener(fitzOpener{detector: filetype.New()})
}

// --- Adapters ---

type fitzDoc struct {
	doc  *fitz.Document
	dims []geometry.SizeF
}

func (d *fitzDoc) NumPage() int { return d.doc.NumPage() }

func (d *fitzDoc) PageSize(i int) (geometry.SizeF, error) {
	if i >= 0 && i < len(d.dims) {
		return d.dims[i], nil
	}
	r, err := d.doc.Bound(i)
	if err != nil {
		return geometry.SizeF{}, fmt.Errorf("page %d bounds: %w", i+1, err)
	}
	return geometry.SizeF{Width: float64(r.Dx()), Height: float64(r.Dy())}, nil
}

func (d *fitzDoc) Render(i int, dpi float64) (*image.RGBA, error) {
	return imagerender.RenderPage(d.doc, i, dpi)
}

func (d *fitzDoc) Close() error { return d.doc.Close() }
