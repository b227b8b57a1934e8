package imagerender

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"time"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
	xdraw "golang.org/x/image/draw"
)

// Quality selects the resampling kernel.
type Quality int

const (
	// Fast is used for interactive previews.
	Fast Quality = iota
	// Best is used for images that end up in the output document.
	Best
)

// RenderPage renders a 0-based page of an open document at the given DPI.
func RenderPage(doc *fitz.Document, page int, dpi float64) (*image.RGBA, error) {
	start := time.Now()
	img, err := doc.ImageDPI(page, dpi)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", page+1, err)
	}
	bounds := img.Bounds()
	log.Debug().
		Int("page", page+1).
		Int("width", bounds.Dx()).
		Int("height", bounds.Dy()).
		Float64("dpi", dpi).
		Dur("took", time.Since(start)).
		Msg("rendered page")
	return img, nil
}

// Crop copies r out of src into a new image of exactly r's size. Parts of r outside
// src stay transparent.
func Crop(src image.Image, r image.Rectangle) *image.RGBA {
	r = r.Canon()
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	xdraw.Draw(dst, dst.Bounds(), src, r.Min, xdraw.Src)
	return dst
}

// Resize scales src to w x h.
func Resize(src image.Image, w, h int, q Quality) *image.RGBA {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	var scaler xdraw.Scaler = xdraw.ApproxBiLinear
	if q == Best {
		scaler = xdraw.CatmullRom
	}
	scaler.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}

// Clone returns an RGBA copy of src with its origin at (0,0).
func Clone(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), src, b.Min, xdraw.Src)
	return dst
}

// EncodePNG encodes img as PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// WritePNGFile writes img to path as PNG.
func WritePNGFile(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	if err := png.Encode(w, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode PNG: %w", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// ReadPNGFile decodes a PNG file.
func ReadPNGFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := png.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("failed to decode PNG %s: %w", path, err)
	}
	return img, nil
}
