// Package pdftest builds small PDF fixtures for tests that exercise the real renderer
// and writer.
package pdftest

import (
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/local/pdfstamp/internal/imagerender"
)

// Palette gives visually distinct page colors for multi-page fixtures.
var Palette = []color.RGBA{
	{220, 40, 40, 255},
	{40, 160, 60, 255},
	{40, 80, 220, 255},
	{230, 180, 20, 255},
	{140, 40, 180, 255},
}

// WriteLetterPDF writes a US Letter (612x792 pt) PDF to dir/name with one page per
// color, each page filled with a solid image of that color. It returns the path.
func WriteLetterPDF(tb testing.TB, dir, name string, colors ...color.RGBA) string {
	tb.Helper()
	if len(colors) == 0 {
		colors = Palette[:1]
	}
	imgs := make([]string, len(colors))
	for i, c := range colors {
		p := filepath.Join(dir, fmt.Sprintf("%s_page%02d.png", name, i))
		if err := imagerender.WritePNGFile(p, Solid(612, 792, c)); err != nil {
			tb.Fatalf("write fixture image: %v", err)
		}
		imgs[i] = p
	}

	imp, err := api.Import("formsize:Letter, position:full", types.POINTS)
	if err != nil {
		tb.Fatalf("import config: %v", err)
	}
	out := filepath.Join(dir, name)
	if err := api.ImportImagesFile(imgs, out, imp, model.NewDefaultConfiguration()); err != nil {
		tb.Fatalf("build fixture %s: %v", name, err)
	}
	return out
}

// Solid returns a w x h image filled with c.
func Solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// Near reports whether two colors differ by at most tol per channel.
func Near(a, b color.RGBA, tol uint8) bool {
	d := func(x, y uint8) uint8 {
		if x > y {
			return x - y
		}
		return y - x
	}
	return d(a.R, b.R) <= tol && d(a.G, b.G) <= tol && d(a.B, b.B) <= tol
}
