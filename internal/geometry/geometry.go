// Package geometry converts stamp placements between preview-pixel space and PDF
// document space (points).
//
// Preview space has its origin at the top-left corner of the rendered template page.
// DocRect keeps the same top-left orientation; PDF writers flip Y themselves.
package geometry

import (
	"fmt"
	"image"
	"math"
)

// SizeF is a page size in document units (points).
type SizeF struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DocRect is a stamp rectangle in document units, top-left origin.
type DocRect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Valid reports whether the rectangle has a strictly positive area.
func (r DocRect) Valid() bool { return r.W > 0 && r.H > 0 }

func (r DocRect) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", r.X, r.Y, r.W, r.H)
}

// ToDocumentSpace maps a preview-space position and size into document space.
// Each axis is scaled independently by native/preview. Degenerate results are returned
// as-is; callers check Valid.
func ToDocumentSpace(pos image.Point, size image.Point, native SizeF, preview image.Point) DocRect {
	if preview.X <= 0 || preview.Y <= 0 {
		return DocRect{}
	}
	xScale := native.Width / float64(preview.X)
	yScale := native.Height / float64(preview.Y)
	return DocRect{
		X: round(float64(pos.X) * xScale),
		Y: round(float64(pos.Y) * yScale),
		W: round(float64(size.X) * xScale),
		H: round(float64(size.Y) * yScale),
	}
}

// ClampPosition keeps a box of the given size inside bounds where possible. A box larger
// than the bounds is pinned to the origin on that axis.
func ClampPosition(p image.Point, size image.Point, bounds image.Point) image.Point {
	return image.Point{
		X: max(0, min(bounds.X-size.X, p.X)),
		Y: max(0, min(bounds.Y-size.Y, p.Y)),
	}
}

// Centered returns the top-left corner that centers size within bounds, rounding
// toward negative infinity.
func Centered(size image.Point, bounds image.Point) image.Point {
	return image.Point{
		X: floorDiv(bounds.X-size.X, 2),
		Y: floorDiv(bounds.Y-size.Y, 2),
	}
}

func round(v float64) int { return int(math.Round(v)) }

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
