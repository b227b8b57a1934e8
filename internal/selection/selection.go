// Package selection turns press/drag/release events over the overlay preview into a
// normalized selection rectangle.
package selection

import (
	"errors"
	"image"
	"image/color"
	"sync"

	"github.com/local/pdfstamp/internal/imagerender"
)

// ErrNoPress is returned by Released when no press started a selection.
var ErrNoPress = errors.New("selection: release without press")

// OutlineColor and OutlineWidth describe how the current selection is drawn.
var OutlineColor = color.RGBA{0, 255, 0, 255}

const OutlineWidth = 3

// RegionSelector tracks one rubber-band selection at a time.
type RegionSelector struct {
	mu       sync.Mutex
	start    image.Point
	end      image.Point
	active   bool
	chosen   bool
	onSelect func(image.Rectangle) error
}

// New returns a selector that hands every released rectangle to onSelect. A nil
// callback accepts every rectangle.
func New(onSelect func(image.Rectangle) error) *RegionSelector {
	return &RegionSelector{onSelect: onSelect}
}

// Pressed starts a new selection at p and forgets the previous one.
func (s *RegionSelector) Pressed(p image.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.start, s.end = p, p
	s.active = true
	s.chosen = false
}

// Dragged moves the end corner while a press is active.
func (s *RegionSelector) Dragged(p image.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		s.end = p
	}
}

// Released finishes the selection at p and passes the normalized rectangle to the
// callback. The rectangle only counts as chosen when the callback accepts it.
func (s *RegionSelector) Released(p image.Point) (image.Rectangle, error) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return image.Rectangle{}, ErrNoPress
	}
	s.end = p
	s.active = false
	r := image.Rect(s.start.X, s.start.Y, s.end.X, s.end.Y)
	cb := s.onSelect
	s.mu.Unlock()

	if cb != nil {
		if err := cb(r); err != nil {
			return r, err
		}
	}
	s.mu.Lock()
	s.chosen = true
	s.mu.Unlock()
	return r, nil
}

// Reset drops any selection in progress or chosen.
func (s *RegionSelector) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.start, s.end = image.Point{}, image.Point{}
	s.active, s.chosen = false, false
}

// Current returns the rectangle being dragged or the last chosen one.
func (s *RegionSelector) Current() (image.Rectangle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active && !s.chosen {
		return image.Rectangle{}, false
	}
	return image.Rect(s.start.X, s.start.Y, s.end.X, s.end.Y), true
}

// Chosen reports whether the last release was accepted.
func (s *RegionSelector) Chosen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chosen
}

// Outline returns a copy of raster with the current selection drawn on it.
func (s *RegionSelector) Outline(raster image.Image) *image.RGBA {
	out := imagerender.Clone(raster)
	if r, ok := s.Current(); ok {
		DrawRect(out, r.Sub(raster.Bounds().Min), OutlineColor, OutlineWidth)
	}
	return out
}

// DrawRect strokes r on img with the given line width, drawing inward.
func DrawRect(img *image.RGBA, r image.Rectangle, c color.RGBA, width int) {
	r = r.Canon()
	for i := 0; i < width; i++ {
		in := image.Rect(r.Min.X+i, r.Min.Y+i, r.Max.X-i-1, r.Max.Y-i-1)
		if in.Min.X > in.Max.X || in.Min.Y > in.Max.Y {
			return
		}
		for x := in.Min.X; x <= in.Max.X; x++ {
			setIn(img, x, in.Min.Y, c)
			setIn(img, x, in.Max.Y, c)
		}
		for y := in.Min.Y; y <= in.Max.Y; y++ {
			setIn(img, in.Min.X, y, c)
			setIn(img, in.Max.X, y, c)
		}
	}
}

func setIn(img *image.RGBA, x, y int, c color.RGBA) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}
