// Package stamp holds the cropped overlay region and its placement over the template
// preview.
//
// Sizes and positions are in template-preview pixels. The aspect ratio is fixed when a
// region is defined; resizing only ever changes the width and derives the height.
package stamp

import (
	"fmt"
	"image"
	"sync"

	xdraw "golang.org/x/image/draw"

	"github.com/local/pdfstamp/internal/config"
	"github.com/local/pdfstamp/internal/geometry"
	"github.com/local/pdfstamp/internal/imagerender"
)

// RegionTooSmallError rejects a selection that is not strictly larger than the minimum
// on both axes.
type RegionTooSmallError struct {
	Width  int
	Height int
	Min    int
}

func (e *RegionTooSmallError) Error() string {
	return fmt.Sprintf("selected region %dx%d is too small (both sides must exceed %d px)", e.Width, e.Height, e.Min)
}

// Stamp is the crop plus its placement state. It is safe for concurrent use.
type Stamp struct {
	mu           sync.Mutex
	minRegion    int
	defaultWidth int

	source *image.RGBA
	region image.Rectangle
	aspect float64
	size   image.Point

	bounds image.Point
	pos    image.Point
	placed bool

	dragging bool
	offset   image.Point
}

// New returns an empty stamp using the sizing rules in cfg.
func New(cfg config.RenderConfig) *Stamp {
	s := &Stamp{minRegion: cfg.MinRegionPx, defaultWidth: cfg.StampDefaultWidth}
	if s.minRegion <= 0 {
		s.minRegion = 10
	}
	if s.defaultWidth <= 0 {
		s.defaultWidth = 150
	}
	return s
}

// Define crops rect out of raster and makes it the stamp source. A rejected rect
// leaves the previous stamp untouched. On success the size is reset to the default
// width and the position is cleared.
func (s *Stamp) Define(raster image.Image, rect image.Rectangle) error {
	r := rect.Canon()
	if r.Dx() <= s.minRegion || r.Dy() <= s.minRegion {
		return &RegionTooSmallError{Width: r.Dx(), Height: r.Dy(), Min: s.minRegion}
	}
	crop := imagerender.Crop(raster, r.Add(raster.Bounds().Min))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = crop
	s.region = r
	s.aspect = aspectOf(r)
	s.size = image.Pt(s.defaultWidth, heightFor(s.defaultWidth, s.aspect))
	s.placed = false
	s.dragging = false
	return nil
}

// Defined reports whether a region has been accepted.
func (s *Stamp) Defined() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source != nil
}

// Clear drops the stamp and its placement.
func (s *Stamp) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = nil
	s.region = image.Rectangle{}
	s.aspect = 0
	s.size = image.Point{}
	s.placed = false
	s.dragging = false
}

// Resize sets the width and derives the height from the aspect ratio. A placed stamp
// is re-clamped into the canvas.
func (s *Stamp) Resize(width int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return
	}
	if width < 1 {
		width = 1
	}
	s.size = image.Pt(width, heightFor(width, s.aspect))
	if s.placed {
		s.pos = geometry.ClampPosition(s.pos, s.size, s.bounds)
	}
}

// SetBounds sets the canvas (template preview) size the stamp is placed on.
func (s *Stamp) SetBounds(b image.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bounds = b
	if s.placed {
		s.pos = geometry.ClampPosition(s.pos, s.size, s.bounds)
	}
}

// MoveTo places the stamp's top-left corner at p, clamped into the canvas.
func (s *Stamp) MoveTo(p image.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return
	}
	s.pos = geometry.ClampPosition(p, s.size, s.bounds)
	s.placed = true
}

// Press starts a drag at p. It returns false when there is nothing to drag.
func (s *Stamp) Press(p image.Point) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return false
	}
	s.dragging = true
	s.offset = p.Sub(s.positionLocked())
	return true
}

// Drag moves the stamp so the grab point follows p. Ignored outside a drag.
func (s *Stamp) Drag(p image.Point) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dragging || s.source == nil {
		return false
	}
	s.pos = geometry.ClampPosition(p.Sub(s.offset), s.size, s.bounds)
	s.placed = true
	return true
}

// Release ends the drag.
func (s *Stamp) Release() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.dragging
	s.dragging = false
	return was
}

// Dragging reports whether a drag is in progress.
func (s *Stamp) Dragging() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dragging
}

// Position is the top-left corner in preview pixels. An unplaced stamp is centered.
func (s *Stamp) Position() image.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked()
}

func (s *Stamp) positionLocked() image.Point {
	if s.placed {
		return s.pos
	}
	return geometry.Centered(s.size, s.bounds)
}

// Placed reports whether the position was set explicitly.
func (s *Stamp) Placed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.placed
}

// Size is the stamp size in preview pixels.
func (s *Stamp) Size() image.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Aspect is width/height of the selected region.
func (s *Stamp) Aspect() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aspect
}

// Region is the normalized selection in overlay-raster pixels.
func (s *Stamp) Region() image.Rectangle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.region
}

// Source is the crop taken when the region was defined. Callers must not modify it.
func (s *Stamp) Source() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Placement returns position and size together.
func (s *Stamp) Placement() (pos, size image.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked(), s.size
}

// Preview returns a copy of template with the resized stamp blended at its position.
// The template itself is never modified.
func (s *Stamp) Preview(template image.Image) *image.RGBA {
	out := imagerender.Clone(template)

	s.mu.Lock()
	src, size := s.source, s.size
	if s.bounds == (image.Point{}) {
		b := out.Bounds()
		s.bounds = image.Pt(b.Dx(), b.Dy())
	}
	pos := s.positionLocked()
	s.mu.Unlock()

	if src == nil {
		return out
	}
	scaled := imagerender.Resize(src, size.X, size.Y, imagerender.Fast)
	dst := image.Rectangle{Min: pos, Max: pos.Add(size)}
	xdraw.Draw(out, dst, scaled, image.Point{}, xdraw.Over)
	return out
}

func aspectOf(r image.Rectangle) float64 {
	if r.Dy() == 0 {
		return 1.0
	}
	return float64(r.Dx()) / float64(r.Dy())
}

func heightFor(width int, aspect float64) int {
	if aspect <= 0 {
		aspect = 1.0
	}
	h := int(float64(width) / aspect)
	if h < 1 {
		h = 1
	}
	return h
}
