package stamp

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/local/pdfstamp/internal/config"
)

var (
	red  = color.RGBA{255, 0, 0, 255}
	blue = color.RGBA{0, 0, 255, 255}
)

func fill(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func newStamp(t *testing.T, canvas image.Point) *Stamp {
	t.Helper()
	s := New(config.RenderConfig{MinRegionPx: 10, StampDefaultWidth: 150})
	s.SetBounds(canvas)
	return s
}

func TestDefineResetsSizeAndAspect(t *testing.T) {
	s := newStamp(t, image.Pt(1275, 1650))
	require.NoError(t, s.Define(fill(2550, 3300, red), image.Rect(700, 500, 100, 200)))

	require.Equal(t, image.Rect(100, 200, 700, 500), s.Region())
	require.InDelta(t, 2.0, s.Aspect(), 1e-9)
	require.Equal(t, image.Pt(150, 75), s.Size())
	require.Equal(t, image.Rect(0, 0, 600, 300), s.Source().Bounds())
	require.False(t, s.Placed())
}

func TestRegionTooSmallKeepsPriorSelection(t *testing.T) {
	s := newStamp(t, image.Pt(1275, 1650))
	raster := fill(400, 400, red)
	require.NoError(t, s.Define(raster, image.Rect(100, 100, 300, 300)))
	s.MoveTo(image.Pt(40, 50))

	for _, r := range []image.Rectangle{
		image.Rect(0, 0, 10, 200),
		image.Rect(0, 0, 200, 10),
		image.Rect(5, 5, 5, 5),
	} {
		err := s.Define(raster, r)
		var small *RegionTooSmallError
		require.ErrorAs(t, err, &small)
		require.Equal(t, 10, small.Min)
	}

	require.Equal(t, image.Rect(100, 100, 300, 300), s.Region())
	require.Equal(t, image.Pt(40, 50), s.Position())
	require.NoError(t, s.Define(raster, image.Rect(0, 0, 11, 11)))
}

func TestResizePreservesAspect(t *testing.T) {
	s := newStamp(t, image.Pt(1275, 1650))
	require.NoError(t, s.Define(fill(1000, 1000, red), image.Rect(0, 0, 300, 200)))

	for _, w := range []int{50, 99, 150, 233, 400} {
		s.Resize(w)
		sz := s.Size()
		require.Equal(t, w, sz.X)
		require.Equal(t, int(float64(w)/1.5), sz.Y)
		require.LessOrEqual(t, absF(float64(sz.X)/float64(sz.Y)-1.5), 1.5/float64(sz.Y)+1e-9)
	}
}

func TestResizeHeightNeverZero(t *testing.T) {
	s := newStamp(t, image.Pt(100, 100))
	require.NoError(t, s.Define(fill(1000, 100, red), image.Rect(0, 0, 900, 11)))
	s.Resize(50)
	require.Equal(t, 1, s.Size().Y)
}

func TestMoveToClamps(t *testing.T) {
	s := newStamp(t, image.Pt(1275, 1650))
	require.NoError(t, s.Define(fill(400, 400, red), image.Rect(0, 0, 200, 200)))

	s.MoveTo(image.Pt(-40, 2000))
	require.Equal(t, image.Pt(0, 1500), s.Position())

	s.MoveTo(image.Pt(1200, -1))
	require.Equal(t, image.Pt(1125, 0), s.Position())

	s.Resize(400)
	require.Equal(t, image.Pt(875, 0), s.Position())
}

func TestOversizeStampPinsToOrigin(t *testing.T) {
	s := newStamp(t, image.Pt(100, 80))
	require.NoError(t, s.Define(fill(400, 400, red), image.Rect(0, 0, 200, 200)))
	s.Resize(400)
	s.MoveTo(image.Pt(30, 30))
	require.Equal(t, image.Pt(0, 0), s.Position())
	require.Equal(t, image.Pt(400, 400), s.Size())
}

func TestUnplacedStampIsCentered(t *testing.T) {
	s := newStamp(t, image.Pt(1275, 1650))
	require.NoError(t, s.Define(fill(400, 400, red), image.Rect(0, 0, 100, 100)))
	require.Equal(t, image.Pt(562, 750), s.Position())
}

func TestDragFollowsGrabOffset(t *testing.T) {
	s := newStamp(t, image.Pt(1000, 1000))
	require.False(t, s.Press(image.Pt(1, 1)))
	require.NoError(t, s.Define(fill(400, 400, red), image.Rect(0, 0, 100, 100)))
	s.MoveTo(image.Pt(100, 100))

	require.False(t, s.Drag(image.Pt(500, 500)))
	require.True(t, s.Press(image.Pt(120, 130)))
	require.True(t, s.Drag(image.Pt(220, 330)))
	require.Equal(t, image.Pt(200, 300), s.Position())

	require.True(t, s.Drag(image.Pt(5000, -100)))
	require.Equal(t, image.Pt(850, 0), s.Position())

	require.True(t, s.Release())
	require.False(t, s.Drag(image.Pt(300, 300)))
	require.Equal(t, image.Pt(850, 0), s.Position())
}

func TestPreviewBlendsWithoutMutatingTemplate(t *testing.T) {
	tpl := fill(200, 200, blue)
	s := New(config.RenderConfig{})
	require.NoError(t, s.Define(fill(100, 100, red), image.Rect(0, 0, 50, 50)))
	s.Resize(50)

	out := s.Preview(tpl)
	require.Equal(t, blue, tpl.RGBAAt(100, 100))
	require.Equal(t, red, out.RGBAAt(100, 100))
	require.Equal(t, blue, out.RGBAAt(10, 10))
	require.Equal(t, image.Pt(75, 75), s.Position())
}

func TestPreviewKeepsTemplateUnderTransparentCrop(t *testing.T) {
	tpl := fill(200, 200, blue)
	s := newStamp(t, image.Pt(200, 200))
	// region hangs off the raster; the outside part is transparent
	require.NoError(t, s.Define(fill(40, 40, red), image.Rect(20, 20, 60, 60)))
	s.Resize(40)
	s.MoveTo(image.Pt(0, 0))

	out := s.Preview(tpl)
	require.Equal(t, red, out.RGBAAt(5, 5))
	require.Equal(t, blue, out.RGBAAt(35, 35))
}

func TestClearDropsStamp(t *testing.T) {
	s := newStamp(t, image.Pt(100, 100))
	require.NoError(t, s.Define(fill(40, 40, red), image.Rect(0, 0, 20, 20)))
	s.Clear()
	require.False(t, s.Defined())
	require.Nil(t, s.Source())
	s.Resize(80)
	require.Equal(t, image.Point{}, s.Size())
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
