package geometry

import (
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

var letter = SizeF{Width: 612, Height: 792}

func TestToDocumentSpaceLetterScenario(t *testing.T) {
	preview := image.Pt(1275, 1650)
	r := ToDocumentSpace(image.Pt(400, 500), image.Pt(150, 150), letter, preview)

	want := DocRect{
		X: int(math.Round(400 * 612.0 / 1275)),
		Y: int(math.Round(500 * 792.0 / 1650)),
		W: int(math.Round(150 * 612.0 / 1275)),
		H: int(math.Round(150 * 792.0 / 1650)),
	}
	require.Equal(t, want, r)
	require.Equal(t, DocRect{X: 192, Y: 240, W: 72, H: 72}, r)
	require.True(t, r.Valid())
}

func TestToDocumentSpaceRoundTripFullPreview(t *testing.T) {
	cases := []struct {
		native  SizeF
		preview image.Point
	}{
		{letter, image.Pt(1275, 1650)},
		{SizeF{Width: 595.28, Height: 841.89}, image.Pt(1240, 1754)},
		{SizeF{Width: 300, Height: 200}, image.Pt(1250, 833)},
	}
	for _, c := range cases {
		r := ToDocumentSpace(image.Point{}, c.preview, c.native, c.preview)
		require.InDelta(t, c.native.Width, float64(r.W), 0.5)
		require.InDelta(t, c.native.Height, float64(r.H), 0.5)
		require.Zero(t, r.X)
		require.Zero(t, r.Y)
	}
}

func TestToDocumentSpaceScalesAxesIndependently(t *testing.T) {
	r := ToDocumentSpace(image.Pt(100, 100), image.Pt(100, 100), SizeF{Width: 100, Height: 400}, image.Pt(200, 200))
	require.Equal(t, DocRect{X: 50, Y: 200, W: 50, H: 200}, r)
}

func TestToDocumentSpaceDegenerate(t *testing.T) {
	r := ToDocumentSpace(image.Pt(10, 10), image.Pt(1, 1), letter, image.Pt(1275, 1650))
	require.Equal(t, 0, r.W)
	require.False(t, r.Valid())

	r = ToDocumentSpace(image.Pt(10, 10), image.Pt(150, 150), letter, image.Point{})
	require.False(t, r.Valid())
}

func TestClampPosition(t *testing.T) {
	bounds := image.Pt(1275, 1650)
	size := image.Pt(150, 150)

	require.Equal(t, image.Pt(0, 0), ClampPosition(image.Pt(-40, -1), size, bounds))
	require.Equal(t, image.Pt(1125, 1500), ClampPosition(image.Pt(5000, 5000), size, bounds))
	require.Equal(t, image.Pt(400, 500), ClampPosition(image.Pt(400, 500), size, bounds))
}

func TestClampPositionOversizeStampPinsToOrigin(t *testing.T) {
	p := ClampPosition(image.Pt(30, 30), image.Pt(2000, 100), image.Pt(1275, 1650))
	require.Equal(t, image.Pt(0, 30), p)
}

func TestCentered(t *testing.T) {
	require.Equal(t, image.Pt(562, 750), Centered(image.Pt(150, 150), image.Pt(1275, 1650)))
	require.Equal(t, image.Pt(-3, 0), Centered(image.Pt(15, 10), image.Pt(10, 10)))
}
