package document

import (
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/local/pdfstamp/internal/config"
	"github.com/local/pdfstamp/internal/geometry"
)

// --- Fakes ---

type fakeDoc struct {
	pages   int
	size    geometry.SizeF
	failAt  int
	blankAt int
	closed  *bool
	renders *[]int
}

func (d fakeDoc) NumPage() int { return d.pages }

func (d fakeDoc) PageSize(int) (geometry.SizeF, error) { return d.size, nil }

func (d fakeDoc) Render(i int, dpi float64) (*image.RGBA, error) {
	if d.renders != nil {
		*d.renders = append(*d.renders, i)
	}
	if i == d.failAt {
		return nil, errors.New("render boom")
	}
	if i == d.blankAt {
		return nil, nil
	}
	w := int(d.size.Width * dpi / 72)
	h := int(d.size.Height * dpi / 72)
	return image.NewRGBA(image.Rect(0, 0, w, h)), nil
}

func (d fakeDoc) Close() error {
	if d.closed != nil {
		*d.closed = true
	}
	return nil
}

type fakeOpener struct {
	doc Doc
	err error
}

func (o fakeOpener) Open(string) (Doc, error) { return o.doc, o.err }

func letter(pages int) fakeDoc {
	return fakeDoc{pages: pages, size: geometry.SizeF{Width: 612, Height: 792}, failAt: -1, blankAt: -1}
}

func render() config.RenderConfig {
	return config.RenderConfig{TemplateDPI: 150, OverlayDPI: 300}
}

// --- Tests ---

func TestLoadTemplateRecordsNativeAndPreviewSize(t *testing.T) {
	closed := false
	d := letter(3)
	d.closed = &closed
	l := NewLoaderWithOpener(fakeOpener{doc: d}, render())

	tpl, err := l.LoadTemplate("template.pdf")
	require.NoError(t, err)
	require.Equal(t, geometry.SizeF{Width: 612, Height: 792}, tpl.Native)
	require.Equal(t, image.Pt(1275, 1650), tpl.Preview)
	require.Equal(t, 3, tpl.Pages)
	require.True(t, closed)
}

func TestOpenFailureIsDocumentOpenError(t *testing.T) {
	l := NewLoaderWithOpener(fakeOpener{err: errors.New("not a pdf")}, render())

	_, err := l.LoadTemplate("bad.pdf")
	var openErr *DocumentOpenError
	require.ErrorAs(t, err, &openErr)
	require.Equal(t, "bad.pdf", openErr.Path)

	_, err = l.LoadOverlayFirst("bad.pdf")
	require.ErrorAs(t, err, &openErr)
}

func TestZeroPagesIsEmptyDocumentError(t *testing.T) {
	closed := false
	d := letter(0)
	d.closed = &closed
	l := NewLoaderWithOpener(fakeOpener{doc: d}, render())

	_, err := l.LoadOverlayFirst("empty.pdf")
	var emptyErr *EmptyDocumentError
	require.ErrorAs(t, err, &emptyErr)
	require.True(t, closed)

	_, err = l.LoadTemplate("empty.pdf")
	require.ErrorAs(t, err, &emptyErr)
}

func TestFirstPageRenderFailureIsNoPagesProduced(t *testing.T) {
	d := letter(2)
	d.failAt = 0
	l := NewLoaderWithOpener(fakeOpener{doc: d}, render())
	_, err := l.LoadOverlayFirst("overlay.pdf")
	var noPages *NoPagesProducedError
	require.ErrorAs(t, err, &noPages)

	d = letter(2)
	d.blankAt = 0
	l = NewLoaderWithOpener(fakeOpener{doc: d}, render())
	_, err = l.LoadOverlayAll("overlay.pdf")
	require.ErrorAs(t, err, &noPages)
}

func TestLoadOverlayAllRendersInOrder(t *testing.T) {
	var renders []int
	d := letter(4)
	d.renders = &renders
	l := NewLoaderWithOpener(fakeOpener{doc: d}, render())

	pages, err := l.LoadOverlayAll("overlay.pdf")
	require.NoError(t, err)
	require.Len(t, pages, 4)
	require.Equal(t, []int{0, 1, 2, 3}, renders)
	require.Equal(t, image.Rect(0, 0, 2550, 3300), pages[0].Bounds())
}

func TestLaterPageFailureAborts(t *testing.T) {
	d := letter(3)
	d.failAt = 2
	l := NewLoaderWithOpener(fakeOpener{doc: d}, render())

	_, err := l.LoadOverlayAll("overlay.pdf")
	require.Error(t, err)
	var noPages *NoPagesProducedError
	require.False(t, errors.As(err, &noPages))
	require.Contains(t, err.Error(), "page 3")
}

func TestPageSourceIsLazy(t *testing.T) {
	var renders []int
	closed := false
	d := letter(5)
	d.renders = &renders
	d.closed = &closed
	l := NewLoaderWithOpener(fakeOpener{doc: d}, render())

	src, err := l.OverlayPages("overlay.pdf")
	require.NoError(t, err)
	require.Equal(t, 5, src.Len())
	require.Empty(t, renders)

	_, err = src.Page(3)
	require.NoError(t, err)
	require.Equal(t, []int{3}, renders)

	_, err = src.Page(5)
	require.Error(t, err)

	require.NoError(t, src.Close())
	require.True(t, closed)
	require.NoError(t, src.Close())
}

func TestLoaderDefaultsResolution(t *testing.T) {
	l := NewLoaderWithOpener(fakeOpener{}, config.RenderConfig{})
	require.Equal(t, 150.0, l.TemplateDPI())
	require.Equal(t, 300.0, l.OverlayDPI())
}
