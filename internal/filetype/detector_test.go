package filetype

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const minimalPDF = "%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n"

func TestIsPDF(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "template.pdf")
	txt := filepath.Join(dir, "notpdf.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte(minimalPDF), 0o644))
	require.NoError(t, os.WriteFile(txt, []byte("just some text pretending"), 0o644))

	d := New()
	ok, info, err := d.IsPDF(pdf)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, PDFMIME, info.MIMEType)

	ok, info, err = d.IsPDF(txt)
	require.NoError(t, err)
	require.False(t, ok)
	require.Contains(t, info.Description, "Unsupported")
}

func TestDetectMissingFile(t *testing.T) {
	_, err := New().Detect(filepath.Join(t.TempDir(), "missing.pdf"))
	require.Error(t, err)
}

func TestDetectReader(t *testing.T) {
	info, err := New().DetectReader(strings.NewReader(minimalPDF))
	require.NoError(t, err)
	require.True(t, info.Supported)
}
