package compose

import (
	"context"
	"fmt"
	"image/png"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfstamp/internal/geometry"
)

// Job is everything a Writer needs to assemble the output document.
type Job struct {
	// TemplatePath is the template PDF; only its first page is used.
	TemplatePath string
	// Page is the template page size in points.
	Page geometry.SizeF
	// Rect is the stamp rectangle in points, top-left origin.
	Rect geometry.DocRect
	// Stamps are staged PNG crops, one per output page, in order.
	Stamps []string
	// Output is where the finished document is written.
	Output string
	// Reserve returns a path for an intermediate file that the caller removes
	// once the job is done.
	Reserve func(name string) string
}

// Writer assembles the stamped output document.
type Writer interface {
	Write(ctx context.Context, job Job) error
}

// PDFWriter writes output with pdfcpu: the template's first page is extracted,
// replicated once per stamp and every copy gets its own image stamp. Pages are
// stamped in order and the result is serialized canonically, so equal jobs
// produce equal bytes.
type PDFWriter struct{}

// NewPDFWriter returns a PDFWriter.
func NewPDFWriter() *PDFWriter {
	return &PDFWriter{}
}

// config returns a fresh pdfcpu configuration; pdfcpu mutates it per command.
func (w *PDFWriter) config() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.WriteObjectStream = false
	conf.WriteXRefStream = false
	return conf
}

func (w *PDFWriter) Write(ctx context.Context, job Job) error {
	if len(job.Stamps) == 0 {
		return fmt.Errorf("no stamps to write")
	}
	if job.Reserve == nil {
		return fmt.Errorf("job has no place for intermediate files")
	}
	base := job.Reserve("template_p1.pdf")
	if err := api.TrimFile(job.TemplatePath, base, []string{"1"}, w.config()); err != nil {
		return fmt.Errorf("extract template page: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	replicated := base
	if len(job.Stamps) > 1 {
		replicated = job.Reserve("replicated.pdf")
		files := make([]string, len(job.Stamps))
		for i := range files {
			files[i] = base
		}
		if err := api.MergeCreateFile(files, replicated, false, w.config()); err != nil {
			return fmt.Errorf("replicate template page: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	doc, err := w.readForStamping(replicated)
	if err != nil {
		return err
	}

	// pdfcpu anchors at the bottom-left corner with y growing upwards.
	dx := float64(job.Rect.X)
	dy := job.Page.Height - float64(job.Rect.Y) - float64(job.Rect.H)

	for i, stampPath := range job.Stamps {
		if err := ctx.Err(); err != nil {
			return err
		}
		scale, err := stampScale(stampPath, job.Rect.W)
		if err != nil {
			return err
		}
		desc := fmt.Sprintf("position:bl, offset:%.2f %.2f, scalefactor:%.6f abs, rotation:0, opacity:1", dx, dy, scale)
		wm, err := pdfcpu.ParseImageWatermarkDetails(stampPath, desc, true, types.POINTS)
		if err != nil {
			return fmt.Errorf("failed to parse image stamp for page %d: %w", i+1, err)
		}
		wm.Dx = dx
		wm.Dy = dy
		if err := pdfcpu.AddWatermarks(doc, types.IntSet{i + 1: true}, wm); err != nil {
			return fmt.Errorf("failed to stamp page %d: %w", i+1, err)
		}
	}

	stamped := job.Reserve("stamped.pdf")
	if err := api.WriteContextFile(doc, stamped); err != nil {
		return fmt.Errorf("write stamped document: %w", err)
	}
	if err := writeCanonicalFile(stamped, job.Output); err != nil {
		return fmt.Errorf("serialize output: %w", err)
	}
	log.Debug().
		Int("pages", len(job.Stamps)).
		Str("rect", job.Rect.String()).
		Float64("dx", dx).
		Float64("dy", dy).
		Msg("stamps applied")
	return nil
}

func (w *PDFWriter) readForStamping(path string) (*model.Context, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	conf := w.config()
	conf.Cmd = model.ADDWATERMARKS
	doc, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return nil, fmt.Errorf("read replicated pages: %w", err)
	}
	return doc, nil
}

// writeCanonicalFile re-reads a pdfcpu document from src and writes it canonically to dst.
func writeCanonicalFile(src, dst string) error {
	doc, err := api.ReadContextFile(src)
	if err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if err := writeCanonical(doc, out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// stampScale returns the absolute scale that makes the staged image width points wide.
func stampScale(path string, width int) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		return 0, fmt.Errorf("read staged image %s: %w", path, err)
	}
	if cfg.Width <= 0 {
		return 0, fmt.Errorf("staged image %s has zero width", path)
	}
	return float64(width) / float64(cfg.Width), nil
}
