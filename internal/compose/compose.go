// Package compose burns the selected overlay region into copies of the template page,
// one output page per overlay page.
package compose

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfstamp/internal/config"
	"github.com/local/pdfstamp/internal/geometry"
	"github.com/local/pdfstamp/internal/imagerender"
	"github.com/local/pdfstamp/internal/limiter"
	"github.com/local/pdfstamp/internal/metrics"
	"github.com/local/pdfstamp/internal/scratch"
)

// InvalidPlacementError rejects a mapped rectangle without positive area.
type InvalidPlacementError struct {
	Rect geometry.DocRect
}

func (e *InvalidPlacementError) Error() string {
	return fmt.Sprintf("invalid stamp placement %s: width and height must be positive", e.Rect)
}

// Pages yields overlay pages in order.
type Pages interface {
	Len() int
	Page(i int) (*image.RGBA, error)
}

// Request describes one merge.
type Request struct {
	TemplatePath string
	// Native is the template page size in points.
	Native geometry.SizeF
	// Region is the selection in overlay-raster pixels.
	Region image.Rectangle
	// Placement is the stamp rectangle in points.
	Placement geometry.DocRect
	Overlay   Pages
	// OutputPath is the final destination of the document.
	OutputPath string
	// SessionID is only used for logging.
	SessionID string
}

// Result summarizes a finished merge.
type Result struct {
	OutputPath string
	Pages      int
	Placement  geometry.DocRect
	Duration   time.Duration
}

const mergeSlot = "merge"

// Composer stages crops and hands them to a Writer.
type Composer struct {
	writer     Writer
	scratchDir string
	remover    *scratch.Remover
	overlayDPI float64
	slots      *limiter.Slots
}

// New returns a Composer configured from cfg. A nil writer selects the pdfcpu writer.
func New(cfg config.Config, w Writer) *Composer {
	if w == nil {
		w = NewPDFWriter()
	}
	dpi := cfg.Render.OverlayDPI
	if dpi <= 0 {
		dpi = 300
	}
	return &Composer{
		writer:     w,
		scratchDir: cfg.Merge.ScratchDir,
		remover:    scratch.NewRemover(cfg.Merge.CleanupAttempts, cfg.Merge.CleanupDelay),
		overlayDPI: dpi,
		slots:      limiter.New(limiter.Options{MaxInflight: cfg.Merge.MaxConcurrent}),
	}
}

// Compose produces the output document. Nothing is staged or written when the
// placement is invalid, and a failed merge leaves no file at OutputPath.
func (c *Composer) Compose(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	logger := log.With().Str("session_id", req.SessionID).Logger()

	if !req.Placement.Valid() {
		metrics.ObserveMerge("invalid", 0, time.Since(start))
		return nil, &InvalidPlacementError{Rect: req.Placement}
	}
	n := req.Overlay.Len()
	if n <= 0 {
		metrics.ObserveMerge("failed", 0, time.Since(start))
		return nil, errors.New("overlay has no pages")
	}

	release, ok := c.slots.Allow(mergeSlot)
	if !ok {
		logger.Info().Int("limit", c.slots.Limit()).Msg("merge waiting for a free slot")
		var err error
		if release, err = c.slots.Acquire(ctx, mergeSlot); err != nil {
			metrics.ObserveMerge("failed", 0, time.Since(start))
			return nil, err
		}
	}
	defer release()

	scope, err := scratch.NewScope(c.scratchDir, c.remover)
	if err != nil {
		metrics.ObserveMerge("failed", 0, time.Since(start))
		return nil, err
	}
	defer func() {
		if cerr := scope.Close(); cerr != nil {
			logger.Warn().Err(cerr).Str("dir", scope.Dir()).Msg("scratch cleanup incomplete")
		}
	}()

	logger.Info().
		Int("pages", n).
		Str("region", req.Region.String()).
		Str("placement", req.Placement.String()).
		Msg("merge started")

	stamps, err := c.stage(ctx, scope, req)
	if err != nil {
		metrics.ObserveMerge("failed", 0, time.Since(start))
		return nil, err
	}

	if err := c.publish(ctx, scope, req, stamps); err != nil {
		metrics.ObserveMerge("failed", 0, time.Since(start))
		return nil, err
	}

	dur := time.Since(start)
	metrics.ObserveMerge("success", n, dur)
	logger.Info().
		Int("pages", n).
		Str("output", req.OutputPath).
		Dur("took", dur).
		Msg("merge completed")
	return &Result{OutputPath: req.OutputPath, Pages: n, Placement: req.Placement, Duration: dur}, nil
}

// MergesInFlight reports how many merges are running and how many may run at once.
func (c *Composer) MergesInFlight() (running, limit int) {
	return c.slots.InUse(mergeSlot), c.slots.Limit()
}

// StagedSize is the pixel size a crop is resampled to before it is stamped.
func StagedSize(r geometry.DocRect, dpi float64) image.Point {
	w := int(math.Round(float64(r.W) * dpi / 72))
	h := int(math.Round(float64(r.H) * dpi / 72))
	return image.Pt(max(w, 1), max(h, 1))
}

func (c *Composer) stage(ctx context.Context, scope *scratch.Scope, req Request) ([]string, error) {
	size := StagedSize(req.Placement, c.overlayDPI)
	n := req.Overlay.Len()
	stamps := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := req.Overlay.Page(i)
		if err != nil {
			return nil, fmt.Errorf("overlay page %d: %w", i+1, err)
		}
		crop := imagerender.Crop(page, req.Region.Canon().Add(page.Bounds().Min))
		staged := imagerender.Resize(crop, size.X, size.Y, imagerender.Best)
		p := scope.Path(fmt.Sprintf("crop_%04d.png", i))
		if err := imagerender.WritePNGFile(p, staged); err != nil {
			return nil, fmt.Errorf("stage page %d: %w", i+1, err)
		}
		stamps = append(stamps, p)
	}
	return stamps, nil
}

func (c *Composer) publish(ctx context.Context, scope *scratch.Scope, req Request, stamps []string) error {
	dir := filepath.Dir(req.OutputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	partial := filepath.Join(dir, "."+filepath.Base(req.OutputPath)+".partial-"+uuid.NewString())
	job := Job{
		TemplatePath: req.TemplatePath,
		Page:         req.Native,
		Rect:         req.Placement,
		Stamps:       stamps,
		Output:       partial,
		Reserve:      scope.Path,
	}
	if err := c.writer.Write(ctx, job); err != nil {
		os.Remove(partial)
		return fmt.Errorf("write output: %w", err)
	}
	if err := os.Rename(partial, req.OutputPath); err != nil {
		os.Remove(partial)
		return fmt.Errorf("publish output: %w", err)
	}
	return nil
}
