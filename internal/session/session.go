// Package session drives one stamping workflow: template and overlay loading, region
// selection, stamp placement and merging.
//
// A Session serializes its operations with a mutex. A merge runs outside the lock
// with a busy flag set so that state queries stay responsive; every mutating call made
// while the flag is set fails with ErrMergeInProgress.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfstamp/internal/compose"
	"github.com/local/pdfstamp/internal/config"
	"github.com/local/pdfstamp/internal/document"
	"github.com/local/pdfstamp/internal/geometry"
	"github.com/local/pdfstamp/internal/scratch"
	"github.com/local/pdfstamp/internal/selection"
	"github.com/local/pdfstamp/internal/stamp"
	"github.com/local/pdfstamp/internal/store"
)

// Publisher uploads a merged document and returns where it went.
type Publisher interface {
	Publish(ctx context.Context, sessionID, localPath string) (string, error)
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Config   config.Config
	Loader   *document.Loader
	Composer *compose.Composer
	// History and Publisher are optional.
	History   store.History
	Publisher Publisher
	// OutputPath chooses the output file of a session. Defaults to Config.Merge.OutputPath.
	OutputPath func(sessionID string) string
}

// MergeResult is returned by a successful merge.
type MergeResult struct {
	RecordID   string           `json:"record_id"`
	OutputPath string           `json:"output_path"`
	Pages      int              `json:"pages"`
	Placement  geometry.DocRect `json:"placement"`
	Location   string           `json:"location,omitempty"`
	DurationMs int64            `json:"duration_ms"`
}

// Session is one stamping workflow.
type Session struct {
	ID        string
	CreatedAt time.Time

	deps    *Deps
	variant config.Variant
	remover *scratch.Remover
	logger  zerolog.Logger

	mu         sync.Mutex
	state      State
	busy       bool
	closed     bool
	status     string
	template   *document.Template
	overlay    *document.Overlay
	selector   *selection.RegionSelector
	stamp      *stamp.Stamp
	files      []string
	lastMerge  *MergeResult
	lastActive time.Time
}

// New creates a session in the Idle state.
func New(id string, deps *Deps) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now()
	s := &Session{
		ID:         id,
		CreatedAt:  now,
		deps:       deps,
		variant:    deps.Config.Variant,
		remover:    scratch.NewRemover(deps.Config.Merge.CleanupAttempts, deps.Config.Merge.CleanupDelay),
		logger:     log.With().Str("session_id", id).Logger(),
		state:      Idle,
		stamp:      stamp.New(deps.Config.Render),
		lastActive: now,
	}
	if s.variant.Name == "" {
		s.variant = config.VariantByName("")
	}
	s.status = s.variant.Messages.Idle
	s.selector = selection.New(s.defineRegion)
	return s
}

// State returns the current workflow state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns the user-facing status line.
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastActive is the time of the last operation on the session.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Busy reports whether a merge is running.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Track registers a file owned by the session; it is removed on Close. A file
// tracked after Close is removed at once.
func (s *Session) Track(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		if err := s.remover.Remove(path); err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("session file not removed")
		}
		return
	}
	s.trackLocked(path)
}

func (s *Session) trackLocked(path string) {
	for _, f := range s.files {
		if f == path {
			return
		}
	}
	s.files = append(s.files, path)
}

// begin locks the session for a mutating operation. The caller must unlock.
func (s *Session) begin() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.busy {
		s.mu.Unlock()
		return ErrMergeInProgress
	}
	s.lastActive = time.Now()
	return nil
}

func (s *Session) requireLocked(op string, min State) error {
	if s.state < min {
		return fmt.Errorf("%w: %s needs %s, session is %s", ErrInvalidTransition, op, min, s.state)
	}
	return nil
}

// LoadTemplate replaces the template. Any selection and placement are dropped.
func (s *Session) LoadTemplate(path string) (*document.Template, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	t, err := s.deps.Loader.LoadTemplate(path)
	if err != nil {
		s.logger.Warn().Err(err).Str("file", path).Msg("template rejected")
		return nil, err
	}
	s.template = t
	s.resetPlacementLocked()
	s.stamp.SetBounds(t.Preview)
	if s.overlay != nil {
		s.state = OverlayLoaded
	} else {
		s.state = TemplateLoaded
	}
	s.status = fmt.Sprintf(s.variant.Messages.TemplateLoaded, filepath.Base(path))
	return t, nil
}

// LoadOverlay replaces the overlay. A template must be loaded first.
func (s *Session) LoadOverlay(path string) (*document.Overlay, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	if err := s.requireLocked("load overlay", TemplateLoaded); err != nil {
		return nil, err
	}

	o, err := s.deps.Loader.LoadOverlayFirst(path)
	if err != nil {
		s.logger.Warn().Err(err).Str("file", path).Msg("overlay rejected")
		return nil, err
	}
	s.overlay = o
	s.resetPlacementLocked()
	s.state = OverlayLoaded
	s.status = s.variant.Messages.OverlayLoaded
	return o, nil
}

func (s *Session) resetPlacementLocked() {
	s.selector.Reset()
	s.stamp.Clear()
	s.lastMerge = nil
}

// SelectionPressed starts a region selection on the overlay preview.
func (s *Session) SelectionPressed(p image.Point) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if err := s.requireLocked("select region", OverlayLoaded); err != nil {
		return err
	}
	s.selector.Pressed(p)
	return nil
}

// SelectionDragged extends the region selection.
func (s *Session) SelectionDragged(p image.Point) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if err := s.requireLocked("select region", OverlayLoaded); err != nil {
		return err
	}
	s.selector.Dragged(p)
	return nil
}

// SelectionReleased finishes the selection and defines the stamp from it. A region
// that is too small is reported and the previous stamp is kept.
func (s *Session) SelectionReleased(p image.Point) (image.Rectangle, error) {
	if err := s.begin(); err != nil {
		return image.Rectangle{}, err
	}
	defer s.mu.Unlock()
	if err := s.requireLocked("select region", OverlayLoaded); err != nil {
		return image.Rectangle{}, err
	}
	r, err := s.selector.Released(p)
	if err != nil {
		var small *stamp.RegionTooSmallError
		if errors.As(err, &small) {
			s.status = s.variant.Messages.RegionTooSmall
		}
		return r, err
	}
	s.state = RegionSelected
	s.status = s.variant.Messages.RegionSelected
	s.logger.Info().Str("region", r.String()).Msg("region selected")
	return r, nil
}

// defineRegion is the selector callback; it runs with s.mu held.
func (s *Session) defineRegion(r image.Rectangle) error {
	if s.overlay == nil {
		return fmt.Errorf("%w: no overlay loaded", ErrInvalidTransition)
	}
	return s.stamp.Define(s.overlay.Raster, r)
}

// SetWidth resizes the stamp, keeping its aspect ratio.
func (s *Session) SetWidth(width int) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if err := s.requireLocked("resize stamp", RegionSelected); err != nil {
		return err
	}
	r := s.deps.Config.Render
	if width < r.StampMinWidth || width > r.StampMaxWidth {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrWidthOutOfRange, width, r.StampMinWidth, r.StampMaxWidth)
	}
	s.stamp.Resize(width)
	s.state = PositionAdjusted
	return nil
}

// MoveStamp places the stamp's top-left corner at p, clamped into the template.
func (s *Session) MoveStamp(p image.Point) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if err := s.requireLocked("place stamp", RegionSelected); err != nil {
		return err
	}
	s.stamp.MoveTo(p)
	s.state = PositionAdjusted
	return nil
}

// StampPressed starts dragging the stamp.
func (s *Session) StampPressed(p image.Point) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if err := s.requireLocked("drag stamp", RegionSelected); err != nil {
		return err
	}
	s.stamp.Press(p)
	return nil
}

// StampDragged moves the stamp while a drag is active.
func (s *Session) StampDragged(p image.Point) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if err := s.requireLocked("drag stamp", RegionSelected); err != nil {
		return err
	}
	if s.stamp.Drag(p) {
		s.state = PositionAdjusted
	}
	return nil
}

// StampReleased ends the drag.
func (s *Session) StampReleased() error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if err := s.requireLocked("drag stamp", RegionSelected); err != nil {
		return err
	}
	s.stamp.Release()
	return nil
}

// OverlayOutline renders the overlay's first page with the current selection drawn.
func (s *Session) OverlayOutline() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overlay == nil {
		return nil, fmt.Errorf("%w: no overlay loaded", ErrInvalidTransition)
	}
	return s.selector.Outline(s.overlay.Raster), nil
}

// Preview renders the template with the stamp at its current placement.
func (s *Session) Preview() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.template == nil {
		return nil, fmt.Errorf("%w: no template loaded", ErrInvalidTransition)
	}
	return s.stamp.Preview(s.template.Raster), nil
}

// Merge composes the output document from the current placement. It may run again
// without a new selection.
func (s *Session) Merge(ctx context.Context) (*MergeResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s.busy {
		s.mu.Unlock()
		return nil, ErrMergeInProgress
	}
	if s.state < RegionSelected || s.template == nil || s.overlay == nil || !s.stamp.Defined() {
		s.status = s.variant.Messages.MissingInputs
		st := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: merge needs %s, session is %s", ErrInvalidTransition, RegionSelected, st)
	}
	tpl, ov := s.template, s.overlay
	pos, size := s.stamp.Placement()
	region := s.stamp.Region()
	placement := geometry.ToDocumentSpace(pos, size, tpl.Native, tpl.Preview)
	out := s.outputPath()
	prevStatus := s.status
	s.busy = true
	s.lastActive = time.Now()
	s.status = s.variant.Messages.Merging
	s.mu.Unlock()

	res, err := s.merge(ctx, tpl, ov, region, placement, out)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	s.lastActive = time.Now()
	if err != nil {
		s.status = prevStatus
		return nil, err
	}
	if s.closed {
		if rerr := s.remover.Remove(res.OutputPath); rerr != nil {
			s.logger.Warn().Err(rerr).Str("path", res.OutputPath).Msg("session file not removed")
		}
		return nil, ErrSessionClosed
	}
	// the output outlives placement resets, so it is owned like an upload
	s.trackLocked(res.OutputPath)
	s.lastMerge = res
	s.state = Composed
	s.status = fmt.Sprintf(s.variant.Messages.Composed, filepath.Base(res.OutputPath))
	return res, nil
}

func (s *Session) merge(ctx context.Context, tpl *document.Template, ov *document.Overlay, region image.Rectangle, placement geometry.DocRect, out string) (*MergeResult, error) {
	pages, err := s.deps.Loader.OverlayPages(ov.Path)
	if err != nil {
		return nil, err
	}
	defer pages.Close()

	cr, err := s.deps.Composer.Compose(ctx, compose.Request{
		TemplatePath: tpl.Path,
		Native:       tpl.Native,
		Region:       region,
		Placement:    placement,
		Overlay:      pages,
		OutputPath:   out,
		SessionID:    s.ID,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("merge failed")
		return nil, err
	}

	res := &MergeResult{
		RecordID:   uuid.NewString(),
		OutputPath: cr.OutputPath,
		Pages:      cr.Pages,
		Placement:  cr.Placement,
		DurationMs: cr.Duration.Milliseconds(),
	}
	if s.deps.Publisher != nil {
		loc, err := s.deps.Publisher.Publish(ctx, s.ID, cr.OutputPath)
		if err != nil {
			s.logger.Warn().Err(err).Msg("output kept locally, publish failed")
		} else {
			res.Location = loc
		}
	}
	if s.deps.History != nil {
		rec := store.MergeRecord{
			ID:         res.RecordID,
			SessionID:  s.ID,
			Variant:    s.variant.Name,
			Template:   filepath.Base(tpl.Path),
			Overlay:    filepath.Base(ov.Path),
			Pages:      res.Pages,
			Placement:  res.Placement,
			Output:     res.OutputPath,
			Location:   res.Location,
			DurationMs: res.DurationMs,
			CreatedAt:  time.Now().UTC(),
		}
		if err := s.deps.History.Record(ctx, rec); err != nil {
			s.logger.Warn().Err(err).Msg("merge not recorded in history")
		}
	}
	return res, nil
}

func (s *Session) outputPath() string {
	if s.deps.OutputPath != nil {
		return s.deps.OutputPath(s.ID)
	}
	if p := s.deps.Config.Merge.OutputPath; p != "" {
		return p
	}
	return "output.pdf"
}

// LastMerge returns the result of the most recent successful merge.
func (s *Session) LastMerge() (*MergeResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMerge, s.lastMerge != nil
}

// Snapshot is a read-only view of a session for API responses.
type Snapshot struct {
	ID        string           `json:"id"`
	State     State            `json:"state"`
	Status    string           `json:"status"`
	Variant   string           `json:"variant"`
	Title     string           `json:"title"`
	Busy      bool             `json:"busy"`
	Template  *TemplateInfo    `json:"template,omitempty"`
	Overlay   *OverlayInfo     `json:"overlay,omitempty"`
	Region    *RectInfo        `json:"region,omitempty"`
	Stamp     *StampInfo       `json:"stamp,omitempty"`
	Placement geometry.DocRect `json:"placement"`
	LastMerge *MergeResult     `json:"last_merge,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// TemplateInfo describes the loaded template.
type TemplateInfo struct {
	Name    string         `json:"name"`
	Pages   int            `json:"pages"`
	Native  geometry.SizeF `json:"native"`
	Preview PointInfo      `json:"preview"`
}

// OverlayInfo describes the loaded overlay.
type OverlayInfo struct {
	Name   string    `json:"name"`
	Pages  int       `json:"pages"`
	Raster PointInfo `json:"raster"`
}

// StampInfo describes the stamp placement in preview pixels.
type StampInfo struct {
	Position PointInfo `json:"position"`
	Size     PointInfo `json:"size"`
	Aspect   float64   `json:"aspect"`
	Placed   bool      `json:"placed"`
	MinWidth int       `json:"min_width"`
	MaxWidth int       `json:"max_width"`
}

// PointInfo is an x/y pair.
type PointInfo struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// RectInfo is a normalized rectangle.
type RectInfo struct {
	X0 int `json:"x0"`
	Y0 int `json:"y0"`
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
}

func pointInfo(p image.Point) PointInfo { return PointInfo{X: p.X, Y: p.Y} }

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:        s.ID,
		State:     s.state,
		Status:    s.status,
		Variant:   s.variant.Name,
		Title:     s.variant.Title,
		Busy:      s.busy,
		LastMerge: s.lastMerge,
		CreatedAt: s.CreatedAt,
	}
	if t := s.template; t != nil {
		snap.Template = &TemplateInfo{
			Name:    filepath.Base(t.Path),
			Pages:   t.Pages,
			Native:  t.Native,
			Preview: pointInfo(t.Preview),
		}
	}
	if o := s.overlay; o != nil {
		b := o.Raster.Bounds()
		snap.Overlay = &OverlayInfo{Name: filepath.Base(o.Path), Pages: o.Pages, Raster: PointInfo{X: b.Dx(), Y: b.Dy()}}
	}
	if s.stamp.Defined() {
		r := s.stamp.Region()
		snap.Region = &RectInfo{X0: r.Min.X, Y0: r.Min.Y, X1: r.Max.X, Y1: r.Max.Y}
		pos, size := s.stamp.Placement()
		snap.Stamp = &StampInfo{
			Position: pointInfo(pos),
			Size:     pointInfo(size),
			Aspect:   s.stamp.Aspect(),
			Placed:   s.stamp.Placed(),
			MinWidth: s.deps.Config.Render.StampMinWidth,
			MaxWidth: s.deps.Config.Render.StampMaxWidth,
		}
		if s.template != nil {
			snap.Placement = geometry.ToDocumentSpace(pos, size, s.template.Native, s.template.Preview)
		}
	}
	return snap
}

// markClosed closes the session unless a merge is running.
func (s *Session) markClosed() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrMergeInProgress
	}
	s.closed = true
	return nil
}

// Close removes the session's uploads and outputs and refuses any further work.
// A merge still running when Close is called discards its output. Removal failures
// are logged only.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	files := s.files
	s.files = nil
	s.mu.Unlock()

	for _, f := range files {
		if err := s.remover.Remove(f); err != nil {
			s.logger.Warn().Err(err).Str("path", f).Msg("session file not removed")
		}
	}
}
