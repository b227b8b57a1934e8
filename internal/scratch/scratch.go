// Package scratch manages per-operation temporary directories and the deletion of
// files that another process may briefly hold open.
package scratch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfstamp/internal/metrics"
)

// DirPrefix names every scope directory so stale ones can be swept.
const DirPrefix = "pdfstamp-"

// TransientFileLockError reports a file that stayed locked for every removal attempt.
type TransientFileLockError struct {
	Path     string
	Attempts int
	Err      error
}

func (e *TransientFileLockError) Error() string {
	return fmt.Sprintf("file %s still locked after %d attempts: %v", e.Path, e.Attempts, e.Err)
}

func (e *TransientFileLockError) Unwrap() error { return e.Err }

// Remover deletes files, retrying while the file is locked.
type Remover struct {
	Attempts int
	Delay    time.Duration

	remove func(string) error
}

// NewRemover returns a Remover making at most attempts tries spaced by delay.
func NewRemover(attempts int, delay time.Duration) *Remover {
	if attempts <= 0 {
		attempts = 1
	}
	return &Remover{Attempts: attempts, Delay: delay, remove: os.Remove}
}

// Remove deletes path. A missing file is not an error. Permission errors are retried;
// any other error is returned immediately.
func (r *Remover) Remove(path string) error {
	attempts := 0
	op := func() error {
		attempts++
		err := r.remove(path)
		switch {
		case err == nil, errors.Is(err, fs.ErrNotExist):
			return nil
		case errors.Is(err, fs.ErrPermission):
			return err
		default:
			return backoff.Permanent(err)
		}
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(r.Delay), uint64(r.Attempts-1))
	notify := func(err error, wait time.Duration) {
		metrics.IncCleanupRetry()
		log.Debug().Err(err).Str("path", path).Int("attempt", attempts).Dur("wait", wait).Msg("file locked, retrying removal")
	}
	err := backoff.RetryNotify(op, b, notify)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrPermission) {
		return &TransientFileLockError{Path: path, Attempts: attempts, Err: err}
	}
	return err
}

// Scope is a uniquely named temporary directory owned by one operation.
type Scope struct {
	dir     string
	remover *Remover

	mu    sync.Mutex
	files []string
}

// NewScope creates a fresh scope directory under base (os.TempDir when empty).
func NewScope(base string, remover *Remover) (*Scope, error) {
	if base == "" {
		base = os.TempDir()
	}
	if remover == nil {
		remover = NewRemover(1, 0)
	}
	dir := filepath.Join(base, DirPrefix+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &Scope{dir: dir, remover: remover}, nil
}

// Dir returns the scope directory.
func (s *Scope) Dir() string { return s.dir }

// Path reserves a file name inside the scope; the file is removed on Close.
func (s *Scope) Path(name string) string {
	p := filepath.Join(s.dir, filepath.Base(name))
	s.mu.Lock()
	s.files = append(s.files, p)
	s.mu.Unlock()
	return p
}

// Close removes every reserved file and the directory. Failures are logged and counted,
// and the joined error is returned for callers that want it; they are never fatal.
func (s *Scope) Close() error {
	s.mu.Lock()
	files := s.files
	s.files = nil
	s.mu.Unlock()

	var errs []error
	for _, f := range files {
		if err := s.remover.Remove(f); err != nil {
			metrics.IncCleanupFailure()
			log.Warn().Err(err).Str("path", f).Msg("scratch file not removed")
			errs = append(errs, err)
		}
	}
	if err := s.remover.Remove(s.dir); err != nil {
		metrics.IncCleanupFailure()
		log.Warn().Err(err).Str("dir", s.dir).Msg("scratch dir not removed")
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SweepStale removes scope directories under base older than maxAge. It targets only
// directories created by NewScope.
func SweepStale(base string, maxAge time.Duration) int {
	if base == "" {
		base = os.TempDir()
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		return 0
	}
	now := time.Now()
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), DirPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) < maxAge {
			continue
		}
		if err := os.RemoveAll(filepath.Join(base, e.Name())); err == nil {
			removed++
		}
	}
	if removed > 0 {
		log.Info().Int("dirs", removed).Str("base", base).Msg("swept stale scratch dirs")
	}
	return removed
}
