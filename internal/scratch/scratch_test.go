package scratch

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func lockedFor(n int) (func(string) error, *int) {
	calls := 0
	return func(path string) error {
		calls++
		if calls <= n {
			return &fs.PathError{Op: "remove", Path: path, Err: fs.ErrPermission}
		}
		return os.Remove(path)
	}, &calls
}

func TestRemoverRetriesLockedFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "crop_0000.png")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))

	r := NewRemover(15, time.Millisecond)
	var calls *int
	r.remove, calls = lockedFor(3)

	require.NoError(t, r.Remove(f))
	require.Equal(t, 4, *calls)
	_, err := os.Stat(f)
	require.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestRemoverGivesUpAfterBoundedAttempts(t *testing.T) {
	f := filepath.Join(t.TempDir(), "crop_0000.png")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))

	r := NewRemover(5, time.Millisecond)
	var calls *int
	r.remove, calls = lockedFor(100)

	err := r.Remove(f)
	var lockErr *TransientFileLockError
	require.ErrorAs(t, err, &lockErr)
	require.Equal(t, 5, lockErr.Attempts)
	require.Equal(t, 5, *calls)
	require.ErrorIs(t, err, fs.ErrPermission)
}

func TestRemoverDoesNotRetryOtherErrors(t *testing.T) {
	boom := errors.New("device gone")
	calls := 0
	r := NewRemover(15, time.Millisecond)
	r.remove = func(string) error { calls++; return boom }

	err := r.Remove("whatever")
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
}

func TestRemoverMissingFileIsFine(t *testing.T) {
	r := NewRemover(3, time.Millisecond)
	require.NoError(t, r.Remove(filepath.Join(t.TempDir(), "nope.png")))
}

func TestScopeCloseRemovesEverything(t *testing.T) {
	base := t.TempDir()
	s, err := NewScope(base, NewRemover(3, time.Millisecond))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(filepath.Base(s.Dir()), DirPrefix))

	for _, name := range []string{"crop_0000.png", "crop_0001.png"} {
		require.NoError(t, os.WriteFile(s.Path(name), []byte("png"), 0o644))
	}
	// reserved but never written
	_ = s.Path("crop_0002.png")

	require.NoError(t, s.Close())
	_, err = os.Stat(s.Dir())
	require.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestScopeCloseToleratesLockedFile(t *testing.T) {
	base := t.TempDir()
	r := NewRemover(2, time.Millisecond)
	s, err := NewScope(base, r)
	require.NoError(t, err)
	p := s.Path("crop_0000.png")
	require.NoError(t, os.WriteFile(p, []byte("png"), 0o644))

	r.remove = func(path string) error {
		if path == p {
			return &fs.PathError{Op: "remove", Path: path, Err: fs.ErrPermission}
		}
		return os.Remove(path)
	}

	err = s.Close()
	var lockErr *TransientFileLockError
	require.ErrorAs(t, err, &lockErr)
	require.Equal(t, p, lockErr.Path)
}

func TestSweepStale(t *testing.T) {
	base := t.TempDir()
	old := filepath.Join(base, DirPrefix+"old")
	fresh := filepath.Join(base, DirPrefix+"fresh")
	other := filepath.Join(base, "keep-me")
	for _, d := range []string{old, fresh, other} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.Chtimes(other, past, past))

	require.Equal(t, 1, SweepStale(base, time.Hour))
	require.NoDirExists(t, old)
	require.DirExists(t, fresh)
	require.DirExists(t, other)
}
