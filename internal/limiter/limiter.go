// Package limiter bounds how many heavy operations run at once in the process.
package limiter

import (
	"context"
	"strings"
	"sync"
)

// Slots hands out per-key in-process slots.
type Slots struct {
	maxInflight int

	mu  sync.Mutex
	sem map[string]chan struct{}
}

// Options configures Slots.
type Options struct {
	// MaxInflight is the number of concurrent holders per key. Defaults to 2.
	MaxInflight int
}

func New(opts Options) *Slots {
	if opts.MaxInflight <= 0 {
		opts.MaxInflight = 2
	}
	return &Slots{maxInflight: opts.MaxInflight, sem: map[string]chan struct{}{}}
}

func (s *Slots) ch(key string) chan struct{} {
	key = strings.ToLower(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.sem[key]
	if !ok {
		ch = make(chan struct{}, s.maxInflight)
		s.sem[key] = ch
	}
	return ch
}

// Allow tries to reserve a slot for key without waiting.
// Returns a release function and true if allowed; otherwise a no-op and false.
func (s *Slots) Allow(key string) (func(), bool) {
	ch := s.ch(key)
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, true
	default:
		return func() {}, false
	}
}

// Acquire waits for a slot for key until ctx is done.
func (s *Slots) Acquire(ctx context.Context, key string) (func(), error) {
	ch := s.ch(key)
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Limit is the number of concurrent holders allowed per key.
func (s *Slots) Limit() int { return s.maxInflight }

// InUse reports how many slots of key are held.
func (s *Slots) InUse(key string) int { return len(s.ch(key)) }
