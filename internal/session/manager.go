package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfstamp/internal/metrics"
	"github.com/local/pdfstamp/internal/scratch"
)

// Manager owns all live sessions.
type Manager struct {
	deps *Deps
	ttl  time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager returns a Manager whose sessions expire after ttl of inactivity.
func NewManager(deps *Deps, ttl time.Duration) *Manager {
	return &Manager{deps: deps, ttl: ttl, sessions: make(map[string]*Session)}
}

// Create starts a new session.
func (m *Manager) Create() *Session {
	s := New(uuid.NewString(), m.deps)
	m.mu.Lock()
	m.sessions[s.ID] = s
	n := len(m.sessions)
	m.mu.Unlock()
	metrics.SetActiveSessions(n)
	s.logger.Info().Msg("session created")
	return s
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete closes and forgets a session. It fails with ErrMergeInProgress while the
// session is merging.
func (m *Manager) Delete(id string) (bool, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return false, nil
	}
	if err := s.markClosed(); err != nil {
		m.mu.Unlock()
		return true, err
	}
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()

	metrics.SetActiveSessions(n)
	s.Close()
	s.logger.Info().Msg("session deleted")
	return true, nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep closes sessions idle since before now-ttl. Busy sessions are kept.
func (m *Manager) Sweep(now time.Time) int {
	if m.ttl <= 0 {
		return 0
	}
	var expired []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.LastActive()) < m.ttl || s.markClosed() != nil {
			continue
		}
		expired = append(expired, s)
		delete(m.sessions, id)
	}
	n := len(m.sessions)
	m.mu.Unlock()

	metrics.SetActiveSessions(n)
	for _, s := range expired {
		s.Close()
	}
	if len(expired) > 0 {
		log.Info().Int("expired", len(expired)).Int("active", n).Msg("swept idle sessions")
	}
	return len(expired)
}

// Run sweeps idle sessions and stale scratch directories every interval until ctx
// is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Sweep(now)
			if age := m.deps.Config.Merge.ScratchMaxAge; age > 0 {
				scratch.SweepStale(m.deps.Config.Merge.ScratchDir, age)
			}
		}
	}
}

// CloseAll closes every session, used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	metrics.SetActiveSessions(0)
	for _, s := range all {
		s.Close()
	}
}
