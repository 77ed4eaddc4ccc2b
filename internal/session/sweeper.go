package session

import (
	"context"
	"time"

	"github.com/jbrandtmse/iris-table-editor-sub000/internal/log"
)

// DefaultSweepInterval bounds how long an abandoned session can hold
// memory and credential material past its window.
const DefaultSweepInterval = 5 * time.Minute

// Sweeper removes expired sessions on a fixed interval, independent of
// client traffic.
type Sweeper struct {
	Mgr      *Manager
	Interval time.Duration
}

// Run starts the sweeper loop. It periodically calls SweepOnce on a
// ticker and returns when ctx is cancelled, so it never blocks process
// shutdown.
func (s *Sweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.L().Info().Dur("interval", interval).Msg("session sweeper started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}

// SweepOnce performs exactly one sweep pass over the session table,
// removing every session whose activity window has aged out through the
// same removal path Validate and End use. Deterministic and suitable for
// unit testing.
func (s *Sweeper) SweepOnce() int {
	m := s.Mgr

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for _, sess := range m.sessions {
		if m.expiredLocked(sess) {
			m.removeLocked(sess, CauseExpired)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info().Int("count", removed).Msg("sweep removed expired sessions")
	}
	return removed
}
