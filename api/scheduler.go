/*
scheduler.go - Midnight sweep of clerk sessions

PURPOSE:
  Periodically closes clerk sessions that were left open on an earlier
  calendar day, so the next day's tally starts from zero even if the clerk
  never reopens the app.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - A session is stale when it started before today in the cooperative's
    timezone; GET /api/sessions/{clerk} applies the same rule lazily
  - Each expiry is logged; failures are logged and retried next tick

CONFIGURATION:
  - CheckInterval: How often to check (default: 15 minutes)
  - Enabled: Whether sweeper is active (default: true)

USAGE:
  sweeper := NewSessionSweeper(handler)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - weighment/session.go: Session.Restore
  - directory.go: GetSession handler
*/
package api

import (
	"context"
	"sync"
	"time"
)

// SessionSweeper expires stale clerk sessions.
type SessionSweeper struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSessionSweeper creates a new sweeper.
func NewSessionSweeper(h *Handler) *SessionSweeper {
	return &SessionSweeper{
		Handler:       h,
		CheckInterval: 15 * time.Minute,
		Enabled:       true,
		stop:          make(chan struct{}),
	}
}

// Start begins the sweeper.
func (s *SessionSweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := s.Handler.Logger
	if !s.Enabled {
		logger.Info("session sweeper disabled")
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)
	go s.run()

	logger.Info("session sweeper started", "interval", s.CheckInterval.String())
}

// Stop stops the sweeper and waits for an in-flight sweep.
func (s *SessionSweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.Handler.Logger.Info("session sweeper stopped")
	}
}

func (s *SessionSweeper) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.RunNow(context.Background())

	for {
		select {
		case <-s.ticker.C:
			s.RunNow(context.Background())
		case <-s.stop:
			return
		}
	}
}

// RunNow sweeps once and returns how many sessions were expired.
func (s *SessionSweeper) RunNow(ctx context.Context) int {
	h := s.Handler
	sessions, err := h.Store.ListActiveSessions(ctx)
	if err != nil {
		h.Logger.ErrorContext(ctx, "session sweep failed", "error", err)
		return 0
	}

	now := h.now()
	expired := 0
	for _, sess := range sessions {
		restored, stale := sess.Restore(now, h.Location)
		if !stale {
			continue
		}
		if err := h.Store.SaveSession(ctx, restored); err != nil {
			h.Logger.ErrorContext(ctx, "session expiry failed", "clerk_id", sess.ClerkID, "error", err)
			continue
		}
		h.Logger.InfoContext(ctx, "session expired",
			"clerk_id", sess.ClerkID, "started_at", sess.StartedAt, "count", sess.Count)
		expired++
	}
	return expired
}
