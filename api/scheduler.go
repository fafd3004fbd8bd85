/*
scheduler.go - Automated cycle auto-close sweep

PURPOSE:
  Periodically re-runs the auto-close check over every room with an
  active cycle. Verification-time checks can miss a close when the
  check itself errors (those failures are swallowed so verification
  never blocks); the sweep catches up later.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Skips rooms without an active cycle
  - Per-room failures are logged and never stop the sweep

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 hour)
  - Enabled: Whether the sweep is active (default: true)

USAGE:
  sweep := NewAutoCloseScheduler(roomSvc, billSvc, logger)
  sweep.Start()
  // ... later
  sweep.Stop()

SEE ALSO:
  - billing/service.go: CheckAutoClose
  - payments/service.go: verification-time check
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/rooms"
)

// AutoCloseScheduler periodically sweeps rooms for cycles that are fully
// settled but still open.
type AutoCloseScheduler struct {
	Rooms         *rooms.Service
	Billing       *billing.Service
	CheckInterval time.Duration
	Enabled       bool

	log    *zap.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewAutoCloseScheduler creates a new sweep scheduler.
func NewAutoCloseScheduler(roomSvc *rooms.Service, billSvc *billing.Service, log *zap.Logger) *AutoCloseScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AutoCloseScheduler{
		Rooms:         roomSvc,
		Billing:       billSvc,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		log:           log,
		stop:          make(chan struct{}),
	}
}

// Start begins the sweep loop.
func (s *AutoCloseScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.log.Info("auto-close sweep disabled, not starting")
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)
	go s.run()

	s.log.Info("auto-close sweep started", zap.Duration("interval", s.CheckInterval))
}

// Stop stops the sweep loop and waits for an in-flight sweep to finish.
func (s *AutoCloseScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.log.Info("auto-close sweep stopped")
	}
}

func (s *AutoCloseScheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.sweep()

	for {
		select {
		case <-s.ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *AutoCloseScheduler) sweep() {
	ctx := context.Background()

	all, err := s.Rooms.Rooms(ctx)
	if err != nil {
		s.log.Warn("auto-close sweep: listing rooms failed", zap.Error(err))
		return
	}

	closed := 0
	checked := 0
	for _, room := range all {
		if room.CurrentCycleID == "" {
			continue
		}
		checked++
		result, err := s.Billing.CheckAutoClose(ctx, room.ID)
		if err != nil {
			s.log.Warn("auto-close sweep: check failed",
				zap.String("room_id", room.ID), zap.Error(err))
			continue
		}
		if result.Closed {
			closed++
			s.log.Info("auto-close sweep: cycle closed",
				zap.String("room_id", room.ID), zap.String("cycle_id", result.CycleID))
		}
	}

	if checked > 0 {
		s.log.Info("auto-close sweep completed",
			zap.Int("checked", checked), zap.Int("closed", closed))
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (s *AutoCloseScheduler) RunNow() {
	s.sweep()
}
