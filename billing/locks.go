package billing

import "sync"

// =============================================================================
// PER-CYCLE LOCKS - Serialize snapshot mutation per cycle id
// =============================================================================

// cycleLocks hands out one mutex per cycle id so all mutations to a given
// cycle's charge snapshot (proration fill, adjustments, refunds, close) are
// serialized in-process. Entries are reference-counted and removed when the
// last holder releases, so the table never grows without bound.
type cycleLocks struct {
	mu    sync.Mutex
	locks map[string]*cycleLock
}

type cycleLock struct {
	mu   sync.Mutex
	refs int
}

func newCycleLocks() *cycleLocks {
	return &cycleLocks{locks: make(map[string]*cycleLock)}
}

// Acquire locks the mutex for the given cycle id and returns the release
// function.
func (cl *cycleLocks) Acquire(cycleID string) func() {
	cl.mu.Lock()
	l := cl.locks[cycleID]
	if l == nil {
		l = &cycleLock{}
		cl.locks[cycleID] = l
	}
	l.refs++
	cl.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		cl.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(cl.locks, cycleID)
		}
		cl.mu.Unlock()
	}
}
