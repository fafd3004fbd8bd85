// Package store provides an in-memory implementation of the billing
// persistence interfaces, used by tests and local development.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/warp/billing-engine/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	rooms    map[string]*roomRecord
	cycles   map[string]*billing.BillingCycle
	payments map[string][]paymentRecord
	audits   map[string][]billing.AuditEntry
}

type roomRecord struct {
	members        []billing.Member
	currentCycleID string
}

type paymentRecord struct {
	view   billing.PaymentView
	paidAt billing.Date
}

func NewMemory() *Memory {
	return &Memory{
		rooms:    make(map[string]*roomRecord),
		cycles:   make(map[string]*billing.BillingCycle),
		payments: make(map[string][]paymentRecord),
		audits:   make(map[string][]billing.AuditEntry),
	}
}

// AddRoom registers a room with its member list.
func (m *Memory) AddRoom(roomID string, members []billing.Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[roomID] = &roomRecord{members: append([]billing.Member{}, members...)}
}

// AddPayment records a payment view with its paid-at date.
func (m *Memory) AddPayment(roomID string, view billing.PaymentView, paidAt billing.Date) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[roomID] = append(m.payments[roomID], paymentRecord{view: view, paidAt: paidAt})
}

// =============================================================================
// billing.MemberSource
// =============================================================================

func (m *Memory) Members(_ context.Context, roomID string) ([]billing.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return nil, billing.ErrRoomNotFound
	}
	return append([]billing.Member{}, room.members...), nil
}

// =============================================================================
// billing.PaymentSource
// =============================================================================

func (m *Memory) PaymentsInWindow(_ context.Context, roomID string, w billing.Window) ([]billing.PaymentView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var views []billing.PaymentView
	for _, p := range m.payments[roomID] {
		if w.Contains(p.paidAt) {
			views = append(views, p.view)
		}
	}
	return views, nil
}

// =============================================================================
// billing.CycleStore
// =============================================================================

func (m *Memory) CreateCycle(_ context.Context, cycle *billing.BillingCycle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles[cycle.ID] = copyCycle(cycle)
	if room, ok := m.rooms[cycle.RoomID]; ok && cycle.Status == billing.CycleActive {
		room.currentCycleID = cycle.ID
	}
	return nil
}

func (m *Memory) Cycle(_ context.Context, id string) (*billing.BillingCycle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cycle, ok := m.cycles[id]
	if !ok {
		return nil, billing.ErrCycleNotFound
	}
	return copyCycle(cycle), nil
}

func (m *Memory) ActiveCycle(_ context.Context, roomID string) (*billing.BillingCycle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[roomID]
	if !ok || room.currentCycleID == "" {
		return nil, billing.ErrCycleNotFound
	}
	cycle, ok := m.cycles[room.currentCycleID]
	if !ok || cycle.Status != billing.CycleActive {
		return nil, billing.ErrCycleNotFound
	}
	return copyCycle(cycle), nil
}

func (m *Memory) SaveCycle(_ context.Context, cycle *billing.BillingCycle, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked(cycle, expectedVersion)
}

func (m *Memory) CloseCycle(_ context.Context, cycle *billing.BillingCycle, expectedVersion int, closedAt time.Time, closedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cycle.Status = billing.CycleCompleted
	cycle.ClosedAt = &closedAt
	cycle.ClosedBy = closedBy
	if err := m.saveLocked(cycle, expectedVersion); err != nil {
		return err
	}
	if room, ok := m.rooms[cycle.RoomID]; ok && room.currentCycleID == cycle.ID {
		room.currentCycleID = ""
	}
	return nil
}

func (m *Memory) ListActiveCycles(_ context.Context) ([]*billing.BillingCycle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*billing.BillingCycle
	for _, cycle := range m.cycles {
		if cycle.Status == billing.CycleActive {
			out = append(out, copyCycle(cycle))
		}
	}
	return out, nil
}

func (m *Memory) saveLocked(cycle *billing.BillingCycle, expectedVersion int) error {
	stored, ok := m.cycles[cycle.ID]
	if !ok {
		return billing.ErrCycleNotFound
	}
	if stored.ChargesVersion != expectedVersion {
		return billing.ErrConcurrentModification
	}
	cycle.ChargesVersion = expectedVersion + 1
	m.cycles[cycle.ID] = copyCycle(cycle)
	return nil
}

// =============================================================================
// billing.AuditLog / billing.MutationStore
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, entry billing.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits[entry.CycleID] = append(m.audits[entry.CycleID], entry)
	return nil
}

func (m *Memory) AuditEntries(_ context.Context, cycleID string) ([]billing.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]billing.AuditEntry{}, m.audits[cycleID]...), nil
}

// SaveCycleWithAudit persists the cycle and appends the audit entry under
// one lock; the version check makes the pair all-or-nothing.
func (m *Memory) SaveCycleWithAudit(_ context.Context, cycle *billing.BillingCycle, expectedVersion int, entry billing.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.saveLocked(cycle, expectedVersion); err != nil {
		return err
	}
	m.audits[entry.CycleID] = append(m.audits[entry.CycleID], entry)
	return nil
}

func copyCycle(c *billing.BillingCycle) *billing.BillingCycle {
	dup := *c
	dup.MemberCharges = append([]billing.MemberCharge{}, c.MemberCharges...)
	if c.ClosedAt != nil {
		t := *c.ClosedAt
		dup.ClosedAt = &t
	}
	return &dup
}

var _ billing.MutationStore = (*Memory)(nil)
var _ billing.MemberSource = (*Memory)(nil)
var _ billing.PaymentSource = (*Memory)(nil)
