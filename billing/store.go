/*
store.go - Persistence interfaces consumed by the billing engine

PURPOSE:
  Defines the narrow interfaces between the engine and its collaborators.
  Room membership and payment records are read-only inputs; billing cycles
  are read + write; audit entries are append-only.

VERSIONED SNAPSHOTS:
  The member-charge snapshot is never blindly overwritten. SaveCycle takes
  the version the caller read and fails with ErrConcurrentModification if
  the stored version moved, so a read-triggered recompute racing with an
  in-flight adjustment cannot silently discard the adjustment.

IMPLEMENTATIONS:
  - store/sqlite: production store
  - billing/store: in-memory store for tests/dev
*/
package billing

import (
	"context"
	"time"
)

// CycleStore persists billing cycles and their charge snapshots.
type CycleStore interface {
	// CreateCycle persists a new cycle (version 0, no snapshot yet).
	CreateCycle(ctx context.Context, cycle *BillingCycle) error

	// Cycle loads one cycle with its charge snapshot.
	// Returns ErrCycleNotFound if absent.
	Cycle(ctx context.Context, id string) (*BillingCycle, error)

	// ActiveCycle loads a room's current active cycle, or ErrCycleNotFound.
	ActiveCycle(ctx context.Context, roomID string) (*BillingCycle, error)

	// SaveCycle writes the cycle's derived fields and charge snapshot,
	// compare-and-swapping on expectedVersion. On success the stored
	// version becomes expectedVersion+1 (mirrored into cycle.ChargesVersion).
	// Returns ErrConcurrentModification on a lost race.
	SaveCycle(ctx context.Context, cycle *BillingCycle, expectedVersion int) error

	// CloseCycle transitions a cycle to completed and clears the owning
	// room's current-cycle pointer, atomically, under the same version
	// check as SaveCycle.
	CloseCycle(ctx context.Context, cycle *BillingCycle, expectedVersion int, closedAt time.Time, closedBy string) error

	// ListActiveCycles returns every active cycle across all rooms.
	ListActiveCycles(ctx context.Context) ([]*BillingCycle, error)
}

// MemberSource exposes the rooms collaborator's membership list.
type MemberSource interface {
	// Members returns a room's member list with presence ledgers.
	// Returns ErrRoomNotFound for an unknown room.
	Members(ctx context.Context, roomID string) ([]Member, error)
}

// PaymentSource exposes the payments collaborator's records, narrowed to
// what the reconciler needs.
type PaymentSource interface {
	// PaymentsInWindow returns payment records for a room whose paid-at
	// date falls inside the window, any status.
	PaymentsInWindow(ctx context.Context, roomID string, w Window) ([]PaymentView, error)
}

// AuditLog stores adjustment/refund entries. Append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	AuditEntries(ctx context.Context, cycleID string) ([]AuditEntry, error)
}

// MutationStore groups the writes an adjustment performs so implementations
// can make them atomic: the cycle save and the audit append either both
// happen or neither does.
type MutationStore interface {
	CycleStore
	AuditLog

	// SaveCycleWithAudit persists the cycle (CAS as SaveCycle) and appends
	// the audit entry in one transaction.
	SaveCycleWithAudit(ctx context.Context, cycle *BillingCycle, expectedVersion int, entry AuditEntry) error
}
