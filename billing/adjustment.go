/*
adjustment.go - Admin-issued deltas and refunds

PURPOSE:
  Post-hoc corrections to an enriched cycle. Adjustments correct a member's
  bill component by component; refunds correct the billed total without
  rewriting the history of what was charged. Both append an immutable audit
  entry and both require a non-empty reason.

ALL-OR-NOTHING:
  Validation happens before any mutation. An adjustment either fully
  applies (component deltas + recomputed totals + audit entry) or not at
  all; the service layer persists the mutated cycle and the audit entry in
  one transaction.

CLAMPING:
  A negative delta cannot drive a component share below zero. The audit
  entry records the effective (post-clamp) deltas, not the requested ones.
*/
package billing

import (
	"strings"
	"time"
)

// =============================================================================
// AUDIT ENTRIES - Append-only; never mutated or deleted
// =============================================================================

type AuditKind string

const (
	AuditAdjustment AuditKind = "adjustment"
	AuditRefund     AuditKind = "refund"
)

// AuditEntry records one adjustment or refund against a cycle.
type AuditEntry struct {
	ID      string
	CycleID string
	UserID  string
	Kind    AuditKind

	// Member totals around an adjustment.
	BeforeTotal Money
	AfterTotal  Money

	// Effective per-component deltas (adjustments only).
	RentDelta        Money
	ElectricityDelta Money
	WaterDelta       Money
	InternetDelta    Money

	// Refunded amount and target bill type (refunds only).
	Amount   Money
	BillType BillType

	Reason    string
	ActorID   string
	CreatedAt time.Time
}

// =============================================================================
// ADJUST CHARGE
// =============================================================================

// AdjustChargeInput names the target charge and the requested deltas.
type AdjustChargeInput struct {
	CycleID          string
	UserID           string
	RentDelta        Money
	ElectricityDelta Money
	WaterDelta       Money
	InternetDelta    Money
	Reason           string
	ActorID          string
}

func (in AdjustChargeInput) validate() error {
	if strings.TrimSpace(in.Reason) == "" {
		return &ValidationError{Field: "reason", Message: "a non-empty reason is required"}
	}
	return nil
}

// ApplyAdjustment applies deltas to one member's component shares in place,
// clamping each resulting share at zero, recomputes the member's TotalDue
// and the cycle's TotalBilled as the sum of all members' totals, and returns
// the audit entry to append. The cycle is not persisted here.
func ApplyAdjustment(cycle *BillingCycle, in AdjustChargeInput, entryID string, at time.Time) (*AuditEntry, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if !cycle.Open() {
		return nil, ErrCycleClosed
	}
	mc := cycle.Charge(in.UserID)
	if mc == nil {
		return nil, ErrChargeNotFound
	}

	before := mc.TotalDue

	newRent := mc.Rent.Add(in.RentDelta).ClampNonNegative()
	newElec := mc.Electricity.Add(in.ElectricityDelta).ClampNonNegative()
	newWater := mc.Water.Add(in.WaterDelta).ClampNonNegative()
	newNet := mc.Internet.Add(in.InternetDelta).ClampNonNegative()

	entry := &AuditEntry{
		ID:               entryID,
		CycleID:          cycle.ID,
		UserID:           in.UserID,
		Kind:             AuditAdjustment,
		BeforeTotal:      before,
		RentDelta:        newRent.Sub(mc.Rent),
		ElectricityDelta: newElec.Sub(mc.Electricity),
		WaterDelta:       newWater.Sub(mc.Water),
		InternetDelta:    newNet.Sub(mc.Internet),
		Reason:           in.Reason,
		ActorID:          in.ActorID,
		CreatedAt:        at,
	}

	mc.Rent = newRent
	mc.Electricity = newElec
	mc.Water = newWater
	mc.Internet = newNet
	mc.recomputeTotal()
	entry.AfterTotal = mc.TotalDue

	// Adjustments ripple up to the cycle level.
	cycle.TotalBilled = cycle.SumMemberTotals()

	return entry, nil
}

// =============================================================================
// REFUND
// =============================================================================

// RefundInput names the refunded member, amount and bill type.
type RefundInput struct {
	CycleID  string
	UserID   string
	Amount   Money
	BillType BillType
	Reason   string
	ActorID  string
}

func (in RefundInput) validate() error {
	if strings.TrimSpace(in.Reason) == "" {
		return &ValidationError{Field: "reason", Message: "a non-empty reason is required"}
	}
	if !in.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "a positive amount is required"}
	}
	if !in.BillType.Valid() {
		return &ValidationError{Field: "billType", Message: "unknown bill type"}
	}
	return nil
}

// ApplyRefund subtracts the refunded amount from the cycle's total billed
// amount and returns the audit entry to append. The individual member's
// share is deliberately left untouched: adjustments correct a member's
// bill, refunds correct the billed total.
func ApplyRefund(cycle *BillingCycle, in RefundInput, entryID string, at time.Time) (*AuditEntry, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if !cycle.Open() {
		return nil, ErrCycleClosed
	}
	if cycle.Charge(in.UserID) == nil {
		return nil, ErrChargeNotFound
	}

	before := cycle.TotalBilled
	cycle.TotalBilled = cycle.TotalBilled.Sub(in.Amount)

	return &AuditEntry{
		ID:          entryID,
		CycleID:     cycle.ID,
		UserID:      in.UserID,
		Kind:        AuditRefund,
		BeforeTotal: before,
		AfterTotal:  cycle.TotalBilled,
		Amount:      in.Amount,
		BillType:    in.BillType,
		Reason:      in.Reason,
		ActorID:     in.ActorID,
		CreatedAt:   at,
	}, nil
}
