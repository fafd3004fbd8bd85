package billing

import "time"

// =============================================================================
// BILLING CYCLE - One billing period for a room
// =============================================================================

// BillingCycle is one billing period for a room: the raw bill totals entered
// by an administrator, plus the derived member-charge snapshot.
//
// Invariant after proration:
//   TotalBilled == Rent + Electricity + WaterTotal + Internet
// After adjustments the cycle total is instead the sum of all members'
// TotalDue (adjustments ripple up; see adjustment.go).
//
// The member-charge snapshot is persisted with a monotonic ChargesVersion.
// Every write of the snapshot must compare-and-swap against the stored
// version; a lost race surfaces as ErrConcurrentModification.
type BillingCycle struct {
	ID       string
	RoomID   string
	Sequence int
	Window   Window
	Status   CycleStatus

	// Fixed bill totals entered at creation.
	Rent        Money
	Electricity Money
	Internet    Money

	// WaterTotal may be entered, or derived from presence data on first
	// proration when zero/unset.
	WaterTotal Money

	// TotalBilled is derived; never entered directly.
	TotalBilled Money

	MemberCount   int
	MemberCharges []MemberCharge

	// ChargesVersion is 0 until the first proration persists a snapshot,
	// then increments on every snapshot write.
	ChargesVersion int

	CreatedAt time.Time
	ClosedAt  *time.Time
	ClosedBy  string
}

// Enriched reports whether a member-charge snapshot has been persisted.
func (c *BillingCycle) Enriched() bool { return c.ChargesVersion > 0 }

// Open reports whether the cycle still accepts mutation.
func (c *BillingCycle) Open() bool { return c.Status == CycleActive }

// Charge returns the member charge for a user, or nil.
func (c *BillingCycle) Charge(userID string) *MemberCharge {
	for i := range c.MemberCharges {
		if c.MemberCharges[i].UserID == userID {
			return &c.MemberCharges[i]
		}
	}
	return nil
}

// PayerCount counts is-payer entries in the charge snapshot.
func (c *BillingCycle) PayerCount() int {
	n := 0
	for _, mc := range c.MemberCharges {
		if mc.IsPayer {
			n++
		}
	}
	return n
}

// SumMemberTotals returns the sum of all members' TotalDue.
func (c *BillingCycle) SumMemberTotals() Money {
	sum := ZeroMoney()
	for _, mc := range c.MemberCharges {
		sum = sum.Add(mc.TotalDue)
	}
	return sum
}

// ComponentTotal returns the cycle-level total for one bill component.
func (c *BillingCycle) ComponentTotal(bt BillType) Money {
	switch bt {
	case BillRent:
		return c.Rent
	case BillElectricity:
		return c.Electricity
	case BillWater:
		return c.WaterTotal
	case BillInternet:
		return c.Internet
	}
	return ZeroMoney()
}

// =============================================================================
// MEMBER CHARGE - One member's obligation for one cycle
// =============================================================================

// MemberCharge is one room member's obligation for one cycle. Charges are
// keyed by UserID so a recompute never invents new identifiers (recomputes
// must be bit-identical for identical inputs).
//
// Non-payers carry zero fixed-bill shares and a zero water share; their own
// water consumption is still tracked (WaterOwn) for display, and is billed
// to the payers via redistribution.
type MemberCharge struct {
	UserID       string
	Name         string
	IsPayer      bool
	PresenceDays int

	// WaterOwn is the member's own presence-based consumption
	// (PresenceDays × water rate), tracked for everyone.
	WaterOwn Money

	// Component shares. For non-payers all four are zero.
	Rent        Money
	Electricity Money
	Water       Money
	Internet    Money

	TotalDue Money
}

// recomputeTotal rederives TotalDue from the component shares.
func (mc *MemberCharge) recomputeTotal() {
	mc.TotalDue = mc.Rent.Add(mc.Electricity).Add(mc.Water).Add(mc.Internet)
}

// Share returns one component share by bill type.
func (mc *MemberCharge) Share(bt BillType) Money {
	switch bt {
	case BillRent:
		return mc.Rent
	case BillElectricity:
		return mc.Electricity
	case BillWater:
		return mc.Water
	case BillInternet:
		return mc.Internet
	}
	return ZeroMoney()
}
