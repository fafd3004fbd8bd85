/*
Package billing provides the proration and reconciliation engine for
shared-apartment bill splitting.

PURPOSE:
  This package contains the types and algorithms that split a room's fixed
  and usage-based bills across its members for a billing cycle, reconcile
  payment records against the resulting per-member obligations, and decide
  when a cycle is fully settled and can be closed.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A fixed-point decimal amount (single currency, 2-decimal cents)
  - Date / Window: Calendar-date granularity; cycles are inclusive windows
  - BillType: The four bill components plus the lump "total" payment type
  - Member: The narrow membership shape consumed from the rooms collaborator

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point drift
  2. Determinism: Identical inputs always produce bit-identical charges
  3. Conservation: Per-component member shares always sum to the cycle total
  4. Auditability: Every post-hoc mutation appends an immutable audit entry

USAGE:
  charges := billing.Prorate(cycle, members, billing.DefaultRates())
  rec := billing.Reconcile(cycle, payments)

SEE ALSO:
  - proration.go: Per-member charge calculation
  - reconcile.go: Payment status derivation and aggregation
  - adjustment.go: Admin deltas and refunds
  - service.go: Orchestration with per-cycle serialization
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Fixed-point decimal amount (single currency)
// =============================================================================

type Money struct {
	Value decimal.Decimal
}

func NewMoney(value float64) Money {
	return Money{Value: decimal.NewFromFloat(value)}
}

func NewMoneyFromInt(value int) Money {
	return Money{Value: decimal.NewFromInt(int64(value))}
}

func ZeroMoney() Money {
	return Money{Value: decimal.Zero}
}

func MustParseMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroMoney()
	}
	return Money{Value: d}
}

func (m Money) Add(b Money) Money          { return Money{Value: m.Value.Add(b.Value)} }
func (m Money) Sub(b Money) Money          { return Money{Value: m.Value.Sub(b.Value)} }
func (m Money) Mul(s decimal.Decimal) Money { return Money{Value: m.Value.Mul(s)} }
func (m Money) Div(s decimal.Decimal) Money { return Money{Value: m.Value.Div(s)} }
func (m Money) MulInt(n int) Money         { return Money{Value: m.Value.Mul(decimal.NewFromInt(int64(n)))} }
func (m Money) DivInt(n int) Money         { return Money{Value: m.Value.Div(decimal.NewFromInt(int64(n)))} }
func (m Money) Neg() Money                 { return Money{Value: m.Value.Neg()} }
func (m Money) IsNegative() bool           { return m.Value.IsNegative() }
func (m Money) IsZero() bool               { return m.Value.IsZero() }
func (m Money) IsPositive() bool           { return m.Value.IsPositive() }
func (m Money) Equal(b Money) bool         { return m.Value.Equal(b.Value) }
func (m Money) GreaterThan(b Money) bool   { return m.Value.GreaterThan(b.Value) }
func (m Money) LessThan(b Money) bool      { return m.Value.LessThan(b.Value) }

// Round2 rounds to 2 decimal places (cents).
func (m Money) Round2() Money { return Money{Value: m.Value.Round(2)} }

// ClampNonNegative floors the amount at zero.
func (m Money) ClampNonNegative() Money {
	if m.IsNegative() {
		return ZeroMoney()
	}
	return m
}

func (m Money) Min(b Money) Money {
	if m.LessThan(b) {
		return m
	}
	return b
}

func (m Money) String() string { return m.Value.StringFixed(2) }

// =============================================================================
// DATE / WINDOW - Calendar-date granularity
// =============================================================================

// Date is a calendar date (UTC midnight). Presence is a discrete date set,
// not a duration; partial-day semantics are not supported.
type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func DateOf(t time.Time) Date {
	return Date{Time: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

func (d Date) normalize() time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

func (d Date) Before(other Date) bool        { return d.normalize().Before(other.normalize()) }
func (d Date) After(other Date) bool         { return d.normalize().After(other.normalize()) }
func (d Date) Equal(other Date) bool         { return d.normalize().Equal(other.normalize()) }
func (d Date) BeforeOrEqual(other Date) bool { return d.Before(other) || d.Equal(other) }
func (d Date) AfterOrEqual(other Date) bool  { return d.After(other) || d.Equal(other) }
func (d Date) AddDays(n int) Date            { return Date{Time: d.Time.AddDate(0, 0, n)} }
func (d Date) IsZero() bool                  { return d.Time.IsZero() }

func (d Date) String() string { return d.Time.Format("2006-01-02") }

// Window is an inclusive [Start, End] date range for one billing cycle.
type Window struct {
	Start Date
	End   Date
}

// Contains returns true if the date falls within the inclusive window.
func (w Window) Contains(d Date) bool {
	return d.AfterOrEqual(w.Start) && d.BeforeOrEqual(w.End)
}

// Days returns the number of calendar days covered by the window.
func (w Window) Days() int {
	return int(w.End.normalize().Sub(w.Start.normalize()).Hours()/24) + 1
}

func (w Window) String() string {
	return "[" + w.Start.String() + ", " + w.End.String() + "]"
}

// CountPresence counts presence dates falling inside the window.
func CountPresence(dates []Date, w Window) int {
	n := 0
	for _, d := range dates {
		if w.Contains(d) {
			n++
		}
	}
	return n
}

// =============================================================================
// BILL TYPES AND STATUSES
// =============================================================================

type BillType string

const (
	BillRent        BillType = "rent"
	BillElectricity BillType = "electricity"
	BillWater       BillType = "water"
	BillInternet    BillType = "internet"

	// BillTotal is one lump payment intended to cover all four components.
	// It discharges every component at once and is never double-counted
	// against individual bill-type obligations.
	BillTotal BillType = "total"
)

// ComponentBillTypes are the four per-component obligations, in canonical
// order. BillTotal is deliberately excluded.
var ComponentBillTypes = []BillType{BillRent, BillElectricity, BillWater, BillInternet}

func (bt BillType) Valid() bool {
	switch bt {
	case BillRent, BillElectricity, BillWater, BillInternet, BillTotal:
		return true
	}
	return false
}

type CycleStatus string

const (
	CycleActive    CycleStatus = "active"
	CycleCompleted CycleStatus = "completed"
	CycleArchived  CycleStatus = "archived"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentRejected  PaymentStatus = "rejected"
)

// =============================================================================
// MEMBER - Narrow membership shape consumed from the rooms collaborator
// =============================================================================

// Member is the read-only membership input to proration: who lives in the
// room, whether they share the fixed bills, and which days they were
// physically present.
type Member struct {
	UserID   string
	Name     string
	IsPayer  bool
	JoinedAt time.Time
	Presence []Date
}

// PaymentView is the narrow payment shape consumed by the reconciler.
type PaymentView struct {
	PayerID  string
	BillType BillType
	Amount   Money
	Status   PaymentStatus
}

// =============================================================================
// RATES - Tunable billing constants
// =============================================================================

// Rates carries the usage-based billing constants. The water rate is a flat
// per-presence-day charge.
type Rates struct {
	WaterPerDay Money
}

// DefaultRates returns the standard rate card (₱5 of water per presence day).
func DefaultRates() Rates {
	return Rates{WaterPerDay: NewMoneyFromInt(5)}
}
