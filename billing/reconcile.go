/*
reconcile.go - Payment status derivation and aggregation

PURPOSE:
  Cross-references a cycle's member charges with the completed payment
  records scoped to the cycle's room and date window, deriving per-member
  per-bill-type paid/pending status and room-level collection statistics.

TOTAL-TYPE PAYMENTS:
  A "total" payment is one lump sum discharging all four components for a
  member at once. For the paid/pending flags it simply marks everything
  paid. For amount rollups it carries no component breakdown of its own,
  so the amount is imputed across components in proportion to each
  component's share of the CYCLE's total billed amount (not the member's
  own shares, to avoid bias when shares differ across members).

FAILURE SEMANTICS:
  Reconciliation never raises for data-quality issues - absent data
  degrades to zero/empty results. Missing cycles/rooms are the caller's
  (service layer's) concern.
*/
package billing

// =============================================================================
// PER-MEMBER STATUS
// =============================================================================

// MemberStatus is one member's paid/pending state for a cycle.
type MemberStatus struct {
	UserID   string
	Name     string
	IsPayer  bool
	TotalDue Money

	// Paid flags per component. A completed total-type payment sets all four.
	Paid map[BillType]bool

	// AllPaid is true when a total-type payment exists or all four
	// individual components are paid.
	AllPaid bool
}

// ReconcileSummary aggregates one cycle's collection state.
//
// TotalDue is the cycle's canonical total billed amount, not the sum of
// individually rounded member totals, to avoid drift. TotalPaid sums
// TotalDue over settled members only.
type ReconcileSummary struct {
	TotalDue             Money
	TotalPaid            Money
	TotalPending         Money
	CollectionPercentage int64
}

// ComponentCollected is the amount collected per bill component, with
// total-type payments proportionally imputed.
type ComponentCollected struct {
	Rent        Money
	Electricity Money
	Water       Money
	Internet    Money
}

// Reconciliation is the full reconciler output for one cycle.
type Reconciliation struct {
	CycleID   string
	PerMember []MemberStatus
	Summary   ReconcileSummary
	Collected ComponentCollected
}

// Reconcile derives per-member payment status and collection statistics for
// an enriched cycle. Only completed payments count; pending and rejected
// records are ignored.
func Reconcile(cycle *BillingCycle, payments []PaymentView) *Reconciliation {
	rec := &Reconciliation{CycleID: cycle.ID}

	completed := make([]PaymentView, 0, len(payments))
	for _, p := range payments {
		if p.Status == PaymentCompleted {
			completed = append(completed, p)
		}
	}

	// Index completed payments by payer and bill type.
	byPayer := make(map[string]map[BillType]bool)
	for _, p := range completed {
		if byPayer[p.PayerID] == nil {
			byPayer[p.PayerID] = make(map[BillType]bool)
		}
		byPayer[p.PayerID][p.BillType] = true
	}

	totalPaid := ZeroMoney()
	for _, mc := range cycle.MemberCharges {
		ms := MemberStatus{
			UserID:   mc.UserID,
			Name:     mc.Name,
			IsPayer:  mc.IsPayer,
			TotalDue: mc.TotalDue,
			Paid:     make(map[BillType]bool, len(ComponentBillTypes)),
		}

		types := byPayer[mc.UserID]
		lump := types[BillTotal]
		allIndividual := true
		for _, bt := range ComponentBillTypes {
			paid := lump || types[bt]
			ms.Paid[bt] = paid
			if !paid {
				allIndividual = false
			}
		}
		ms.AllPaid = lump || allIndividual

		if ms.AllPaid {
			totalPaid = totalPaid.Add(mc.TotalDue)
		}
		rec.PerMember = append(rec.PerMember, ms)
	}

	due := cycle.TotalBilled
	rec.Summary = ReconcileSummary{
		TotalDue:             due,
		TotalPaid:            totalPaid,
		TotalPending:         due.Sub(totalPaid),
		CollectionPercentage: collectionPercentage(totalPaid, due),
	}
	rec.Collected = allocateCollected(cycle, completed)
	return rec
}

// collectionPercentage is round(paid/due*100), defined as 0 when due == 0.
func collectionPercentage(paid, due Money) int64 {
	if due.IsZero() {
		return 0
	}
	return paid.Div(due.Value).MulInt(100).Value.Round(0).IntPart()
}

// allocateCollected sums completed payment amounts per component. Individual
// payments land on their own component; total-type payments are split in
// proportion to each component's share of the cycle's total billed amount.
func allocateCollected(cycle *BillingCycle, completed []PaymentView) ComponentCollected {
	var col ComponentCollected
	col.Rent = ZeroMoney()
	col.Electricity = ZeroMoney()
	col.Water = ZeroMoney()
	col.Internet = ZeroMoney()

	add := func(bt BillType, amt Money) {
		switch bt {
		case BillRent:
			col.Rent = col.Rent.Add(amt)
		case BillElectricity:
			col.Electricity = col.Electricity.Add(amt)
		case BillWater:
			col.Water = col.Water.Add(amt)
		case BillInternet:
			col.Internet = col.Internet.Add(amt)
		}
	}

	for _, p := range completed {
		if p.BillType != BillTotal {
			add(p.BillType, p.Amount)
			continue
		}
		if cycle.TotalBilled.IsZero() {
			continue
		}
		for _, bt := range ComponentBillTypes {
			fraction := cycle.ComponentTotal(bt).Div(cycle.TotalBilled.Value)
			add(bt, p.Amount.Mul(fraction.Value).Round2())
		}
	}
	return col
}

// =============================================================================
// PORTFOLIO ROLLUP - Cross-room admin statistics
// =============================================================================

// PortfolioSummary aggregates collection state over every ACTIVE cycle in
// the portfolio. Closed and archived cycles are excluded from "current"
// collection metrics.
type PortfolioSummary struct {
	ActiveCycles         int
	TotalBilled          Money
	TotalCollected       Money
	CollectionPercentage int64

	// SkippedCycles counts cycles whose payment sub-query failed and whose
	// contribution was zeroed rather than failing the whole rollup.
	SkippedCycles int
}

// CycleContribution is one active cycle's slice of the portfolio rollup.
type CycleContribution struct {
	Billed    Money
	Collected Money
}

// Contribution computes one active cycle's billed/collected amounts for the
// portfolio rollup.
func Contribution(cycle *BillingCycle, payments []PaymentView) CycleContribution {
	collected := ZeroMoney()
	for _, p := range payments {
		if p.Status == PaymentCompleted {
			collected = collected.Add(p.Amount)
		}
	}
	return CycleContribution{Billed: cycle.TotalBilled, Collected: collected}
}

// FoldPortfolio reduces cycle contributions into a portfolio summary.
// Collected is capped at billed to absorb rounding overshoot from
// independently-rounded payment amounts.
func FoldPortfolio(contributions []CycleContribution, skipped int) PortfolioSummary {
	billed := ZeroMoney()
	collected := ZeroMoney()
	for _, c := range contributions {
		billed = billed.Add(c.Billed)
		collected = collected.Add(c.Collected)
	}
	collected = collected.Min(billed)
	return PortfolioSummary{
		ActiveCycles:         len(contributions),
		TotalBilled:          billed,
		TotalCollected:       collected,
		CollectionPercentage: collectionPercentage(collected, billed),
		SkippedCycles:        skipped,
	}
}
