/*
proration.go - Per-member charge calculation

PURPOSE:
  Splits a cycle's fixed bills (rent, electricity, internet) evenly across
  the room's payers and prorates the water bill by presence days, folding
  non-payers' consumption into the payers' shares.

SUM EXACTNESS:
  Each payer's even share is rounded to cents independently, which would
  normally let the shares drift from the cycle total. The last payer in
  iteration order therefore receives `total - sum(already assigned)` so
  that per-component shares always sum to the cycle total exactly.

ORDERING:
  The remainder rule depends on payer iteration order, so the order must
  be stable across recomputes. Payers are sorted by (JoinedAt, UserID)
  ascending before shares are assigned; storage order is never trusted.

WATER:
  ownWater(member)    = presenceDays(member) × rate
  nonPayorPool        = Σ ownWater over non-payers
  waterShare(payer i) = ownWater(payer i) + evenSplit(nonPayorPool)[i]

  The pool split uses the same last-payer-remainder rule, so
  Σ waterShare over payers == Σ ownWater over all members exactly.

FAILURE SEMANTICS:
  Pure and best-effort: zero payers yields all-zero shares, missing totals
  default to zero, and the function is safe to re-invoke on every read.
*/
package billing

import "sort"

// Prorate computes the per-member charge breakdown for a cycle. It is a pure
// function of (cycle totals, members, window, rates): identical inputs
// produce bit-identical output.
func Prorate(cycle *BillingCycle, members []Member, rates Rates) []MemberCharge {
	ordered := make([]Member, len(members))
	copy(ordered, members)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].JoinedAt.Equal(ordered[j].JoinedAt) {
			return ordered[i].JoinedAt.Before(ordered[j].JoinedAt)
		}
		return ordered[i].UserID < ordered[j].UserID
	})

	charges := make([]MemberCharge, len(ordered))
	payerIdx := make([]int, 0, len(ordered))
	nonPayorPool := ZeroMoney()

	for i, m := range ordered {
		days := CountPresence(m.Presence, cycle.Window)
		own := rates.WaterPerDay.MulInt(days).Round2()

		charges[i] = MemberCharge{
			UserID:       m.UserID,
			Name:         m.Name,
			IsPayer:      m.IsPayer,
			PresenceDays: days,
			WaterOwn:     own,
			Rent:         ZeroMoney(),
			Electricity:  ZeroMoney(),
			Water:        ZeroMoney(),
			Internet:     ZeroMoney(),
			TotalDue:     ZeroMoney(),
		}

		if m.IsPayer {
			payerIdx = append(payerIdx, i)
		} else {
			nonPayorPool = nonPayorPool.Add(own)
		}
	}

	n := len(payerIdx)
	if n == 0 {
		// A room with no payers is a valid steady state, not an error.
		return charges
	}

	rentShares := splitEven(cycle.Rent, n)
	elecShares := splitEven(cycle.Electricity, n)
	netShares := splitEven(cycle.Internet, n)
	poolShares := splitEven(nonPayorPool, n)

	for k, i := range payerIdx {
		charges[i].Rent = rentShares[k]
		charges[i].Electricity = elecShares[k]
		charges[i].Internet = netShares[k]
		charges[i].Water = charges[i].WaterOwn.Add(poolShares[k])
		charges[i].recomputeTotal()
	}

	return charges
}

// EnrichCycle populates the cycle's derived fields in place: the member
// charges, the water total (when unset at creation), the member count and
// the total billed amount. Idempotent for identical inputs.
func EnrichCycle(cycle *BillingCycle, members []Member, rates Rates) {
	charges := Prorate(cycle, members, rates)

	if cycle.WaterTotal.IsZero() {
		// Room-wide water consumption: everyone's own usage, payers and
		// non-payers alike. Non-payers are folded into payer shares, never
		// double counted.
		total := ZeroMoney()
		for _, mc := range charges {
			total = total.Add(mc.WaterOwn)
		}
		cycle.WaterTotal = total
	}

	cycle.MemberCharges = charges
	cycle.MemberCount = len(charges)
	cycle.TotalBilled = cycle.Rent.
		Add(cycle.Electricity).
		Add(cycle.WaterTotal).
		Add(cycle.Internet)
}

// splitEven divides total across n recipients: the rounded even share for
// everyone except the last, who absorbs the rounding remainder so the parts
// sum to the whole exactly.
func splitEven(total Money, n int) []Money {
	if n <= 0 {
		return nil
	}
	shares := make([]Money, n)
	each := total.DivInt(n).Round2()
	assigned := ZeroMoney()
	for i := 0; i < n-1; i++ {
		shares[i] = each
		assigned = assigned.Add(each)
	}
	shares[n-1] = total.Sub(assigned)
	return shares
}
