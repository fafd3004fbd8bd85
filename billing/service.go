/*
service.go - Engine orchestration with per-cycle serialization

PURPOSE:
  Wires the pure calculators to the stores and enforces the concurrency
  discipline: all mutations to a given cycle's charge snapshot go through
  a per-cycle lock, and every snapshot write compare-and-swaps on the
  stored version. A read-triggered proration fill can therefore never
  discard an in-flight adjustment, and the auto-close transition can never
  interleave with one.

LAZY PRORATION AS CACHE FILL:
  The first read of a cycle computes and persists the charge snapshot
  (version 0 -> 1). Subsequent reads serve the stored snapshot, which is
  authoritative once adjustments may have touched it. Recalculate rebuilds
  the snapshot from current membership/presence inputs on demand.

AUTO-CLOSE:
  Invoked after every completed payment and from the background sweep.
  Idempotent: repeated calls on an already-completed cycle are no-ops.
  Internal failures are swallowed and reported as "not closed" so a failed
  check never blocks the payment flow that triggered it.
*/
package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service orchestrates proration, reconciliation, adjustments and the cycle
// lifecycle over the persistence interfaces.
type Service struct {
	store    MutationStore
	members  MemberSource
	payments PaymentSource
	rates    Rates
	log      *zap.Logger

	locks *cycleLocks
	now   func() time.Time
}

func NewService(store MutationStore, members MemberSource, payments PaymentSource, rates Rates, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:    store,
		members:  members,
		payments: payments,
		rates:    rates,
		log:      log,
		locks:    newCycleLocks(),
		now:      time.Now,
	}
}

// Rates returns the service's rate card.
func (s *Service) Rates() Rates { return s.rates }

// =============================================================================
// ENRICH - Lazy proration as versioned cache fill
// =============================================================================

// Enrich returns the cycle with its member charges, water total and total
// billed amount populated, computing and persisting the snapshot on first
// read. Idempotent: identical inputs yield identical output.
func (s *Service) Enrich(ctx context.Context, cycleID string) (*BillingCycle, error) {
	release := s.locks.Acquire(cycleID)
	defer release()
	return s.enrichLocked(ctx, cycleID)
}

func (s *Service) enrichLocked(ctx context.Context, cycleID string) (*BillingCycle, error) {
	cycle, err := s.store.Cycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if cycle.Enriched() {
		return cycle, nil
	}

	members, err := s.members.Members(ctx, cycle.RoomID)
	if err != nil {
		return nil, err
	}
	EnrichCycle(cycle, members, s.rates)

	if err := s.store.SaveCycle(ctx, cycle, 0); err != nil {
		if IsRetryable(err) {
			// Another fill won the race; its snapshot is authoritative.
			return s.store.Cycle(ctx, cycleID)
		}
		return nil, err
	}
	return cycle, nil
}

// Recalculate rebuilds an open cycle's charge snapshot from the current
// membership and presence inputs, discarding the previous snapshot (audit
// entries for past adjustments remain in the audit log). Use after
// membership or presence changes mid-cycle.
func (s *Service) Recalculate(ctx context.Context, cycleID string) (*BillingCycle, error) {
	release := s.locks.Acquire(cycleID)
	defer release()

	cycle, err := s.store.Cycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if !cycle.Open() {
		return nil, ErrCycleClosed
	}

	members, err := s.members.Members(ctx, cycle.RoomID)
	if err != nil {
		return nil, err
	}
	version := cycle.ChargesVersion
	EnrichCycle(cycle, members, s.rates)

	if err := s.store.SaveCycle(ctx, cycle, version); err != nil {
		return nil, err
	}
	return cycle, nil
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// Reconcile derives per-member payment status and collection statistics for
// one cycle, enriching it first if needed.
func (s *Service) Reconcile(ctx context.Context, cycleID string) (*Reconciliation, error) {
	cycle, err := s.Enrich(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	payments, err := s.payments.PaymentsInWindow(ctx, cycle.RoomID, cycle.Window)
	if err != nil {
		return nil, err
	}
	return Reconcile(cycle, payments), nil
}

// RoomSummary reconciles a room's current active cycle.
func (s *Service) RoomSummary(ctx context.Context, roomID string) (*Reconciliation, error) {
	cycle, err := s.store.ActiveCycle(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return s.Reconcile(ctx, cycle.ID)
}

// Portfolio aggregates collection statistics over every active cycle. A
// failing sub-query never fails the whole rollup: that cycle's contribution
// is skipped and the failure logged.
func (s *Service) Portfolio(ctx context.Context) (PortfolioSummary, error) {
	cycles, err := s.store.ListActiveCycles(ctx)
	if err != nil {
		return PortfolioSummary{}, err
	}

	var contributions []CycleContribution
	skipped := 0
	for _, c := range cycles {
		enriched, err := s.Enrich(ctx, c.ID)
		if err != nil {
			s.log.Warn("portfolio: skipping cycle, enrich failed",
				zap.String("cycle_id", c.ID), zap.Error(err))
			skipped++
			continue
		}
		payments, err := s.payments.PaymentsInWindow(ctx, enriched.RoomID, enriched.Window)
		if err != nil {
			s.log.Warn("portfolio: skipping cycle, payment query failed",
				zap.String("cycle_id", c.ID), zap.Error(err))
			skipped++
			continue
		}
		contributions = append(contributions, Contribution(enriched, payments))
	}
	return FoldPortfolio(contributions, skipped), nil
}

// =============================================================================
// CYCLE LIFECYCLE - Auto-close decision
// =============================================================================

// AutoCloseResult reports the outcome of one auto-close check.
type AutoCloseResult struct {
	Closed  bool
	CycleID string
}

// CheckAutoClose closes a room's current cycle if every payer has settled
// every bill component. Zero-payer rooms never auto-close. Safe to call
// redundantly; internal failures are swallowed, logged, and reported as
// not closed. Only an unknown room is surfaced as an error.
func (s *Service) CheckAutoClose(ctx context.Context, roomID string) (AutoCloseResult, error) {
	// Room existence is the caller's input; verify before swallowing.
	if _, err := s.members.Members(ctx, roomID); err != nil {
		return AutoCloseResult{}, err
	}

	cycle, err := s.store.ActiveCycle(ctx, roomID)
	if err != nil {
		if IsNotFound(err) {
			return AutoCloseResult{}, nil
		}
		s.log.Warn("auto-close: cycle lookup failed", zap.String("room_id", roomID), zap.Error(err))
		return AutoCloseResult{}, nil
	}

	release := s.locks.Acquire(cycle.ID)
	defer release()

	// Reload under the lock: an adjustment or a concurrent close may have
	// moved the snapshot since the lookup.
	cycle, err = s.store.Cycle(ctx, cycle.ID)
	if err != nil {
		s.log.Warn("auto-close: reload failed", zap.String("room_id", roomID), zap.Error(err))
		return AutoCloseResult{}, nil
	}
	if !cycle.Open() {
		return AutoCloseResult{CycleID: cycle.ID}, nil
	}

	if !cycle.Enriched() {
		enriched, err := s.enrichLocked(ctx, cycle.ID)
		if err != nil {
			s.log.Warn("auto-close: enrich failed", zap.String("cycle_id", cycle.ID), zap.Error(err))
			return AutoCloseResult{}, nil
		}
		cycle = enriched
	}

	if cycle.PayerCount() == 0 {
		// Ambiguous policy resolved as: never auto-close an unpayable room.
		return AutoCloseResult{CycleID: cycle.ID}, nil
	}

	payments, err := s.payments.PaymentsInWindow(ctx, cycle.RoomID, cycle.Window)
	if err != nil {
		s.log.Warn("auto-close: payment query failed", zap.String("cycle_id", cycle.ID), zap.Error(err))
		return AutoCloseResult{}, nil
	}

	rec := Reconcile(cycle, payments)
	for _, ms := range rec.PerMember {
		if ms.IsPayer && !ms.AllPaid {
			return AutoCloseResult{CycleID: cycle.ID}, nil
		}
	}

	closedAt := s.now()
	if err := s.store.CloseCycle(ctx, cycle, cycle.ChargesVersion, closedAt, "system"); err != nil {
		s.log.Warn("auto-close: close transition failed", zap.String("cycle_id", cycle.ID), zap.Error(err))
		return AutoCloseResult{}, nil
	}
	s.log.Info("cycle auto-closed",
		zap.String("room_id", roomID),
		zap.String("cycle_id", cycle.ID),
		zap.Int("sequence", cycle.Sequence))
	return AutoCloseResult{Closed: true, CycleID: cycle.ID}, nil
}

// =============================================================================
// ADJUSTMENTS AND REFUNDS
// =============================================================================

// AdjustCharge applies admin deltas to one member's charge. The mutated
// cycle and the audit entry are persisted atomically; validation failures
// reject before any mutation.
func (s *Service) AdjustCharge(ctx context.Context, in AdjustChargeInput) (*BillingCycle, error) {
	release := s.locks.Acquire(in.CycleID)
	defer release()

	cycle, err := s.enrichLocked(ctx, in.CycleID)
	if err != nil {
		return nil, err
	}
	version := cycle.ChargesVersion

	entry, err := ApplyAdjustment(cycle, in, uuid.NewString(), s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveCycleWithAudit(ctx, cycle, version, *entry); err != nil {
		return nil, err
	}
	return cycle, nil
}

// Refund subtracts a refunded amount from the cycle's total billed amount
// and appends the audit entry atomically.
func (s *Service) Refund(ctx context.Context, in RefundInput) (*BillingCycle, error) {
	release := s.locks.Acquire(in.CycleID)
	defer release()

	cycle, err := s.enrichLocked(ctx, in.CycleID)
	if err != nil {
		return nil, err
	}
	version := cycle.ChargesVersion

	entry, err := ApplyRefund(cycle, in, uuid.NewString(), s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveCycleWithAudit(ctx, cycle, version, *entry); err != nil {
		return nil, err
	}
	return cycle, nil
}

// AuditTrail lists a cycle's adjustment/refund entries, oldest first.
func (s *Service) AuditTrail(ctx context.Context, cycleID string) ([]AuditEntry, error) {
	if _, err := s.store.Cycle(ctx, cycleID); err != nil {
		return nil, err
	}
	return s.store.AuditEntries(ctx, cycleID)
}
