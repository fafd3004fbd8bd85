package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/payments"
	"github.com/warp/billing-engine/rooms"
	"github.com/warp/billing-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedRoom(t *testing.T, st *sqlite.Store, roomID string) *rooms.Room {
	t.Helper()
	room := &rooms.Room{ID: roomID, Name: "Test Room", CreatedAt: time.Now()}
	require.NoError(t, st.CreateRoom(context.Background(), room))
	return room
}

func seedMember(t *testing.T, st *sqlite.Store, roomID, userID string, isPayer bool, joinedAt time.Time) {
	t.Helper()
	require.NoError(t, st.AddMember(context.Background(), &rooms.Member{
		RoomID:   roomID,
		UserID:   userID,
		Name:     userID,
		IsPayer:  isPayer,
		JoinedAt: joinedAt,
	}))
}

func seedCycle(t *testing.T, st *sqlite.Store, roomID, cycleID string) *billing.BillingCycle {
	t.Helper()
	cycle := &billing.BillingCycle{
		ID:       cycleID,
		RoomID:   roomID,
		Sequence: 1,
		Window: billing.Window{
			Start: billing.NewDate(2026, time.August, 1),
			End:   billing.NewDate(2026, time.August, 31),
		},
		Status:      billing.CycleActive,
		Rent:        billing.MustParseMoney("1000.00"),
		Electricity: billing.MustParseMoney("200.00"),
		Internet:    billing.MustParseMoney("150.00"),
		WaterTotal:  billing.ZeroMoney(),
		TotalBilled: billing.MustParseMoney("1350.00"),
		CreatedAt:   time.Now(),
	}
	require.NoError(t, st.CreateCycle(context.Background(), cycle))
	return cycle
}

// =============================================================================
// ROOMS AND MEMBERS
// =============================================================================

func TestStore_RoomRoundtrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	seedRoom(t, st, "room-1")

	room, err := st.Room(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, "Test Room", room.Name)
	assert.Empty(t, room.CurrentCycleID)
	assert.Equal(t, 0, room.CycleSeq)

	_, err = st.Room(ctx, "missing")
	assert.ErrorIs(t, err, billing.ErrRoomNotFound)
}

func TestStore_RoomMembers_OrderedByJoinedAtThenUserID(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, st, "room-1")

	base := time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)
	seedMember(t, st, "room-1", "zed", true, base)
	seedMember(t, st, "room-1", "amy", true, base)          // same instant, id breaks tie
	seedMember(t, st, "room-1", "bob", true, base.AddDate(0, 0, -1))

	members, err := st.RoomMembers(ctx, "room-1")
	require.NoError(t, err)
	require.Len(t, members, 3)
	assert.Equal(t, "bob", members[0].UserID)
	assert.Equal(t, "amy", members[1].UserID)
	assert.Equal(t, "zed", members[2].UserID)
}

func TestStore_RecordPresence_DeduplicatesAndValidatesMember(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, st, "room-1")
	seedMember(t, st, "room-1", "alice", true, time.Now())

	day := billing.NewDate(2026, time.August, 5)
	require.NoError(t, st.RecordPresence(ctx, "room-1", "alice", day))
	require.NoError(t, st.RecordPresence(ctx, "room-1", "alice", day)) // duplicate, no-op

	members, err := st.RoomMembers(ctx, "room-1")
	require.NoError(t, err)
	require.Len(t, members[0].Presence, 1)

	err = st.RecordPresence(ctx, "room-1", "ghost", day)
	assert.ErrorIs(t, err, billing.ErrMemberNotFound)
}

func TestStore_OpenCycle_SetsPointerAndRejectsSecond(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	room := seedRoom(t, st, "room-1")

	first := seedCycleStruct("room-1", "cycle-1")
	require.NoError(t, st.OpenCycle(ctx, room, first))

	stored, err := st.Room(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, "cycle-1", stored.CurrentCycleID)
	assert.Equal(t, 1, stored.CycleSeq)

	// A second open while the pointer is set must fail.
	second := seedCycleStruct("room-1", "cycle-2")
	err = st.OpenCycle(ctx, stored, second)
	assert.ErrorIs(t, err, billing.ErrValidation)
}

func seedCycleStruct(roomID, cycleID string) *billing.BillingCycle {
	return &billing.BillingCycle{
		ID:       cycleID,
		RoomID:   roomID,
		Sequence: 1,
		Window: billing.Window{
			Start: billing.NewDate(2026, time.August, 1),
			End:   billing.NewDate(2026, time.August, 31),
		},
		Status:      billing.CycleActive,
		Rent:        billing.MustParseMoney("1000.00"),
		Electricity: billing.MustParseMoney("200.00"),
		Internet:    billing.MustParseMoney("150.00"),
		WaterTotal:  billing.ZeroMoney(),
		TotalBilled: billing.MustParseMoney("1350.00"),
		CreatedAt:   time.Now(),
	}
}

// =============================================================================
// CYCLES - Versioned snapshot CAS
// =============================================================================

func TestStore_SaveCycle_VersionCompareAndSwap(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, st, "room-1")
	cycle := seedCycle(t, st, "room-1", "cycle-1")

	cycle.MemberCharges = []billing.MemberCharge{{
		UserID: "alice", Name: "Alice", IsPayer: true, PresenceDays: 20,
		WaterOwn: billing.MustParseMoney("100.00"),
		Rent:     billing.MustParseMoney("1000.00"),
		Electricity: billing.MustParseMoney("200.00"),
		Water:    billing.MustParseMoney("100.00"),
		Internet: billing.MustParseMoney("150.00"),
		TotalDue: billing.MustParseMoney("1450.00"),
	}}
	cycle.MemberCount = 1

	// First save: version 0 -> 1.
	require.NoError(t, st.SaveCycle(ctx, cycle, 0))
	assert.Equal(t, 1, cycle.ChargesVersion)

	// A stale writer still expecting version 0 loses the race.
	stale := *cycle
	err := st.SaveCycle(ctx, &stale, 0)
	assert.ErrorIs(t, err, billing.ErrConcurrentModification)

	// The current version succeeds.
	require.NoError(t, st.SaveCycle(ctx, cycle, 1))
	assert.Equal(t, 2, cycle.ChargesVersion)

	stored, err := st.Cycle(ctx, "cycle-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.ChargesVersion)
	require.Len(t, stored.MemberCharges, 1)
	assert.Equal(t, "1450.00", stored.MemberCharges[0].TotalDue.String())
}

func TestStore_SaveCycle_UnknownCycle(t *testing.T) {
	st := newTestStore(t)
	cycle := seedCycleStruct("room-1", "nope")
	err := st.SaveCycle(context.Background(), cycle, 0)
	assert.ErrorIs(t, err, billing.ErrCycleNotFound)
}

func TestStore_CloseCycle_ClearsRoomPointer(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	room := seedRoom(t, st, "room-1")
	cycle := seedCycleStruct("room-1", "cycle-1")
	require.NoError(t, st.OpenCycle(ctx, room, cycle))

	active, err := st.ActiveCycle(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, "cycle-1", active.ID)

	closedAt := time.Now()
	require.NoError(t, st.CloseCycle(ctx, active, active.ChargesVersion, closedAt, "system"))

	stored, err := st.Cycle(ctx, "cycle-1")
	require.NoError(t, err)
	assert.Equal(t, billing.CycleCompleted, stored.Status)
	assert.Equal(t, "system", stored.ClosedBy)
	require.NotNil(t, stored.ClosedAt)

	_, err = st.ActiveCycle(ctx, "room-1")
	assert.ErrorIs(t, err, billing.ErrCycleNotFound)

	updatedRoom, err := st.Room(ctx, "room-1")
	require.NoError(t, err)
	assert.Empty(t, updatedRoom.CurrentCycleID)
}

func TestStore_ListActiveCycles(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, st, "room-1")
	seedRoom(t, st, "room-2")
	seedCycle(t, st, "room-1", "cycle-1")
	c2 := seedCycle(t, st, "room-2", "cycle-2")

	require.NoError(t, st.CloseCycle(ctx, c2, 0, time.Now(), "system"))

	active, err := st.ListActiveCycles(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "cycle-1", active[0].ID)
}

// =============================================================================
// PAYMENTS
// =============================================================================

func seedPayment(t *testing.T, st *sqlite.Store, id, roomID, payerID string, bt billing.BillType, amount string, paidAt billing.Date) *payments.Payment {
	t.Helper()
	p := &payments.Payment{
		ID:        id,
		RoomID:    roomID,
		PayerID:   payerID,
		BillType:  bt,
		Amount:    billing.MustParseMoney(amount),
		Status:    billing.PaymentPending,
		PaidAt:    paidAt,
		CreatedAt: time.Now(),
	}
	require.NoError(t, st.CreatePayment(context.Background(), p))
	return p
}

func TestStore_Payment_StatusTransitionEnforced(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, st, "room-1")
	seedPayment(t, st, "pay-1", "room-1", "alice", billing.BillRent, "333.33",
		billing.NewDate(2026, time.August, 10))

	verifiedAt := time.Now()
	require.NoError(t, st.SetPaymentStatus(ctx, "pay-1", billing.PaymentCompleted, &verifiedAt))

	stored, err := st.Payment(ctx, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, billing.PaymentCompleted, stored.Status)
	require.NotNil(t, stored.VerifiedAt)

	// A completed payment never transitions again.
	err = st.SetPaymentStatus(ctx, "pay-1", billing.PaymentRejected, nil)
	assert.ErrorIs(t, err, billing.ErrPaymentNotFound)

	_, err = st.Payment(ctx, "missing")
	assert.ErrorIs(t, err, billing.ErrPaymentNotFound)
}

func TestStore_PaymentsInWindow_FiltersByRoomAndDate(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, st, "room-1")
	seedRoom(t, st, "room-2")

	seedPayment(t, st, "pay-in", "room-1", "alice", billing.BillTotal, "500.00",
		billing.NewDate(2026, time.August, 15))
	seedPayment(t, st, "pay-early", "room-1", "alice", billing.BillTotal, "400.00",
		billing.NewDate(2026, time.July, 31))
	seedPayment(t, st, "pay-late", "room-1", "alice", billing.BillTotal, "300.00",
		billing.NewDate(2026, time.September, 1))
	seedPayment(t, st, "pay-other-room", "room-2", "bob", billing.BillTotal, "200.00",
		billing.NewDate(2026, time.August, 15))

	w := billing.Window{
		Start: billing.NewDate(2026, time.August, 1),
		End:   billing.NewDate(2026, time.August, 31),
	}
	views, err := st.PaymentsInWindow(ctx, "room-1", w)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "500.00", views[0].Amount.String())
}

func TestStore_PaymentsByRoom_NewestFirst(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, st, "room-1")

	older := &payments.Payment{
		ID: "pay-old", RoomID: "room-1", PayerID: "a",
		BillType: billing.BillRent, Amount: billing.MustParseMoney("1.00"),
		Status: billing.PaymentPending, PaidAt: billing.NewDate(2026, time.August, 1),
		CreatedAt: time.Date(2026, time.August, 1, 9, 0, 0, 0, time.UTC),
	}
	newer := &payments.Payment{
		ID: "pay-new", RoomID: "room-1", PayerID: "a",
		BillType: billing.BillRent, Amount: billing.MustParseMoney("2.00"),
		Status: billing.PaymentPending, PaidAt: billing.NewDate(2026, time.August, 2),
		CreatedAt: time.Date(2026, time.August, 2, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, st.CreatePayment(ctx, older))
	require.NoError(t, st.CreatePayment(ctx, newer))

	list, err := st.PaymentsByRoom(ctx, "room-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "pay-new", list[0].ID)
	assert.Equal(t, "pay-old", list[1].ID)
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func TestStore_SaveCycleWithAudit_Atomic(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, st, "room-1")
	cycle := seedCycle(t, st, "room-1", "cycle-1")

	entry := billing.AuditEntry{
		ID:          "audit-1",
		CycleID:     "cycle-1",
		UserID:      "alice",
		Kind:        billing.AuditAdjustment,
		BeforeTotal: billing.MustParseMoney("500.00"),
		AfterTotal:  billing.MustParseMoney("450.00"),
		RentDelta:   billing.MustParseMoney("-50.00"),
		ElectricityDelta: billing.ZeroMoney(),
		WaterDelta:       billing.ZeroMoney(),
		InternetDelta:    billing.ZeroMoney(),
		Amount:           billing.ZeroMoney(),
		Reason:           "plumbing repair credit",
		ActorID:          "admin",
		CreatedAt:        time.Now(),
	}
	require.NoError(t, st.SaveCycleWithAudit(ctx, cycle, 0, entry))

	entries, err := st.AuditEntries(ctx, "cycle-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "plumbing repair credit", entries[0].Reason)
	assert.Equal(t, "-50.00", entries[0].RentDelta.String())

	// A stale version writes neither the cycle nor the entry.
	stale := *cycle
	entry.ID = "audit-2"
	err = st.SaveCycleWithAudit(ctx, &stale, 0, entry)
	assert.ErrorIs(t, err, billing.ErrConcurrentModification)

	entries, err = st.AuditEntries(ctx, "cycle-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
