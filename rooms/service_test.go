package rooms_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/rooms"
	"github.com/warp/billing-engine/store/sqlite"
)

func newService(t *testing.T) *rooms.Service {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return rooms.NewService(store)
}

func TestCreateRoom_RequiresName(t *testing.T) {
	svc := newService(t)

	_, err := svc.CreateRoom(context.Background(), "   ")
	assert.ErrorIs(t, err, billing.ErrValidation)

	room, err := svc.CreateRoom(context.Background(), "Unit 4C")
	require.NoError(t, err)
	assert.NotEmpty(t, room.ID)
	assert.Empty(t, room.CurrentCycleID)
}

func TestAddMember_AssignsUserIDWhenOmitted(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	room, err := svc.CreateRoom(ctx, "Unit 4C")
	require.NoError(t, err)

	m, err := svc.AddMember(ctx, rooms.AddMemberInput{RoomID: room.ID, Name: "Alice", IsPayer: true})
	require.NoError(t, err)
	assert.NotEmpty(t, m.UserID)

	_, err = svc.AddMember(ctx, rooms.AddMemberInput{RoomID: room.ID, Name: ""})
	assert.ErrorIs(t, err, billing.ErrValidation)

	_, err = svc.AddMember(ctx, rooms.AddMemberInput{RoomID: "missing", Name: "Bob"})
	assert.ErrorIs(t, err, billing.ErrRoomNotFound)
}

func TestOpenCycle_Validation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	room, err := svc.CreateRoom(ctx, "Unit 4C")
	require.NoError(t, err)
	_, err = svc.AddMember(ctx, rooms.AddMemberInput{RoomID: room.ID, Name: "Alice", IsPayer: true})
	require.NoError(t, err)

	valid := rooms.OpenCycleInput{
		RoomID:      room.ID,
		Start:       billing.NewDate(2026, time.August, 1),
		End:         billing.NewDate(2026, time.August, 31),
		Rent:        billing.MustParseMoney("900.00"),
		Electricity: billing.MustParseMoney("180.00"),
		Internet:    billing.MustParseMoney("110.00"),
	}

	t.Run("end before start rejected", func(t *testing.T) {
		in := valid
		in.Start, in.End = in.End, in.Start
		_, err := svc.OpenCycle(ctx, in)
		assert.ErrorIs(t, err, billing.ErrValidation)
	})

	t.Run("negative amount rejected", func(t *testing.T) {
		in := valid
		in.Rent = billing.MustParseMoney("-1.00")
		_, err := svc.OpenCycle(ctx, in)
		assert.ErrorIs(t, err, billing.ErrValidation)
	})

	t.Run("opens and bumps sequence", func(t *testing.T) {
		cycle, err := svc.OpenCycle(ctx, valid)
		require.NoError(t, err)
		assert.Equal(t, 1, cycle.Sequence)
		assert.Equal(t, billing.CycleActive, cycle.Status)

		got, err := svc.Room(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, cycle.ID, got.CurrentCycleID)
	})

	t.Run("second active cycle rejected", func(t *testing.T) {
		_, err := svc.OpenCycle(ctx, valid)
		assert.ErrorIs(t, err, billing.ErrValidation)
	})
}

func TestRecordPresence_RejectsZeroDate(t *testing.T) {
	svc := newService(t)
	err := svc.RecordPresence(context.Background(), "r", "u", billing.Date{})
	assert.ErrorIs(t, err, billing.ErrValidation)
}
