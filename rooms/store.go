package rooms

import (
	"context"

	"github.com/warp/billing-engine/billing"
)

// Store persists rooms, members and presence ledgers.
//
// Presence is append-only in spirit: RecordPresence adds a date and
// duplicate dates are collapsed, but dates are never rewritten.
type Store interface {
	CreateRoom(ctx context.Context, room *Room) error

	// Room returns one room, or billing.ErrRoomNotFound.
	Room(ctx context.Context, id string) (*Room, error)

	Rooms(ctx context.Context) ([]Room, error)

	AddMember(ctx context.Context, member *Member) error

	// RoomMembers returns a room's members with presence ledgers, ordered
	// by (JoinedAt, UserID). Returns billing.ErrRoomNotFound for an
	// unknown room.
	RoomMembers(ctx context.Context, roomID string) ([]Member, error)

	// RecordPresence marks a member physically present on a date.
	// Duplicate dates are a no-op. Returns billing.ErrMemberNotFound for
	// an unknown member.
	RecordPresence(ctx context.Context, roomID, userID string, day billing.Date) error

	// OpenCycle creates the cycle, bumps the room's cycle sequence and
	// sets its current-cycle pointer, atomically.
	OpenCycle(ctx context.Context, room *Room, cycle *billing.BillingCycle) error
}
