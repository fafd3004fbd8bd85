// Package rooms holds the room and membership records the billing engine
// consumes. Room CRUD is deliberately thin: auth, invitations and approval
// workflows live outside this repository, which only needs to know who is
// in a room, whether they share the fixed bills, and when they were there.
package rooms

import (
	"time"

	"github.com/warp/billing-engine/billing"
)

// Room is one shared apartment. CurrentCycleID points at the active billing
// cycle, if any; CycleSeq counts cycles ever opened for the room.
type Room struct {
	ID             string
	Name           string
	CurrentCycleID string
	CycleSeq       int
	CreatedAt      time.Time
}

// Member is one occupant of a room. Presence is the member's physical
// occupancy ledger: a discrete set of calendar dates, deduplicated.
type Member struct {
	RoomID   string
	UserID   string
	Name     string
	IsPayer  bool
	JoinedAt time.Time
	Presence []billing.Date
}

// BillingMember narrows the record to the shape the proration calculator
// consumes.
func (m Member) BillingMember() billing.Member {
	return billing.Member{
		UserID:   m.UserID,
		Name:     m.Name,
		IsPayer:  m.IsPayer,
		JoinedAt: m.JoinedAt,
		Presence: append([]billing.Date{}, m.Presence...),
	}
}
