package rooms

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/warp/billing-engine/billing"
)

// Service wraps the store with validation and identifier assignment.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) CreateRoom(ctx context.Context, name string) (*Room, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &billing.ValidationError{Field: "name", Message: "a non-empty room name is required"}
	}
	room := &Room{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateRoom(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

func (s *Service) Room(ctx context.Context, id string) (*Room, error) {
	return s.store.Room(ctx, id)
}

func (s *Service) Rooms(ctx context.Context) ([]Room, error) {
	return s.store.Rooms(ctx)
}

// AddMemberInput describes a new occupant.
type AddMemberInput struct {
	RoomID  string
	UserID  string // assigned when empty
	Name    string
	IsPayer bool
}

func (s *Service) AddMember(ctx context.Context, in AddMemberInput) (*Member, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, &billing.ValidationError{Field: "name", Message: "a non-empty member name is required"}
	}
	if _, err := s.store.Room(ctx, in.RoomID); err != nil {
		return nil, err
	}
	member := &Member{
		RoomID:   in.RoomID,
		UserID:   in.UserID,
		Name:     in.Name,
		IsPayer:  in.IsPayer,
		JoinedAt: s.now(),
	}
	if member.UserID == "" {
		member.UserID = uuid.NewString()
	}
	if err := s.store.AddMember(ctx, member); err != nil {
		return nil, err
	}
	return member, nil
}

func (s *Service) Members(ctx context.Context, roomID string) ([]Member, error) {
	return s.store.RoomMembers(ctx, roomID)
}

func (s *Service) RecordPresence(ctx context.Context, roomID, userID string, day billing.Date) error {
	if day.IsZero() {
		return &billing.ValidationError{Field: "date", Message: "a valid date is required"}
	}
	return s.store.RecordPresence(ctx, roomID, userID, day)
}

// OpenCycleInput carries the raw totals an administrator enters for a new
// billing cycle. Water may be zero; it is then derived from presence data
// on first proration.
type OpenCycleInput struct {
	RoomID      string
	Start       billing.Date
	End         billing.Date
	Rent        billing.Money
	Electricity billing.Money
	Internet    billing.Money
	Water       billing.Money
}

func (in OpenCycleInput) validate() error {
	if in.Start.IsZero() || in.End.IsZero() {
		return &billing.ValidationError{Field: "window", Message: "start and end dates are required"}
	}
	if in.End.Before(in.Start) {
		return &billing.ValidationError{Field: "window", Message: "end date precedes start date"}
	}
	for _, amt := range []struct {
		name  string
		value billing.Money
	}{
		{"rent", in.Rent},
		{"electricity", in.Electricity},
		{"internet", in.Internet},
		{"water", in.Water},
	} {
		if amt.value.IsNegative() {
			return &billing.ValidationError{Field: amt.name, Message: "a non-negative amount is required"}
		}
	}
	return nil
}

// OpenCycle creates a new active billing cycle for a room. A room carries
// at most one active cycle; the previous one must close first.
func (s *Service) OpenCycle(ctx context.Context, in OpenCycleInput) (*billing.BillingCycle, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	room, err := s.store.Room(ctx, in.RoomID)
	if err != nil {
		return nil, err
	}
	if room.CurrentCycleID != "" {
		return nil, &billing.ValidationError{Field: "room", Message: "room already has an active cycle"}
	}

	cycle := &billing.BillingCycle{
		ID:          uuid.NewString(),
		RoomID:      room.ID,
		Sequence:    room.CycleSeq + 1,
		Window:      billing.Window{Start: in.Start, End: in.End},
		Status:      billing.CycleActive,
		Rent:        in.Rent,
		Electricity: in.Electricity,
		Internet:    in.Internet,
		WaterTotal:  in.Water,
		TotalBilled: in.Rent.Add(in.Electricity).Add(in.Water).Add(in.Internet),
		CreatedAt:   s.now(),
	}
	if err := s.store.OpenCycle(ctx, room, cycle); err != nil {
		return nil, err
	}
	return cycle, nil
}
