package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/billing-engine/billing"
)

// AutoCloser is the billing engine's lifecycle hook, invoked after a
// payment reaches completed status.
type AutoCloser interface {
	CheckAutoClose(ctx context.Context, roomID string) (billing.AutoCloseResult, error)
}

// Service validates and records payments and drives the verification flow.
type Service struct {
	store   Store
	members billing.MemberSource
	closer  AutoCloser
	log     *zap.Logger
	now     func() time.Time
}

func NewService(store Store, members billing.MemberSource, closer AutoCloser, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, members: members, closer: closer, log: log, now: time.Now}
}

// SubmitInput describes a new payment attempt.
type SubmitInput struct {
	RoomID   string
	PayerID  string
	BillType billing.BillType
	Amount   billing.Money
	PaidAt   billing.Date
	Note     string
}

func (in SubmitInput) validate() error {
	if !in.BillType.Valid() {
		return &billing.ValidationError{Field: "billType", Message: "unknown bill type"}
	}
	if !in.Amount.IsPositive() {
		return &billing.ValidationError{Field: "amount", Message: "a positive amount is required"}
	}
	if in.PaidAt.IsZero() {
		return &billing.ValidationError{Field: "paidAt", Message: "a paid-at date is required"}
	}
	return nil
}

// Submit records a pending payment after checking the payer belongs to the
// room.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*Payment, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	members, err := s.members.Members(ctx, in.RoomID)
	if err != nil {
		return nil, err
	}
	found := false
	for _, m := range members {
		if m.UserID == in.PayerID {
			found = true
			break
		}
	}
	if !found {
		return nil, billing.ErrMemberNotFound
	}

	p := &Payment{
		ID:        uuid.NewString(),
		RoomID:    in.RoomID,
		PayerID:   in.PayerID,
		BillType:  in.BillType,
		Amount:    in.Amount,
		Status:    billing.PaymentPending,
		PaidAt:    in.PaidAt,
		Note:      in.Note,
		CreatedAt: s.now(),
	}
	if err := s.store.CreatePayment(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Verify marks a pending payment completed and fires the auto-close check.
// A failed check never fails the verification: the payment stays completed
// and the failure is logged.
func (s *Service) Verify(ctx context.Context, id string) (*Payment, billing.AutoCloseResult, error) {
	p, err := s.store.Payment(ctx, id)
	if err != nil {
		return nil, billing.AutoCloseResult{}, err
	}
	if p.Status != billing.PaymentPending {
		return nil, billing.AutoCloseResult{}, &billing.ValidationError{
			Field: "status", Message: "only pending payments can be verified",
		}
	}

	verifiedAt := s.now()
	if err := s.store.SetPaymentStatus(ctx, id, billing.PaymentCompleted, &verifiedAt); err != nil {
		return nil, billing.AutoCloseResult{}, err
	}
	p.Status = billing.PaymentCompleted
	p.VerifiedAt = &verifiedAt

	result, err := s.closer.CheckAutoClose(ctx, p.RoomID)
	if err != nil {
		s.log.Warn("auto-close check failed after payment verification",
			zap.String("payment_id", p.ID),
			zap.String("room_id", p.RoomID),
			zap.Error(err))
		result = billing.AutoCloseResult{}
	}
	return p, result, nil
}

// Reject marks a pending payment rejected.
func (s *Service) Reject(ctx context.Context, id string) (*Payment, error) {
	p, err := s.store.Payment(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != billing.PaymentPending {
		return nil, &billing.ValidationError{
			Field: "status", Message: "only pending payments can be rejected",
		}
	}
	if err := s.store.SetPaymentStatus(ctx, id, billing.PaymentRejected, nil); err != nil {
		return nil, err
	}
	p.Status = billing.PaymentRejected
	return p, nil
}

// List returns a room's payments, newest first.
func (s *Service) List(ctx context.Context, roomID string) ([]Payment, error) {
	return s.store.PaymentsByRoom(ctx, roomID)
}
