package payments

import (
	"context"
	"time"

	"github.com/warp/billing-engine/billing"
)

// Store persists payment records.
type Store interface {
	CreatePayment(ctx context.Context, p *Payment) error

	// Payment returns one record, or billing.ErrPaymentNotFound.
	Payment(ctx context.Context, id string) (*Payment, error)

	// PaymentsByRoom returns a room's payments, newest first.
	PaymentsByRoom(ctx context.Context, roomID string) ([]Payment, error)

	// SetPaymentStatus transitions a PENDING payment to completed or
	// rejected. The transition is enforced at the store level: a payment
	// that already left pending is never overwritten, and the attempt
	// returns billing.ErrPaymentNotFound.
	SetPaymentStatus(ctx context.Context, id string, status billing.PaymentStatus, verifiedAt *time.Time) error
}
