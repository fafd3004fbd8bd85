/*
Package payments holds payment records and the verification flow.

PURPOSE:
  A payment starts pending, and an administrator verifies or rejects it.
  Verification is the trigger for the billing engine's auto-close check:
  once a payment reaches completed status, the owning room's cycle may
  have become fully settled.

SCOPING:
  Payments carry a paid-at date rather than a cycle reference. The
  reconciler scopes them to a cycle by room + date window, which keeps
  payment records valid even when a cycle is recalculated or reopened.
*/
package payments

import (
	"time"

	"github.com/warp/billing-engine/billing"
)

// Payment is one payment attempt by a room member.
type Payment struct {
	ID       string
	RoomID   string
	PayerID  string
	BillType billing.BillType
	Amount   billing.Money
	Status   billing.PaymentStatus

	// PaidAt scopes the payment to a billing cycle's date window.
	PaidAt billing.Date

	Note       string
	CreatedAt  time.Time
	VerifiedAt *time.Time
}

// View narrows the record to the shape the reconciler consumes.
func (p Payment) View() billing.PaymentView {
	return billing.PaymentView{
		PayerID:  p.PayerID,
		BillType: p.BillType,
		Amount:   p.Amount,
		Status:   p.Status,
	}
}
