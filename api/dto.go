/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  Defines the JSON shapes exchanged with clients, decoupled from the
  domain types. Money fields travel as fixed two-decimal strings and
  dates as YYYY-MM-DD; the handlers do the conversion.

SEE ALSO:
  - handlers.go: Uses these for serialization
*/
package api

import (
	"time"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/payments"
	"github.com/warp/billing-engine/rooms"
)

// =============================================================================
// REQUESTS
// =============================================================================

type CreateRoomRequest struct {
	Name string `json:"name"`
}

type AddMemberRequest struct {
	UserID  string `json:"user_id,omitempty"`
	Name    string `json:"name"`
	IsPayer bool   `json:"is_payer"`
}

type RecordPresenceRequest struct {
	Date string `json:"date"` // YYYY-MM-DD
}

type OpenCycleRequest struct {
	Start       string `json:"start"`
	End         string `json:"end"`
	Rent        string `json:"rent"`
	Electricity string `json:"electricity"`
	Internet    string `json:"internet"`
	Water       string `json:"water,omitempty"` // derived from presence when omitted
}

type SubmitPaymentRequest struct {
	RoomID   string `json:"room_id"`
	PayerID  string `json:"payer_id"`
	BillType string `json:"bill_type"`
	Amount   string `json:"amount"`
	PaidAt   string `json:"paid_at"`
	Note     string `json:"note,omitempty"`
}

type AdjustChargeRequest struct {
	UserID           string `json:"user_id"`
	RentDelta        string `json:"rent_delta,omitempty"`
	ElectricityDelta string `json:"electricity_delta,omitempty"`
	WaterDelta       string `json:"water_delta,omitempty"`
	InternetDelta    string `json:"internet_delta,omitempty"`
	Reason           string `json:"reason"`
	ActorID          string `json:"actor_id,omitempty"`
}

type RefundRequest struct {
	UserID   string `json:"user_id"`
	Amount   string `json:"amount"`
	BillType string `json:"bill_type"`
	Reason   string `json:"reason"`
	ActorID  string `json:"actor_id,omitempty"`
}

type LoadScenarioRequest struct {
	Scenario string `json:"scenario"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type RoomDTO struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	CurrentCycleID string      `json:"current_cycle_id,omitempty"`
	CycleSeq       int         `json:"cycle_seq"`
	CreatedAt      string      `json:"created_at"`
	Members        []MemberDTO `json:"members,omitempty"`
}

type MemberDTO struct {
	UserID       string `json:"user_id"`
	Name         string `json:"name"`
	IsPayer      bool   `json:"is_payer"`
	JoinedAt     string `json:"joined_at"`
	PresenceDays int    `json:"presence_days"`
}

type CycleDTO struct {
	ID             string      `json:"id"`
	RoomID         string      `json:"room_id"`
	Sequence       int         `json:"sequence"`
	Start          string      `json:"start"`
	End            string      `json:"end"`
	Status         string      `json:"status"`
	Rent           string      `json:"rent"`
	Electricity    string      `json:"electricity"`
	Internet       string      `json:"internet"`
	Water          string      `json:"water"`
	TotalBilled    string      `json:"total_billed"`
	MemberCount    int         `json:"member_count"`
	ChargesVersion int         `json:"charges_version"`
	Charges        []ChargeDTO `json:"charges"`
	ClosedAt       string      `json:"closed_at,omitempty"`
	ClosedBy       string      `json:"closed_by,omitempty"`
}

type ChargeDTO struct {
	UserID       string `json:"user_id"`
	Name         string `json:"name"`
	IsPayer      bool   `json:"is_payer"`
	PresenceDays int    `json:"presence_days"`
	WaterOwn     string `json:"water_own"`
	Rent         string `json:"rent"`
	Electricity  string `json:"electricity"`
	Water        string `json:"water"`
	Internet     string `json:"internet"`
	TotalDue     string `json:"total_due"`
}

type PaymentDTO struct {
	ID         string `json:"id"`
	RoomID     string `json:"room_id"`
	PayerID    string `json:"payer_id"`
	BillType   string `json:"bill_type"`
	Amount     string `json:"amount"`
	Status     string `json:"status"`
	PaidAt     string `json:"paid_at"`
	Note       string `json:"note,omitempty"`
	CreatedAt  string `json:"created_at"`
	VerifiedAt string `json:"verified_at,omitempty"`
}

type MemberStatusDTO struct {
	UserID   string          `json:"user_id"`
	Name     string          `json:"name"`
	IsPayer  bool            `json:"is_payer"`
	TotalDue string          `json:"total_due"`
	Paid     map[string]bool `json:"paid"`
	AllPaid  bool            `json:"all_paid"`
}

type ReconciliationDTO struct {
	CycleID   string            `json:"cycle_id"`
	PerMember []MemberStatusDTO `json:"per_member"`
	Summary   SummaryDTO        `json:"summary"`
	Collected CollectedDTO      `json:"collected"`
}

type SummaryDTO struct {
	TotalDue             string `json:"total_due"`
	TotalPaid            string `json:"total_paid"`
	TotalPending         string `json:"total_pending"`
	CollectionPercentage int64  `json:"collection_percentage"`
}

type CollectedDTO struct {
	Rent        string `json:"rent"`
	Electricity string `json:"electricity"`
	Water       string `json:"water"`
	Internet    string `json:"internet"`
}

type PortfolioDTO struct {
	ActiveCycles         int    `json:"active_cycles"`
	TotalBilled          string `json:"total_billed"`
	TotalCollected       string `json:"total_collected"`
	CollectionPercentage int64  `json:"collection_percentage"`
	SkippedCycles        int    `json:"skipped_cycles,omitempty"`
}

type AuditEntryDTO struct {
	ID               string `json:"id"`
	CycleID          string `json:"cycle_id"`
	UserID           string `json:"user_id"`
	Kind             string `json:"kind"`
	BeforeTotal      string `json:"before_total"`
	AfterTotal       string `json:"after_total"`
	RentDelta        string `json:"rent_delta,omitempty"`
	ElectricityDelta string `json:"electricity_delta,omitempty"`
	WaterDelta       string `json:"water_delta,omitempty"`
	InternetDelta    string `json:"internet_delta,omitempty"`
	Amount           string `json:"amount,omitempty"`
	BillType         string `json:"bill_type,omitempty"`
	Reason           string `json:"reason"`
	ActorID          string `json:"actor_id"`
	CreatedAt        string `json:"created_at"`
}

type VerifyPaymentResponse struct {
	Payment     PaymentDTO `json:"payment"`
	CycleClosed bool       `json:"cycle_closed"`
	CycleID     string     `json:"cycle_id,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toRoomDTO(room *rooms.Room, members []rooms.Member) RoomDTO {
	dto := RoomDTO{
		ID:             room.ID,
		Name:           room.Name,
		CurrentCycleID: room.CurrentCycleID,
		CycleSeq:       room.CycleSeq,
		CreatedAt:      room.CreatedAt.Format(time.RFC3339),
	}
	for _, m := range members {
		dto.Members = append(dto.Members, MemberDTO{
			UserID:       m.UserID,
			Name:         m.Name,
			IsPayer:      m.IsPayer,
			JoinedAt:     m.JoinedAt.Format(time.RFC3339),
			PresenceDays: len(m.Presence),
		})
	}
	return dto
}

func toCycleDTO(c *billing.BillingCycle) CycleDTO {
	dto := CycleDTO{
		ID:             c.ID,
		RoomID:         c.RoomID,
		Sequence:       c.Sequence,
		Start:          c.Window.Start.String(),
		End:            c.Window.End.String(),
		Status:         string(c.Status),
		Rent:           c.Rent.String(),
		Electricity:    c.Electricity.String(),
		Internet:       c.Internet.String(),
		Water:          c.WaterTotal.String(),
		TotalBilled:    c.TotalBilled.String(),
		MemberCount:    c.MemberCount,
		ChargesVersion: c.ChargesVersion,
		ClosedBy:       c.ClosedBy,
		Charges:        make([]ChargeDTO, 0, len(c.MemberCharges)),
	}
	if c.ClosedAt != nil {
		dto.ClosedAt = c.ClosedAt.Format(time.RFC3339)
	}
	for _, mc := range c.MemberCharges {
		dto.Charges = append(dto.Charges, ChargeDTO{
			UserID:       mc.UserID,
			Name:         mc.Name,
			IsPayer:      mc.IsPayer,
			PresenceDays: mc.PresenceDays,
			WaterOwn:     mc.WaterOwn.String(),
			Rent:         mc.Rent.String(),
			Electricity:  mc.Electricity.String(),
			Water:        mc.Water.String(),
			Internet:     mc.Internet.String(),
			TotalDue:     mc.TotalDue.String(),
		})
	}
	return dto
}

func toPaymentDTO(p *payments.Payment) PaymentDTO {
	dto := PaymentDTO{
		ID:        p.ID,
		RoomID:    p.RoomID,
		PayerID:   p.PayerID,
		BillType:  string(p.BillType),
		Amount:    p.Amount.String(),
		Status:    string(p.Status),
		PaidAt:    p.PaidAt.String(),
		Note:      p.Note,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
	if p.VerifiedAt != nil {
		dto.VerifiedAt = p.VerifiedAt.Format(time.RFC3339)
	}
	return dto
}

func toReconciliationDTO(rec *billing.Reconciliation) ReconciliationDTO {
	dto := ReconciliationDTO{
		CycleID:   rec.CycleID,
		PerMember: make([]MemberStatusDTO, 0, len(rec.PerMember)),
		Summary: SummaryDTO{
			TotalDue:             rec.Summary.TotalDue.String(),
			TotalPaid:            rec.Summary.TotalPaid.String(),
			TotalPending:         rec.Summary.TotalPending.String(),
			CollectionPercentage: rec.Summary.CollectionPercentage,
		},
		Collected: CollectedDTO{
			Rent:        rec.Collected.Rent.String(),
			Electricity: rec.Collected.Electricity.String(),
			Water:       rec.Collected.Water.String(),
			Internet:    rec.Collected.Internet.String(),
		},
	}
	for _, ms := range rec.PerMember {
		paid := make(map[string]bool, len(ms.Paid))
		for bt, ok := range ms.Paid {
			paid[string(bt)] = ok
		}
		dto.PerMember = append(dto.PerMember, MemberStatusDTO{
			UserID:   ms.UserID,
			Name:     ms.Name,
			IsPayer:  ms.IsPayer,
			TotalDue: ms.TotalDue.String(),
			Paid:     paid,
			AllPaid:  ms.AllPaid,
		})
	}
	return dto
}

func toAuditEntryDTO(e billing.AuditEntry) AuditEntryDTO {
	dto := AuditEntryDTO{
		ID:          e.ID,
		CycleID:     e.CycleID,
		UserID:      e.UserID,
		Kind:        string(e.Kind),
		BeforeTotal: e.BeforeTotal.String(),
		AfterTotal:  e.AfterTotal.String(),
		Reason:      e.Reason,
		ActorID:     e.ActorID,
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
	}
	switch e.Kind {
	case billing.AuditAdjustment:
		dto.RentDelta = e.RentDelta.String()
		dto.ElectricityDelta = e.ElectricityDelta.String()
		dto.WaterDelta = e.WaterDelta.String()
		dto.InternetDelta = e.InternetDelta.String()
	case billing.AuditRefund:
		dto.Amount = e.Amount.String()
		dto.BillType = string(e.BillType)
	}
	return dto
}
