/*
handlers.go - HTTP API handlers for the billing engine

PURPOSE:
  Exposes the bill-splitting engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Rooms:
    GET    /api/rooms                   List all rooms
    POST   /api/rooms                   Create room
    GET    /api/rooms/{id}              Room detail with members
    POST   /api/rooms/{id}/members      Add a member
    POST   /api/rooms/{id}/members/{uid}/presence  Record a presence date
    POST   /api/rooms/{id}/cycles       Open a billing cycle
    GET    /api/rooms/{id}/payments     Payment history
    GET    /api/rooms/{id}/summary      Collection stats for the active cycle

  Cycles:
    GET    /api/cycles/{id}                 Enriched cycle with charges
    POST   /api/cycles/{id}/recalculate     Rebuild the charge snapshot
    GET    /api/cycles/{id}/reconciliation  Per-member status + summary
    POST   /api/cycles/{id}/adjustments     Adjust one member's shares
    POST   /api/cycles/{id}/refunds         Record a refund
    GET    /api/cycles/{id}/audit           Adjustment/refund audit trail

  Payments:
    POST   /api/payments                Submit a payment (pending)
    POST   /api/payments/{id}/verify    Mark completed + auto-close check
    POST   /api/payments/{id}/reject    Reject a pending payment

  Admin:
    GET    /api/admin/portfolio         Cross-room stats (active cycles)

REQUEST FLOW:
  1. Parse HTTP request
  2. Convert strings to Money/Date domain values
  3. Call domain logic (rooms/payments/billing services)
  4. Serialize response
  5. Map domain errors to HTTP status

ERROR HANDLING:
  Errors are returned as JSON with status derived from the domain
  classifiers: 404 not found, 400 validation/closed cycle, 409 lost
  concurrent update, 500 everything else.

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/payments"
	"github.com/warp/billing-engine/rooms"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter clears all persisted data. Dev/test only.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Rooms    *rooms.Service
	Payments *payments.Service
	Billing  *billing.Service
	Resetter Resetter
	Log      *zap.Logger

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler. A nil logger is replaced with a no-op.
func NewHandler(roomSvc *rooms.Service, paySvc *payments.Service, billSvc *billing.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Rooms:    roomSvc,
		Payments: paySvc,
		Billing:  billSvc,
		Log:      log,
	}
}

// =============================================================================
// ROOM HANDLERS
// =============================================================================

// ListRooms returns all rooms.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	all, err := h.Rooms.Rooms(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rooms", err)
		return
	}

	dtos := make([]RoomDTO, len(all))
	for i := range all {
		dtos[i] = toRoomDTO(&all[i], nil)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRoom creates a new room.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	room, err := h.Rooms.CreateRoom(r.Context(), req.Name)
	if err != nil {
		writeDomainError(w, "Failed to create room", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRoomDTO(room, nil))
}

// GetRoom returns a single room with its members.
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	room, err := h.Rooms.Room(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get room", err)
		return
	}
	members, err := h.Rooms.Members(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get room members", err)
		return
	}
	writeJSON(w, http.StatusOK, toRoomDTO(room, members))
}

// AddMember adds a member to a room.
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")

	var req AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	member, err := h.Rooms.AddMember(r.Context(), rooms.AddMemberInput{
		RoomID:  roomID,
		UserID:  req.UserID,
		Name:    req.Name,
		IsPayer: req.IsPayer,
	})
	if err != nil {
		writeDomainError(w, "Failed to add member", err)
		return
	}

	writeJSON(w, http.StatusCreated, MemberDTO{
		UserID:   member.UserID,
		Name:     member.Name,
		IsPayer:  member.IsPayer,
		JoinedAt: member.JoinedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

// RecordPresence marks a member as present on a date.
func (h *Handler) RecordPresence(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	userID := chi.URLParam(r, "uid")

	var req RecordPresenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	day, err := billing.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	if err := h.Rooms.RecordPresence(r.Context(), roomID, userID, day); err != nil {
		writeDomainError(w, "Failed to record presence", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "recorded", "date": day.String()})
}

// OpenCycle opens a billing cycle for a room.
func (h *Handler) OpenCycle(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")

	var req OpenCycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	start, err := billing.ParseDate(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start date (use YYYY-MM-DD)", err)
		return
	}
	end, err := billing.ParseDate(req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end date (use YYYY-MM-DD)", err)
		return
	}

	in := rooms.OpenCycleInput{RoomID: roomID, Start: start, End: end}
	if in.Rent, err = parseMoneyField(req.Rent, "rent"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if in.Electricity, err = parseMoneyField(req.Electricity, "electricity"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if in.Internet, err = parseMoneyField(req.Internet, "internet"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if in.Water, err = parseMoneyField(req.Water, "water"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	cycle, err := h.Rooms.OpenCycle(r.Context(), in)
	if err != nil {
		writeDomainError(w, "Failed to open cycle", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCycleDTO(cycle))
}

// =============================================================================
// CYCLE HANDLERS
// =============================================================================

// GetCycle returns a cycle with its charges, computing them on first read.
func (h *Handler) GetCycle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cycle, err := h.Billing.Enrich(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get cycle", err)
		return
	}
	writeJSON(w, http.StatusOK, toCycleDTO(cycle))
}

// RecalculateCycle rebuilds the charge snapshot from current membership.
func (h *Handler) RecalculateCycle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cycle, err := h.Billing.Recalculate(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to recalculate cycle", err)
		return
	}
	writeJSON(w, http.StatusOK, toCycleDTO(cycle))
}

// GetReconciliation returns per-member payment status for a cycle.
func (h *Handler) GetReconciliation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.Billing.Reconcile(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to reconcile cycle", err)
		return
	}
	writeJSON(w, http.StatusOK, toReconciliationDTO(rec))
}

// AdjustCharge applies share deltas to one member's charge.
func (h *Handler) AdjustCharge(w http.ResponseWriter, r *http.Request) {
	cycleID := chi.URLParam(r, "id")

	var req AdjustChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in := billing.AdjustChargeInput{
		CycleID: cycleID,
		UserID:  req.UserID,
		Reason:  req.Reason,
		ActorID: req.ActorID,
	}
	var err error
	if in.RentDelta, err = parseDeltaField(req.RentDelta, "rent_delta"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if in.ElectricityDelta, err = parseDeltaField(req.ElectricityDelta, "electricity_delta"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if in.WaterDelta, err = parseDeltaField(req.WaterDelta, "water_delta"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if in.InternetDelta, err = parseDeltaField(req.InternetDelta, "internet_delta"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	cycle, err := h.Billing.AdjustCharge(r.Context(), in)
	if err != nil {
		writeDomainError(w, "Failed to adjust charge", err)
		return
	}
	writeJSON(w, http.StatusOK, toCycleDTO(cycle))
}

// Refund records a refund against a cycle's billed total.
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	cycleID := chi.URLParam(r, "id")

	var req RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := parseMoneyField(req.Amount, "amount")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	cycle, err := h.Billing.Refund(r.Context(), billing.RefundInput{
		CycleID:  cycleID,
		UserID:   req.UserID,
		Amount:   amount,
		BillType: billing.BillType(req.BillType),
		Reason:   req.Reason,
		ActorID:  req.ActorID,
	})
	if err != nil {
		writeDomainError(w, "Failed to record refund", err)
		return
	}
	writeJSON(w, http.StatusOK, toCycleDTO(cycle))
}

// GetAuditTrail returns the adjustment/refund history for a cycle.
func (h *Handler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	entries, err := h.Billing.AuditTrail(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get audit trail", err)
		return
	}

	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": dtos})
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// SubmitPayment records a pending payment.
func (h *Handler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	var req SubmitPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := parseMoneyField(req.Amount, "amount")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	paidAt, err := billing.ParseDate(req.PaidAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid paid_at date (use YYYY-MM-DD)", err)
		return
	}

	payment, err := h.Payments.Submit(r.Context(), payments.SubmitInput{
		RoomID:   req.RoomID,
		PayerID:  req.PayerID,
		BillType: billing.BillType(req.BillType),
		Amount:   amount,
		PaidAt:   paidAt,
		Note:     req.Note,
	})
	if err != nil {
		writeDomainError(w, "Failed to submit payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTO(payment))
}

// VerifyPayment marks a pending payment completed and runs the auto-close
// check for its room.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	payment, result, err := h.Payments.Verify(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to verify payment", err)
		return
	}

	writeJSON(w, http.StatusOK, VerifyPaymentResponse{
		Payment:     toPaymentDTO(payment),
		CycleClosed: result.Closed,
		CycleID:     result.CycleID,
	})
}

// RejectPayment marks a pending payment rejected.
func (h *Handler) RejectPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	payment, err := h.Payments.Reject(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to reject payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(payment))
}

// ListPayments returns a room's payment history, newest first.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")

	all, err := h.Payments.List(r.Context(), roomID)
	if err != nil {
		writeDomainError(w, "Failed to list payments", err)
		return
	}

	dtos := make([]PaymentDTO, len(all))
	for i := range all {
		dtos[i] = toPaymentDTO(&all[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// SUMMARY HANDLERS
// =============================================================================

// GetRoomSummary returns collection stats for a room's active cycle.
func (h *Handler) GetRoomSummary(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")

	rec, err := h.Billing.RoomSummary(r.Context(), roomID)
	if err != nil {
		writeDomainError(w, "Failed to get room summary", err)
		return
	}
	writeJSON(w, http.StatusOK, toReconciliationDTO(rec))
}

// GetPortfolio returns cross-room stats over all active cycles.
func (h *Handler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Billing.Portfolio(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute portfolio", err)
		return
	}

	writeJSON(w, http.StatusOK, PortfolioDTO{
		ActiveCycles:         summary.ActiveCycles,
		TotalBilled:          summary.TotalBilled.String(),
		TotalCollected:       summary.TotalCollected.String(),
		CollectionPercentage: summary.CollectionPercentage,
		SkippedCycles:        summary.SkippedCycles,
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps a domain error to an HTTP status using the billing
// package's classifiers.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case billing.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case billing.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case billing.IsRetryable(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

// parseMoneyField parses a required money string. Empty means zero.
func parseMoneyField(s, field string) (billing.Money, error) {
	if s == "" {
		return billing.ZeroMoney(), nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return billing.ZeroMoney(), &billing.ValidationError{Field: field, Message: "not a valid decimal amount"}
	}
	return billing.Money{Value: d}, nil
}

// parseDeltaField parses a signed delta string. Empty means zero.
func parseDeltaField(s, field string) (billing.Money, error) {
	return parseMoneyField(s, field)
}
