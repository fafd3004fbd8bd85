package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/api"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/payments"
	"github.com/warp/billing-engine/rooms"
	"github.com/warp/billing-engine/store/sqlite"
)

// =============================================================================
// TEST SERVER
// =============================================================================

type testServer struct {
	srv *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	billSvc := billing.NewService(store, store, store, billing.DefaultRates(), nil)
	roomSvc := rooms.NewService(store)
	paySvc := payments.NewService(store, store, billSvc, nil)

	handler := api.NewHandler(roomSvc, paySvc, billSvc, nil)
	handler.Resetter = store

	return newTestServerFrom(t, handler)
}

func newTestServerFrom(t *testing.T, handler *api.Handler) *testServer {
	t.Helper()
	srv := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(srv.Close)
	return &testServer{srv: srv}
}

// do issues a JSON request and decodes the response body into out (when
// non-nil), returning the HTTP status code.
func (ts *testServer) do(t *testing.T, method, path string, body, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// seedRoom drives the API to create a two-payer room with presence and an
// open cycle: hana 10 presence days, ivan 5, rent 800 / electricity 150 /
// internet 120. Water derives to 75.00 at 5.00/day.
func (ts *testServer) seedRoom(t *testing.T) (roomID, cycleID string) {
	t.Helper()

	var room api.RoomDTO
	status := ts.do(t, http.MethodPost, "/api/rooms",
		api.CreateRoomRequest{Name: "Legarda Flat 3A"}, &room)
	require.Equal(t, http.StatusCreated, status)

	days := map[string]int{"hana": 10, "ivan": 5}
	for _, uid := range []string{"hana", "ivan"} {
		status = ts.do(t, http.MethodPost, "/api/rooms/"+room.ID+"/members",
			api.AddMemberRequest{UserID: uid, Name: uid, IsPayer: true}, nil)
		require.Equal(t, http.StatusCreated, status)

		for d := 1; d <= days[uid]; d++ {
			status = ts.do(t, http.MethodPost,
				fmt.Sprintf("/api/rooms/%s/members/%s/presence", room.ID, uid),
				api.RecordPresenceRequest{Date: fmt.Sprintf("2026-08-%02d", d)}, nil)
			require.Equal(t, http.StatusOK, status)
		}
	}

	var cycle api.CycleDTO
	status = ts.do(t, http.MethodPost, "/api/rooms/"+room.ID+"/cycles",
		api.OpenCycleRequest{
			Start: "2026-08-01", End: "2026-08-31",
			Rent: "800.00", Electricity: "150.00", Internet: "120.00",
		}, &cycle)
	require.Equal(t, http.StatusCreated, status)
	return room.ID, cycle.ID
}

func (ts *testServer) submitAndVerify(t *testing.T, roomID, payerID, amount string) api.VerifyPaymentResponse {
	t.Helper()

	var payment api.PaymentDTO
	status := ts.do(t, http.MethodPost, "/api/payments", api.SubmitPaymentRequest{
		RoomID: roomID, PayerID: payerID, BillType: "total",
		Amount: amount, PaidAt: "2026-08-15",
	}, &payment)
	require.Equal(t, http.StatusCreated, status)

	var verified api.VerifyPaymentResponse
	status = ts.do(t, http.MethodPost, "/api/payments/"+payment.ID+"/verify", nil, &verified)
	require.Equal(t, http.StatusOK, status)
	return verified
}

// =============================================================================
// LIFECYCLE TESTS
// =============================================================================

func TestAPI_FullCycleLifecycle(t *testing.T) {
	// GIVEN: A seeded room with an open cycle
	// WHEN: Walking the full flow from enrichment to the last verification
	// THEN: Charges match the proration rules and the cycle auto-closes

	ts := newTestServer(t)
	roomID, cycleID := ts.seedRoom(t)

	var cycle api.CycleDTO
	status := ts.do(t, http.MethodGet, "/api/cycles/"+cycleID, nil, &cycle)
	require.Equal(t, http.StatusOK, status)

	assert.Equal(t, "active", cycle.Status)
	assert.Equal(t, "75.00", cycle.Water)
	assert.Equal(t, "1145.00", cycle.TotalBilled)
	assert.Equal(t, 1, cycle.ChargesVersion)
	require.Len(t, cycle.Charges, 2)

	hana, ivan := cycle.Charges[0], cycle.Charges[1]
	assert.Equal(t, "hana", hana.UserID)
	assert.Equal(t, "400.00", hana.Rent)
	assert.Equal(t, "75.00", hana.Electricity)
	assert.Equal(t, "50.00", hana.Water)
	assert.Equal(t, "60.00", hana.Internet)
	assert.Equal(t, "585.00", hana.TotalDue)
	assert.Equal(t, "560.00", ivan.TotalDue)

	first := ts.submitAndVerify(t, roomID, "hana", hana.TotalDue)
	assert.False(t, first.CycleClosed)

	var rec api.ReconciliationDTO
	status = ts.do(t, http.MethodGet, "/api/cycles/"+cycleID+"/reconciliation", nil, &rec)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "585.00", rec.Summary.TotalPaid)
	assert.Equal(t, "560.00", rec.Summary.TotalPending)
	assert.Equal(t, int64(51), rec.Summary.CollectionPercentage)
	assert.True(t, rec.PerMember[0].AllPaid)
	assert.False(t, rec.PerMember[1].AllPaid)

	second := ts.submitAndVerify(t, roomID, "ivan", ivan.TotalDue)
	assert.True(t, second.CycleClosed)
	assert.Equal(t, cycleID, second.CycleID)

	status = ts.do(t, http.MethodGet, "/api/cycles/"+cycleID, nil, &cycle)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "completed", cycle.Status)
	assert.Equal(t, "system", cycle.ClosedBy)

	var room api.RoomDTO
	status = ts.do(t, http.MethodGet, "/api/rooms/"+roomID, nil, &room)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, room.CurrentCycleID)
}

func TestAPI_AdjustmentAndAudit(t *testing.T) {
	ts := newTestServer(t)
	_, cycleID := ts.seedRoom(t)

	var cycle api.CycleDTO
	status := ts.do(t, http.MethodPost, "/api/cycles/"+cycleID+"/adjustments",
		api.AdjustChargeRequest{
			UserID: "hana", RentDelta: "-50.00",
			Reason: "two weeks away", ActorID: "landlord",
		}, &cycle)
	require.Equal(t, http.StatusOK, status)

	assert.Equal(t, "350.00", cycle.Charges[0].Rent)
	assert.Equal(t, "535.00", cycle.Charges[0].TotalDue)
	assert.Equal(t, "1095.00", cycle.TotalBilled)

	var trail struct {
		Entries []api.AuditEntryDTO `json:"entries"`
	}
	status = ts.do(t, http.MethodGet, "/api/cycles/"+cycleID+"/audit", nil, &trail)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, trail.Entries, 1)

	entry := trail.Entries[0]
	assert.Equal(t, "adjustment", entry.Kind)
	assert.Equal(t, "hana", entry.UserID)
	assert.Equal(t, "-50.00", entry.RentDelta)
	assert.Equal(t, "585.00", entry.BeforeTotal)
	assert.Equal(t, "535.00", entry.AfterTotal)
	assert.Equal(t, "two weeks away", entry.Reason)
	assert.Equal(t, "landlord", entry.ActorID)
}

func TestAPI_RefundReducesBilledTotal(t *testing.T) {
	ts := newTestServer(t)
	_, cycleID := ts.seedRoom(t)

	// Force the first enrichment so the refund has a snapshot to work on.
	var cycle api.CycleDTO
	status := ts.do(t, http.MethodGet, "/api/cycles/"+cycleID, nil, &cycle)
	require.Equal(t, http.StatusOK, status)

	status = ts.do(t, http.MethodPost, "/api/cycles/"+cycleID+"/refunds",
		api.RefundRequest{
			UserID: "ivan", Amount: "30.00", BillType: "electricity",
			Reason: "meter misread", ActorID: "landlord",
		}, &cycle)
	require.Equal(t, http.StatusOK, status)

	assert.Equal(t, "1115.00", cycle.TotalBilled)
	// Member shares stay untouched by refunds.
	assert.Equal(t, "560.00", cycle.Charges[1].TotalDue)
}

func TestAPI_Portfolio(t *testing.T) {
	ts := newTestServer(t)
	roomID, cycleID := ts.seedRoom(t)

	var cycle api.CycleDTO
	status := ts.do(t, http.MethodGet, "/api/cycles/"+cycleID, nil, &cycle)
	require.Equal(t, http.StatusOK, status)

	ts.submitAndVerify(t, roomID, "hana", "585.00")

	var portfolio api.PortfolioDTO
	status = ts.do(t, http.MethodGet, "/api/admin/portfolio", nil, &portfolio)
	require.Equal(t, http.StatusOK, status)

	assert.Equal(t, 1, portfolio.ActiveCycles)
	assert.Equal(t, "1145.00", portfolio.TotalBilled)
	assert.Equal(t, "585.00", portfolio.TotalCollected)
	assert.Equal(t, int64(51), portfolio.CollectionPercentage)
}

// =============================================================================
// ERROR MAPPING TESTS
// =============================================================================

func TestAPI_ErrorStatusMapping(t *testing.T) {
	ts := newTestServer(t)
	roomID, cycleID := ts.seedRoom(t)

	t.Run("unknown room is 404", func(t *testing.T) {
		var resp api.ErrorResponse
		status := ts.do(t, http.MethodGet, "/api/rooms/missing", nil, &resp)
		assert.Equal(t, http.StatusNotFound, status)
		assert.NotEmpty(t, resp.Error)
	})

	t.Run("unknown cycle is 404", func(t *testing.T) {
		status := ts.do(t, http.MethodGet, "/api/cycles/missing", nil, &api.ErrorResponse{})
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("second open cycle is 400", func(t *testing.T) {
		status := ts.do(t, http.MethodPost, "/api/rooms/"+roomID+"/cycles",
			api.OpenCycleRequest{
				Start: "2026-09-01", End: "2026-09-30",
				Rent: "800.00", Electricity: "150.00", Internet: "120.00",
			}, &api.ErrorResponse{})
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("adjustment without reason is 400", func(t *testing.T) {
		status := ts.do(t, http.MethodPost, "/api/cycles/"+cycleID+"/adjustments",
			api.AdjustChargeRequest{UserID: "hana", RentDelta: "-10.00"},
			&api.ErrorResponse{})
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("malformed money is 400", func(t *testing.T) {
		status := ts.do(t, http.MethodPost, "/api/payments", api.SubmitPaymentRequest{
			RoomID: roomID, PayerID: "hana", BillType: "rent",
			Amount: "not-a-number", PaidAt: "2026-08-15",
		}, &api.ErrorResponse{})
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("payment from non-member is 404", func(t *testing.T) {
		status := ts.do(t, http.MethodPost, "/api/payments", api.SubmitPaymentRequest{
			RoomID: roomID, PayerID: "stranger", BillType: "rent",
			Amount: "100.00", PaidAt: "2026-08-15",
		}, &api.ErrorResponse{})
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("double verification is 400", func(t *testing.T) {
		verified := ts.submitAndVerify(t, roomID, "hana", "10.00")
		status := ts.do(t, http.MethodPost,
			"/api/payments/"+verified.Payment.ID+"/verify", nil, &api.ErrorResponse{})
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

// =============================================================================
// SCENARIO TESTS
// =============================================================================

func TestAPI_ScenarioLoadAndReset(t *testing.T) {
	ts := newTestServer(t)

	var available []api.Scenario
	status := ts.do(t, http.MethodGet, "/api/scenarios/", nil, &available)
	require.Equal(t, http.StatusOK, status)
	names := make([]string, len(available))
	for i, s := range available {
		names[i] = s.Name
	}
	assert.Contains(t, names, "mixed-room")

	status = ts.do(t, http.MethodPost, "/api/scenarios/load",
		api.LoadScenarioRequest{Scenario: "mixed-room"}, nil)
	require.Equal(t, http.StatusOK, status)

	var current map[string]string
	status = ts.do(t, http.MethodGet, "/api/scenarios/current", nil, &current)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "mixed-room", current["scenario"])

	var all []api.RoomDTO
	status = ts.do(t, http.MethodGet, "/api/rooms", nil, &all)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, all, 1)

	// The loaded room carries a computed active cycle with four occupants.
	var cycle api.CycleDTO
	status = ts.do(t, http.MethodGet, "/api/cycles/"+all[0].CurrentCycleID, nil, &cycle)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "1700.00", cycle.TotalBilled)
	assert.Len(t, cycle.Charges, 4)

	status = ts.do(t, http.MethodPost, "/api/scenarios/reset", nil, nil)
	require.Equal(t, http.StatusOK, status)

	status = ts.do(t, http.MethodGet, "/api/rooms", nil, &all)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, all)

	status = ts.do(t, http.MethodPost, "/api/scenarios/load",
		api.LoadScenarioRequest{Scenario: "no-such"}, &api.ErrorResponse{})
	assert.Equal(t, http.StatusNotFound, status)
}
