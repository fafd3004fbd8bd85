/*
scenarios.go - Demo scenario loaders

PURPOSE:
  Seeds the database with recognizable demo data so the API can be
  explored locally without manual setup. Each scenario wipes the
  database first, then builds rooms, members, presence, cycles, and
  payments through the same services the API uses.

SCENARIOS:
  mixed-room:     Four occupants, three payers, one sponsored non-payer.
                  Uneven presence so the water redistribution is visible.
  even-split:     Three payers, identical presence. Every share is equal
                  except the rounding cent on thirds.
  near-settled:   A cycle one verified payment away from auto-closing.
  multi-room:     Three rooms with active cycles for the portfolio view.

SEE ALSO:
  - handlers.go: LoadScenario/ListScenarios endpoints
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"go.uber.org/zap"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/payments"
	"github.com/warp/billing-engine/rooms"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// Scenario describes a loadable demo dataset.
type Scenario struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type scenarioLoader func(ctx context.Context, h *Handler) error

var scenarios = map[string]struct {
	description string
	load        scenarioLoader
}{
	"mixed-room": {
		description: "Four occupants, three payers; non-payer water redistributed",
		load:        loadMixedRoom,
	},
	"even-split": {
		description: "Three payers with identical presence; equal shares",
		load:        loadEvenSplit,
	},
	"near-settled": {
		description: "A cycle one verified payment away from auto-closing",
		load:        loadNearSettled,
	},
	"multi-room": {
		description: "Three rooms with active cycles for the portfolio view",
		load:        loadMultiRoom,
	},
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns all available demo scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	out := make([]Scenario, 0, len(scenarios))
	for name, s := range scenarios {
		out = append(out, Scenario{Name: name, Description: s.description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	writeJSON(w, http.StatusOK, out)
}

// GetCurrentScenario returns the most recently loaded scenario name.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"scenario": h.currentScenario})
}

// LoadScenario wipes the database and loads the named scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	s, ok := scenarios[req.Scenario]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Unknown scenario: %s", req.Scenario), nil)
		return
	}

	ctx := r.Context()
	if h.Resetter != nil {
		if err := h.Resetter.Reset(ctx); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
			return
		}
	}
	if err := s.load(ctx, h); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.Scenario
	h.Log.Info("scenario loaded", zap.String("scenario", req.Scenario))
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.Scenario})
}

// ResetDatabase wipes all data. Dev only.
// POST /api/scenarios/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if h.Resetter == nil {
		writeError(w, http.StatusNotImplemented, "Reset not supported by this store", nil)
		return
	}
	if err := h.Resetter.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SEED HELPERS
// =============================================================================

type seedMember struct {
	userID  string
	name    string
	isPayer bool
	// presence days, counted from the cycle window start
	days int
}

// seedRoom builds a room, its members, their presence, and an open cycle.
func seedRoom(ctx context.Context, h *Handler, name string, window billing.Window, rent, electricity, internet string, members []seedMember) (*billing.BillingCycle, error) {
	room, err := h.Rooms.CreateRoom(ctx, name)
	if err != nil {
		return nil, err
	}

	for _, m := range members {
		if _, err := h.Rooms.AddMember(ctx, rooms.AddMemberInput{
			RoomID:  room.ID,
			UserID:  m.userID,
			Name:    m.name,
			IsPayer: m.isPayer,
		}); err != nil {
			return nil, err
		}
		for d := 0; d < m.days; d++ {
			day := window.Start.AddDays(d)
			if !window.Contains(day) {
				break
			}
			if err := h.Rooms.RecordPresence(ctx, room.ID, m.userID, day); err != nil {
				return nil, err
			}
		}
	}

	return h.Rooms.OpenCycle(ctx, rooms.OpenCycleInput{
		RoomID:      room.ID,
		Start:       window.Start,
		End:         window.End,
		Rent:        billing.MustParseMoney(rent),
		Electricity: billing.MustParseMoney(electricity),
		Internet:    billing.MustParseMoney(internet),
	})
}

func augustWindow() billing.Window {
	return billing.Window{
		Start: billing.NewDate(2026, 8, 1),
		End:   billing.NewDate(2026, 8, 31),
	}
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// loadMixedRoom seeds a four-occupant room where one member is a sponsored
// non-payer. At the default rate of 5.00/day the presence counts below
// yield own water of 100, 125, 75 and 50; the non-payer's 50 is split
// across the three payers.
func loadMixedRoom(ctx context.Context, h *Handler) error {
	cycle, err := seedRoom(ctx, h, "Sampaloc Unit 2B", augustWindow(),
		"1000.00", "200.00", "150.00",
		[]seedMember{
			{userID: "alice", name: "Alice", isPayer: true, days: 20},
			{userID: "ben", name: "Ben", isPayer: true, days: 25},
			{userID: "carol", name: "Carol", isPayer: true, days: 15},
			{userID: "dan", name: "Dan", isPayer: false, days: 10},
		})
	if err != nil {
		return err
	}

	// Force proration so charges are visible immediately.
	_, err = h.Billing.Enrich(ctx, cycle.ID)
	return err
}

// loadEvenSplit seeds three payers with identical presence.
func loadEvenSplit(ctx context.Context, h *Handler) error {
	cycle, err := seedRoom(ctx, h, "Katipunan Loft", augustWindow(),
		"1500.00", "300.00", "100.00",
		[]seedMember{
			{userID: "erik", name: "Erik", isPayer: true, days: 30},
			{userID: "faye", name: "Faye", isPayer: true, days: 30},
			{userID: "gio", name: "Gio", isPayer: true, days: 30},
		})
	if err != nil {
		return err
	}
	_, err = h.Billing.Enrich(ctx, cycle.ID)
	return err
}

// loadNearSettled seeds a two-payer room where one payer has already made
// a verified lump payment. Verifying the remaining pending payment closes
// the cycle.
func loadNearSettled(ctx context.Context, h *Handler) error {
	window := augustWindow()
	cycle, err := seedRoom(ctx, h, "Espana Tower 8F", window,
		"800.00", "150.00", "120.00",
		[]seedMember{
			{userID: "hana", name: "Hana", isPayer: true, days: 28},
			{userID: "ivan", name: "Ivan", isPayer: true, days: 22},
		})
	if err != nil {
		return err
	}
	enriched, err := h.Billing.Enrich(ctx, cycle.ID)
	if err != nil {
		return err
	}

	// Hana settles in full with a single lump payment, verified.
	hana := enriched.Charge("hana")
	if hana == nil {
		return fmt.Errorf("seed: missing charge for hana")
	}
	paid, err := h.Payments.Submit(ctx, payments.SubmitInput{
		RoomID:   enriched.RoomID,
		PayerID:  "hana",
		BillType: billing.BillTotal,
		Amount:   hana.TotalDue,
		PaidAt:   window.Start.AddDays(5),
		Note:     "gcash ref 88421",
	})
	if err != nil {
		return err
	}
	if _, _, err := h.Payments.Verify(ctx, paid.ID); err != nil {
		return err
	}

	// Ivan's lump payment stays pending.
	ivan := enriched.Charge("ivan")
	if ivan == nil {
		return fmt.Errorf("seed: missing charge for ivan")
	}
	_, err = h.Payments.Submit(ctx, payments.SubmitInput{
		RoomID:   enriched.RoomID,
		PayerID:  "ivan",
		BillType: billing.BillTotal,
		Amount:   ivan.TotalDue,
		PaidAt:   window.Start.AddDays(9),
		Note:     "bank transfer",
	})
	return err
}

// loadMultiRoom seeds three rooms so the portfolio rollup has something
// to aggregate.
func loadMultiRoom(ctx context.Context, h *Handler) error {
	if err := loadMixedRoom(ctx, h); err != nil {
		return err
	}
	if err := loadEvenSplit(ctx, h); err != nil {
		return err
	}
	return loadNearSettled(ctx, h)
}
