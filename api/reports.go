package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/majani/coop-engine/ai"
	"github.com/majani/coop-engine/compliance"
	"github.com/majani/coop-engine/generic"
	"github.com/majani/coop-engine/weighment"
)

// =============================================================================
// COMPLIANCE
// =============================================================================

// ListInspections returns inspections, most recent first.
func (h *Handler) ListInspections(w http.ResponseWriter, r *http.Request) {
	inspections, err := h.Store.ListInspections(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list inspections", err)
		return
	}
	dtos := make([]InspectionDTO, len(inspections))
	for i, in := range inspections {
		dtos[i] = toInspectionDTO(in)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateInspection scores a completed checklist and saves it.
// POST /api/inspections
func (h *Handler) CreateInspection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req InspectionRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	if req.FarmerID != "" {
		if _, err := h.Store.GetFarmer(ctx, req.FarmerID); err != nil {
			h.fail(w, r, "Farmer not found", err)
			return
		}
	}

	user := h.actor(r)
	auditor := req.AuditorID
	if auditor == "" {
		auditor = user.Username
	}
	in, err := compliance.NewInspection(req.FarmerID, auditor, req.Notes, fromChecklistDTOs(req.Checklist), h.now())
	if err != nil {
		h.fail(w, r, "Invalid inspection", err)
		return
	}
	if err := h.Store.SaveInspection(ctx, in); err != nil {
		h.fail(w, r, "Failed to save inspection", err)
		return
	}
	h.audit(ctx, user, generic.AuditInspection,
		fmt.Sprintf("Inspected %s: %s%% %s", in.FarmerID, in.Score.StringFixed(0), in.Status))

	writeJSON(w, http.StatusCreated, toInspectionDTO(in))
}

// GetComplianceSummary counts inspections per certification tier.
func (h *Handler) GetComplianceSummary(w http.ResponseWriter, r *http.Request) {
	inspections, err := h.Store.ListInspections(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list inspections", err)
		return
	}
	t := compliance.Summarize(inspections)
	writeJSON(w, http.StatusOK, TallyDTO{
		Total:        t.Total,
		Compliant:    t.Compliant,
		Conditional:  t.Conditional,
		NonCompliant: t.NonCompliant,
		AverageScore: t.AverageScore.Round(1).InexactFloat64(),
	})
}

// GetCriteria returns the blank checklist an inspector fills in.
func (h *Handler) GetCriteria(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toChecklistDTOs(compliance.RainforestCriteria()))
}

// =============================================================================
// DASHBOARD
// =============================================================================

// GetDashboard returns the headline figures and the last days of activity.
// GET /api/dashboard?days=7
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.fail(w, r, "Invalid days", &generic.FieldError{Field: "days", Message: "must be a positive integer"})
			return
		}
		days = n
	}

	records, err := h.Store.ListRecords(ctx)
	if err != nil {
		h.fail(w, r, "Failed to list records", err)
		return
	}
	farmers, err := h.Store.ListFarmers(ctx)
	if err != nil {
		h.fail(w, r, "Failed to list farmers", err)
		return
	}

	o := weighment.ComputeOverview(records, farmers)
	daily := weighment.LastDays(weighment.DailyStats(records, h.Location), h.now(), days, h.Location)

	routes := make([]RouteWeightDTO, len(o.RouteWeights))
	for i, rw := range o.RouteWeights {
		routes[i] = RouteWeightDTO{Route: rw.Route, Weight: money(rw.Weight)}
	}
	writeJSON(w, http.StatusOK, DashboardDTO{
		TotalWeight:   money(o.TotalWeight),
		AvgQuality:    o.AvgQuality.InexactFloat64(),
		UniqueFarmers: o.UniqueFarmers,
		PendingCount:  o.PendingCount,
		RouteWeights:  routes,
		Quality:       QualityBandsDTO{Premium: o.Quality.Premium, Standard: o.Quality.Standard, Low: o.Quality.Low},
		Daily:         toDailyStatDTOs(daily),
	})
}

// =============================================================================
// AI
// =============================================================================

// Each AI endpoint answers 200 with a readable message even when the
// generator is missing or fails; Available tells the client which case it is.

// GetDailyReport summarises today's collections.
func (h *Handler) GetDailyReport(w http.ResponseWriter, r *http.Request) {
	records, err := h.Store.ListRecords(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list records", err)
		return
	}
	text := h.Reporter.DailyReport(r.Context(), records, h.now())
	writeJSON(w, http.StatusOK, TextDTO{Text: text, Available: h.Reporter.Available()})
}

// Ask answers a free-form question over the record set.
// POST /api/ai/ask
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AskRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	if req.Question == "" {
		h.fail(w, r, "Invalid question", &generic.FieldError{Field: "question", Message: "is required"})
		return
	}
	records, err := h.Store.ListRecords(ctx)
	if err != nil {
		h.fail(w, r, "Failed to list records", err)
		return
	}
	contextJSON, err := ai.BuildAssistantContext(records)
	if err != nil {
		h.fail(w, r, "Failed to build context", err)
		return
	}
	text := h.Reporter.Ask(ctx, req.Question, contextJSON)
	writeJSON(w, http.StatusOK, TextDTO{Text: text, Available: h.Reporter.Available()})
}

// Analyze runs a forecast, anomaly or clustering prompt over daily totals.
// POST /api/ai/analyze
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AnalyzeRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	model, err := ai.ParseModelType(req.Model)
	if err != nil {
		h.fail(w, r, "Invalid model", err)
		return
	}
	records, err := h.Store.ListRecords(ctx)
	if err != nil {
		h.fail(w, r, "Failed to list records", err)
		return
	}
	text := h.Reporter.Analyze(ctx, records, model, ai.Params{Horizon: req.Horizon, Sensitivity: req.Sensitivity})
	writeJSON(w, http.StatusOK, TextDTO{Text: text, Available: h.Reporter.Available()})
}
