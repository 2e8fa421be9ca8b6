/*
handlers.go - HTTP API handlers for the cooperative engine

PURPOSE:
  Exposes weighment capture, the farmer registry, pricing and payroll via
  REST. Handles HTTP request/response and JSON serialization, and delegates
  every rule to the domain packages.

ENDPOINTS:
  Farmers:
    GET    /api/farmers                  List farmers
    POST   /api/farmers                  Register farmer (opening balances)
    GET    /api/farmers/export           CSV export
    GET    /api/farmers/{id}             Farmer details
    PUT    /api/farmers/{id}             Update profile
    POST   /api/farmers/{id}/charges     Issue inputs or an advance
    GET    /api/farmers/{id}/balance     Current-month running balance
    GET    /api/farmers/{id}/statement   Debt ledger with running balances
    GET    /api/farmers/{id}/records     Farmer's weighments

  Records:
    GET    /api/records                  List (filter: farmer_id, status)
    POST   /api/records                  Capture a weighment
    POST   /api/records/preview          Price a weighing without saving
    GET    /api/records/pending          Awaiting supervisor review
    POST   /api/records/sync             Mark records uploaded
    POST   /api/records/{id}/approve     Approve pending record
    POST   /api/records/{id}/reject      Reject pending record

  Tariff:
    GET    /api/tariff                   Schedule in force
    PUT    /api/tariff/settings          New version with new settings
    PUT    /api/tariff/routes            New version with new route table
    GET    /api/tariff/versions          Every version

  Payroll:
    GET    /api/payroll                  Compute (start, end, mode)
    GET    /api/payroll/export           CSV of the computation
    POST   /api/payroll/settle           Settle the pending batch
    GET    /api/payroll/runs             Settlement receipts

REQUEST FLOW:
  1. Parse HTTP request
  2. Load what the domain call needs from the store
  3. Call domain logic (capture, compute, settle, ...)
  4. Persist, audit, serialize response

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (already settled, balance changed, nothing to settle, not pending)
  - 500: Internal errors

SECURITY NOTE:
  No authentication. The acting user is read from the X-User header and
  only used for the audit log.

SEE ALSO:
  - dto.go: Request/response data structures
  - directory.go, reports.go: Remaining handlers
  - fixtures.go: Demo data loader
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/majani/coop-engine/access"
	"github.com/majani/coop-engine/ai"
	"github.com/majani/coop-engine/factory"
	"github.com/majani/coop-engine/farmer"
	"github.com/majani/coop-engine/generic"
	"github.com/majani/coop-engine/payroll"
	"github.com/majani/coop-engine/store/sqlite"
	"github.com/majani/coop-engine/tariff"
	"github.com/majani/coop-engine/weighment"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    *sqlite.Store
	Reporter *ai.Reporter
	Logger   *slog.Logger

	// Location defines calendar days for windows, sessions and statistics.
	Location *time.Location

	// Clock is overridden in tests.
	Clock func() time.Time
}

// NewHandler creates a new handler. A nil reporter means AI is unavailable.
func NewHandler(store *sqlite.Store, reporter *ai.Reporter, logger *slog.Logger, loc *time.Location) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	if reporter == nil {
		reporter = ai.NewReporter(nil, logger, loc)
	}
	return &Handler{Store: store, Reporter: reporter, Logger: logger, Location: loc, Clock: time.Now}
}

func (h *Handler) now() time.Time {
	return h.Clock().In(h.Location)
}

// schedule returns the tariff in force, saving the default one the first
// time so every run can point at a stored version.
func (h *Handler) schedule(ctx context.Context) (tariff.Schedule, error) {
	sched, err := h.Store.CurrentSchedule(ctx)
	if err == nil {
		return sched, nil
	}
	if !errors.Is(err, generic.ErrEntityNotFound) {
		return tariff.Schedule{}, err
	}
	sched = tariff.Default()
	if err := h.Store.SaveSchedule(ctx, sched); err != nil && !errors.Is(err, generic.ErrDuplicateEntity) {
		return tariff.Schedule{}, err
	}
	return sched, nil
}

// =============================================================================
// FARMER HANDLERS
// =============================================================================

// ListFarmers returns all farmers.
func (h *Handler) ListFarmers(w http.ResponseWriter, r *http.Request) {
	farmers, err := h.Store.ListFarmers(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list farmers", err)
		return
	}

	dtos := make([]FarmerDTO, len(farmers))
	for i, f := range farmers {
		dtos[i] = toFarmerDTO(f)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateFarmer registers a farmer.
// POST /api/farmers
func (h *Handler) CreateFarmer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req FarmerRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	f := req.toFarmer().Normalize()
	if err := f.Validate(); err != nil {
		h.fail(w, r, "Invalid farmer", err)
		return
	}

	user := h.actor(r)
	if err := h.Store.CreateFarmer(ctx, f, user.Username, h.now()); err != nil {
		h.fail(w, r, "Failed to create farmer", err)
		return
	}
	h.audit(ctx, user, generic.AuditCreateFarmer, fmt.Sprintf("Registered farmer %s (%s)", f.ID, f.DisplayName()))

	writeJSON(w, http.StatusCreated, toFarmerDTO(f))
}

// GetFarmer returns one farmer.
func (h *Handler) GetFarmer(w http.ResponseWriter, r *http.Request) {
	f, err := h.Store.GetFarmer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "Farmer not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toFarmerDTO(f))
}

// UpdateFarmer replaces a farmer's profile. Balances are not editable here.
// PUT /api/farmers/{id}
func (h *Handler) UpdateFarmer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var req FarmerRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	req.ID = id
	req.BalanceInputs, req.BalanceAdvances = 0, 0
	f := req.toFarmer().Normalize()
	if err := f.Validate(); err != nil {
		h.fail(w, r, "Invalid farmer", err)
		return
	}
	if err := h.Store.UpdateFarmer(ctx, f); err != nil {
		h.fail(w, r, "Failed to update farmer", err)
		return
	}
	h.audit(ctx, h.actor(r), generic.AuditUpdateFarmer, "Updated farmer "+id)

	updated, err := h.Store.GetFarmer(ctx, id)
	if err != nil {
		h.fail(w, r, "Failed to reload farmer", err)
		return
	}
	writeJSON(w, http.StatusOK, toFarmerDTO(updated))
}

// ChargeFarmer issues inputs or a cash advance against future pay.
// POST /api/farmers/{id}/charges
func (h *Handler) ChargeFarmer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var req ChargeRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	account, err := farmer.ParseAccount(req.Type)
	if err != nil {
		h.fail(w, r, "Invalid charge type", err)
		return
	}
	amount, err := farmer.ParseChargeAmount(req.AmountText())
	if err != nil {
		h.fail(w, r, "Please enter a valid positive amount", err)
		return
	}

	user := h.actor(r)
	f, err := h.Store.ChargeFarmer(ctx, id, account, amount, user.Username, h.now())
	if err != nil {
		h.fail(w, r, "Failed to charge farmer", err)
		return
	}
	h.audit(ctx, user, generic.AuditChargeFarmer, fmt.Sprintf("Charged %s to %s (%s)", amount, id, account))

	writeJSON(w, http.StatusOK, toFarmerDTO(f))
}

// GetRunningBalance returns what the farmer has earned so far this month.
// GET /api/farmers/{id}/balance
func (h *Handler) GetRunningBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, err := h.Store.GetFarmer(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "Farmer not found", err)
		return
	}
	records, err := h.Store.ListRecordsByFarmer(ctx, f.ID)
	if err != nil {
		h.fail(w, r, "Failed to load records", err)
		return
	}
	sched, err := h.schedule(ctx)
	if err != nil {
		h.fail(w, r, "Failed to load tariff", err)
		return
	}

	now := h.now()
	rb := weighment.ComputeRunningBalance(records, f, sched, now, h.Location)
	writeJSON(w, http.StatusOK, RunningBalanceDTO{
		FarmerID:       f.ID,
		Month:          now.Format("2006-01"),
		Weight:         money(rb.Weight),
		Gross:          money(rb.Gross),
		Transport:      money(rb.Charges.Transport),
		Cess:           money(rb.Charges.Cess),
		TransactionFee: money(rb.Charges.TransactionFee),
		Deductions:     money(rb.Deductions),
		Net:            money(rb.Net),
	})
}

// GetStatement returns the farmer's debt ledger, oldest first.
// GET /api/farmers/{id}/statement
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, err := h.Store.GetFarmer(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "Farmer not found", err)
		return
	}
	txs, err := farmer.NewDebtLedger(h.Store).Statement(ctx, f.ID)
	if err != nil {
		h.fail(w, r, "Failed to load statement", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTOs(txs))
}

// ListFarmerRecords returns one farmer's weighments.
func (h *Handler) ListFarmerRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.Store.ListRecordsByFarmer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "Failed to list records", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTOs(records))
}

// ExportFarmers streams the registry as CSV.
// GET /api/farmers/export
func (h *Handler) ExportFarmers(w http.ResponseWriter, r *http.Request) {
	farmers, err := h.Store.ListFarmers(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list farmers", err)
		return
	}
	writeCSVHeaders(w, farmer.ExportFileName(h.now()))
	if err := farmer.WriteCSV(w, farmers); err != nil {
		h.Logger.ErrorContext(r.Context(), "farmer export failed", "error", err)
	}
}

// =============================================================================
// RECORD HANDLERS
// =============================================================================

// ListRecords returns records, optionally filtered by farmer_id and status.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.Store.ListRecords(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list records", err)
		return
	}

	farmerID := r.URL.Query().Get("farmer_id")
	status := r.URL.Query().Get("status")
	records = slices.DeleteFunc(records, func(rec weighment.CollectionRecord) bool {
		return (farmerID != "" && rec.FarmerID != farmerID) ||
			(status != "" && string(rec.Status) != status)
	})
	writeJSON(w, http.StatusOK, toRecordDTOs(records))
}

// CaptureRecord validates and saves one weighing, and adds it to the
// clerk's open session.
// POST /api/records
func (h *Handler) CaptureRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CaptureRequest
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
	sched, err := h.schedule(ctx)
	if err != nil {
		h.fail(w, r, "Failed to load tariff", err)
		return
	}

	user := h.actor(r)
	clerk := req.ClerkID
	if clerk == "" {
		clerk = user.Username
	}
	now := h.now()
	rec, err := weighment.Capture(weighment.CaptureInput{
		FarmerID: req.FarmerID,
		Weight:   req.Weight,
		Quality:  req.QualityScore,
		ClerkID:  clerk,
		Location: fromLocationDTO(req.Location),
	}, sched.Settings, now)
	if err != nil {
		h.fail(w, r, "Invalid weighment", err)
		return
	}
	if err := h.Store.SaveRecord(ctx, rec); err != nil {
		h.fail(w, r, "Failed to save record", err)
		return
	}

	sess, err := h.Store.GetSession(ctx, clerk)
	if err != nil {
		h.fail(w, r, "Failed to load session", err)
		return
	}
	sess, _ = sess.Restore(now, h.Location)
	sess = sess.Add(rec)
	if sess.Active {
		if err := h.Store.SaveSession(ctx, sess); err != nil {
			h.fail(w, r, "Failed to save session", err)
			return
		}
	}

	h.audit(ctx, user, generic.AuditCollection,
		fmt.Sprintf("Recorded %s kg for %s (%s)", rec.NetWeight.Value.StringFixed(2), rec.FarmerID, rec.Status))

	writeJSON(w, http.StatusCreated, CaptureResponse{Record: toRecordDTO(rec), Session: toSessionDTO(sess, false)})
}

// PreviewRecord prices a weighing on the farmer's route without saving.
// POST /api/records/preview
func (h *Handler) PreviewRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req PreviewRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	if req.Weight <= 0 || req.Weight > weighment.MaxGrossWeight {
		h.fail(w, r, "Invalid weight", &generic.FieldError{Field: "weight", Message: "must be between 0 and 200 kg"})
		return
	}
	f, err := h.Store.GetFarmer(ctx, req.FarmerID)
	if err != nil {
		h.fail(w, r, "Farmer not found", err)
		return
	}
	sched, err := h.schedule(ctx)
	if err != nil {
		h.fail(w, r, "Failed to load tariff", err)
		return
	}

	b := weighment.Preview(generic.Kg(req.Weight), sched.Settings, sched.RouteFor(f.Route))
	writeJSON(w, http.StatusOK, toBreakdownDTO(b))
}

// ListPendingRecords returns records awaiting review.
func (h *Handler) ListPendingRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.Store.ListPending(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list pending records", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTOs(records))
}

// ApproveRecord approves a pending record.
func (h *Handler) ApproveRecord(w http.ResponseWriter, r *http.Request) {
	h.reviewRecord(w, r, true)
}

// RejectRecord rejects a pending record.
func (h *Handler) RejectRecord(w http.ResponseWriter, r *http.Request) {
	h.reviewRecord(w, r, false)
}

func (h *Handler) reviewRecord(w http.ResponseWriter, r *http.Request, approve bool) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	rec, err := h.Store.ReviewRecord(ctx, id, approve)
	if err != nil {
		h.fail(w, r, "Failed to review record", err)
		return
	}
	action, verb := generic.AuditApproval, "Approved"
	if !approve {
		action, verb = generic.AuditRejection, "Rejected"
	}
	h.audit(ctx, h.actor(r), action, fmt.Sprintf("%s record %s (quality %d)", verb, id, rec.QualityScore))

	writeJSON(w, http.StatusOK, toRecordDTO(rec))
}

// SyncRecords marks records as uploaded from a clerk's device.
func (h *Handler) SyncRecords(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	if err := h.Store.MarkSynced(r.Context(), req.RecordIDs); err != nil {
		h.fail(w, r, "Failed to sync records", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// TARIFF HANDLERS
// =============================================================================

// GetTariff returns the schedule in force.
func (h *Handler) GetTariff(w http.ResponseWriter, r *http.Request) {
	sched, err := h.schedule(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to load tariff", err)
		return
	}
	writeJSON(w, http.StatusOK, factory.ToJSON(sched))
}

// UpdateSettings saves a new version with the fields given changed.
// PUT /api/tariff/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req factory.SettingsJSON
	if err := decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	h.nextSchedule(w, r, generic.AuditUpdateSettings, func(cur tariff.Schedule, by string, at time.Time) tariff.Schedule {
		return cur.WithSettings(factory.MergeSettings(cur.Settings, req), by, at)
	})
}

// UpdateRoutes saves a new version with the given route table.
// PUT /api/tariff/routes
func (h *Handler) UpdateRoutes(w http.ResponseWriter, r *http.Request) {
	var req []factory.RouteJSON
	if err := decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	h.nextSchedule(w, r, generic.AuditUpdateRoutes, func(cur tariff.Schedule, by string, at time.Time) tariff.Schedule {
		return cur.WithRoutes(factory.RoutesFromJSON(req), by, at)
	})
}

func (h *Handler) nextSchedule(w http.ResponseWriter, r *http.Request, action generic.AuditAction, next func(tariff.Schedule, string, time.Time) tariff.Schedule) {
	ctx := r.Context()
	cur, err := h.schedule(ctx)
	if err != nil {
		h.fail(w, r, "Failed to load tariff", err)
		return
	}

	user := h.actor(r)
	sched := next(cur, user.Username, h.now())
	if err := h.Store.SaveSchedule(ctx, sched); err != nil {
		h.fail(w, r, "Failed to save tariff", err)
		return
	}
	h.audit(ctx, user, action, fmt.Sprintf("Tariff version %d", sched.Version))

	writeJSON(w, http.StatusOK, factory.ToJSON(sched))
}

// ListTariffVersions returns every schedule, newest first.
func (h *Handler) ListTariffVersions(w http.ResponseWriter, r *http.Request) {
	if _, err := h.schedule(r.Context()); err != nil {
		h.fail(w, r, "Failed to load tariff", err)
		return
	}
	scheds, err := h.Store.ListSchedules(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list tariffs", err)
		return
	}
	out := make([]factory.ScheduleJSON, len(scheds))
	for i, s := range scheds {
		out[i] = factory.ToJSON(s)
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// PAYROLL HANDLERS
// =============================================================================

func (h *Handler) computePayroll(ctx context.Context, window generic.DateWindow, mode payroll.Mode) (payroll.Result, error) {
	records, err := h.Store.ListRecords(ctx)
	if err != nil {
		return payroll.Result{}, err
	}
	farmers, err := h.Store.ListFarmers(ctx)
	if err != nil {
		return payroll.Result{}, err
	}
	sched, err := h.schedule(ctx)
	if err != nil {
		return payroll.Result{}, err
	}
	return payroll.Compute(payroll.Query{
		Records:  records,
		Farmers:  farmers,
		Schedule: sched,
		Window:   window,
		Mode:     mode,
	}), nil
}

// payrollQuery reads start, end and mode from the query string.
func (h *Handler) payrollQuery(r *http.Request) (generic.DateWindow, payroll.Mode, error) {
	q := r.URL.Query()
	window, err := generic.NewDateWindow(q.Get("start"), q.Get("end"), h.Location)
	if err != nil {
		return generic.DateWindow{}, "", err
	}
	mode, err := payroll.ParseMode(q.Get("mode"))
	if err != nil {
		return generic.DateWindow{}, "", err
	}
	return window, mode, nil
}

// GetPayroll computes payments for a window.
// GET /api/payroll?start=2025-10-01&end=2025-10-31&mode=pending
func (h *Handler) GetPayroll(w http.ResponseWriter, r *http.Request) {
	window, mode, err := h.payrollQuery(r)
	if err != nil {
		h.fail(w, r, "Invalid payroll query", err)
		return
	}
	result, err := h.computePayroll(r.Context(), window, mode)
	if err != nil {
		h.fail(w, r, "Failed to compute payroll", err)
		return
	}
	writeJSON(w, http.StatusOK, toPayrollDTO(result))
}

// ExportPayroll streams the computed payments as CSV.
// GET /api/payroll/export
func (h *Handler) ExportPayroll(w http.ResponseWriter, r *http.Request) {
	window, mode, err := h.payrollQuery(r)
	if err != nil {
		h.fail(w, r, "Invalid payroll query", err)
		return
	}
	result, err := h.computePayroll(r.Context(), window, mode)
	if err != nil {
		h.fail(w, r, "Failed to compute payroll", err)
		return
	}
	writeCSVHeaders(w, payroll.ExportFileName(window))
	if err := payroll.WriteCSV(w, result.Payments); err != nil {
		h.Logger.ErrorContext(r.Context(), "payroll export failed", "error", err)
	}
}

// SettlePayroll settles the pending batch for the window in one
// transaction. A stale or concurrent settlement gets 409 and changes
// nothing.
// POST /api/payroll/settle
func (h *Handler) SettlePayroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SettleRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	window, err := generic.NewDateWindow(req.Start, req.End, h.Location)
	if err != nil {
		h.fail(w, r, "Invalid payroll period", err)
		return
	}
	result, err := h.computePayroll(ctx, window, payroll.ModePending)
	if err != nil {
		h.fail(w, r, "Failed to compute payroll", err)
		return
	}
	if err := staleReview(req, toPayrollDTO(result)); err != nil {
		writeError(w, http.StatusConflict, "Payroll changed since it was reviewed", err)
		return
	}

	user := h.actor(r)
	processedBy := req.ProcessedBy
	if processedBy == "" {
		processedBy = user.Name
	}
	st, err := payroll.Settle(result.Command(processedBy, h.now()))
	if err != nil {
		h.fail(w, r, "Nothing to settle", err)
		return
	}
	if err := h.Store.ApplySettlement(ctx, st); err != nil {
		h.fail(w, r, "Settlement failed", err)
		return
	}

	h.Logger.InfoContext(ctx, "payroll settled",
		"run_id", st.Run.ID, "records", len(st.RecordIDs), "farmers", st.Run.TotalFarmers,
		"payout", st.Run.TotalPayout.Value.StringFixed(2))
	h.audit(ctx, user, generic.AuditPayrollSettle,
		fmt.Sprintf("Settled %s: %d farmers, %s", st.Run.ID, st.Run.TotalFarmers, st.Run.TotalPayout))

	writeJSON(w, http.StatusCreated, SettleResponse{Run: toRunDTO(st.Run), Records: st.RecordIDs})
}

// staleReview compares what the officer reviewed with the batch about to be
// committed. Fields the request leaves out are not checked.
func staleReview(req SettleRequest, current PayrollDTO) error {
	if req.RecordIDs != nil && !sameIDs(req.RecordIDs, current.RecordIDs) {
		return errors.New("record set differs")
	}
	if req.TariffVersion != nil && *req.TariffVersion != current.TariffVersion {
		return fmt.Errorf("tariff version %d is now %d", *req.TariffVersion, current.TariffVersion)
	}
	if req.Deductions != nil {
		if len(req.Deductions) != len(current.Payments) {
			return errors.New("farmer set differs")
		}
		for _, p := range current.Payments {
			if reviewed, ok := req.Deductions[p.FarmerID]; !ok || reviewed != p.Deductions {
				return fmt.Errorf("deductions for %s differ", p.FarmerID)
			}
		}
	}
	if req.Net != nil && *req.Net != current.Summary.Net {
		return fmt.Errorf("net payout %.2f is now %.2f", *req.Net, current.Summary.Net)
	}
	return nil
}

func sameIDs(a, b []string) bool {
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

// ListRuns returns settlement receipts, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.ListRuns(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list payroll runs", err)
		return
	}
	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

// actor resolves the X-User header against the directory. Requests without
// one act as the system.
func (h *Handler) actor(r *http.Request) access.User {
	system := access.User{Username: "system", Name: "System", Role: access.RoleAdministrator}
	name := r.Header.Get("X-User")
	if name == "" {
		return system
	}
	dir, err := h.Store.Directory(r.Context())
	if err != nil {
		return system
	}
	u, err := dir.Resolve(name)
	if err != nil {
		return access.User{Username: name, Name: name}
	}
	return u
}

// audit records an entry. Failures are logged, never returned: the audit
// log is informational.
func (h *Handler) audit(ctx context.Context, u access.User, action generic.AuditAction, details string) {
	entry := generic.AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: h.now(),
		UserID:    u.Username,
		UserName:  u.Name,
		UserRole:  string(u.Role),
		Action:    action,
		Details:   details,
	}
	if err := h.Store.Audit().Append(ctx, entry); err != nil {
		h.Logger.WarnContext(ctx, "audit append failed", "action", action, "error", err)
	}
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &generic.FieldError{Field: "body", Message: err.Error()}
	}
	return nil
}

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

func writeCSVHeaders(w http.ResponseWriter, filename string) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch {
	case generic.IsClientError(err):
		return http.StatusBadRequest
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case generic.IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with the status it maps to. Server errors are logged.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Logger.ErrorContext(r.Context(), message, "error", err)
	}
	writeError(w, status, message, err)
}
