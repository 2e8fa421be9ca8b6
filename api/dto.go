/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract. Decimal
  amounts cross the boundary as numbers rounded to two places; instants
  as RFC3339 strings.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Farmers:     FarmerDTO, FarmerRequest, ChargeRequest, RunningBalanceDTO, StatementEntryDTO
  Records:     RecordDTO, CaptureRequest, PreviewRequest, BreakdownDTO
  Payroll:     PayrollDTO, PaymentDTO, SettleRequest, RunDTO
  Compliance:  InspectionDTO, InspectionRequest, TallyDTO
  Directory:   UserDTO, LoginRequest, SessionDTO, AuditEntryDTO
  Dashboard:   DashboardDTO, DailyStatDTO
  AI:          TextDTO, AskRequest, AnalyzeRequest

VALIDATION:
  Validation is done in the domain packages, not in DTOs. DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/tariff.go: ScheduleJSON, served as-is by the tariff endpoints
*/
package api

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/majani/coop-engine/access"
	"github.com/majani/coop-engine/compliance"
	"github.com/majani/coop-engine/farmer"
	"github.com/majani/coop-engine/generic"
	"github.com/majani/coop-engine/payroll"
	"github.com/majani/coop-engine/weighment"
)

// =============================================================================
// FARMERS
// =============================================================================

type LocationDTO struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type NextOfKinDTO struct {
	Name     string `json:"name"`
	Relation string `json:"relation"`
	Phone    string `json:"phone"`
}

// FarmerDTO represents a farmer in API responses.
type FarmerDTO struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	FirstName       string       `json:"first_name"`
	MiddleName      string       `json:"middle_name,omitempty"`
	LastName        string       `json:"last_name"`
	Phone           string       `json:"phone"`
	Email           string       `json:"email,omitempty"`
	CooperativeID   string       `json:"cooperative_id"`
	Acreage         float64      `json:"acreage"`
	Route           string       `json:"route"`
	Centre          string       `json:"centre,omitempty"`
	BankName        string       `json:"bank_name,omitempty"`
	BankBranch      string       `json:"bank_branch,omitempty"`
	AccountNumber   string       `json:"account_number,omitempty"`
	Location        *LocationDTO `json:"location,omitempty"`
	NextOfKin       NextOfKinDTO `json:"next_of_kin"`
	BalanceInputs   float64      `json:"balance_inputs"`
	BalanceAdvances float64      `json:"balance_advances"`
}

// FarmerRequest creates or updates a farmer. Balances are only read on
// create, as opening balances.
type FarmerRequest struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	FirstName       string       `json:"first_name"`
	MiddleName      string       `json:"middle_name"`
	LastName        string       `json:"last_name"`
	Phone           string       `json:"phone"`
	Email           string       `json:"email"`
	CooperativeID   string       `json:"cooperative_id"`
	Acreage         float64      `json:"acreage"`
	Route           string       `json:"route"`
	Centre          string       `json:"centre"`
	BankName        string       `json:"bank_name"`
	BankBranch      string       `json:"bank_branch"`
	AccountNumber   string       `json:"account_number"`
	Location        *LocationDTO `json:"location"`
	NextOfKin       NextOfKinDTO `json:"next_of_kin"`
	BalanceInputs   float64      `json:"balance_inputs"`
	BalanceAdvances float64      `json:"balance_advances"`
}

// ChargeRequest issues inputs or an advance. Amount may be sent as a JSON
// number or as the text the admin typed.
type ChargeRequest struct {
	Type   string          `json:"type"`
	Amount json.RawMessage `json:"amount"`
}

func (c ChargeRequest) AmountText() string {
	return strings.Trim(strings.TrimSpace(string(c.Amount)), `"`)
}

type RunningBalanceDTO struct {
	FarmerID       string  `json:"farmer_id"`
	Month          string  `json:"month"`
	Weight         float64 `json:"weight"`
	Gross          float64 `json:"gross"`
	Transport      float64 `json:"transport"`
	Cess           float64 `json:"cess"`
	TransactionFee float64 `json:"transaction_fee"`
	Deductions     float64 `json:"deductions"`
	Net            float64 `json:"net"`
}

type StatementEntryDTO struct {
	ID          string  `json:"id"`
	Account     string  `json:"account"`
	Type        string  `json:"type"`
	Amount      float64 `json:"amount"`
	Balance     float64 `json:"balance"`
	EffectiveAt string  `json:"effective_at"`
	ReferenceID string  `json:"reference_id,omitempty"`
	Reason      string  `json:"reason,omitempty"`
	CreatedBy   string  `json:"created_by,omitempty"`
}

func toFarmerDTO(f farmer.Farmer) FarmerDTO {
	return FarmerDTO{
		ID:              f.ID,
		Name:            f.DisplayName(),
		FirstName:       f.FirstName,
		MiddleName:      f.MiddleName,
		LastName:        f.LastName,
		Phone:           f.Phone,
		Email:           f.Email,
		CooperativeID:   f.CooperativeID,
		Acreage:         f.Acreage.InexactFloat64(),
		Route:           f.Route,
		Centre:          f.Centre,
		BankName:        f.BankName,
		BankBranch:      f.BankBranch,
		AccountNumber:   f.AccountNumber,
		Location:        toLocationDTO(f.Location),
		NextOfKin:       NextOfKinDTO(f.NextOfKin),
		BalanceInputs:   money(f.BalanceInputs),
		BalanceAdvances: money(f.BalanceAdvances),
	}
}

func (r FarmerRequest) toFarmer() farmer.Farmer {
	return farmer.Farmer{
		ID:              strings.TrimSpace(r.ID),
		Name:            r.Name,
		FirstName:       r.FirstName,
		MiddleName:      r.MiddleName,
		LastName:        r.LastName,
		Phone:           r.Phone,
		Email:           r.Email,
		CooperativeID:   r.CooperativeID,
		Acreage:         decimal.NewFromFloat(r.Acreage),
		Route:           r.Route,
		Centre:          r.Centre,
		BankName:        r.BankName,
		BankBranch:      r.BankBranch,
		AccountNumber:   r.AccountNumber,
		Location:        fromLocationDTO(r.Location),
		NextOfKin:       farmer.NextOfKin(r.NextOfKin),
		BalanceInputs:   generic.KES(r.BalanceInputs),
		BalanceAdvances: generic.KES(r.BalanceAdvances),
	}
}

// toStatementDTOs attaches the running balance per account.
func toStatementDTOs(txs []generic.Transaction) []StatementEntryDTO {
	balances := make(map[generic.AccountID]generic.Amount)
	out := make([]StatementEntryDTO, 0, len(txs))
	for _, tx := range txs {
		bal, ok := balances[tx.AccountID]
		if !ok {
			bal = generic.KES(0)
		}
		bal = bal.Add(tx.Delta)
		balances[tx.AccountID] = bal
		out = append(out, StatementEntryDTO{
			ID:          string(tx.ID),
			Account:     string(tx.AccountID),
			Type:        string(tx.Type),
			Amount:      money(tx.Delta),
			Balance:     money(bal),
			EffectiveAt: formatInstant(tx.EffectiveAt.Time),
			ReferenceID: tx.ReferenceID,
			Reason:      tx.Reason,
			CreatedBy:   tx.CreatedBy,
		})
	}
	return out
}

// =============================================================================
// RECORDS
// =============================================================================

type RecordDTO struct {
	ID           string       `json:"id"`
	FarmerID     string       `json:"farmer_id"`
	Weight       float64      `json:"weight"`
	NetWeight    float64      `json:"net_weight"`
	QualityScore int          `json:"quality_score"`
	Timestamp    string       `json:"timestamp"`
	ClerkID      string       `json:"clerk_id,omitempty"`
	Location     *LocationDTO `json:"location,omitempty"`
	Synced       bool         `json:"synced"`
	Status       string       `json:"status"`
	PayrollRunID string       `json:"payroll_run_id,omitempty"`
}

type CaptureRequest struct {
	FarmerID     string       `json:"farmer_id"`
	Weight       float64      `json:"weight"`
	QualityScore int          `json:"quality_score"`
	ClerkID      string       `json:"clerk_id"`
	Location     *LocationDTO `json:"location"`
}

// CaptureResponse is the saved record plus the clerk's updated session.
type CaptureResponse struct {
	Record  RecordDTO  `json:"record"`
	Session SessionDTO `json:"session"`
}

type PreviewRequest struct {
	FarmerID string  `json:"farmer_id"`
	Weight   float64 `json:"weight"`
}

type BreakdownDTO struct {
	Gross          float64 `json:"gross"`
	Tare           float64 `json:"tare"`
	Moisture       float64 `json:"moisture"`
	Net            float64 `json:"net"`
	GrossPay       float64 `json:"gross_pay"`
	Transport      float64 `json:"transport"`
	Cess           float64 `json:"cess"`
	TransactionFee float64 `json:"transaction_fee"`
	NetPay         float64 `json:"net_pay"`
}

type SyncRequest struct {
	RecordIDs []string `json:"record_ids"`
}

func toRecordDTO(r weighment.CollectionRecord) RecordDTO {
	return RecordDTO{
		ID:           r.ID,
		FarmerID:     r.FarmerID,
		Weight:       money(r.Weight),
		NetWeight:    money(r.NetWeight),
		QualityScore: r.QualityScore,
		Timestamp:    formatInstant(r.Timestamp),
		ClerkID:      r.ClerkID,
		Location:     toLocationDTO(r.Location),
		Synced:       r.Synced,
		Status:       string(r.Status),
		PayrollRunID: r.PayrollRunID,
	}
}

func toRecordDTOs(records []weighment.CollectionRecord) []RecordDTO {
	out := make([]RecordDTO, len(records))
	for i, r := range records {
		out[i] = toRecordDTO(r)
	}
	return out
}

func toBreakdownDTO(b weighment.Breakdown) BreakdownDTO {
	return BreakdownDTO{
		Gross:          money(b.Gross),
		Tare:           money(b.Tare),
		Moisture:       money(b.Moisture),
		Net:            money(b.Net),
		GrossPay:       money(b.GrossPay),
		Transport:      money(b.Charges.Transport),
		Cess:           money(b.Charges.Cess),
		TransactionFee: money(b.Charges.TransactionFee),
		NetPay:         money(b.NetPay),
	}
}

// =============================================================================
// PAYROLL
// =============================================================================

type DeductionsDTO struct {
	Transport       float64 `json:"transport"`
	Cess            float64 `json:"cess"`
	TransactionCost float64 `json:"transaction_cost"`
	Inputs          float64 `json:"inputs"`
	Advances        float64 `json:"advances"`
}

type PaymentDTO struct {
	FarmerID        string        `json:"farmer_id"`
	FarmerName      string        `json:"farmer_name"`
	FarmerPhone     string        `json:"farmer_phone"`
	TotalKg         float64       `json:"total_kg"`
	Sessions        int           `json:"sessions"`
	GrossPay        float64       `json:"gross_pay"`
	Deductions      DeductionsDTO `json:"deductions"`
	TotalDeductions float64       `json:"total_deductions"`
	NetPay          float64       `json:"net_pay"`
	IsSettled       bool          `json:"is_settled"`
}

type SummaryDTO struct {
	Farmers    int     `json:"farmers"`
	Weight     float64 `json:"weight"`
	Gross      float64 `json:"gross"`
	Deductions float64 `json:"deductions"`
	Net        float64 `json:"net"`
}

// PayrollDTO is one aggregation. RecordIDs are the records a settlement
// of this view would stamp.
type PayrollDTO struct {
	Mode          string       `json:"mode"`
	PeriodStart   string       `json:"period_start"`
	PeriodEnd     string       `json:"period_end"`
	Payments      []PaymentDTO `json:"payments"`
	Summary       SummaryDTO   `json:"summary"`
	RecordIDs     []string     `json:"record_ids"`
	TariffVersion int          `json:"tariff_version"`
}

// SettleRequest settles the pending batch for a window. The remaining
// fields echo the PayrollDTO the officer reviewed; each one given must match
// the batch at commit time, so a batch whose records, tariff, deductions or
// total moved after review is never paid.
type SettleRequest struct {
	Start         string                   `json:"start"`
	End           string                   `json:"end"`
	ProcessedBy   string                   `json:"processed_by"`
	RecordIDs     []string                 `json:"record_ids"`
	TariffVersion *int                     `json:"tariff_version,omitempty"`
	Net           *float64                 `json:"net,omitempty"`
	Deductions    map[string]DeductionsDTO `json:"deductions,omitempty"`
}

// Reviewed builds the settle request that commits exactly this view.
func (p PayrollDTO) Reviewed(start, end string) SettleRequest {
	version, net := p.TariffVersion, p.Summary.Net
	deductions := make(map[string]DeductionsDTO, len(p.Payments))
	for _, pay := range p.Payments {
		deductions[pay.FarmerID] = pay.Deductions
	}
	return SettleRequest{
		Start:         start,
		End:           end,
		RecordIDs:     p.RecordIDs,
		TariffVersion: &version,
		Net:           &net,
		Deductions:    deductions,
	}
}

type RunDTO struct {
	ID            string  `json:"id"`
	PeriodStart   string  `json:"period_start"`
	PeriodEnd     string  `json:"period_end"`
	TotalWeight   float64 `json:"total_weight"`
	TotalPayout   float64 `json:"total_payout"`
	TotalFarmers  int     `json:"total_farmers"`
	ProcessedBy   string  `json:"processed_by"`
	Timestamp     string  `json:"timestamp"`
	Status        string  `json:"status"`
	TariffVersion int     `json:"tariff_version"`
}

type SettleResponse struct {
	Run     RunDTO   `json:"run"`
	Records []string `json:"record_ids"`
}

func toPayrollDTO(r payroll.Result) PayrollDTO {
	dto := PayrollDTO{
		Mode:          string(r.Mode),
		PeriodStart:   r.Window.StartLabel(),
		PeriodEnd:     r.Window.EndLabel(),
		Payments:      make([]PaymentDTO, len(r.Payments)),
		RecordIDs:     make([]string, len(r.Records)),
		TariffVersion: r.Schedule.Version,
		Summary: SummaryDTO{
			Farmers:    r.Summary.Farmers,
			Weight:     money(r.Summary.Weight),
			Gross:      money(r.Summary.Gross),
			Deductions: money(r.Summary.Deductions),
			Net:        money(r.Summary.Net),
		},
	}
	for i, p := range r.Payments {
		dto.Payments[i] = PaymentDTO{
			FarmerID:    p.FarmerID,
			FarmerName:  p.FarmerName,
			FarmerPhone: p.FarmerPhone,
			TotalKg:     money(p.TotalKg),
			Sessions:    p.Sessions,
			GrossPay:    money(p.GrossPay),
			Deductions: DeductionsDTO{
				Transport:       money(p.Deductions.Transport),
				Cess:            money(p.Deductions.Cess),
				TransactionCost: money(p.Deductions.TransactionCost),
				Inputs:          money(p.Deductions.Inputs),
				Advances:        money(p.Deductions.Advances),
			},
			TotalDeductions: money(p.TotalDeductions),
			NetPay:          money(p.NetPay),
			IsSettled:       p.IsSettled,
		}
	}
	for i, rec := range r.Records {
		dto.RecordIDs[i] = rec.ID
	}
	return dto
}

func toRunDTO(r payroll.Run) RunDTO {
	return RunDTO{
		ID:            r.ID,
		PeriodStart:   r.PeriodStart,
		PeriodEnd:     r.PeriodEnd,
		TotalWeight:   money(r.TotalWeight),
		TotalPayout:   money(r.TotalPayout),
		TotalFarmers:  r.TotalFarmers,
		ProcessedBy:   r.ProcessedBy,
		Timestamp:     formatInstant(r.Timestamp),
		Status:        string(r.Status),
		TariffVersion: r.TariffVersion,
	}
}

// =============================================================================
// COMPLIANCE
// =============================================================================

type ChecklistItemDTO struct {
	Category string `json:"category"`
	Item     string `json:"item"`
	Passed   bool   `json:"passed"`
}

type InspectionDTO struct {
	ID        string             `json:"id"`
	FarmerID  string             `json:"farmer_id"`
	AuditorID string             `json:"auditor_id"`
	Date      string             `json:"date"`
	Notes     string             `json:"notes,omitempty"`
	Checklist []ChecklistItemDTO `json:"checklist"`
	Score     float64            `json:"score"`
	Status    string             `json:"status"`
}

type InspectionRequest struct {
	FarmerID  string             `json:"farmer_id"`
	AuditorID string             `json:"auditor_id"`
	Notes     string             `json:"notes"`
	Checklist []ChecklistItemDTO `json:"checklist"`
}

type TallyDTO struct {
	Total        int     `json:"total"`
	Compliant    int     `json:"compliant"`
	Conditional  int     `json:"conditional"`
	NonCompliant int     `json:"non_compliant"`
	AverageScore float64 `json:"average_score"`
}

func toChecklistDTOs(items []compliance.ChecklistItem) []ChecklistItemDTO {
	out := make([]ChecklistItemDTO, len(items))
	for i, c := range items {
		out[i] = ChecklistItemDTO(c)
	}
	return out
}

func fromChecklistDTOs(items []ChecklistItemDTO) []compliance.ChecklistItem {
	out := make([]compliance.ChecklistItem, len(items))
	for i, c := range items {
		out[i] = compliance.ChecklistItem(c)
	}
	return out
}

func toInspectionDTO(in compliance.Inspection) InspectionDTO {
	return InspectionDTO{
		ID:        in.ID,
		FarmerID:  in.FarmerID,
		AuditorID: in.AuditorID,
		Date:      formatInstant(in.Date),
		Notes:     in.Notes,
		Checklist: toChecklistDTOs(in.Checklist),
		Score:     in.Score.Round(1).InexactFloat64(),
		Status:    string(in.Status),
	}
}

// =============================================================================
// DIRECTORY, SESSIONS, AUDIT
// =============================================================================

type UserDTO struct {
	Username  string `json:"username"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	Workspace string `json:"workspace"`
}

type UserRequest struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Username string `json:"username"`
}

type SessionDTO struct {
	ClerkID   string  `json:"clerk_id"`
	Active    bool    `json:"active"`
	StartedAt string  `json:"started_at,omitempty"`
	Count     int     `json:"count"`
	Weight    float64 `json:"weight"`
	Expired   bool    `json:"expired,omitempty"`
}

type AuditEntryDTO struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	UserRole  string `json:"user_role"`
	Action    string `json:"action"`
	Details   string `json:"details"`
}

func toUserDTO(u access.User) UserDTO {
	return UserDTO{Username: u.Username, Name: u.Name, Role: string(u.Role), Workspace: string(u.Role.Workspace())}
}

func toSessionDTO(s weighment.Session, expired bool) SessionDTO {
	dto := SessionDTO{
		ClerkID: s.ClerkID,
		Active:  s.Active,
		Count:   s.Count,
		Weight:  money(s.Weight),
		Expired: expired,
	}
	if !s.StartedAt.IsZero() {
		dto.StartedAt = formatInstant(s.StartedAt)
	}
	return dto
}

func toAuditDTO(e generic.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:        e.ID,
		Timestamp: formatInstant(e.Timestamp),
		UserID:    e.UserID,
		UserName:  e.UserName,
		UserRole:  e.UserRole,
		Action:    string(e.Action),
		Details:   e.Details,
	}
}

// =============================================================================
// DASHBOARD AND AI
// =============================================================================

type DailyStatDTO struct {
	Date            string  `json:"date"`
	TotalWeight     float64 `json:"total_weight"`
	AvgQuality      float64 `json:"avg_quality"`
	CollectionCount int     `json:"collection_count"`
}

type RouteWeightDTO struct {
	Route  string  `json:"route"`
	Weight float64 `json:"weight"`
}

type QualityBandsDTO struct {
	Premium  int `json:"premium"`
	Standard int `json:"standard"`
	Low      int `json:"low"`
}

type DashboardDTO struct {
	TotalWeight   float64          `json:"total_weight"`
	AvgQuality    float64          `json:"avg_quality"`
	UniqueFarmers int              `json:"unique_farmers"`
	PendingCount  int              `json:"pending_count"`
	RouteWeights  []RouteWeightDTO `json:"route_weights"`
	Quality       QualityBandsDTO  `json:"quality"`
	Daily         []DailyStatDTO   `json:"daily"`
}

type TextDTO struct {
	Text      string `json:"text"`
	Available bool   `json:"available"`
}

type AskRequest struct {
	Question string `json:"question"`
}

type AnalyzeRequest struct {
	Model       string `json:"model"`
	Horizon     int    `json:"horizon"`
	Sensitivity string `json:"sensitivity"`
}

func toDailyStatDTOs(stats []weighment.DailyStat) []DailyStatDTO {
	out := make([]DailyStatDTO, len(stats))
	for i, s := range stats {
		out[i] = DailyStatDTO{
			Date:            s.Date,
			TotalWeight:     money(s.TotalWeight),
			AvgQuality:      s.AvgQuality.Round(1).InexactFloat64(),
			CollectionCount: s.CollectionCount,
		}
	}
	return out
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

// money renders an amount at two decimal places.
func money(a generic.Amount) float64 {
	return a.Round(2).Float64()
}

func formatInstant(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func toLocationDTO(l *generic.Location) *LocationDTO {
	if l == nil {
		return nil
	}
	return &LocationDTO{Lat: l.Lat, Lng: l.Lng}
}

func fromLocationDTO(l *LocationDTO) *generic.Location {
	if l == nil {
		return nil
	}
	return &generic.Location{Lat: l.Lat, Lng: l.Lng}
}
