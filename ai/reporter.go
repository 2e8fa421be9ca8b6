/*
Package ai wraps a text-generation model for narrative reports.

CONTRACT:
  Every entry point takes domain data and returns a string. With no model
  configured it returns a fixed "unavailable" message; when the model
  fails it returns a fixed error message. Nothing here ever returns an
  error to the caller or touches engine state.

ENTRY POINTS:
  - DailyReport: executive summary of today's collections
  - Ask: free-form question over a JSON context
  - Analyze: forecast, anomaly or clustering over the last 30 days

SEE ALSO:
  - gemini.go: The Gemini-backed TextGenerator
*/
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/majani/coop-engine/generic"
	"github.com/majani/coop-engine/weighment"
)

const (
	MsgUnavailableKey = "AI Service Unavailable: API Key missing."
	MsgUnavailable    = "AI Service Unavailable."

	MsgReportError   = "Error generating report. Please try again later."
	MsgAskError      = "I encountered an error trying to answer that."
	MsgAnalysisError = "Error running ML model. Please try again."

	MsgNoReport   = "No analysis generated."
	MsgNoAnswer   = "I couldn't generate an answer."
	MsgNoAnalysis = "Analysis failed."
)

// analysisDays bounds the data sent to the model.
const analysisDays = 30

// TextGenerator turns a prompt into prose.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Reporter struct {
	gen    TextGenerator
	logger *slog.Logger
	loc    *time.Location
}

// NewReporter builds a Reporter. A nil gen means no API key is configured.
func NewReporter(gen TextGenerator, logger *slog.Logger, loc *time.Location) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Reporter{gen: gen, logger: logger, loc: loc}
}

// Available is false when no model is configured.
func (r *Reporter) Available() bool { return r.gen != nil }

func (r *Reporter) generate(ctx context.Context, op, prompt, empty, failed string) string {
	text, err := r.gen.Generate(ctx, prompt)
	if err != nil {
		r.logger.ErrorContext(ctx, "ai generation failed", "op", op, "error", err)
		return failed
	}
	if strings.TrimSpace(text) == "" {
		return empty
	}
	return text
}

// =============================================================================
// DAILY REPORT
// =============================================================================

func (r *Reporter) DailyReport(ctx context.Context, records []weighment.CollectionRecord, now time.Time) string {
	if !r.Available() {
		return MsgUnavailableKey
	}
	today := generic.DateOf(now, r.loc)
	var todays []weighment.CollectionRecord
	for _, rec := range records {
		if generic.DateOf(rec.Timestamp, r.loc).Equal(today) {
			todays = append(todays, rec)
		}
	}
	o := weighment.ComputeOverview(todays, nil)

	prompt := fmt.Sprintf(`You are an expert Agronomist and Data Analyst for the Kenyan Tea Development Agency.
Analyze the following tea collection data for today (%s).

Data Summary:
- Total Weight Collected: %s kg
- Average Leaf Quality Score: %s/100
- Number of Collections: %d
- Active Farmers Today: %d

Please provide a concise 3-paragraph executive summary:
1. Performance Overview: Comment on the volume and quality.
2. Operational Alerts: Identify if quality is below standard (Acceptable is >80) or if volume is low.
3. Recommendations: Suggest one actionable tip for the field clerks or farmers for tomorrow (e.g., regarding leaf handling or plucking standards).

Keep the tone professional yet accessible to cooperative managers.`,
		today, o.TotalWeight.Value.StringFixed(2), o.AvgQuality.StringFixed(1), len(todays), o.UniqueFarmers)

	return r.generate(ctx, "daily_report", prompt, MsgNoReport, MsgReportError)
}

// =============================================================================
// ASSISTANT
// =============================================================================

func (r *Reporter) Ask(ctx context.Context, question, contextJSON string) string {
	if !r.Available() {
		return MsgUnavailable
	}
	prompt := fmt.Sprintf("Context Data (JSON): %s\n\nUser Question: %s\n\nAnswer the user's question based on the provided context data regarding tea collections. Keep it brief.",
		contextJSON, question)
	return r.generate(ctx, "ask", prompt, MsgNoAnswer, MsgAskError)
}

// AssistantContext is the data the assistant answers from.
type AssistantContext struct {
	TotalCollected float64         `json:"totalCollected"`
	ActiveFarmers  int             `json:"activeFarmers"`
	RecentRecords  []recordSummary `json:"recentRecords"`
}

type recordSummary struct {
	ID        string  `json:"id"`
	FarmerID  string  `json:"farmerId"`
	Weight    float64 `json:"weight"`
	NetWeight float64 `json:"netWeight"`
	Quality   int     `json:"qualityScore"`
	Timestamp string  `json:"timestamp"`
	Status    string  `json:"status"`
}

// BuildAssistantContext summarises all records and keeps the last ten.
func BuildAssistantContext(records []weighment.CollectionRecord) (string, error) {
	o := weighment.ComputeOverview(records, nil)
	recent := records
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	ac := AssistantContext{
		TotalCollected: o.TotalWeight.Float64(),
		ActiveFarmers:  o.UniqueFarmers,
		RecentRecords:  make([]recordSummary, 0, len(recent)),
	}
	for _, rec := range recent {
		ac.RecentRecords = append(ac.RecentRecords, recordSummary{
			ID:        rec.ID,
			FarmerID:  rec.FarmerID,
			Weight:    rec.Weight.Float64(),
			NetWeight: rec.NetWeight.Float64(),
			Quality:   rec.QualityScore,
			Timestamp: rec.Timestamp.UTC().Format(time.RFC3339),
			Status:    string(rec.Status),
		})
	}
	b, err := json.Marshal(ac)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// =============================================================================
// ANALYSIS MODELS
// =============================================================================

type ModelType string

const (
	ModelForecast   ModelType = "forecast"
	ModelAnomaly    ModelType = "anomaly"
	ModelClustering ModelType = "clustering"
)

func ParseModelType(s string) (ModelType, error) {
	switch ModelType(s) {
	case ModelForecast, ModelAnomaly, ModelClustering:
		return ModelType(s), nil
	}
	return "", &generic.FieldError{Field: "modelType", Message: "must be forecast, anomaly or clustering"}
}

// Params tune the analysis. Zero values take the defaults.
type Params struct {
	Horizon     int    // forecast days, default 7
	Sensitivity string // anomaly sensitivity, default Medium
}

type dayPoint struct {
	Date        string `json:"date"`
	TotalWeight string `json:"totalWeight"`
	AvgQuality  string `json:"avgQuality"`
}

func (r *Reporter) Analyze(ctx context.Context, records []weighment.CollectionRecord, model ModelType, params Params) string {
	if !r.Available() {
		return MsgUnavailableKey
	}

	stats := weighment.DailyStats(records, r.loc)
	if len(stats) > analysisDays {
		stats = stats[len(stats)-analysisDays:]
	}
	points := make([]dayPoint, 0, len(stats))
	for _, s := range stats {
		points = append(points, dayPoint{
			Date:        s.Date,
			TotalWeight: s.TotalWeight.Value.StringFixed(1),
			AvgQuality:  s.AvgQuality.StringFixed(1),
		})
	}
	data, err := json.Marshal(points)
	if err != nil {
		return MsgAnalysisError
	}

	prompt := systemPrompt(model, params) + "\n\nDataset: " + string(data)
	return r.generate(ctx, "analyze_"+string(model), prompt, MsgNoAnalysis, MsgAnalysisError)
}

func systemPrompt(model ModelType, p Params) string {
	horizon := p.Horizon
	if horizon <= 0 {
		horizon = 7
	}
	sensitivity := p.Sensitivity
	if sensitivity == "" {
		sensitivity = "Medium"
	}

	switch model {
	case ModelForecast:
		return fmt.Sprintf(`Act as a Predictive Analytics Model.
Based on the provided daily tea collection data (Date, Weight, Quality), forecast the trends for the next %d days.
Consider seasonality and recent trends.
Output Format:
1. Projected Total Volume (Next %d days).
2. Expected Quality Trend (Improving/Declining).
3. Day-by-day forecast table (Date, Predicted Weight).`, horizon, horizon)
	case ModelAnomaly:
		return fmt.Sprintf(`Act as an Anomaly Detection Algorithm.
Analyze the provided daily tea collection data.
Sensitivity Level: %s.
Identify any data points that deviate significantly from the norm (outliers in Weight or Quality).
Output Format:
1. List of Anomalous Dates.
2. Reason for flagging (e.g., "Unexpectedly high yield", "Quality drop > 15%%").
3. Potential operational cause (e.g., "Rainfall", "Equipment Error").`, sensitivity)
	default:
		return `Act as a Data Clustering Model.
Analyze the daily performance. Group the days into clusters based on Performance (High Yield/High Quality, Low Yield/Low Quality, etc.).
Output Format:
1. Cluster Definitions.
2. Percentage of days in each cluster.
3. Strategic insight for each cluster (e.g., "Best harvest days correlate with...").`
	}
}
