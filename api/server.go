/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Structured request logging (httplog, ECS schema)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the clerk and admin frontends
  5. Heartbeat:  GET /health for load balancers

ROUTE GROUPS:
  /api/farmers/*      Farmer registry and debt ledger
  /api/records/*      Weighment capture and review
  /api/tariff/*       Pricing schedule versions
  /api/payroll/*      Payroll computation and settlement
  /api/inspections/*  Certification audits
  /api/users, /api/login, /api/logout, /api/sessions/*
  /api/audit          Audit trail
  /api/dashboard      Headline statistics
  /api/ai/*           Generated reports and analysis
  /api/fixtures/reset Reload demo data (dev only)

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"io"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
)

// RouterOptions configures the middleware stack.
type RouterOptions struct {
	CORSOrigins []string
	LogLevel    slog.Level
}

// NewLogger returns a JSON logger whose attributes follow the ECS schema
// the request logger writes.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	schema := httplog.SchemaECS.Concise(false)
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: schema.ReplaceAttr,
	})).With(slog.String("app", "coop-engine"))
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(httplog.RequestLogger(h.Logger, &httplog.Options{
		Level:  opts.LogLevel,
		Schema: httplog.SchemaECS,
	}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.Heartbeat("/health"))

	r.Route("/api", func(r chi.Router) {
		// Farmer routes
		r.Route("/farmers", func(r chi.Router) {
			r.Get("/", h.ListFarmers)
			r.Post("/", h.CreateFarmer)
			r.Get("/export", h.ExportFarmers)
			r.Get("/{id}", h.GetFarmer)
			r.Put("/{id}", h.UpdateFarmer)
			r.Post("/{id}/charges", h.ChargeFarmer)
			r.Get("/{id}/balance", h.GetRunningBalance)
			r.Get("/{id}/statement", h.GetStatement)
			r.Get("/{id}/records", h.ListFarmerRecords)
		})

		// Record routes
		r.Route("/records", func(r chi.Router) {
			r.Get("/", h.ListRecords)
			r.Post("/", h.CaptureRecord)
			r.Post("/preview", h.PreviewRecord)
			r.Get("/pending", h.ListPendingRecords)
			r.Post("/sync", h.SyncRecords)
			r.Post("/{id}/approve", h.ApproveRecord)
			r.Post("/{id}/reject", h.RejectRecord)
		})

		// Tariff routes
		r.Route("/tariff", func(r chi.Router) {
			r.Get("/", h.GetTariff)
			r.Put("/settings", h.UpdateSettings)
			r.Put("/routes", h.UpdateRoutes)
			r.Get("/versions", h.ListTariffVersions)
		})

		// Payroll routes
		r.Route("/payroll", func(r chi.Router) {
			r.Get("/", h.GetPayroll)
			r.Get("/export", h.ExportPayroll)
			r.Post("/settle", h.SettlePayroll)
			r.Get("/runs", h.ListRuns)
		})

		// Compliance routes
		r.Route("/inspections", func(r chi.Router) {
			r.Get("/", h.ListInspections)
			r.Post("/", h.CreateInspection)
			r.Get("/summary", h.GetComplianceSummary)
			r.Get("/criteria", h.GetCriteria)
		})

		// Directory and session routes
		r.Get("/users", h.ListUsers)
		r.Post("/users", h.SaveUser)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.Route("/sessions/{clerk}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Post("/open", h.OpenSession)
			r.Post("/close", h.CloseSession)
		})

		r.Get("/audit", h.ListAudit)
		r.Get("/dashboard", h.GetDashboard)

		// AI routes
		r.Route("/ai", func(r chi.Router) {
			r.Get("/report", h.GetDailyReport)
			r.Post("/ask", h.Ask)
			r.Post("/analyze", h.Analyze)
		})

		r.Post("/fixtures/reset", h.ResetFixtures)
	})

	return r
}
