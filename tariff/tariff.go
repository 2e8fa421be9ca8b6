/*
Package tariff holds the pricing and deduction configuration of the
cooperative: per-route leaf price and transport rate, and the global
weighment settings (tare, moisture, cess, per-transaction fee).

VERSIONING:
  Settings are not a mutable singleton. A Schedule is an immutable value
  with a Version; editing settings or routes produces the next version.
  Every payroll computation takes the Schedule it should price with, and
  every payroll run records the version it was settled under.

ROUTE LOOKUP:
  A farmer's route name selects the Route. An unknown route is not an
  error: it prices at zero and charges zero transport.

SEE ALSO:
  - netweight.go: Gross to net conversion and per-record charges
  - factory/tariff.go: JSON configuration loading
*/
package tariff

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/majani/coop-engine/generic"
)

// =============================================================================
// SETTINGS AND ROUTES
// =============================================================================

// Settings are the route-independent weighment and levy parameters.
type Settings struct {
	TareWeight         generic.Amount  // kg subtracted per weighing (sack)
	MoistureDeduction  decimal.Decimal // percent of gross weight
	CessPerKg          generic.Amount  // county levy, KES per net kg
	CostPerTransaction generic.Amount  // flat KES per weighing event
}

// Route prices leaf collected along one collection route.
type Route struct {
	Name               string
	Centres            []string
	PricePerKg         generic.Amount // KES paid per net kg
	TransportCostPerKg generic.Amount // KES deducted per net kg
}

// ZeroRoute is what an unmatched route name resolves to.
func ZeroRoute() Route {
	return Route{
		PricePerKg:         generic.KES(0),
		TransportCostPerKg: generic.KES(0),
	}
}

// Schedule is one version of the full pricing configuration.
type Schedule struct {
	Version     int
	Settings    Settings
	Routes      []Route
	EffectiveAt time.Time
	UpdatedBy   string
}

// RouteFor returns the route called name, or ZeroRoute when none matches.
func (s Schedule) RouteFor(name string) Route {
	if r, ok := s.LookupRoute(name); ok {
		return r
	}
	return ZeroRoute()
}

// LookupRoute reports whether a route called name exists.
func (s Schedule) LookupRoute(name string) (Route, bool) {
	for _, r := range s.Routes {
		if r.Name == name {
			return r, true
		}
	}
	return Route{}, false
}

// RouteForCentre finds the route that serves a collection centre.
func (s Schedule) RouteForCentre(centre string) (Route, bool) {
	for _, r := range s.Routes {
		for _, c := range r.Centres {
			if strings.EqualFold(c, centre) {
				return r, true
			}
		}
	}
	return Route{}, false
}

// WithSettings returns the next version carrying new settings.
func (s Schedule) WithSettings(settings Settings, by string, at time.Time) Schedule {
	next := s.next(by, at)
	next.Settings = settings
	return next
}

// WithRoutes returns the next version carrying a new route table.
func (s Schedule) WithRoutes(routes []Route, by string, at time.Time) Schedule {
	next := s.next(by, at)
	next.Routes = append([]Route(nil), routes...)
	return next
}

func (s Schedule) next(by string, at time.Time) Schedule {
	return Schedule{
		Version:     s.Version + 1,
		Settings:    s.Settings,
		Routes:      append([]Route(nil), s.Routes...),
		EffectiveAt: at,
		UpdatedBy:   by,
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

var hundred = decimal.NewFromInt(100)

// Validate checks every rate is non-negative, moisture is a percentage and
// route names are unique and non-empty.
func (s Schedule) Validate() error {
	if err := s.Settings.Validate(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(s.Routes))
	for _, r := range s.Routes {
		if strings.TrimSpace(r.Name) == "" {
			return fmt.Errorf("%w: route name is required", generic.ErrInvalidTariff)
		}
		if seen[r.Name] {
			return fmt.Errorf("%w: duplicate route %q", generic.ErrInvalidTariff, r.Name)
		}
		seen[r.Name] = true
		if r.PricePerKg.IsNegative() || r.TransportCostPerKg.IsNegative() {
			return fmt.Errorf("%w: route %q has a negative rate", generic.ErrInvalidTariff, r.Name)
		}
	}
	return nil
}

func (s Settings) Validate() error {
	switch {
	case s.TareWeight.IsNegative():
		return fmt.Errorf("%w: tare weight must not be negative", generic.ErrInvalidTariff)
	case s.MoistureDeduction.IsNegative() || s.MoistureDeduction.GreaterThan(hundred):
		return fmt.Errorf("%w: moisture deduction must be between 0 and 100", generic.ErrInvalidTariff)
	case s.CessPerKg.IsNegative():
		return fmt.Errorf("%w: cess must not be negative", generic.ErrInvalidTariff)
	case s.CostPerTransaction.IsNegative():
		return fmt.Errorf("%w: transaction cost must not be negative", generic.ErrInvalidTariff)
	}
	return nil
}
