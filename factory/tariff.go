/*
Package factory provides JSON to Go tariff conversion.

PURPOSE:
  Converts JSON pricing definitions into tariff.Schedule values. The
  cooperative's managers edit route prices and weighment settings as JSON
  (admin UI, config file), and the factory builds validated Go values.

JSON SCHEMA:
  {
    "version": 3,
    "settings": {
      "tare_weight": 1.5,
      "moisture_deduction": 2.0,
      "cess_per_kg": 1.0,
      "cost_per_transaction": 5.0
    },
    "routes": [
      {
        "name": "Kapsoit",
        "centres": ["Kapsoit Main", "Kapsuser"],
        "price_per_kg": 25.0,
        "transport_cost_per_kg": 2.0
      }
    ]
  }

DEFAULTS:
  Missing settings fields take the value from tariff.DefaultSettings().
  A missing route table leaves the schedule with no routes: every farmer
  then prices at zero, which Validate does not reject.

SEE ALSO:
  - tariff/tariff.go: Schedule type definition
  - api/handlers.go: Settings and route endpoints use these JSON types
*/
package factory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/majani/coop-engine/generic"
	"github.com/majani/coop-engine/tariff"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ScheduleJSON is the JSON representation of a tariff schedule.
type ScheduleJSON struct {
	Version     int          `json:"version,omitempty"`
	Settings    SettingsJSON `json:"settings"`
	Routes      []RouteJSON  `json:"routes"`
	EffectiveAt string       `json:"effective_at,omitempty"`
	UpdatedBy   string       `json:"updated_by,omitempty"`
}

// SettingsJSON represents the global weighment settings.
type SettingsJSON struct {
	TareWeight         *float64 `json:"tare_weight,omitempty"`
	MoistureDeduction  *float64 `json:"moisture_deduction,omitempty"`
	CessPerKg          *float64 `json:"cess_per_kg,omitempty"`
	CostPerTransaction *float64 `json:"cost_per_transaction,omitempty"`
}

// RouteJSON represents one collection route.
type RouteJSON struct {
	Name               string   `json:"name"`
	Centres            []string `json:"centres"`
	PricePerKg         float64  `json:"price_per_kg"`
	TransportCostPerKg float64  `json:"transport_cost_per_kg"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParseSchedule parses a JSON string into a validated Schedule.
func ParseSchedule(jsonStr string) (tariff.Schedule, error) {
	var sj ScheduleJSON
	if err := json.Unmarshal([]byte(jsonStr), &sj); err != nil {
		return tariff.Schedule{}, fmt.Errorf("failed to parse tariff JSON: %w", err)
	}
	return FromJSON(sj)
}

// FromJSON converts ScheduleJSON to a validated tariff.Schedule.
func FromJSON(sj ScheduleJSON) (tariff.Schedule, error) {
	s := tariff.Schedule{
		Version:   sj.Version,
		Settings:  SettingsFromJSON(sj.Settings),
		Routes:    RoutesFromJSON(sj.Routes),
		UpdatedBy: sj.UpdatedBy,
	}
	if s.Version == 0 {
		s.Version = 1
	}
	if sj.EffectiveAt != "" {
		t, err := time.Parse(time.RFC3339, sj.EffectiveAt)
		if err != nil {
			return tariff.Schedule{}, fmt.Errorf("%w: effective_at must be RFC3339", generic.ErrInvalidTariff)
		}
		s.EffectiveAt = t
	}

	if err := s.Validate(); err != nil {
		return tariff.Schedule{}, err
	}
	return s, nil
}

// SettingsFromJSON fills unset fields from the defaults.
func SettingsFromJSON(j SettingsJSON) tariff.Settings {
	return MergeSettings(tariff.DefaultSettings(), j)
}

// MergeSettings overrides the fields of s that j sets.
func MergeSettings(s tariff.Settings, j SettingsJSON) tariff.Settings {
	if j.TareWeight != nil {
		s.TareWeight = generic.Kg(*j.TareWeight)
	}
	if j.MoistureDeduction != nil {
		s.MoistureDeduction = decimal.NewFromFloat(*j.MoistureDeduction)
	}
	if j.CessPerKg != nil {
		s.CessPerKg = generic.KES(*j.CessPerKg)
	}
	if j.CostPerTransaction != nil {
		s.CostPerTransaction = generic.KES(*j.CostPerTransaction)
	}
	return s
}

// RoutesFromJSON converts a route table.
func RoutesFromJSON(rs []RouteJSON) []tariff.Route {
	routes := make([]tariff.Route, 0, len(rs))
	for _, r := range rs {
		routes = append(routes, tariff.Route{
			Name:               r.Name,
			Centres:            append([]string(nil), r.Centres...),
			PricePerKg:         generic.KES(r.PricePerKg),
			TransportCostPerKg: generic.KES(r.TransportCostPerKg),
		})
	}
	return routes
}

// =============================================================================
// SERIALIZATION
// =============================================================================

// ToJSON converts a Schedule to ScheduleJSON.
func ToJSON(s tariff.Schedule) ScheduleJSON {
	sj := ScheduleJSON{
		Version:   s.Version,
		Settings:  SettingsToJSON(s.Settings),
		Routes:    RoutesToJSON(s.Routes),
		UpdatedBy: s.UpdatedBy,
	}
	if !s.EffectiveAt.IsZero() {
		sj.EffectiveAt = s.EffectiveAt.UTC().Format(time.RFC3339)
	}
	return sj
}

func SettingsToJSON(s tariff.Settings) SettingsJSON {
	tare := s.TareWeight.Float64()
	moisture := s.MoistureDeduction.InexactFloat64()
	cess := s.CessPerKg.Float64()
	fee := s.CostPerTransaction.Float64()
	return SettingsJSON{
		TareWeight:         &tare,
		MoistureDeduction:  &moisture,
		CessPerKg:          &cess,
		CostPerTransaction: &fee,
	}
}

func RoutesToJSON(routes []tariff.Route) []RouteJSON {
	out := make([]RouteJSON, 0, len(routes))
	for _, r := range routes {
		centres := r.Centres
		if centres == nil {
			centres = []string{}
		}
		out = append(out, RouteJSON{
			Name:               r.Name,
			Centres:            centres,
			PricePerKg:         r.PricePerKg.Float64(),
			TransportCostPerKg: r.TransportCostPerKg.Float64(),
		})
	}
	return out
}

// Marshal renders a schedule as JSON text, the form the store persists.
func Marshal(s tariff.Schedule) (string, error) {
	b, err := json.Marshal(ToJSON(s))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
