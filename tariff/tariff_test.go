package tariff_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majani/coop-engine/generic"
	"github.com/majani/coop-engine/tariff"
)

func settings(tare, moisture float64) tariff.Settings {
	s := tariff.DefaultSettings()
	s.TareWeight = generic.Kg(tare)
	s.MoistureDeduction = tariff.Percent(moisture)
	return s
}

// =============================================================================
// NET WEIGHT
// =============================================================================

func TestNetWeight_ExactFormula(t *testing.T) {
	// GIVEN: 1.5 kg tare, 2% moisture
	// WHEN: 100 kg gross is weighed
	// THEN: 100 - 1.5 = 98.5, moisture 100 * 0.02 = 2.0, net = 96.5
	net := settings(1.5, 2.0).NetWeight(generic.Kg(100))

	assert.True(t, net.Equal(generic.Kg(96.5)), "got %s", net)
}

func TestNetWeight_MoistureOnGrossNotTareAdjusted(t *testing.T) {
	// 50 kg: 48.5 after tare, moisture 50 * 0.02 = 1.0 (not 48.5 * 0.02 = 0.97)
	net := settings(1.5, 2.0).NetWeight(generic.Kg(50))

	assert.Equal(t, "47.5", net.Value.String())
}

func TestNetWeight_RoundsToTwoPlaces(t *testing.T) {
	// 12.34 - 1.5 = 10.84, moisture 0.2468, net 10.5932 -> 10.59
	net := settings(1.5, 2.0).NetWeight(generic.Kg(12.34))

	assert.Equal(t, "10.59", net.Value.StringFixed(2))
}

func TestNetWeight_NeverNegative(t *testing.T) {
	cases := []struct {
		name     string
		gross    float64
		tare     float64
		moisture float64
	}{
		{"zero gross", 0, 1.5, 2},
		{"gross below tare", 1.0, 1.5, 2},
		{"gross equals tare", 1.5, 1.5, 2},
		{"full moisture", 10, 0, 100},
		{"huge tare", 200, 500, 0},
		{"everything zero", 0, 0, 0},
		{"heavy sack and wet leaf", 3, 2.9, 50},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			net := settings(tc.tare, tc.moisture).NetWeight(generic.Kg(tc.gross))
			assert.False(t, net.IsNegative(), "net weight %s must not be negative", net)
			assert.Equal(t, generic.UnitKg, net.Unit)
		})
	}
}

func TestNetWeight_GrossBelowTare_IsZero(t *testing.T) {
	net := settings(1.5, 2.0).NetWeight(generic.Kg(1.0))
	assert.True(t, net.IsZero())
}

func TestTareLoss_CappedAtGross(t *testing.T) {
	s := settings(1.5, 2.0)
	assert.True(t, s.TareLoss(generic.Kg(1.0)).Equal(generic.Kg(1.0)))
	assert.True(t, s.TareLoss(generic.Kg(40)).Equal(generic.Kg(1.5)))
}

// =============================================================================
// CHARGES
// =============================================================================

func TestChargesFor_EndToEndRecord(t *testing.T) {
	// GIVEN: route paying 25/kg with 2/kg transport, cess 1/kg, fee 5
	s := tariff.DefaultSettings()
	route := tariff.Route{Name: "Kapsoit", PricePerKg: generic.KES(25), TransportCostPerKg: generic.KES(2)}
	net := s.NetWeight(generic.Kg(50))

	// WHEN
	c := s.ChargesFor(net, route)

	// THEN
	assert.Equal(t, "95", c.Transport.Value.String())
	assert.Equal(t, "47.5", c.Cess.Value.String())
	assert.Equal(t, "5", c.TransactionFee.Value.String())
	assert.Equal(t, "147.5", c.Total().Value.String())
	assert.Equal(t, "1187.5", tariff.GrossPay(net, route).Value.String())
	assert.Equal(t, generic.UnitKES, c.Total().Unit)
}

func TestChargesFor_FeeIndependentOfWeight(t *testing.T) {
	s := tariff.DefaultSettings()
	c := s.ChargesFor(generic.Kg(0), tariff.ZeroRoute())

	assert.True(t, c.Transport.IsZero())
	assert.True(t, c.Cess.IsZero())
	assert.True(t, c.TransactionFee.Equal(generic.KES(5)))
}

// =============================================================================
// SCHEDULE
// =============================================================================

func TestRouteFor_UnknownRoute_DegradesToZero(t *testing.T) {
	s := tariff.Default()

	r := s.RouteFor("Atlantis")

	assert.True(t, r.PricePerKg.IsZero())
	assert.True(t, r.TransportCostPerKg.IsZero())
	_, ok := s.LookupRoute("Atlantis")
	assert.False(t, ok)
}

func TestRouteFor_KnownRoute(t *testing.T) {
	r := tariff.Default().RouteFor("Roret")
	assert.True(t, r.PricePerKg.Equal(generic.KES(26)))
	assert.True(t, r.TransportCostPerKg.Equal(generic.KES(3)))
}

func TestRouteForCentre(t *testing.T) {
	r, ok := tariff.Default().RouteForCentre("cheborge")
	require.True(t, ok)
	assert.Equal(t, "Litein", r.Name)
}

func TestWithSettings_BumpsVersionAndLeavesOriginal(t *testing.T) {
	v1 := tariff.Default()
	changed := v1.Settings
	changed.CessPerKg = generic.KES(1.5)
	at := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)

	v2 := v1.WithSettings(changed, "manager", at)

	assert.Equal(t, 2, v2.Version)
	assert.Equal(t, "manager", v2.UpdatedBy)
	assert.True(t, v2.Settings.CessPerKg.Equal(generic.KES(1.5)))
	assert.True(t, v1.Settings.CessPerKg.Equal(generic.KES(1.0)), "previous version must be untouched")
	assert.Len(t, v2.Routes, len(v1.Routes))
}

func TestWithRoutes_CopiesSlice(t *testing.T) {
	routes := tariff.DefaultRoutes()[:2]
	v2 := tariff.Default().WithRoutes(routes, "manager", time.Now())
	routes[0].Name = "Mutated"

	assert.Equal(t, "Kapsoit", v2.Routes[0].Name)
	assert.Len(t, v2.Routes, 2)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, tariff.Default().Validate())

	bad := tariff.Default()
	bad.Settings.MoistureDeduction = tariff.Percent(120)
	assert.True(t, errors.Is(bad.Validate(), generic.ErrInvalidTariff))

	bad = tariff.Default()
	bad.Routes = append(bad.Routes, bad.Routes[0])
	assert.ErrorIs(t, bad.Validate(), generic.ErrInvalidTariff)

	bad = tariff.Default()
	bad.Routes[1].TransportCostPerKg = generic.KES(-1)
	assert.ErrorIs(t, bad.Validate(), generic.ErrInvalidTariff)

	bad = tariff.Default()
	bad.Settings.TareWeight = generic.Kg(-0.5)
	assert.ErrorIs(t, bad.Validate(), generic.ErrInvalidTariff)
}
