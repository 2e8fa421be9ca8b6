package tariff

import (
	"github.com/shopspring/decimal"

	"github.com/majani/coop-engine/generic"
)

// NetWeight converts a gross weighing to payable kilograms:
//
//	max(0, round2(max(0, gross - tare) - gross * moisture / 100))
//
// Moisture is taken on the original gross weight, not the tare-adjusted
// weight. The result is never negative.
func (s Settings) NetWeight(gross generic.Amount) generic.Amount {
	afterTare := gross.Sub(s.TareWeight).FloorZero()
	net := afterTare.Sub(s.MoistureLoss(gross)).Round(2)
	return generic.Amount{Value: net.Value, Unit: generic.UnitKg}.FloorZero()
}

// MoistureLoss is the kilograms removed for moisture on a gross weighing.
func (s Settings) MoistureLoss(gross generic.Amount) generic.Amount {
	return gross.Mul(s.MoistureDeduction).Div(hundred)
}

// TareLoss is the kilograms removed for the sack; never more than gross.
func (s Settings) TareLoss(gross generic.Amount) generic.Amount {
	return s.TareWeight.Min(gross.FloorZero())
}

// =============================================================================
// PER-RECORD CHARGES
// =============================================================================

// Charges are the operational deductions one weighment incurs.
type Charges struct {
	Transport      generic.Amount
	Cess           generic.Amount
	TransactionFee generic.Amount
}

// Total is transport + cess + fee.
func (c Charges) Total() generic.Amount {
	return generic.Sum(generic.UnitKES, c.Transport, c.Cess, c.TransactionFee)
}

// ChargesFor prices one record of net kilograms on route.
func (s Settings) ChargesFor(net generic.Amount, route Route) Charges {
	return Charges{
		Transport:      route.TransportCostPerKg.Times(net),
		Cess:           s.CessPerKg.Times(net),
		TransactionFee: s.CostPerTransaction,
	}
}

// GrossPay is what route pays for net kilograms before any deduction.
func GrossPay(net generic.Amount, route Route) generic.Amount {
	return route.PricePerKg.Times(net)
}

// Percent builds a moisture percentage.
func Percent(p float64) decimal.Decimal { return decimal.NewFromFloat(p) }
