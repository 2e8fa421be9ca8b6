package weighment

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/majani/coop-engine/farmer"
	"github.com/majani/coop-engine/generic"
	"github.com/majani/coop-engine/tariff"
)

// =============================================================================
// RUNNING BALANCE - What the farmer has earned so far this month
// =============================================================================

// RunningBalance covers the farmer's unsettled records in the current
// month, whatever their review status. Only operational charges are
// deducted; debt recovery happens at settlement.
type RunningBalance struct {
	Weight     generic.Amount
	Gross      generic.Amount
	Charges    tariff.Charges
	Deductions generic.Amount
	Net        generic.Amount
}

func ComputeRunningBalance(records []CollectionRecord, f farmer.Farmer, schedule tariff.Schedule, now time.Time, loc *time.Location) RunningBalance {
	month := generic.MonthWindow(now, loc)
	route := schedule.RouteFor(f.Route)

	rb := RunningBalance{
		Weight: generic.Kg(0),
		Gross:  generic.KES(0),
		Charges: tariff.Charges{
			Transport:      generic.KES(0),
			Cess:           generic.KES(0),
			TransactionFee: generic.KES(0),
		},
	}
	for _, r := range records {
		if r.FarmerID != f.ID || r.IsSettled() || !month.Contains(r.Timestamp) {
			continue
		}
		c := schedule.Settings.ChargesFor(r.NetWeight, route)
		rb.Weight = rb.Weight.Add(r.NetWeight)
		rb.Gross = rb.Gross.Add(tariff.GrossPay(r.NetWeight, route))
		rb.Charges.Transport = rb.Charges.Transport.Add(c.Transport)
		rb.Charges.Cess = rb.Charges.Cess.Add(c.Cess)
		rb.Charges.TransactionFee = rb.Charges.TransactionFee.Add(c.TransactionFee)
	}
	rb.Deductions = rb.Charges.Total()
	rb.Net = rb.Gross.Sub(rb.Deductions)
	return rb
}

// =============================================================================
// DASHBOARD STATISTICS
// =============================================================================

// DailyStat summarises one calendar day of collections.
type DailyStat struct {
	Date            string
	TotalWeight     generic.Amount // gross kg
	AvgQuality      decimal.Decimal
	CollectionCount int
}

// DailyStats groups records by calendar date in loc, oldest first.
func DailyStats(records []CollectionRecord, loc *time.Location) []DailyStat {
	type acc struct {
		weight  generic.Amount
		quality int
		count   int
	}
	days := make(map[string]*acc)
	for _, r := range records {
		d := generic.DateOf(r.Timestamp, loc).String()
		a, ok := days[d]
		if !ok {
			a = &acc{weight: generic.Kg(0)}
			days[d] = a
		}
		a.weight = a.weight.Add(r.Weight)
		a.quality += r.QualityScore
		a.count++
	}

	out := make([]DailyStat, 0, len(days))
	for d, a := range days {
		out = append(out, DailyStat{
			Date:            d,
			TotalWeight:     a.weight,
			AvgQuality:      decimal.NewFromInt(int64(a.quality)).Div(decimal.NewFromInt(int64(a.count))).Round(1),
			CollectionCount: a.count,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// LastDays keeps the stats from the final n days ending on today.
func LastDays(stats []DailyStat, today time.Time, n int, loc *time.Location) []DailyStat {
	cutoff := generic.DateOf(today, loc).AddDays(-(n - 1)).String()
	var out []DailyStat
	for _, s := range stats {
		if s.Date >= cutoff {
			out = append(out, s)
		}
	}
	return out
}

// QualityBands counts records by grade: premium above 85, standard from
// 75 to 85, low below 75.
type QualityBands struct {
	Premium  int
	Standard int
	Low      int
}

// Overview is the headline dashboard block.
type Overview struct {
	TotalWeight   generic.Amount // gross kg
	AvgQuality    decimal.Decimal
	UniqueFarmers int
	PendingCount  int
	RouteWeights  []RouteWeight
	Quality       QualityBands
}

// RouteWeight is net kg collected on one route.
type RouteWeight struct {
	Route  string
	Weight generic.Amount
}

func ComputeOverview(records []CollectionRecord, farmers []farmer.Farmer) Overview {
	byID := farmer.Index(farmers)
	o := Overview{TotalWeight: generic.Kg(0), AvgQuality: decimal.Zero}
	seen := make(map[string]bool)
	routes := make(map[string]generic.Amount)
	quality := 0

	for _, r := range records {
		o.TotalWeight = o.TotalWeight.Add(r.Weight)
		quality += r.QualityScore
		seen[r.FarmerID] = true
		if r.Status == StatusPending {
			o.PendingCount++
		}
		switch {
		case r.QualityScore > 85:
			o.Quality.Premium++
		case r.QualityScore >= 75:
			o.Quality.Standard++
		default:
			o.Quality.Low++
		}
		if f, ok := byID[r.FarmerID]; ok && f.Route != "" {
			w, ok := routes[f.Route]
			if !ok {
				w = generic.Kg(0)
			}
			routes[f.Route] = w.Add(r.NetWeight)
		}
	}

	o.UniqueFarmers = len(seen)
	if len(records) > 0 {
		o.AvgQuality = decimal.NewFromInt(int64(quality)).Div(decimal.NewFromInt(int64(len(records)))).Round(1)
	}
	for name, w := range routes {
		o.RouteWeights = append(o.RouteWeights, RouteWeight{Route: name, Weight: w})
	}
	sort.Slice(o.RouteWeights, func(i, j int) bool {
		if o.RouteWeights[i].Weight.Equal(o.RouteWeights[j].Weight) {
			return o.RouteWeights[i].Route < o.RouteWeights[j].Route
		}
		return o.RouteWeights[i].Weight.GreaterThan(o.RouteWeights[j].Weight)
	})
	return o
}
