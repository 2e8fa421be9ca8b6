package weighment

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/majani/coop-engine/generic"
	"github.com/majani/coop-engine/tariff"
)

// MaxGrossWeight is the heaviest single bag the scale accepts, in kg.
const MaxGrossWeight = 200

// CaptureInput is what the clerk enters for one bag.
type CaptureInput struct {
	FarmerID string
	Weight   float64
	Quality  int
	ClerkID  string
	Location *generic.Location
}

// Capture validates a weighing and builds the record. On a field error no
// record is produced.
func Capture(in CaptureInput, settings tariff.Settings, now time.Time) (CollectionRecord, error) {
	if in.FarmerID == "" {
		return CollectionRecord{}, &generic.FieldError{Field: "farmerId", Message: "select a farmer"}
	}
	if math.IsNaN(in.Weight) || in.Weight <= 0 {
		return CollectionRecord{}, &generic.FieldError{Field: "weight", Message: "Weight must be greater than 0 kg"}
	}
	if in.Weight > MaxGrossWeight {
		return CollectionRecord{}, &generic.FieldError{Field: "weight", Message: "Weight exceeds maximum limit (200kg). Please verify."}
	}
	if in.Quality < 1 || in.Quality > 100 {
		return CollectionRecord{}, &generic.FieldError{Field: "qualityScore", Message: "Quality score must be between 1 and 100"}
	}

	gross := generic.Kg(in.Weight)
	status := StatusApproved
	if in.Quality < QualityApprovalThreshold {
		status = StatusPending
	}
	return CollectionRecord{
		ID:           "REC-" + uuid.NewString(),
		FarmerID:     in.FarmerID,
		Weight:       gross,
		NetWeight:    settings.NetWeight(gross),
		QualityScore: in.Quality,
		Timestamp:    now,
		ClerkID:      in.ClerkID,
		Location:     in.Location,
		Status:       status,
	}, nil
}

// Breakdown is the line-by-line view the clerk sees before saving.
type Breakdown struct {
	Gross    generic.Amount
	Tare     generic.Amount
	Moisture generic.Amount
	Net      generic.Amount
	GrossPay generic.Amount
	Charges  tariff.Charges
	NetPay   generic.Amount
}

// Preview prices a gross weighing on route without creating anything.
func Preview(gross generic.Amount, settings tariff.Settings, route tariff.Route) Breakdown {
	net := settings.NetWeight(gross)
	charges := settings.ChargesFor(net, route)
	pay := tariff.GrossPay(net, route)
	return Breakdown{
		Gross:    gross,
		Tare:     settings.TareLoss(gross),
		Moisture: settings.MoistureLoss(gross).Round(2),
		Net:      net,
		GrossPay: pay,
		Charges:  charges,
		NetPay:   pay.Sub(charges.Total()),
	}
}
