package tariff

import (
	"time"

	"github.com/majani/coop-engine/generic"
)

// DefaultSettings: 1.5 kg sack, 2% moisture, 1 KES cess, 5 KES per weighing.
func DefaultSettings() Settings {
	return Settings{
		TareWeight:         generic.Kg(1.5),
		MoistureDeduction:  Percent(2.0),
		CessPerKg:          generic.KES(1.0),
		CostPerTransaction: generic.KES(5.0),
	}
}

// DefaultRoutes are the five Kericho-Bomet collection routes.
func DefaultRoutes() []Route {
	return []Route{
		route("Kapsoit", 25.0, 2.0, "Kapsoit Main", "Kapsuser", "Sosiot", "Ainamoi"),
		route("Litein", 24.5, 2.5, "Litein Centre", "Cheborge", "Kapkatet", "Boito"),
		route("Roret", 26.0, 3.0, "Roret Market", "Mabasi", "Tulwap", "Kibuk"),
		route("Chepseon", 25.0, 2.2, "Chepseon Junction", "Kiptere", "Lelu", "Kipkelion"),
		route("Silibwet", 23.5, 1.8, "Silibwet", "Tenwek", "Mugango", "Bomet"),
	}
}

// Default is version 1 of the schedule.
func Default() Schedule {
	return Schedule{
		Version:     1,
		Settings:    DefaultSettings(),
		Routes:      DefaultRoutes(),
		EffectiveAt: time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC),
		UpdatedBy:   "system",
	}
}

func route(name string, price, transport float64, centres ...string) Route {
	return Route{
		Name:               name,
		Centres:            centres,
		PricePerKg:         generic.KES(price),
		TransportCostPerKg: generic.KES(transport),
	}
}
