package farmer

import (
	"io"
	"time"

	"github.com/majani/coop-engine/generic"
)

var CSVHeader = []string{
	"ID", "First Name", "Middle Name", "Last Name", "Phone", "Email", "Route",
	"Centre", "Acreage", "Bank Name", "Branch", "Account Number", "NOK Name",
	"NOK Relation", "NOK Phone",
}

// WriteCSV exports the registry. Centre falls back to the cooperative id.
func WriteCSV(w io.Writer, farmers []Farmer) error {
	rows := make([][]string, 0, len(farmers))
	for _, f := range farmers {
		centre := f.Centre
		if centre == "" {
			centre = f.CooperativeID
		}
		rows = append(rows, []string{
			f.ID, f.FirstName, f.MiddleName, f.LastName, f.Phone, f.Email, f.Route,
			centre, f.Acreage.String(), f.BankName, f.BankBranch, f.AccountNumber,
			f.NextOfKin.Name, f.NextOfKin.Relation, f.NextOfKin.Phone,
		})
	}
	return generic.WriteQuotedCSV(w, CSVHeader, rows)
}

func ExportFileName(now time.Time) string {
	return "majani_farmers_export_" + now.UTC().Format(generic.DateLayout) + ".csv"
}
