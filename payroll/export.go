package payroll

import (
	"io"

	"github.com/majani/coop-engine/generic"
)

// CSVHeader is the column set downstream payment systems consume.
var CSVHeader = []string{
	"Farmer ID", "Name", "Phone", "Total Kg", "Gross Pay", "Transport", "Cess",
	"Transaction Costs", "Inputs Deduction", "Advances Deduction", "Net Pay",
}

// WriteCSV exports payments with two-decimal figures.
func WriteCSV(w io.Writer, payments []PaymentCalculation) error {
	rows := make([][]string, 0, len(payments))
	for _, p := range payments {
		rows = append(rows, []string{
			p.FarmerID,
			p.FarmerName,
			p.FarmerPhone,
			fixed(p.TotalKg),
			fixed(p.GrossPay),
			fixed(p.Deductions.Transport),
			fixed(p.Deductions.Cess),
			fixed(p.Deductions.TransactionCost),
			fixed(p.Deductions.Inputs),
			fixed(p.Deductions.Advances),
			fixed(p.NetPay),
		})
	}
	return generic.WriteQuotedCSV(w, CSVHeader, rows)
}

func fixed(a generic.Amount) string { return a.Value.StringFixed(2) }

// ExportFileName names a payroll export after its window.
func ExportFileName(w generic.DateWindow) string {
	return "majani_payroll_export_" + w.StartLabel() + "_to_" + w.EndLabel() + ".csv"
}

