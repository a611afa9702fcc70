package estimation

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// WriteCSV renders a saved estimation as CSV: a header block with the
// totals, a blank row, then one row per service line.
func WriteCSV(w io.Writer, est *Estimation) error {
	cw := csv.NewWriter(w)

	header := [][]string{
		{"ESTIMATION", est.Name},
		{"Provider", est.Provider},
		{"Total Monthly", formatMoney(est.TotalMonthlyCost)},
		{"Total Annual", formatMoney(est.TotalAnnualCost)},
		{},
		{"Service", "Resource", "Region", "Quantity", "Monthly Cost", "Annual Cost"},
	}
	for _, row := range header {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv header: %w", err)
		}
	}

	for _, svc := range est.Services {
		resourceType := ""
		if v, ok := svc.Parameters["resource_type"].(string); ok {
			resourceType = v
		}
		row := []string{
			svc.ServiceName,
			resourceType,
			svc.Region,
			strconv.Itoa(svc.Quantity),
			formatMoney(svc.MonthlyCost),
			formatMoney(svc.AnnualCost),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatMoney(v float64) string {
	return "$" + strconv.FormatFloat(v, 'f', 2, 64)
}
