package source

import (
	"encoding/csv"
	"fmt"
	"io"

	"fintrack/internal/core"
)

const (
	ContentTypeCSV = "text/csv"
	ContentTypePDF = "application/pdf"
)

var csvHeader = []string{"Date", "Type", "Category", "Amount", "Description"}

// WriteCSV renders transactions in the same column layout the hosted
// backend uses for its CSV export.
func WriteCSV(w io.Writer, txs []core.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, t := range txs {
		row := []string{t.Date.String(), string(t.Kind), t.Category, core.FormatAmount(t.Amount), t.Description}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %s: %w", t.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
