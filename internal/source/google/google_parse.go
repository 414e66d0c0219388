package google

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

const (
	colDate = iota
	colType
	colCategory
	colAmount
	colDescription
)

// parseRows converts a values matrix (as returned by Sheets API) into
// transactions. A leading header row and blank rows are skipped. Row IDs are
// the 1-based sheet row numbers, which stay stable as long as rows are only
// appended.
func parseRows(values [][]interface{}, owner string) ([]core.Transaction, error) {
	out := make([]core.Transaction, 0, len(values))
	for i, raw := range values {
		row := toStrings(raw)
		if isBlank(row) {
			continue
		}
		if i == 0 && strings.EqualFold(safeGet(row, colDate), "date") {
			continue
		}
		t, err := parseRow(raw, row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		t.ID = fmt.Sprintf("row:%d", i+1)
		t.Owner = owner
		out = append(out, t)
	}
	return out, nil
}

func parseRow(raw []interface{}, row []string) (core.Transaction, error) {
	date, err := core.ParseDate(safeGet(row, colDate))
	if err != nil {
		return core.Transaction{}, err
	}
	kind, err := core.ParseKind(safeGet(row, colType))
	if err != nil {
		return core.Transaction{}, err
	}
	amount, err := parseAmountCell(raw, colAmount)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		Kind:        kind,
		Category:    safeGet(row, colCategory),
		Amount:      amount,
		Date:        date,
		Description: safeGet(row, colDescription),
	}, nil
}

// parseAmountCell accepts unformatted numbers as well as text cells using
// either decimal separator.
func parseAmountCell(raw []interface{}, idx int) (decimal.Decimal, error) {
	if idx >= len(raw) {
		return decimal.Zero, core.ErrInvalidAmount
	}
	var d decimal.Decimal
	switch v := raw[idx].(type) {
	case float64:
		d = decimal.NewFromFloat(v)
	default:
		s := strings.ReplaceAll(strings.TrimSpace(fmt.Sprint(v)), ",", ".")
		parsed, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %q", core.ErrInvalidAmount, s)
		}
		d = parsed
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative", core.ErrInvalidAmount)
	}
	return d.Round(2), nil
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func isBlank(row []string) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}
