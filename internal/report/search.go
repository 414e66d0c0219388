package report

import (
	"strings"

	"fintrack/internal/core"
)

// SearchTransactions returns the transactions whose category, description or
// amount text contains query, ignoring case. An empty query matches all.
// The amount is matched on its shortest decimal form, so "10" matches both
// 100 and 10.5.
func SearchTransactions(txs []core.Transaction, query string) []core.Transaction {
	q := strings.ToLower(query)
	out := make([]core.Transaction, 0, len(txs))
	for _, t := range txs {
		if matches(t, q) {
			out = append(out, t)
		}
	}
	return out
}

func matches(t core.Transaction, q string) bool {
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(t.Category), q) ||
		strings.Contains(strings.ToLower(t.Description), q) ||
		strings.Contains(core.SearchText(t.Amount), q)
}
