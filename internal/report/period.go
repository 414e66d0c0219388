// Package report derives trend, category and summary views from a
// materialized set of transactions.
//
// Every function here is a pure transform: it never mutates its input,
// performs no I/O and returns a fresh result (FilterByPeriod with an
// unbounded window returns its input unchanged). Callers own concurrency.
package report

import (
	"time"

	"fintrack/internal/core"
)

// FilterByPeriod keeps the transactions dated within the window ending now.
func FilterByPeriod(txs []core.Transaction, p core.Period) []core.Transaction {
	return FilterByPeriodAt(txs, p, time.Now())
}

// FilterByPeriodAt is FilterByPeriod with an explicit anchor instant.
// All and unknown windows return txs itself.
func FilterByPeriodAt(txs []core.Transaction, p core.Period, now time.Time) []core.Transaction {
	start, bounded := p.Start(now)
	if !bounded {
		return txs
	}
	out := make([]core.Transaction, 0, len(txs))
	for _, t := range txs {
		if !t.Date.Before(start) {
			out = append(out, t)
		}
	}
	return out
}
