package report

import (
	"slices"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// MaxTrendBuckets caps the monthly trend to the most recent months.
const MaxTrendBuckets = 6

type monthKey struct {
	year  int
	month int
}

// BucketizeMonthly groups transactions by calendar month in chronological
// order and returns at most the trailing MaxTrendBuckets buckets. Months are
// keyed by year and month, so the same month in different years never merges.
func BucketizeMonthly(txs []core.Transaction) []core.MonthBucket {
	sorted := slices.Clone(txs)
	slices.SortStableFunc(sorted, func(a, b core.Transaction) int {
		return a.Date.Compare(b.Date.Time)
	})

	index := make(map[monthKey]int)
	buckets := make([]core.MonthBucket, 0)
	for _, t := range sorted {
		key := monthKey{year: t.Date.Year(), month: int(t.Date.Month())}
		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, core.MonthBucket{
				Label:        t.Date.Month().String()[:3],
				Year:         key.year,
				Month:        key.month,
				IncomeTotal:  decimal.Zero,
				ExpenseTotal: decimal.Zero,
			})
		}
		if t.IsIncome() {
			buckets[i].IncomeTotal = buckets[i].IncomeTotal.Add(t.Amount)
		} else {
			buckets[i].ExpenseTotal = buckets[i].ExpenseTotal.Add(t.Amount)
		}
	}

	if len(buckets) > MaxTrendBuckets {
		buckets = buckets[len(buckets)-MaxTrendBuckets:]
	}
	return buckets
}
