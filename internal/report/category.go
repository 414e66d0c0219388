package report

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// DefaultCategory groups transactions that carry no category.
const DefaultCategory = "Other"

// AggregateByCategory sums the amounts of transactions of the given kind per
// category, in order of first occurrence.
func AggregateByCategory(txs []core.Transaction, kind core.Kind) []core.CategoryTotal {
	index := make(map[string]int)
	totals := make([]core.CategoryTotal, 0)
	for _, t := range txs {
		if t.Kind != kind {
			continue
		}
		name := categoryName(t)
		i, ok := index[name]
		if !ok {
			i = len(totals)
			index[name] = i
			totals = append(totals, core.CategoryTotal{Category: name, Total: decimal.Zero})
		}
		totals[i].Total = totals[i].Total.Add(t.Amount)
	}
	return totals
}

// SortByTotal returns a copy ordered by descending total. Ties keep their
// relative order.
func SortByTotal(totals []core.CategoryTotal) []core.CategoryTotal {
	sorted := slices.Clone(totals)
	slices.SortStableFunc(sorted, func(a, b core.CategoryTotal) int {
		return b.Total.Cmp(a.Total)
	})
	return sorted
}

// Categories lists the distinct category names in order of first occurrence.
func Categories(txs []core.Transaction) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, t := range txs {
		name := categoryName(t)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

func categoryName(t core.Transaction) string {
	if strings.TrimSpace(t.Category) == "" {
		return DefaultCategory
	}
	return t.Category
}
