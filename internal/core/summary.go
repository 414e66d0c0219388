package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Period names a trailing window anchored at the time of the call.
type Period string

const (
	Week    Period = "week"
	Month   Period = "month"
	Quarter Period = "quarter"
	Year    Period = "year"
	All     Period = "all"
)

// ParsePeriod maps a query value to a Period. Unknown names map to All,
// matching the unbounded behaviour of the filter.
func ParsePeriod(s string) Period {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case Week, Month, Quarter, Year:
		return p
	default:
		return All
	}
}

// ErrInvalidPeriod is returned by ParsePeriodStrict for unknown names.
var ErrInvalidPeriod = errors.New("invalid period")

// ParsePeriodStrict is ParsePeriod for configuration values, where an
// unknown name is an error rather than All.
func ParsePeriodStrict(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case Week, Month, Quarter, Year, All:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
}

// Start returns the inclusive lower bound of the window ending at now.
// The second result is false for All and any unknown name.
func (p Period) Start(now time.Time) (time.Time, bool) {
	switch p {
	case Week:
		return now.AddDate(0, 0, -7), true
	case Month:
		return now.AddDate(0, -1, 0), true
	case Quarter:
		return now.AddDate(0, -3, 0), true
	case Year:
		return now.AddDate(-1, 0, 0), true
	default:
		return time.Time{}, false
	}
}

type (
	// MonthBucket holds per-month totals. Year and Month form the grouping
	// key; Label is the abbreviated month name shown on charts.
	MonthBucket struct {
		Label        string          `json:"label"`
		Year         int             `json:"year"`
		Month        int             `json:"month"`
		IncomeTotal  decimal.Decimal `json:"income"`
		ExpenseTotal decimal.Decimal `json:"expense"`
	}

	CategoryTotal struct {
		Category string          `json:"category"`
		Total    decimal.Decimal `json:"total"`
	}
)
