package report

import (
	"time"

	"fintrack/internal/core"
)

// Report is the full view behind the reports page: one period-filtered set
// and every reduction derived from it.
type Report struct {
	Period    core.Period          `json:"period"`
	Kind      core.Kind            `json:"type"`
	From      *core.Date           `json:"from,omitempty"`
	Count     int                  `json:"count"`
	Summary   Summary              `json:"summary"`
	Trend     []core.MonthBucket   `json:"trend"`
	Breakdown []core.CategoryTotal `json:"breakdown"`
	Insight   Insight              `json:"insight"`
}

// Build filters txs once by period and runs the reducers over the result.
// The breakdown covers transactions of the given kind.
func Build(txs []core.Transaction, period core.Period, kind core.Kind, now time.Time) Report {
	filtered := FilterByPeriodAt(txs, period, now)
	summary := ReduceSummary(filtered)

	r := Report{
		Period:    period,
		Kind:      kind,
		Count:     len(filtered),
		Summary:   summary,
		Trend:     BucketizeMonthly(filtered),
		Breakdown: AggregateByCategory(filtered, kind),
		Insight:   Assess(summary),
	}
	if start, ok := period.Start(now); ok {
		from := core.Date{Time: start}
		r.From = &from
	}
	return r
}
