// Package charts renders report reductions as PNG images.
package charts

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"fintrack/internal/core"
	"fintrack/internal/report"
)

// ErrNoData is returned when there is nothing to plot.
var ErrNoData = errors.New("no data to chart")

const (
	trendWidth     = 1000
	trendHeight    = 500
	breakdownSize  = 700
	trendBarWidth  = 36
	minShareToShow = 1.0
)

var (
	incomeColor  = drawing.ColorFromHex("16a34a")
	expenseColor = drawing.ColorFromHex("dc2626")
)

func background() chart.Style {
	return chart.Style{
		Padding: chart.Box{
			Top:    40,
			Left:   20,
			Right:  20,
			Bottom: 20,
		},
		FillColor: chart.ColorWhite,
	}
}

func amountFormatter(v interface{}) string {
	if f, ok := v.(float64); ok {
		return fmt.Sprintf("%.0f", f)
	}
	return ""
}

// RenderTrend draws one income bar and one expense bar per month, in the
// order given.
func RenderTrend(buckets []core.MonthBucket) ([]byte, error) {
	if len(buckets) == 0 {
		return nil, ErrNoData
	}

	bars := make([]chart.Value, 0, len(buckets)*2)
	peak := 0.0
	for _, b := range buckets {
		in := b.IncomeTotal.InexactFloat64()
		out := b.ExpenseTotal.InexactFloat64()
		peak = max(peak, in, out)
		bars = append(bars,
			chart.Value{
				Label: b.Label + " in",
				Value: in,
				Style: chart.Style{FillColor: incomeColor, StrokeColor: incomeColor},
			},
			chart.Value{
				Label: b.Label + " out",
				Value: out,
				Style: chart.Style{FillColor: expenseColor, StrokeColor: expenseColor},
			},
		)
	}

	graph := chart.BarChart{
		Title:      "Income vs expenses",
		Width:      trendWidth,
		Height:     trendHeight,
		BarWidth:   trendBarWidth,
		Background: background(),
		YAxis: chart.YAxis{
			ValueFormatter: amountFormatter,
			// A fixed lower bound keeps all-zero months renderable.
			Range: &chart.ContinuousRange{Min: 0, Max: max(peak, 1)},
		},
		Bars: bars,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render trend chart: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderBreakdown draws the category shares of one kind as a pie. Slices
// under one percent are left out of the picture but not of the total.
func RenderBreakdown(totals []core.CategoryTotal, kind core.Kind) ([]byte, error) {
	sum := 0.0
	for _, ct := range totals {
		if ct.Total.IsPositive() {
			sum += ct.Total.InexactFloat64()
		}
	}
	if sum == 0 {
		return nil, ErrNoData
	}

	values := make([]chart.Value, 0, len(totals))
	for _, ct := range report.SortByTotal(totals) {
		if !ct.Total.IsPositive() {
			continue
		}
		v := ct.Total.InexactFloat64()
		share := v / sum * 100
		if share < minShareToShow {
			continue
		}
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s: %s (%.1f%%)", ct.Category, core.FormatAmount(ct.Total), share),
			Value: v,
		})
	}
	if len(values) == 0 {
		return nil, ErrNoData
	}

	title := "Expenses by category"
	if kind == core.Income {
		title = "Income by category"
	}
	pie := chart.PieChart{
		Title:      title,
		Width:      breakdownSize,
		Height:     breakdownSize,
		Background: background(),
		Values:     values,
	}

	var buf bytes.Buffer
	if err := pie.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render breakdown chart: %w", err)
	}
	return buf.Bytes(), nil
}
