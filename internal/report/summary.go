package report

import (
	"fmt"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// RecommendedSavingsRate is the savings rate, in percent, below which the
// insight warns.
const RecommendedSavingsRate = 20.0

var hundred = decimal.NewFromInt(100)

// Summary is a client-side reduction over whatever set it was given.
// It is not expected to agree with the backend core.Totals.
type Summary struct {
	IncomeTotal  decimal.Decimal `json:"income"`
	ExpenseTotal decimal.Decimal `json:"expense"`
	Balance      decimal.Decimal `json:"balance"`
	SavingsRate  float64         `json:"savingsRate"`
}

// ReduceSummary totals income and expense and derives the balance and the
// savings rate. The savings rate is 0 whenever there is no income.
func ReduceSummary(txs []core.Transaction) Summary {
	income, expense := decimal.Zero, decimal.Zero
	for _, t := range txs {
		if t.IsIncome() {
			income = income.Add(t.Amount)
		} else {
			expense = expense.Add(t.Amount)
		}
	}
	s := Summary{
		IncomeTotal:  income,
		ExpenseTotal: expense,
		Balance:      income.Sub(expense),
	}
	if income.IsPositive() {
		s.SavingsRate = s.Balance.Mul(hundred).Div(income).InexactFloat64()
	}
	return s
}

// InsightLevel classifies a summary for the report footer.
type InsightLevel string

const (
	InsightOverspending InsightLevel = "overspending"
	InsightBelowTarget  InsightLevel = "below_target"
	InsightOnTrack      InsightLevel = "on_track"
)

type Insight struct {
	Level   InsightLevel `json:"level"`
	Message string       `json:"message"`
}

// Assess turns a summary into a single actionable insight.
func Assess(s Summary) Insight {
	switch {
	case s.Balance.IsNegative():
		return Insight{
			Level:   InsightOverspending,
			Message: "You're spending more than you earn. Consider reviewing your expenses.",
		}
	case s.SavingsRate < RecommendedSavingsRate:
		return Insight{
			Level:   InsightBelowTarget,
			Message: fmt.Sprintf("Your savings rate is %.1f%%. Try to save at least %.0f%% of your income.", s.SavingsRate, RecommendedSavingsRate),
		}
	default:
		return Insight{
			Level:   InsightOnTrack,
			Message: fmt.Sprintf("Great job! You're saving %.1f%% of your income.", s.SavingsRate),
		}
	}
}
