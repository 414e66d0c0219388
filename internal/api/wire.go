package api

import (
	"encoding/json"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// wireTransaction mirrors the backend's JSON document.
type wireTransaction struct {
	ID          string      `json:"_id,omitempty"`
	Type        string      `json:"type"`
	Category    string      `json:"category"`
	Amount      json.Number `json:"amount"`
	Date        string      `json:"date"`
	Description string      `json:"description,omitempty"`
	UserID      string      `json:"userId,omitempty"`
}

type wireSummary struct {
	Income   json.Number `json:"income"`
	Expenses json.Number `json:"expenses"`
	Balance  json.Number `json:"balance"`
}

func fromCore(t core.Transaction) wireTransaction {
	return wireTransaction{
		Type:        string(t.Kind),
		Category:    t.Category,
		Amount:      json.Number(t.Amount.String()),
		Date:        t.Date.String(),
		Description: t.Description,
	}
}

// toCore validates the fields the aggregation relies on. Dates that do not
// parse fail the record rather than being coerced.
func (w wireTransaction) toCore() (core.Transaction, error) {
	kind, err := core.ParseKind(w.Type)
	if err != nil {
		return core.Transaction{}, err
	}
	amount, err := parseNumber(w.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	if amount.IsNegative() {
		return core.Transaction{}, fmt.Errorf("%w: negative", core.ErrInvalidAmount)
	}
	date, err := core.ParseDate(w.Date)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		ID:          w.ID,
		Kind:        kind,
		Category:    w.Category,
		Amount:      amount,
		Date:        date,
		Description: w.Description,
		Owner:       w.UserID,
	}, nil
}

func (w wireSummary) toCore() (core.Totals, error) {
	income, err := parseNumber(w.Income)
	if err != nil {
		return core.Totals{}, fmt.Errorf("summary income: %w", err)
	}
	expenses, err := parseNumber(w.Expenses)
	if err != nil {
		return core.Totals{}, fmt.Errorf("summary expenses: %w", err)
	}
	balance, err := parseNumber(w.Balance)
	if err != nil {
		return core.Totals{}, fmt.Errorf("summary balance: %w", err)
	}
	return core.Totals{Income: income, Expenses: expenses, Balance: balance}, nil
}

func parseNumber(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", core.ErrInvalidAmount, n)
	}
	return d, nil
}

// OwnerFromToken reads the "id" claim from a JWT without verifying the
// signature. The backend owns the key; the token is only inspected here.
func OwnerFromToken(token string) string {
	if token == "" {
		return ""
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return ""
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return ""
	}
	id, _ := claims["id"].(string)
	return id
}
