package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  Kind = "income"
	Expense Kind = "expense"
)

// DateLayout is the calendar-date wire format used by the backend and the API.
const DateLayout = "2006-01-02"

type (
	// Kind is the direction of a transaction.
	Kind string

	Date struct {
		time.Time
	}

	Transaction struct {
		ID          string          `json:"id"`
		Kind        Kind            `json:"type"`
		Category    string          `json:"category"`
		Amount      decimal.Decimal `json:"amount"`
		Date        Date            `json:"date"`
		Description string          `json:"description,omitempty"`
		Owner       string          `json:"owner,omitempty"`
	}

	// Totals is the backend-computed summary over the owner's full history.
	// It is kept apart from client-side reductions on purpose.
	Totals struct {
		Income   decimal.Decimal `json:"income"`
		Expenses decimal.Decimal `json:"expenses"`
		Balance  decimal.Decimal `json:"balance"`
	}

	// Filters are applied by the backend when listing transactions.
	// Zero values mean "no constraint".
	Filters struct {
		Category  string
		Kind      Kind
		StartDate Date
		EndDate   Date
	}
)

var (
	ErrInvalidKind     = errors.New("invalid transaction type")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrEmptyCategory   = errors.New("empty category")
	ErrInvalidDate     = errors.New("invalid date")
	ErrDescriptionSize = errors.New("description too long (max 200 characters)")
)

// ParseKind accepts "income" or "expense" in any case.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
	return k, nil
}

func (k Kind) Valid() bool {
	return k == Income || k == Expense
}

func (k Kind) String() string {
	return string(k)
}

// NewDate creates a new Date from year, month, day at UTC midnight.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts a plain calendar date or a full RFC 3339 timestamp,
// which is what the backend stores for Mongo dates.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return Date{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t.UTC()}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidDate)
	}
	return nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, string(data))
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// IsIncome reports whether the transaction adds to the balance.
func (t Transaction) IsIncome() bool {
	return t.Kind == Income
}

func (t Transaction) Validate() error {
	if !t.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, t.Kind)
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if !t.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if len(t.Description) > 200 {
		return ErrDescriptionSize
	}
	return nil
}

// Match reports whether t satisfies every set filter. Date bounds are
// inclusive.
// IsZero reports whether f constrains nothing.
func (f Filters) IsZero() bool {
	return f.Category == "" && f.Kind == "" && f.StartDate.IsZero() && f.EndDate.IsZero()
}

func (f Filters) Match(t Transaction) bool {
	if f.Kind != "" && t.Kind != f.Kind {
		return false
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if !f.StartDate.IsZero() && t.Date.Before(f.StartDate.Time) {
		return false
	}
	if !f.EndDate.IsZero() && t.Date.After(f.EndDate.Time) {
		return false
	}
	return true
}

// DefaultCategories returns the preset category choices offered when
// recording a transaction of the given kind.
func DefaultCategories(k Kind) []string {
	switch k {
	case Income:
		return []string{"Salary", "Freelance", "Investments", "Gifts", "Other"}
	case Expense:
		return []string{"Food", "Transportation", "Housing", "Entertainment", "Healthcare", "Education", "Shopping", "Utilities", "Other"}
	default:
		return nil
	}
}
