package memory

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/source"
)

func seed() []core.Transaction {
	return []core.Transaction{
		{Kind: core.Income, Category: "Salary", Amount: decimal.NewFromInt(1000), Date: core.NewDate(2024, 1, 15)},
		{Kind: core.Expense, Category: "Food", Amount: decimal.NewFromInt(300), Date: core.NewDate(2024, 1, 20), Description: "groceries"},
		{Kind: core.Expense, Category: "Rent", Amount: decimal.NewFromInt(200), Date: core.NewDate(2024, 2, 1)},
	}
}

func TestMemoryFetchNewestFirstAndFilters(t *testing.T) {
	s := New("u1", seed())
	ctx := context.Background()

	all, err := s.FetchTransactions(ctx, core.Filters{})
	if err != nil || len(all) != 3 {
		t.Fatalf("fetch all: %v %v", all, err)
	}
	if all[0].Category != "Rent" || all[2].Category != "Salary" {
		t.Fatalf("expected newest first, got %v", all)
	}
	for _, tx := range all {
		if tx.ID == "" || tx.Owner != "u1" {
			t.Fatalf("seeded tx missing id/owner: %+v", tx)
		}
	}

	cases := []struct {
		name string
		f    core.Filters
		want int
	}{
		{"kind", core.Filters{Kind: core.Expense}, 2},
		{"category", core.Filters{Category: "Food"}, 1},
		{"start", core.Filters{StartDate: core.NewDate(2024, 1, 20)}, 2},
		{"end", core.Filters{EndDate: core.NewDate(2024, 1, 20)}, 2},
		{"range", core.Filters{StartDate: core.NewDate(2024, 1, 16), EndDate: core.NewDate(2024, 1, 31)}, 1},
	}
	for _, tc := range cases {
		got, _ := s.FetchTransactions(ctx, tc.f)
		if len(got) != tc.want {
			t.Fatalf("%s: got %d, want %d", tc.name, len(got), tc.want)
		}
	}
}

func TestMemoryCreateDeleteAndSummary(t *testing.T) {
	s := New("u1", seed())
	ctx := context.Background()

	created, err := s.CreateTransaction(ctx, core.Transaction{
		Kind: core.Expense, Category: "Food", Amount: decimal.NewFromInt(50), Date: core.NewDate(2024, 2, 2),
	})
	if err != nil || created.ID == "" {
		t.Fatalf("create: %+v %v", created, err)
	}
	if _, err := s.CreateTransaction(ctx, core.Transaction{Kind: core.Expense}); err == nil {
		t.Fatal("expected validation error")
	}

	totals, _ := s.FetchSummary(ctx)
	if !totals.Income.Equal(decimal.NewFromInt(1000)) || !totals.Expenses.Equal(decimal.NewFromInt(550)) || !totals.Balance.Equal(decimal.NewFromInt(450)) {
		t.Fatalf("totals = %+v", totals)
	}

	if err := s.DeleteTransaction(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteTransaction(ctx, created.ID); !errors.Is(err, source.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryExport(t *testing.T) {
	s := New("u1", seed())
	var buf bytes.Buffer
	ct, err := s.Export(context.Background(), source.ExportCSV, &buf)
	if err != nil || ct != "text/csv" {
		t.Fatalf("export: %q %v", ct, err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 || lines[0] != "Date,Type,Category,Amount,Description" {
		t.Fatalf("csv = %q", buf.String())
	}
	if lines[1] != "2024-02-01,expense,Rent,200.00," {
		t.Fatalf("first row = %q", lines[1])
	}
	if _, err := s.Export(context.Background(), source.ExportPDF, &buf); !errors.Is(err, source.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestNewFromFileSkipsCommentsAndBadRows(t *testing.T) {
	dir := t.TempDir()
	if s := NewFromFile("u", filepath.Join(dir, "missing.csv")); len(s.items) != 0 {
		t.Fatal("expected empty store for missing file")
	}

	path := filepath.Join(dir, "seed.csv")
	content := "# date,type,category,amount,description\n" +
		"2024-01-15,income,Salary,1000,January, paid late\n" +
		"\n" +
		"2024-13-01,expense,Food,10\n" +
		"2024-01-16,transfer,Food,10\n" +
		"2024-01-17,expense,Food,abc\n" +
		"2024-01-18,expense,Food,12,50\n"
	if err := os.WriteFile(filepath.Join(dir, "seed.csv"), []byte(content), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	s := NewFromFile("u", path)
	if len(s.items) != 2 {
		t.Fatalf("seeded %d rows, want 2: %+v", len(s.items), s.items)
	}
	if s.items[0].Description != "January, paid late" {
		t.Fatalf("description = %q", s.items[0].Description)
	}
	if !s.items[1].Amount.Equal(decimal.NewFromInt(12)) || s.items[1].Description != "50" {
		t.Fatalf("row = %+v", s.items[1])
	}
}
