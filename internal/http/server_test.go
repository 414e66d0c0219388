package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/report"
	"fintrack/internal/services"
	"fintrack/internal/source/memory"
)

var fixedNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func seed() []core.Transaction {
	return []core.Transaction{
		{ID: "t3", Kind: core.Expense, Category: "Food", Amount: decimal.NewFromInt(40), Date: core.NewDate(2024, 3, 10), Description: "groceries"},
		{ID: "t2", Kind: core.Expense, Category: "Housing", Amount: decimal.NewFromInt(900), Date: core.NewDate(2024, 3, 1)},
		{ID: "t1", Kind: core.Income, Category: "Salary", Amount: decimal.NewFromInt(3000), Date: core.NewDate(2024, 2, 28)},
	}
}

func newTestServer(t *testing.T, txs []core.Transaction, opts Options) *Server {
	t.Helper()
	now := func() time.Time { return fixedNow }
	sess := services.NewSession(memory.New("local", txs), services.Options{
		Owner:    "local",
		CacheTTL: time.Minute,
		Now:      now,
	})
	if err := sess.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	opts.Now = now
	srv := NewServer(":0", sess, opts)
	t.Cleanup(func() {
		srv.rateLimiter.Stop()
		_ = sess.Close()
	})
	return srv
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, r)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, seed(), Options{})

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := do(t, srv, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rec.Code)
		}
	}

	ready := decode[map[string]any](t, do(t, srv, http.MethodGet, "/readyz", ""))
	if ready["status"] != "ready" || ready["owner"] != "local" {
		t.Errorf("readyz = %v", ready)
	}
}

func TestMiddlewareHeaders(t *testing.T) {
	srv := newTestServer(t, seed(), Options{})
	rec := do(t, srv, http.MethodGet, "/api/dashboard", "")

	for _, h := range []string{"X-Request-ID", "X-Content-Type-Options", "Content-Security-Policy"} {
		if rec.Header().Get(h) == "" {
			t.Errorf("missing %s header", h)
		}
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}
}

func TestDashboard(t *testing.T) {
	srv := newTestServer(t, seed(), Options{})
	rec := do(t, srv, http.MethodGet, "/api/dashboard", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	dash := decode[services.Dashboard](t, rec)
	if !dash.Totals.Income.Equal(decimal.NewFromInt(3000)) || !dash.Totals.Expenses.Equal(decimal.NewFromInt(940)) {
		t.Errorf("totals = %+v", dash.Totals)
	}
	if len(dash.Recent) != 3 || dash.Recent[0].ID != "t3" {
		t.Errorf("recent = %+v", dash.Recent)
	}
	if len(dash.Trend) != 2 {
		t.Errorf("trend has %d buckets, want 2", len(dash.Trend))
	}
}

func TestReport(t *testing.T) {
	srv := newTestServer(t, seed(), Options{})
	rec := do(t, srv, http.MethodGet, "/api/reports?period=all&kind=expense", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	r := decode[report.Report](t, rec)
	if r.Count != 3 {
		t.Errorf("count = %d, want 3", r.Count)
	}
	if !r.Summary.Balance.Equal(decimal.NewFromInt(2060)) {
		t.Errorf("balance = %s, want 2060", r.Summary.Balance)
	}
	if len(r.Breakdown) != 2 || r.Breakdown[0].Category != "Food" {
		t.Errorf("breakdown = %+v", r.Breakdown)
	}
	if r.From != nil {
		t.Errorf("all-time report should have no lower bound, got %s", r.From)
	}
}

func TestSearchAndCategories(t *testing.T) {
	srv := newTestServer(t, seed(), Options{})

	found := decode[searchResponse](t, do(t, srv, http.MethodGet, "/api/transactions?q=GROC", ""))
	if found.Count != 1 || found.Transactions[0].ID != "t3" {
		t.Errorf("search = %+v", found)
	}

	all := decode[searchResponse](t, do(t, srv, http.MethodGet, "/api/transactions", ""))
	if all.Count != 3 {
		t.Errorf("empty query returned %d, want 3", all.Count)
	}

	cats := decode[struct {
		Categories []string `json:"categories"`
	}](t, do(t, srv, http.MethodGet, "/api/categories?kind=income", ""))
	if len(cats.Categories) != 1 || cats.Categories[0] != "Salary" {
		t.Errorf("categories = %v", cats.Categories)
	}
}

func TestListFilters(t *testing.T) {
	srv := newTestServer(t, seed(), Options{})

	tests := []struct {
		name   string
		target string
		status int
		want   []string
	}{
		{"by type", "/api/transactions?type=expense", http.StatusOK, []string{"t3", "t2"}},
		{"by category", "/api/transactions?category=Housing", http.StatusOK, []string{"t2"}},
		{"by date range", "/api/transactions?startDate=2024-03-01&endDate=2024-03-09", http.StatusOK, []string{"t2"}},
		{"open start", "/api/transactions?endDate=2024-02-28", http.StatusOK, []string{"t1"}},
		{"filters and text", "/api/transactions?type=expense&q=900", http.StatusOK, []string{"t2"}},
		{"no match", "/api/transactions?category=Travel", http.StatusOK, nil},
		{"bad type", "/api/transactions?type=transfer", http.StatusUnprocessableEntity, nil},
		{"bad date", "/api/transactions?startDate=yesterday", http.StatusUnprocessableEntity, nil},
		{"reversed range", "/api/transactions?startDate=2024-03-10&endDate=2024-03-01", http.StatusUnprocessableEntity, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, tt.target, "")
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
			if tt.status != http.StatusOK {
				return
			}
			got := decode[searchResponse](t, rec)
			if got.Count != len(tt.want) {
				t.Fatalf("count = %d, want %d: %+v", got.Count, len(tt.want), got.Transactions)
			}
			for i, id := range tt.want {
				if got.Transactions[i].ID != id {
					t.Errorf("transactions[%d] = %s, want %s", i, got.Transactions[i].ID, id)
				}
			}
		})
	}

	// Filtered listings do not shrink the working set behind the reports.
	if r := decode[report.Report](t, do(t, srv, http.MethodGet, "/api/reports", "")); r.Count != 3 {
		t.Errorf("report count after filtered listing = %d, want 3", r.Count)
	}
}

func TestSearchKeepsSurroundingSpaces(t *testing.T) {
	srv := newTestServer(t, seed(), Options{})

	tests := []struct {
		query string
		want  int
	}{
		{"food", 1},
		{"food%20", 0},
		{"%20", 0},
		{"%00food", 1},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := decode[searchResponse](t, do(t, srv, http.MethodGet, "/api/transactions?q="+tt.query, ""))
			if got.Count != tt.want {
				t.Errorf("q=%s matched %d, want %d", tt.query, got.Count, tt.want)
			}
		})
	}
}

func TestCreateTransaction(t *testing.T) {
	srv := newTestServer(t, seed(), Options{})

	tests := []struct {
		name string
		body string
		want int
	}{
		{"valid", `{"type":"expense","category":"Books","amount":"12.50","date":"2024-03-14","description":"novel"}`, http.StatusCreated},
		{"bad amount", `{"type":"expense","category":"Books","amount":"abc"}`, http.StatusUnprocessableEntity},
		{"bad type", `{"type":"gift","category":"Books","amount":"1"}`, http.StatusUnprocessableEntity},
		{"malformed", `{"type":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/api/transactions", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
			if rec.Code != http.StatusCreated {
				body := decode[ErrorBody](t, rec)
				if body.Error == "" || body.RequestID == "" {
					t.Errorf("error body = %+v", body)
				}
				return
			}
			created := decode[core.Transaction](t, rec)
			if created.ID == "" || rec.Header().Get("Location") != "/api/transactions/"+created.ID {
				t.Errorf("created = %+v, Location = %q", created, rec.Header().Get("Location"))
			}
		})
	}

	found := decode[searchResponse](t, do(t, srv, http.MethodGet, "/api/transactions?q=novel", ""))
	if found.Count != 1 {
		t.Errorf("created transaction not in working set")
	}
}

func TestDeleteTransaction(t *testing.T) {
	srv := newTestServer(t, seed(), Options{})

	if rec := do(t, srv, http.MethodDelete, "/api/transactions/t2", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodDelete, "/api/transactions/t2", ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}

	all := decode[searchResponse](t, do(t, srv, http.MethodGet, "/api/transactions", ""))
	if all.Count != 2 {
		t.Errorf("working set has %d, want 2", all.Count)
	}
}

func TestExport(t *testing.T) {
	srv := newTestServer(t, seed(), Options{})

	rec := do(t, srv, http.MethodGet, "/api/export/csv", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("csv status = %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv") {
		t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="transactions-2024-03-15.csv"` {
		t.Errorf("Content-Disposition = %q", got)
	}
	if !strings.Contains(rec.Body.String(), "groceries") {
		t.Errorf("csv body missing rows:\n%s", rec.Body.String())
	}

	if rec := do(t, srv, http.MethodGet, "/api/export/pdf", ""); rec.Code != http.StatusNotImplemented {
		t.Errorf("pdf status = %d, want 501", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/api/export/xls", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("xls status = %d, want 400", rec.Code)
	}
}

func TestCharts(t *testing.T) {
	pngMagic := []byte("\x89PNG\r\n\x1a\n")
	srv := newTestServer(t, seed(), Options{ChartMaxAge: 30})

	for _, target := range []string{"/charts/trend.png?period=all", "/charts/breakdown.png?period=all&kind=income"} {
		rec := do(t, srv, http.MethodGet, target, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d: %s", target, rec.Code, rec.Body.String())
		}
		if !bytes.HasPrefix(rec.Body.Bytes(), pngMagic) {
			t.Errorf("%s is not a PNG", target)
		}
		if got := rec.Header().Get("Cache-Control"); got != "private, max-age=30" {
			t.Errorf("%s Cache-Control = %q", target, got)
		}
	}

	empty := newTestServer(t, nil, Options{})
	if rec := do(t, empty, http.MethodGet, "/charts/breakdown.png", ""); rec.Code != http.StatusNotFound {
		t.Errorf("empty breakdown status = %d, want 404", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, seed(), Options{})
	if rec := do(t, srv, http.MethodPut, "/api/dashboard", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestRateLimitOnMutations(t *testing.T) {
	srv := newTestServer(t, seed(), Options{MutationsPerMinute: 1})

	if rec := do(t, srv, http.MethodPost, "/api/transactions", `{"type":"expense"}`); rec.Code == http.StatusTooManyRequests {
		t.Fatal("first mutation should not be limited")
	}
	rec := do(t, srv, http.MethodPost, "/api/transactions", `{"type":"expense"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Error("missing Retry-After")
	}
	if rec := do(t, srv, http.MethodGet, "/api/dashboard", ""); rec.Code != http.StatusOK {
		t.Errorf("reads must not be limited, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	srv := newTestServer(t, seed(), Options{})
	do(t, srv, http.MethodGet, "/.env", "")

	rec := do(t, srv, http.MethodGet, "/metrics", "")
	body := rec.Body.String()
	for _, want := range []string{"http_requests_total 1", "transactions_loaded 3", "suspicious_requests_total 1"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestShutdownTwice(t *testing.T) {
	srv := newTestServer(t, seed(), Options{})
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}
