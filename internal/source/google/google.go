package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fintrack/internal/core"
	"fintrack/internal/report"
	"fintrack/internal/source"
)

// Ensure interface conformance
var _ source.Source = (*Client)(nil)

// Options configure the spreadsheet source. Credentials may be given inline
// or as a file path; when both are empty GOOGLE_APPLICATION_CREDENTIALS is
// consulted.
type Options struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
	Owner           string
}

// Client reads transactions from a sheet laid out as
// Date | Type | Category | Amount | Description, one transaction per row.
// The sheet is the system of record and is edited by hand, so the client is
// read-only.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
	owner         string
}

func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	sheet := strings.TrimSpace(opts.SheetName)
	if sheet == "" {
		sheet = "Transactions"
	}
	svc, err := newSheetsService(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: opts.SpreadsheetID, sheet: sheet, owner: opts.Owner}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, opts Options) (*gsheet.Service, error) {
	credsJSON := strings.TrimSpace(opts.CredentialsJSON)
	credsFile := strings.TrimSpace(opts.CredentialsFile)
	if credsJSON == "" && credsFile == "" {
		credsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var raw []byte
	switch {
	case credsJSON != "":
		raw = []byte(credsJSON)
	case credsFile != "":
		b, err := os.ReadFile(credsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		raw = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(raw),
		"scope", gsheet.SpreadsheetsReadonlyScope)

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(raw),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return svc, nil
}

func (c *Client) readAll(ctx context.Context) ([]core.Transaction, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:E", c.sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("FORMATTED_STRING").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	txs, err := parseRows(resp.Values, c.owner)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rng, err)
	}
	return txs, nil
}

// FetchTransactions reads the whole sheet and applies the filters locally.
func (c *Client) FetchTransactions(ctx context.Context, f core.Filters) ([]core.Transaction, error) {
	all, err := c.readAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.Transaction, 0, len(all))
	for _, t := range all {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	slices.SortStableFunc(out, func(a, b core.Transaction) int {
		return b.Date.Compare(a.Date.Time)
	})
	return out, nil
}

// FetchSummary totals every row of the sheet.
func (c *Client) FetchSummary(ctx context.Context) (core.Totals, error) {
	all, err := c.readAll(ctx)
	if err != nil {
		return core.Totals{}, err
	}
	s := report.ReduceSummary(all)
	return core.Totals{Income: s.IncomeTotal, Expenses: s.ExpenseTotal, Balance: s.Balance}, nil
}

func (c *Client) CreateTransaction(context.Context, core.Transaction) (core.Transaction, error) {
	return core.Transaction{}, source.ErrReadOnly
}

func (c *Client) DeleteTransaction(context.Context, string) error {
	return source.ErrReadOnly
}

// Export renders the sheet as CSV. PDF is only produced by the hosted backend.
func (c *Client) Export(ctx context.Context, format source.ExportFormat, w io.Writer) (string, error) {
	if format != source.ExportCSV {
		return "", fmt.Errorf("%w: %s", source.ErrUnsupportedFormat, format)
	}
	txs, err := c.FetchTransactions(ctx, core.Filters{})
	if err != nil {
		return "", err
	}
	if err := source.WriteCSV(w, txs); err != nil {
		return "", err
	}
	return source.ContentTypeCSV, nil
}
