package source

import (
	"context"
	"errors"
	"fmt"
	"io"

	"fintrack/internal/core"
)

// ErrReadOnly is returned by sources that cannot record transactions.
var ErrReadOnly = errors.New("source is read-only")

// ErrNotFound is returned when a transaction ID is unknown to the source.
var ErrNotFound = errors.New("transaction not found")

// ErrUnsupportedFormat is returned for export formats a source cannot produce.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ExportFormat selects the server-rendered export document.
type ExportFormat string

const (
	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
)

// ParseExportFormat accepts "csv" or "pdf".
func ParseExportFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(s); f {
	case ExportCSV, ExportPDF:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// Ports for outbound adapters.
type (
	// TransactionFetcher returns the owner's transactions, newest first,
	// with the filters applied by the source.
	TransactionFetcher interface {
		FetchTransactions(ctx context.Context, f core.Filters) ([]core.Transaction, error)
	}

	// SummaryFetcher returns totals over the owner's full history.
	SummaryFetcher interface {
		FetchSummary(ctx context.Context) (core.Totals, error)
	}

	// TransactionWriter records and deletes transactions. Create returns the
	// stored record with its source-assigned ID.
	TransactionWriter interface {
		CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		DeleteTransaction(ctx context.Context, id string) error
	}

	// Exporter streams a source-generated export document.
	Exporter interface {
		Export(ctx context.Context, format ExportFormat, w io.Writer) (contentType string, err error)
	}

	// Source is everything a session needs from a backend.
	Source interface {
		TransactionFetcher
		SummaryFetcher
		TransactionWriter
		Exporter
	}
)
