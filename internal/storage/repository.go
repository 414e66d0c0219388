package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"

	_ "modernc.org/sqlite"
)

// ErrNoSnapshot is returned when nothing was saved for an owner.
var ErrNoSnapshot = errors.New("no snapshot")

// Snapshot is the last known state of an owner's transactions, kept so the
// dashboard can be served while the backend is unreachable.
type Snapshot struct {
	Owner        string
	SavedAt      time.Time
	Transactions []core.Transaction
	// Totals is nil when the backend summary was never fetched.
	Totals *core.Totals
}

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SaveSnapshot replaces the stored snapshot for s.Owner in one transaction.
func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, s Snapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)

	row := snapshotRow{
		Owner:    s.Owner,
		SavedAt:  s.SavedAt.UTC().Format(time.RFC3339Nano),
		Income:   "0",
		Expenses: "0",
		Balance:  "0",
	}
	if s.Totals != nil {
		row.HasTotals = 1
		row.Income = s.Totals.Income.String()
		row.Expenses = s.Totals.Expenses.String()
		row.Balance = s.Totals.Balance.String()
	}
	if err := q.UpsertSnapshot(ctx, row); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	if err := q.DeleteSnapshotTransactions(ctx, s.Owner); err != nil {
		return fmt.Errorf("clear snapshot transactions: %w", err)
	}
	for i, t := range s.Transactions {
		err := q.InsertSnapshotTransaction(ctx, transactionRow{
			Owner:       s.Owner,
			Position:    int64(i),
			ID:          t.ID,
			Kind:        string(t.Kind),
			Category:    t.Category,
			Amount:      t.Amount.String(),
			Date:        t.Date.UTC().Format(time.RFC3339Nano),
			Description: t.Description,
		})
		if err != nil {
			return fmt.Errorf("insert snapshot transaction %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}

	slog.DebugContext(ctx, "Snapshot saved",
		"owner", s.Owner,
		"count", len(s.Transactions),
		"has_totals", s.Totals != nil)
	return nil
}

// LoadSnapshot returns the stored snapshot for owner or ErrNoSnapshot.
func (r *SQLiteRepository) LoadSnapshot(ctx context.Context, owner string) (Snapshot, error) {
	row, err := r.queries.GetSnapshot(ctx, owner)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("get snapshot: %w", err)
	}

	s := Snapshot{Owner: row.Owner}
	if s.SavedAt, err = time.Parse(time.RFC3339Nano, row.SavedAt); err != nil {
		return Snapshot{}, fmt.Errorf("parse snapshot time %q: %w", row.SavedAt, err)
	}
	if row.HasTotals != 0 {
		totals, err := decodeTotals(row)
		if err != nil {
			return Snapshot{}, err
		}
		s.Totals = &totals
	}

	rows, err := r.queries.ListSnapshotTransactions(ctx, owner)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list snapshot transactions: %w", err)
	}
	s.Transactions = make([]core.Transaction, 0, len(rows))
	for _, tr := range rows {
		t, err := decodeTransaction(tr)
		if err != nil {
			return Snapshot{}, err
		}
		s.Transactions = append(s.Transactions, t)
	}
	return s, nil
}

// DeleteSnapshot removes the snapshot for owner. Missing snapshots are not
// an error.
func (r *SQLiteRepository) DeleteSnapshot(ctx context.Context, owner string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	if err := q.DeleteSnapshotTransactions(ctx, owner); err != nil {
		return fmt.Errorf("delete snapshot transactions: %w", err)
	}
	if _, err := q.DeleteSnapshot(ctx, owner); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return tx.Commit()
}

func decodeTotals(row snapshotRow) (core.Totals, error) {
	var (
		t   core.Totals
		err error
	)
	if t.Income, err = decimal.NewFromString(row.Income); err != nil {
		return t, fmt.Errorf("decode snapshot income: %w", err)
	}
	if t.Expenses, err = decimal.NewFromString(row.Expenses); err != nil {
		return t, fmt.Errorf("decode snapshot expenses: %w", err)
	}
	if t.Balance, err = decimal.NewFromString(row.Balance); err != nil {
		return t, fmt.Errorf("decode snapshot balance: %w", err)
	}
	return t, nil
}

func decodeTransaction(r transactionRow) (core.Transaction, error) {
	kind, err := core.ParseKind(r.Kind)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("decode snapshot transaction %s: %w", r.ID, err)
	}
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("decode snapshot transaction %s amount: %w", r.ID, err)
	}
	date, err := core.ParseDate(r.Date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("decode snapshot transaction %s: %w", r.ID, err)
	}
	return core.Transaction{
		ID:          r.ID,
		Kind:        kind,
		Category:    r.Category,
		Amount:      amount,
		Date:        date,
		Description: r.Description,
		Owner:       r.Owner,
	}, nil
}
