package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries holds the SQL statements for the snapshot tables.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type snapshotRow struct {
	Owner     string
	SavedAt   string
	HasTotals int64
	Income    string
	Expenses  string
	Balance   string
}

type transactionRow struct {
	Owner       string
	Position    int64
	ID          string
	Kind        string
	Category    string
	Amount      string
	Date        string
	Description string
}

const upsertSnapshot = `
INSERT INTO snapshots (owner, saved_at, has_totals, income, expenses, balance)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(owner) DO UPDATE SET
    saved_at = excluded.saved_at,
    has_totals = excluded.has_totals,
    income = excluded.income,
    expenses = excluded.expenses,
    balance = excluded.balance`

func (q *Queries) UpsertSnapshot(ctx context.Context, arg snapshotRow) error {
	_, err := q.db.ExecContext(ctx, upsertSnapshot,
		arg.Owner, arg.SavedAt, arg.HasTotals, arg.Income, arg.Expenses, arg.Balance)
	return err
}

const getSnapshot = `
SELECT owner, saved_at, has_totals, income, expenses, balance
FROM snapshots
WHERE owner = ?`

func (q *Queries) GetSnapshot(ctx context.Context, owner string) (snapshotRow, error) {
	var r snapshotRow
	err := q.db.QueryRowContext(ctx, getSnapshot, owner).
		Scan(&r.Owner, &r.SavedAt, &r.HasTotals, &r.Income, &r.Expenses, &r.Balance)
	return r, err
}

const deleteSnapshot = `DELETE FROM snapshots WHERE owner = ?`

func (q *Queries) DeleteSnapshot(ctx context.Context, owner string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteSnapshot, owner)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteSnapshotTransactions = `DELETE FROM snapshot_transactions WHERE owner = ?`

func (q *Queries) DeleteSnapshotTransactions(ctx context.Context, owner string) error {
	_, err := q.db.ExecContext(ctx, deleteSnapshotTransactions, owner)
	return err
}

const insertSnapshotTransaction = `
INSERT INTO snapshot_transactions (owner, position, id, kind, category, amount, date, description)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertSnapshotTransaction(ctx context.Context, arg transactionRow) error {
	_, err := q.db.ExecContext(ctx, insertSnapshotTransaction,
		arg.Owner, arg.Position, arg.ID, arg.Kind, arg.Category, arg.Amount, arg.Date, arg.Description)
	return err
}

const listSnapshotTransactions = `
SELECT owner, position, id, kind, category, amount, date, description
FROM snapshot_transactions
WHERE owner = ?
ORDER BY position`

func (q *Queries) ListSnapshotTransactions(ctx context.Context, owner string) ([]transactionRow, error) {
	rows, err := q.db.QueryContext(ctx, listSnapshotTransactions, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []transactionRow
	for rows.Next() {
		var r transactionRow
		if err := rows.Scan(&r.Owner, &r.Position, &r.ID, &r.Kind, &r.Category, &r.Amount, &r.Date, &r.Description); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
