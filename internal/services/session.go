package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/report"
	"fintrack/internal/source"
	"fintrack/internal/storage"
	"fintrack/internal/store"
)

const (
	totalsKey      = "totals"
	refreshTimeout = 10 * time.Second
	// DashboardRecent is how many transactions the dashboard lists.
	DashboardRecent = 5
)

// SnapshotRepository persists the last known state for offline starts.
type SnapshotRepository interface {
	SaveSnapshot(ctx context.Context, s storage.Snapshot) error
	LoadSnapshot(ctx context.Context, owner string) (storage.Snapshot, error)
}

// Options configures a Session. Zero values are usable.
type Options struct {
	Owner     string
	CacheTTL  time.Duration
	Snapshots SnapshotRepository
	Logger    *log.Logger
	Now       func() time.Time
}

// Dashboard is the landing view: backend totals over the full history,
// the most recent transactions and the monthly trend of the working set.
type Dashboard struct {
	Totals  core.Totals        `json:"totals"`
	Recent  []core.Transaction `json:"recent"`
	Trend   []core.MonthBucket `json:"trend"`
	Offline bool               `json:"offline"`
}

// Session owns one owner's working set and the source it came from.
// Reports are reduced locally from the working set; totals come from the
// source and are cached.
type Session struct {
	owner     string
	src       source.Source
	store     *store.Store
	totals    *cache.LRUCache[core.Totals]
	group     singleflight.Group
	snapshots SnapshotRepository
	logger    *log.Logger
	now       func() time.Time

	mu         sync.Mutex
	lastTotals *core.Totals
	offline    bool

	refreshes sync.WaitGroup
}

func NewSession(src source.Source, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Session{
		owner:     opts.Owner,
		src:       src,
		store:     store.New(opts.Owner),
		totals:    cache.NewLRUCache[core.Totals](1, opts.CacheTTL),
		snapshots: opts.Snapshots,
		logger:    logger.WithComponent(log.ComponentSession).With(log.FieldOwner, opts.Owner),
		now:       now,
	}
}

// TotalsCache exposes the totals cache for registration with a cache.Manager.
func (s *Session) TotalsCache() cache.Cleaner {
	return s.totals
}

func (s *Session) Owner() string {
	return s.owner
}

// Offline reports whether the working set was restored from a snapshot
// because the source was unreachable.
func (s *Session) Offline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offline
}

// Load fetches the transactions and the totals concurrently and replaces
// the working set. When the source fails and a snapshot exists, the
// snapshot is used instead and the session is marked offline.
func (s *Session) Load(ctx context.Context) error {
	var (
		txs    []core.Transaction
		totals core.Totals
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txs, err = s.src.FetchTransactions(gctx, core.Filters{})
		if err != nil {
			return fmt.Errorf("fetch transactions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		totals, err = s.src.FetchSummary(gctx)
		if err != nil {
			return fmt.Errorf("fetch summary: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		if restored := s.restoreSnapshot(ctx, err); restored {
			return nil
		}
		return err
	}

	s.store.Replace(s.owner, txs)
	s.setTotals(totals)
	s.mu.Lock()
	s.offline = false
	s.mu.Unlock()

	s.logger.LogFields(ctx, slog.LevelInfo, "Session loaded",
		log.NewFields().WithOperation(log.OpLoad).WithCount(len(txs)))
	s.saveSnapshot(ctx)
	return nil
}

func (s *Session) restoreSnapshot(ctx context.Context, cause error) bool {
	if s.snapshots == nil {
		return false
	}
	snap, err := s.snapshots.LoadSnapshot(ctx, s.owner)
	if err != nil {
		if !errors.Is(err, storage.ErrNoSnapshot) {
			s.logger.WarnContext(ctx, "Failed to read snapshot", log.FieldError, err)
		}
		return false
	}

	s.store.Replace(s.owner, snap.Transactions)
	s.mu.Lock()
	s.offline = true
	s.lastTotals = snap.Totals
	s.mu.Unlock()

	s.logger.WarnContext(ctx, "Source unavailable, serving snapshot",
		log.FieldError, cause,
		log.FieldCount, len(snap.Transactions),
		"saved_at", snap.SavedAt)
	return true
}

func (s *Session) saveSnapshot(ctx context.Context) {
	if s.snapshots == nil {
		return
	}
	s.mu.Lock()
	var totals *core.Totals
	if s.lastTotals != nil {
		t := *s.lastTotals
		totals = &t
	}
	s.mu.Unlock()

	err := s.snapshots.SaveSnapshot(ctx, storage.Snapshot{
		Owner:        s.owner,
		SavedAt:      s.now(),
		Transactions: s.store.Snapshot(),
		Totals:       totals,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to save snapshot",
			log.FieldOperation, log.OpSnapshot,
			log.FieldError, err)
	}
}

func (s *Session) setTotals(t core.Totals) {
	s.totals.Set(totalsKey, t)
	s.mu.Lock()
	s.lastTotals = &t
	s.mu.Unlock()
}

// Totals returns the source totals, from cache when fresh. Concurrent
// misses share one fetch, which is not cancelled with the caller that
// started it. When the fetch fails the last known totals are returned if
// there are any, and an offline session without them falls back to
// reducing its working set.
func (s *Session) Totals(ctx context.Context) (core.Totals, error) {
	if t, ok := s.totals.Get(totalsKey); ok {
		return t, nil
	}

	ch := s.group.DoChan(totalsKey, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		t, err := s.src.FetchSummary(fetchCtx)
		if err != nil {
			return core.Totals{}, err
		}
		s.setTotals(t)
		return t, nil
	})

	var (
		v   any
		err error
	)
	select {
	case res := <-ch:
		v, err = res.Val, res.Err
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		s.mu.Lock()
		last := s.lastTotals
		s.mu.Unlock()
		if last != nil {
			s.logger.WarnContext(ctx, "Serving stale totals", log.FieldError, err)
			return *last, nil
		}
		if s.Offline() {
			sum := report.ReduceSummary(s.store.Snapshot())
			return core.Totals{Income: sum.IncomeTotal, Expenses: sum.ExpenseTotal, Balance: sum.Balance}, nil
		}
		return core.Totals{}, fmt.Errorf("fetch summary: %w", err)
	}
	return v.(core.Totals), nil
}

// refreshTotals drops the cached totals and refetches them in the
// background.
func (s *Session) refreshTotals() {
	s.totals.Purge()
	s.refreshes.Add(1)
	go func() {
		defer s.refreshes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		if _, err := s.Totals(ctx); err != nil {
			s.logger.WarnContext(ctx, "Totals refresh failed",
				log.FieldOperation, log.OpRefresh,
				log.FieldError, err)
		}
	}()
}

// AddTransaction records t with the source and puts the stored record at
// the head of the working set.
func (s *Session) AddTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	created, err := s.src.CreateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	s.store.Prepend(created)
	s.refreshTotals()
	s.saveSnapshot(ctx)

	s.logger.LogFields(ctx, slog.LevelInfo, "Transaction created",
		log.NewFields().WithTransaction(created).WithOperation(log.OpCreate))
	return created, nil
}

// RemoveTransaction drops the transaction from the working set before the
// source confirms, and puts it back if the source refuses.
func (s *Session) RemoveTransaction(ctx context.Context, id string) error {
	removed, ok := s.store.Remove(id)
	if !ok {
		return fmt.Errorf("%w: %s", source.ErrNotFound, id)
	}
	t := removed.Tx

	if err := s.src.DeleteTransaction(ctx, id); err != nil {
		s.store.Restore(removed)
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	s.refreshTotals()
	s.saveSnapshot(ctx)

	s.logger.LogFields(ctx, slog.LevelInfo, "Transaction deleted",
		log.NewFields().WithTransaction(t).WithOperation(log.OpDelete))
	return nil
}

// Transactions returns a copy of the working set, newest first.
func (s *Session) Transactions() []core.Transaction {
	return s.store.Snapshot()
}

// Recent returns up to n transactions from the head of the working set.
func (s *Session) Recent(n int) []core.Transaction {
	return s.store.Recent(n)
}

// Report builds the period report over the working set.
func (s *Session) Report(period core.Period, kind core.Kind) report.Report {
	return report.Build(s.store.Snapshot(), period, kind, s.now())
}

// List returns the transactions matching f as the source filters them. The
// working set is left untouched so that reports keep covering the whole
// history. An offline session filters its working set instead.
func (s *Session) List(ctx context.Context, f core.Filters) ([]core.Transaction, error) {
	if s.Offline() {
		var out []core.Transaction
		for _, t := range s.store.Snapshot() {
			if f.Match(t) {
				out = append(out, t)
			}
		}
		return out, nil
	}
	txs, err := s.src.FetchTransactions(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	s.logger.LogFields(ctx, slog.LevelDebug, "Transactions listed",
		log.NewFields().WithOperation(log.OpList).WithCount(len(txs)))
	return txs, nil
}

// Search filters the working set by free text.
func (s *Session) Search(query string) []core.Transaction {
	return report.SearchTransactions(s.store.Snapshot(), query)
}

// Categories returns the categories already used for kind, or the preset
// choices when none are.
func (s *Session) Categories(kind core.Kind) []string {
	var ofKind []core.Transaction
	for _, t := range s.store.Snapshot() {
		if t.Kind == kind {
			ofKind = append(ofKind, t)
		}
	}
	if len(ofKind) == 0 {
		return core.DefaultCategories(kind)
	}
	return report.Categories(ofKind)
}

// Dashboard combines the source totals with the working set.
func (s *Session) Dashboard(ctx context.Context) (Dashboard, error) {
	totals, err := s.Totals(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	return Dashboard{
		Totals:  totals,
		Recent:  s.store.Recent(DashboardRecent),
		Trend:   report.BucketizeMonthly(s.store.Snapshot()),
		Offline: s.Offline(),
	}, nil
}

// Export streams the source's export document to w.
func (s *Session) Export(ctx context.Context, format source.ExportFormat, w io.Writer) (string, error) {
	ct, err := s.src.Export(ctx, format, w)
	if err != nil {
		return "", fmt.Errorf("export %s: %w", format, err)
	}
	s.logger.InfoContext(ctx, "Export streamed", log.FieldOperation, log.OpExport, "format", string(format))
	return ct, nil
}

// Close waits for background refreshes to finish.
func (s *Session) Close() error {
	s.refreshes.Wait()
	return nil
}
