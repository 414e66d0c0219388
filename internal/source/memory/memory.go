package memory

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/report"
	"fintrack/internal/source"
)

var _ source.Source = (*Store)(nil)

// Store is an in-process transaction source for local runs and tests.
type Store struct {
	mu    sync.Mutex
	owner string
	items []core.Transaction
}

func New(owner string, seed []core.Transaction) *Store {
	s := &Store{owner: owner}
	for _, t := range seed {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		t.Owner = owner
		s.items = append(s.items, t)
	}
	return s
}

// NewFromFile seeds the store from a comma-separated file with lines of
// date,type,category,amount[,description]. Blank lines and lines starting
// with # are skipped, as are malformed rows. A missing file yields an empty
// store.
func NewFromFile(owner, path string) *Store {
	return New(owner, readSeed(path))
}

// FetchTransactions returns matching transactions, newest first.
func (s *Store) FetchTransactions(_ context.Context, f core.Filters) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, 0, len(s.items))
	for _, t := range s.items {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	slices.SortStableFunc(out, func(a, b core.Transaction) int {
		return b.Date.Compare(a.Date.Time)
	})
	return out, nil
}

// FetchSummary totals the full history.
func (s *Store) FetchSummary(_ context.Context) (core.Totals, error) {
	s.mu.Lock()
	sum := report.ReduceSummary(s.items)
	s.mu.Unlock()
	return core.Totals{Income: sum.IncomeTotal, Expenses: sum.ExpenseTotal, Balance: sum.Balance}, nil
}

func (s *Store) CreateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	t.ID = uuid.NewString()
	t.Owner = s.owner
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, t)
	return t, nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.items, func(t core.Transaction) bool { return t.ID == id })
	if i < 0 {
		return fmt.Errorf("%w: %s", source.ErrNotFound, id)
	}
	s.items = slices.Delete(s.items, i, i+1)
	return nil
}

// Export writes a CSV of every transaction. PDF is not available in memory.
func (s *Store) Export(ctx context.Context, format source.ExportFormat, w io.Writer) (string, error) {
	if format != source.ExportCSV {
		return "", fmt.Errorf("%w: %s", source.ErrUnsupportedFormat, format)
	}
	txs, err := s.FetchTransactions(ctx, core.Filters{})
	if err != nil {
		return "", err
	}
	if err := source.WriteCSV(w, txs); err != nil {
		return "", err
	}
	return source.ContentTypeCSV, nil
}

func readSeed(path string) []core.Transaction {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []core.Transaction
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		t, ok := parseSeedLine(line)
		if !ok {
			continue
		}
		out = append(out, t)
	}
	return out
}

func parseSeedLine(line string) (core.Transaction, bool) {
	parts := strings.SplitN(line, ",", 5)
	if len(parts) < 4 {
		return core.Transaction{}, false
	}
	date, err := core.ParseDate(parts[0])
	if err != nil {
		return core.Transaction{}, false
	}
	kind, err := core.ParseKind(parts[1])
	if err != nil {
		return core.Transaction{}, false
	}
	amount, err := core.ParseAmount(parts[3])
	if err != nil {
		return core.Transaction{}, false
	}
	t := core.Transaction{
		Kind:     kind,
		Category: strings.TrimSpace(parts[2]),
		Amount:   amount,
		Date:     date,
	}
	if len(parts) == 5 {
		t.Description = strings.TrimSpace(parts[4])
	}
	return t, true
}
