// Package store holds the session's working set of transactions.
package store

import (
	"slices"
	"sync"

	"fintrack/internal/core"
)

// Store is an ordered, owner-scoped collection of transactions, newest
// first as returned by the backend. It is safe for concurrent use and never
// hands out its internal slice.
type Store struct {
	mu    sync.RWMutex
	owner string
	items []core.Transaction
}

func New(owner string) *Store {
	return &Store{owner: owner}
}

func (s *Store) Owner() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner
}

// Replace swaps the whole working set, typically after a fetch.
func (s *Store) Replace(owner string, txs []core.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owner = owner
	s.items = slices.Clone(txs)
}

// Prepend inserts a newly created transaction at the head of the set.
func (s *Store) Prepend(t core.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = slices.Insert(s.items, 0, t)
}

// Removal is a transaction taken out of the set together with the IDs of
// its neighbours at the time, so that it can be put back in place.
type Removal struct {
	Tx   core.Transaction
	Prev string
	Next string
}

// Remove drops the transaction with the given ID and returns it with its
// neighbours. Only one of several concurrent removals of an ID succeeds.
func (s *Store) Remove(id string) (Removal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return Removal{}, false
	}
	r := Removal{Tx: s.items[i]}
	if i > 0 {
		r.Prev = s.items[i-1].ID
	}
	if i+1 < len(s.items) {
		r.Next = s.items[i+1].ID
	}
	s.items = slices.Delete(s.items, i, i+1)
	return r, true
}

// Restore rolls back a Remove. The record goes right after its previous
// neighbour, or right before its next one, whichever is still present.
// When both are gone it is placed by date, newest first.
func (s *Store) Restore(r Removal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = slices.Insert(s.items, s.restorePos(r), r.Tx)
}

func (s *Store) restorePos(r Removal) int {
	if r.Prev != "" {
		if i := s.index(r.Prev); i >= 0 {
			return i + 1
		}
	}
	if r.Next != "" {
		if i := s.index(r.Next); i >= 0 {
			return i
		}
	}
	if r.Prev == "" && r.Next == "" {
		return 0
	}
	for i, t := range s.items {
		if t.Date.Before(r.Tx.Date.Time) {
			return i
		}
	}
	return len(s.items)
}

func (s *Store) index(id string) int {
	return slices.IndexFunc(s.items, func(t core.Transaction) bool { return t.ID == id })
}

// Get returns the transaction with the given ID and its position.
func (s *Store) Get(id string) (core.Transaction, int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.index(id)
	if i < 0 {
		return core.Transaction{}, -1, false
	}
	return s.items[i], i, true
}

// Snapshot returns a copy of the working set in store order.
func (s *Store) Snapshot() []core.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Transaction, len(s.items))
	copy(out, s.items)
	return out
}

// Recent returns up to n transactions from the head of the set.
func (s *Store) Recent(n int) []core.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n = max(0, min(n, len(s.items)))
	out := make([]core.Transaction, n)
	copy(out, s.items[:n])
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
