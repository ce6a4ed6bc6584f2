// Package ledger holds the append/update/delete surface over ledger entries.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/mtlprog/holdings/internal/domain"
)

// ErrNotFound indicates that no entry has the requested id.
var ErrNotFound = errors.New("ledger entry not found")

// Store is the in-memory ledger. Entries keep insertion order.
type Store struct {
	mu      sync.RWMutex
	entries []domain.LedgerEntry
	now     func() time.Time
	newID   func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides the id source.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// NewStore creates a ledger holding a copy of entries.
func NewStore(entries []domain.LedgerEntry, opts ...Option) *Store {
	s := &Store{
		entries: append([]domain.LedgerEntry(nil), entries...),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add validates, normalizes and appends a new entry.
func (s *Store) Add(in domain.EntryInput) (domain.LedgerEntry, error) {
	if err := in.Validate(); err != nil {
		return domain.LedgerEntry{}, err
	}
	in = in.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	e := domain.LedgerEntry{
		ID:         s.newID(),
		Date:       in.Date,
		Holder:     in.Holder,
		AssetID:    in.AssetID,
		Ticker:     in.Ticker,
		Amount:     in.Amount,
		Memo:       in.Memo,
		SubAccount: in.SubAccount,
		CreatedAt:  s.now(),
	}
	s.entries = append(s.entries, e)
	return e, nil
}

// Update applies a patch to the entry with the given id.
func (s *Store) Update(id string, patch domain.EntryPatch) (domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return domain.LedgerEntry{}, fmt.Errorf("updating %s: %w", id, ErrNotFound)
	}
	updated, err := patch.Apply(s.entries[i])
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	s.entries[i] = updated
	return updated, nil
}

// Delete removes the entry with the given id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("deleting %s: %w", id, ErrNotFound)
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	return nil
}

// Get returns the entry with the given id.
func (s *Store) Get(id string) (domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return domain.LedgerEntry{}, ErrNotFound
	}
	return s.entries[i], nil
}

func (s *Store) indexOf(id string) int {
	_, i, ok := lo.FindIndexOf(s.entries, func(e domain.LedgerEntry) bool { return e.ID == id })
	if !ok {
		return -1
	}
	return i
}

// Entries returns a copy of all entries in insertion order.
func (s *Store) Entries() []domain.LedgerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.LedgerEntry(nil), s.entries...)
}

// EntriesUpTo returns the entries dated on or before cutoff.
func (s *Store) EntriesUpTo(cutoff domain.Date) []domain.LedgerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Filter(s.entries, func(e domain.LedgerEntry, _ int) bool { return !e.Date.After(cutoff) })
}

// EntriesOn returns the entries dated exactly on date, ordered by creation time.
func (s *Store) EntriesOn(date domain.Date) []domain.LedgerEntry {
	s.mu.RLock()
	out := lo.Filter(s.entries, func(e domain.LedgerEntry, _ int) bool { return e.Date == date })
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Replace swaps the whole ledger.
func (s *Store) Replace(entries []domain.LedgerEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append([]domain.LedgerEntry(nil), entries...)
}

// Clear removes every entry.
func (s *Store) Clear() {
	s.Replace(nil)
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Holders returns the distinct holder names, sorted.
func (s *Store) Holders() []string {
	s.mu.RLock()
	names := lo.Uniq(lo.Map(s.entries, func(e domain.LedgerEntry, _ int) string { return e.Holder }))
	s.mu.RUnlock()

	names = lo.Compact(names)
	sort.Strings(names)
	return names
}

// SubAccounts returns the distinct sub-account labels in use, sorted. Unmarked entries are skipped.
func (s *Store) SubAccounts() []string {
	s.mu.RLock()
	labels := lo.FilterMap(s.entries, func(e domain.LedgerEntry, _ int) (string, bool) {
		return e.Sub().Get()
	})
	s.mu.RUnlock()

	labels = lo.Uniq(labels)
	sort.Strings(labels)
	return labels
}

// PricedAssetIDs returns the distinct non-stablecoin asset ids across the whole ledger, sorted.
func (s *Store) PricedAssetIDs() []string {
	s.mu.RLock()
	ids := lo.FilterMap(s.entries, func(e domain.LedgerEntry, _ int) (string, bool) {
		id := domain.NormalizeAssetID(e.AssetID)
		return id, domain.IsPriced(id)
	})
	s.mu.RUnlock()

	ids = lo.Uniq(ids)
	sort.Strings(ids)
	return ids
}

// EarliestDate returns the date of the oldest entry.
func (s *Store) EarliestDate() (domain.Date, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return domain.Date{}, false
	}
	earliest := lo.MinBy(s.entries, func(a, b domain.LedgerEntry) bool { return a.Date.Before(b.Date) })
	return earliest.Date, true
}
