// Package session owns the application state: the ledger, the price cache and the user
// preferences. It loads them from a state.Store at startup and writes them back after
// every mutating call.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/holdings/internal/breakdown"
	"github.com/mtlprog/holdings/internal/domain"
	"github.com/mtlprog/holdings/internal/ledger"
	"github.com/mtlprog/holdings/internal/position"
	"github.com/mtlprog/holdings/internal/price"
	"github.com/mtlprog/holdings/internal/search"
	"github.com/mtlprog/holdings/internal/state"
	"github.com/mtlprog/holdings/internal/valuation"
)

// Session is the single entry point used by the HTTP API, the CLI and the workers.
type Session struct {
	store     state.Store
	ledger    *ledger.Store
	cache     *price.Cache
	positions *position.Aggregator
	resolver  *price.Resolver
	values    *valuation.Engine
	breakdown *breakdown.Engine
	search    *search.Chain
	quoter    search.Quoter

	// mu serializes persistence and guards prefs.
	mu    sync.Mutex
	prefs Prefs
}

type options struct {
	ledgerOpts   []ledger.Option
	resolverOpts []price.ResolverOption
	search       *search.Chain
}

// Option configures a Session.
type Option func(*options)

// WithLedgerOptions passes options to the ledger store.
func WithLedgerOptions(opts ...ledger.Option) Option {
	return func(o *options) { o.ledgerOpts = append(o.ledgerOpts, opts...) }
}

// WithResolverOptions passes options to the price resolver.
func WithResolverOptions(opts ...price.ResolverOption) Option {
	return func(o *options) { o.resolverOpts = append(o.resolverOpts, opts...) }
}

// WithSearch sets the search chain. Without it only the embedded fallback list is searched.
func WithSearch(chain *search.Chain) Option {
	return func(o *options) { o.search = chain }
}

// holdings adapts the ledger and the aggregator to price.Holdings.
type holdings struct {
	*ledger.Store
	*position.Aggregator
}

// New loads a session from store. provider serves price lookups and search quotes.
func New(ctx context.Context, store state.Store, provider price.Provider, opts ...Option) (*Session, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.search == nil {
		o.search = search.NewChain(0)
	}

	s := &Session{
		store:  store,
		ledger: ledger.NewStore(nil, o.ledgerOpts...),
		cache:  price.NewCache(),
		search: o.search,
		quoter: provider,
	}
	s.positions = position.NewAggregator(s.ledger)
	s.resolver = price.NewResolver(provider, s.cache, holdings{Store: s.ledger, Aggregator: s.positions}, o.resolverOpts...)
	s.values = valuation.NewEngine(s.positions, s.cache)
	s.breakdown = breakdown.NewEngine(s.values, s.ledger)

	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) load(ctx context.Context) error {
	var entries []domain.LedgerEntry
	if _, err := s.store.Read(ctx, state.KeyLedger, &entries); err != nil {
		return fmt.Errorf("loading ledger: %w", err)
	}
	history := price.History{}
	if _, err := s.store.Read(ctx, state.KeyPriceHistory, &history); err != nil {
		return fmt.Errorf("loading price history: %w", err)
	}
	months := price.FetchedMonths{}
	if _, err := s.store.Read(ctx, state.KeyFetchedMonths, &months); err != nil {
		return fmt.Errorf("loading fetched months: %w", err)
	}
	prefs := defaultPrefs(s.Today())
	if _, err := s.store.Read(ctx, state.KeyPrefs, &prefs); err != nil {
		slog.Warn("loading preferences, using defaults", "error", err)
		prefs = defaultPrefs(s.Today())
	}

	s.ledger.Replace(entries)
	s.cache.Restore(history, months)
	s.prefs = prefs.normalized(s.Today())

	slog.Info("session loaded", "entries", len(entries), "assets", len(history))
	return nil
}

func (s *Session) saveLedger(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Write(ctx, state.KeyLedger, s.ledger.Entries()); err != nil {
		slog.Error("saving ledger", "error", err)
		return fmt.Errorf("saving ledger: %w", err)
	}
	return nil
}

func (s *Session) saveCache(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Write(ctx, state.KeyPriceHistory, s.cache.History()); err != nil {
		slog.Error("saving price history", "error", err)
		return fmt.Errorf("saving price history: %w", err)
	}
	if err := s.store.Write(ctx, state.KeyFetchedMonths, s.cache.Months()); err != nil {
		slog.Error("saving fetched months", "error", err)
		return fmt.Errorf("saving fetched months: %w", err)
	}
	return nil
}

// persistOutcomes saves the cache when any outcome wrote into it.
func (s *Session) persistOutcomes(ctx context.Context, outcomes []price.Outcome) error {
	if !price.Recorded(outcomes) {
		return nil
	}
	return s.saveCache(ctx)
}

// Today returns the current date in the reference time zone.
func (s *Session) Today() domain.Date { return s.resolver.Today() }

// AddEntry appends a ledger entry, backfills its month and resolves the entry date's price.
// Price failures are logged and do not fail the call.
func (s *Session) AddEntry(ctx context.Context, in domain.EntryInput) (domain.LedgerEntry, error) {
	entry, err := s.ledger.Add(in)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	if err := s.saveLedger(ctx); err != nil {
		return entry, err
	}
	slog.Info("ledger entry added", "id", entry.ID, "holder", entry.Holder, "asset", entry.AssetID, "date", entry.Date)

	s.resolveEntry(ctx, entry)
	return entry, nil
}

func (s *Session) resolveEntry(ctx context.Context, entry domain.LedgerEntry) {
	if !domain.IsPriced(entry.AssetID) {
		return
	}
	outcomes := s.resolver.PrefetchMonth(ctx, domain.MonthOf(entry.Date))
	outcomes = append(outcomes, s.resolver.EnsureDayPrices(ctx, entry.Date, entry.AssetID)...)
	if err := s.persistOutcomes(ctx, outcomes); err != nil {
		slog.Warn("resolving entry price", "id", entry.ID, "error", err)
	}
}

// UpdateEntry patches an entry and resolves the price for its (possibly new) date and asset.
func (s *Session) UpdateEntry(ctx context.Context, id string, patch domain.EntryPatch) (domain.LedgerEntry, error) {
	entry, err := s.ledger.Update(id, patch)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	if err := s.saveLedger(ctx); err != nil {
		return entry, err
	}
	s.resolveEntry(ctx, entry)
	return entry, nil
}

// DeleteEntry removes an entry.
func (s *Session) DeleteEntry(ctx context.Context, id string) error {
	if err := s.ledger.Delete(id); err != nil {
		return err
	}
	return s.saveLedger(ctx)
}

// Entry returns one ledger entry.
func (s *Session) Entry(id string) (domain.LedgerEntry, error) {
	return s.ledger.Get(id)
}

// Entries returns the whole ledger in insertion order.
func (s *Session) Entries() []domain.LedgerEntry {
	return s.ledger.Entries()
}

// ListPositions returns the positive positions as of date.
func (s *Session) ListPositions(date domain.Date) []domain.Position {
	return s.positions.Positions(date)
}

// GroupTotals returns the value per group on date.
func (s *Session) GroupTotals(date domain.Date, mode domain.GroupMode) []domain.GroupTotal {
	return s.breakdown.GroupTotals(date, mode)
}

// SubBreakdown splits one row of the composition view by sub-account.
func (s *Session) SubBreakdown(date domain.Date, mode domain.GroupMode, groupKey, rowKey string) []domain.SubBreakdown {
	return s.breakdown.SubBreakdown(date, mode, groupKey, rowKey)
}

// TotalValue returns the clamped portfolio value on date.
func (s *Session) TotalValue(date domain.Date) decimal.Decimal {
	return s.values.TotalValue(date)
}

// DayChange compares the value on date with the previous day.
func (s *Session) DayChange(date domain.Date) domain.DayChange {
	return s.values.DayChange(date)
}

// Month returns the calendar cells of month using cached prices only.
func (s *Session) Month(month domain.MonthKey) []domain.DayCell {
	return s.values.Month(month, s.Today())
}

// Refresh resolves prices for date and the day before, then returns the day change.
func (s *Session) Refresh(ctx context.Context, date domain.Date) (domain.DayChange, error) {
	outcomes := s.resolver.EnsureDayPrices(ctx, date)
	outcomes = append(outcomes, s.resolver.EnsureDayPrices(ctx, date.Prev())...)
	if err := s.persistOutcomes(ctx, outcomes); err != nil {
		return domain.DayChange{}, err
	}
	if failed := price.Failed(outcomes); len(failed) > 0 {
		slog.Warn("refresh left prices unresolved", "date", date, "failed", len(failed))
	}
	return s.values.DayChange(date), nil
}

// RefreshQuotes resolves today's prices for held assets and backfills the current month.
func (s *Session) RefreshQuotes(ctx context.Context) ([]price.Outcome, error) {
	today := s.Today()
	outcomes := s.resolver.EnsureDayPrices(ctx, today)
	outcomes = append(outcomes, s.resolver.PrefetchMonth(ctx, domain.MonthOf(today))...)
	return outcomes, s.persistOutcomes(ctx, outcomes)
}

// PrefetchMonth backfills month for every ledger asset and persists what was recorded.
func (s *Session) PrefetchMonth(ctx context.Context, month domain.MonthKey) ([]price.Outcome, error) {
	outcomes := s.resolver.PrefetchMonth(ctx, month)
	return outcomes, s.persistOutcomes(ctx, outcomes)
}

// DayView is the composition of one day together with the entries dated that day.
type DayView struct {
	domain.Composition
	Operations []domain.LedgerEntry `json:"operations"`
}

// OpenComposition resolves prices for date and the day before and returns the grouped view
// in the preferred group mode.
func (s *Session) OpenComposition(ctx context.Context, date domain.Date) (DayView, error) {
	if _, err := s.Refresh(ctx, date); err != nil {
		return DayView{}, err
	}
	return DayView{
		Composition: s.breakdown.Groups(date, s.Prefs().GroupMode),
		Operations:  s.ledger.EntriesOn(date),
	}, nil
}

// Composition returns the grouped view on date from cached prices.
func (s *Session) Composition(date domain.Date, mode domain.GroupMode) domain.Composition {
	return s.breakdown.Groups(date, mode)
}

// Adjust sets a sub-account of a row to target by appending a delta entry.
// It returns nil when nothing had to change.
func (s *Session) Adjust(ctx context.Context, date domain.Date, mode domain.GroupMode, groupKey, rowKey string, sub domain.SubAccount, target decimal.Decimal) (*domain.LedgerEntry, error) {
	added, err := s.breakdown.Adjust(date, mode, groupKey, rowKey, sub, target)
	if err != nil || added == nil {
		return added, err
	}
	if err := s.saveLedger(ctx); err != nil {
		return added, err
	}
	slog.Info("sub-account adjusted", "group", groupKey, "row", rowKey, "sub", sub.Label(), "delta", added.Amount)
	return added, nil
}

// Holders returns the distinct holder names for autocomplete.
func (s *Session) Holders() []string { return s.ledger.Holders() }

// SubAccounts returns the distinct sub-account labels for autocomplete.
func (s *Session) SubAccounts() []string { return s.ledger.SubAccounts() }

// Search resolves a query through the search chain.
func (s *Session) Search(ctx context.Context, query string) []domain.Candidate {
	return s.search.Search(ctx, query)
}

// Suggestions returns the default candidates with current prices when available.
func (s *Session) Suggestions(ctx context.Context) []domain.Candidate {
	return search.Suggestions(ctx, s.quoter)
}

// SelectCandidate turns a chosen candidate into an asset id and ticker.
// A positive candidate price is recorded as today's price.
func (s *Session) SelectCandidate(ctx context.Context, c domain.Candidate) (assetID, ticker string, err error) {
	assetID, ticker = domain.NormalizeAssetInput(c.Symbol, c.ID, c.Symbol)
	if c.Price == nil || !c.Price.IsPositive() {
		return assetID, ticker, nil
	}
	if s.cache.Record(assetID, s.Today(), *c.Price) {
		err = s.saveCache(ctx)
	}
	return assetID, ticker, err
}

// Clear wipes the ledger and the price cache.
func (s *Session) Clear(ctx context.Context) error {
	s.ledger.Clear()
	s.cache.Reset()
	if err := s.saveLedger(ctx); err != nil {
		return err
	}
	slog.Info("session cleared")
	return s.saveCache(ctx)
}
