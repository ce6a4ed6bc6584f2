package price

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/holdings/internal/domain"
	"github.com/mtlprog/holdings/internal/external"
)

// Defaults for the resolver limits.
const (
	DefaultBatchSize   = 25
	DefaultConcurrency = 4
)

// Provider is the subset of the CoinGecko client used by the Resolver.
type Provider interface {
	MarketChartRange(ctx context.Context, id string, from, to time.Time) ([]external.TimedPrice, error)
	SimplePrices(ctx context.Context, ids []string) (map[string]decimal.Decimal, error)
	History(ctx context.Context, id string, date domain.Date) (decimal.Decimal, error)
}

// Holdings reports which assets need prices.
type Holdings interface {
	// PricedAssetIDs returns every non-stablecoin asset id in the ledger.
	PricedAssetIDs() []string
	// HeldAssets returns the non-stablecoin asset ids held as of date.
	HeldAssets(date domain.Date) []string
}

// Outcome is the result of resolving one asset. Err is nil on success.
// For month backfills Points counts the recorded samples and Marked is set once the month is
// marked fetched; for point lookups Price holds the value.
type Outcome struct {
	AssetID string
	Date    domain.Date
	Price   decimal.Decimal
	Points  int
	Marked  bool
	Err     error
}

// Recorded reports whether any outcome wrote into the cache or the month fetch ledger.
func Recorded(outcomes []Outcome) bool {
	return lo.SomeBy(outcomes, func(o Outcome) bool {
		return o.Err == nil && (o.Marked || o.Points > 0 || o.Price.IsPositive())
	})
}

// Failed returns the outcomes carrying an error.
func Failed(outcomes []Outcome) []Outcome {
	return lo.Filter(outcomes, func(o Outcome, _ int) bool { return o.Err != nil })
}

// Resolver fills the Cache from the price provider.
type Resolver struct {
	provider    Provider
	cache       *Cache
	holdings    Holdings
	loc         *time.Location
	batchSize   int
	concurrency int
	now         func() time.Time
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithBatchSize caps the number of ids per batch quote.
func WithBatchSize(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithConcurrency caps the number of concurrent single-day lookups.
func WithConcurrency(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithLocation sets the reference time zone used for month ranges and timestamp bucketing.
func WithLocation(loc *time.Location) ResolverOption {
	return func(r *Resolver) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// WithNow overrides the clock that defines "today".
func WithNow(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// NewResolver creates a new price resolver.
func NewResolver(provider Provider, cache *Cache, holdings Holdings, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		provider:    provider,
		cache:       cache,
		holdings:    holdings,
		loc:         time.UTC,
		batchSize:   DefaultBatchSize,
		concurrency: DefaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Today returns the current date in the reference time zone.
func (r *Resolver) Today() domain.Date {
	return domain.DateOf(r.now(), r.loc)
}

// Location returns the reference time zone.
func (r *Resolver) Location() *time.Location { return r.loc }

// PrefetchMonth backfills the whole month for every ledger asset not yet fetched for it.
// A month is marked fetched only when the provider returned a non-empty series.
func (r *Resolver) PrefetchMonth(ctx context.Context, month domain.MonthKey) []Outcome {
	last := month.Last()
	from := month.First().Start(r.loc)
	to := time.Date(last.Year(), last.Month(), last.Day(), 23, 59, 59, 0, r.loc)

	var outcomes []Outcome
	for _, id := range r.holdings.PricedAssetIDs() {
		if r.cache.IsMonthFetched(month, id) {
			continue
		}
		if err := ctx.Err(); err != nil {
			outcomes = append(outcomes, Outcome{AssetID: id, Err: err})
			continue
		}

		series, err := r.provider.MarketChartRange(ctx, id, from, to)
		if err == nil && len(series) == 0 {
			err = fmt.Errorf("market chart range %s: %w", id, external.ErrEmpty)
		}
		if err != nil {
			slog.Warn("month backfill failed", "asset", id, "month", month.String(), "error", err)
			outcomes = append(outcomes, Outcome{AssetID: id, Err: err})
			continue
		}

		points := 0
		for _, p := range series {
			if r.cache.Record(id, domain.DateOf(p.At, r.loc), p.Price) {
				points++
			}
		}
		r.cache.MarkMonthFetched(month, id)
		outcomes = append(outcomes, Outcome{AssetID: id, Points: points, Marked: true})
	}
	return outcomes
}

// FetchSimplePrices batch-quotes ids and records the prices under today's date.
// A failing chunk yields error outcomes for its ids; the other chunks still run.
func (r *Resolver) FetchSimplePrices(ctx context.Context, ids []string) []Outcome {
	ids = lo.Uniq(lo.FilterMap(ids, func(id string, _ int) (string, bool) {
		id = domain.NormalizeAssetID(id)
		return id, domain.IsPriced(id)
	}))
	if len(ids) == 0 {
		return nil
	}
	today := r.Today()

	var outcomes []Outcome
	for _, chunk := range lo.Chunk(ids, r.batchSize) {
		prices, err := r.provider.SimplePrices(ctx, chunk)
		if err != nil {
			slog.Warn("batch quote failed", "ids", len(chunk), "error", err)
			for _, id := range chunk {
				outcomes = append(outcomes, Outcome{AssetID: id, Date: today, Err: err})
			}
			continue
		}
		for _, id := range chunk {
			p, ok := prices[id]
			if !ok || !p.IsPositive() {
				outcomes = append(outcomes, Outcome{AssetID: id, Date: today,
					Err: fmt.Errorf("simple price %s: %w", id, external.ErrEmpty)})
				continue
			}
			r.cache.Record(id, today, p)
			outcomes = append(outcomes, Outcome{AssetID: id, Date: today, Price: p})
		}
	}
	return outcomes
}

// EnsureDayPrices resolves prices for the assets held on date, restricted to only when given.
// Today's prices come from a batch quote; past dates are filled per asset through a bounded
// worker pool, skipping assets already cached.
func (r *Resolver) EnsureDayPrices(ctx context.Context, date domain.Date, only ...string) []Outcome {
	ids := r.holdings.HeldAssets(date)
	if len(only) > 0 {
		allowed := lo.SliceToMap(only, func(id string) (string, bool) { return domain.NormalizeAssetID(id), true })
		ids = lo.Filter(ids, func(id string, _ int) bool { return allowed[id] })
	}
	if len(ids) == 0 {
		return nil
	}

	if date == r.Today() {
		return r.FetchSimplePrices(ctx, ids)
	}

	missing := lo.Filter(ids, func(id string, _ int) bool { return !r.cache.Has(id, date) })
	return r.lookupHistory(ctx, date, missing)
}

func (r *Resolver) lookupHistory(ctx context.Context, date domain.Date, ids []string) []Outcome {
	if len(ids) == 0 {
		return nil
	}

	var mu sync.Mutex
	outcomes := make([]Outcome, 0, len(ids))

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup

	for _, id := range ids {
		wg.Add(1)
		go func(assetID string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			o := Outcome{AssetID: assetID, Date: date}
			if err := ctx.Err(); err != nil {
				o.Err = err
			} else if p, err := r.provider.History(ctx, assetID, date); err != nil {
				o.Err = err
			} else if !p.IsPositive() {
				o.Err = fmt.Errorf("history %s: %w", assetID, external.ErrEmpty)
			} else {
				r.cache.Record(assetID, date, p)
				o.Price = p
			}

			mu.Lock()
			defer mu.Unlock()
			outcomes = append(outcomes, o)
		}(id)
	}

	wg.Wait()

	if failed := Failed(outcomes); len(failed) > 0 {
		slog.Warn("some historical lookups failed",
			"date", date.String(), "errorCount", len(failed), "successCount", len(outcomes)-len(failed))
	}

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].AssetID < outcomes[j].AssetID })
	return outcomes
}

// IsEmpty reports whether an outcome failed only because the provider had no data.
func (o Outcome) IsEmpty() bool { return errors.Is(o.Err, external.ErrEmpty) }
