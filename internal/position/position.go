// Package position folds ledger entries into net holdings as of a date.
package position

import (
	"sort"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/holdings/internal/domain"
)

type key struct {
	holder  string
	assetID string
}

type accumulator struct {
	ticker    string
	firstDate domain.Date
	firstAt   int64
	amount    decimal.Decimal
}

// Build sums entries dated on or before cutoff per (holder, asset) and keeps positive totals.
// Holder names compare case-sensitively, asset ids case-insensitively. The ticker of a position
// is taken from its earliest entry. Output is sorted by holder, then asset id.
func Build(entries []domain.LedgerEntry, cutoff domain.Date) []domain.Position {
	acc := make(map[key]*accumulator)
	for _, e := range entries {
		if e.Date.After(cutoff) {
			continue
		}
		k := key{holder: e.Holder, assetID: domain.NormalizeAssetID(e.AssetID)}
		a, ok := acc[k]
		if !ok {
			a = &accumulator{ticker: e.Ticker, firstDate: e.Date, firstAt: e.CreatedAt.UnixNano()}
			acc[k] = a
		} else if e.Date.Before(a.firstDate) || (e.Date == a.firstDate && e.CreatedAt.UnixNano() < a.firstAt) {
			a.ticker, a.firstDate, a.firstAt = e.Ticker, e.Date, e.CreatedAt.UnixNano()
		}
		a.amount = a.amount.Add(e.Amount)
	}

	positions := make([]domain.Position, 0, len(acc))
	for k, a := range acc {
		if !a.amount.IsPositive() {
			continue
		}
		positions = append(positions, domain.Position{
			Holder:  k.holder,
			AssetID: k.assetID,
			Ticker:  a.ticker,
			Amount:  a.amount,
		})
	}
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].Holder != positions[j].Holder {
			return positions[i].Holder < positions[j].Holder
		}
		return positions[i].AssetID < positions[j].AssetID
	})
	return positions
}

// Source provides the ledger entries positions are built from.
type Source interface {
	EntriesUpTo(cutoff domain.Date) []domain.LedgerEntry
}

// Aggregator builds positions from a live ledger.
type Aggregator struct {
	source Source
}

// NewAggregator creates a new position aggregator.
func NewAggregator(source Source) *Aggregator {
	return &Aggregator{source: source}
}

// Positions returns the positive net positions as of date.
func (a *Aggregator) Positions(date domain.Date) []domain.Position {
	return Build(a.source.EntriesUpTo(date), date)
}

// HeldAssets returns the distinct non-stablecoin asset ids with a positive position as of date.
func (a *Aggregator) HeldAssets(date domain.Date) []string {
	ids := lo.FilterMap(a.Positions(date), func(p domain.Position, _ int) (string, bool) {
		return p.AssetID, domain.IsPriced(p.AssetID)
	})
	ids = lo.Uniq(ids)
	sort.Strings(ids)
	return ids
}
