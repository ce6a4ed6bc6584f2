// Package breakdown groups holdings by holder or ticker and splits rows by sub-account.
package breakdown

import (
	"fmt"
	"sort"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/holdings/internal/domain"
)

// AdjustMemo marks entries synthesized by Adjust.
const AdjustMemo = "[inline-adjust]"

// Valuer prices positions.
type Valuer interface {
	Positions(date domain.Date) []domain.Position
	Value(assetID string, amount decimal.Decimal, date domain.Date) decimal.Decimal
	TotalValue(date domain.Date) decimal.Decimal
}

// Ledger is the raw entry source and the sink for adjustment entries.
type Ledger interface {
	EntriesUpTo(cutoff domain.Date) []domain.LedgerEntry
	Add(in domain.EntryInput) (domain.LedgerEntry, error)
}

// Engine computes grouped views of the holdings.
type Engine struct {
	valuer Valuer
	ledger Ledger
}

// NewEngine creates a new breakdown engine.
func NewEngine(valuer Valuer, ledger Ledger) *Engine {
	return &Engine{valuer: valuer, ledger: ledger}
}

type valuedPosition struct {
	domain.Position
	value decimal.Decimal
}

func (e *Engine) valued(date domain.Date) []valuedPosition {
	return lo.Map(e.valuer.Positions(date), func(p domain.Position, _ int) valuedPosition {
		return valuedPosition{Position: p, value: e.valuer.Value(p.AssetID, p.Amount, date)}
	})
}

// GroupTotals returns the value per group on date, sorted by value descending.
func (e *Engine) GroupTotals(date domain.Date, mode domain.GroupMode) []domain.GroupTotal {
	return groupTotals(e.valued(date), mode)
}

func groupTotals(positions []valuedPosition, mode domain.GroupMode) []domain.GroupTotal {
	totals := lo.Reduce(positions, func(acc map[string]decimal.Decimal, p valuedPosition, _ int) map[string]decimal.Decimal {
		k := mode.GroupKey(p.Holder, p.DisplayTicker())
		acc[k] = acc[k].Add(p.value)
		return acc
	}, make(map[string]decimal.Decimal))

	out := lo.MapToSlice(totals, func(k string, v decimal.Decimal) domain.GroupTotal {
		return domain.GroupTotal{Key: k, Total: v}
	})
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Total.Cmp(out[j].Total); c != 0 {
			return c > 0
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Rows returns the complementary dimension inside one group with same-title rows merged,
// sorted by value descending.
func (e *Engine) Rows(date domain.Date, mode domain.GroupMode, groupKey string) []domain.Row {
	return rows(e.valued(date), mode, groupKey)
}

func rows(positions []valuedPosition, mode domain.GroupMode, groupKey string) []domain.Row {
	var out []domain.Row
	index := make(map[string]int)
	for _, p := range positions {
		ticker := p.DisplayTicker()
		if mode.GroupKey(p.Holder, ticker) != groupKey {
			continue
		}
		title := mode.RowKey(p.Holder, ticker)
		if i, ok := index[title]; ok {
			out[i].Amount = out[i].Amount.Add(p.Amount)
			out[i].Value = out[i].Value.Add(p.value)
			continue
		}
		index[title] = len(out)
		out = append(out, domain.Row{Title: title, AssetID: p.AssetID, Amount: p.Amount, Value: p.value})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value.GreaterThan(out[j].Value) })
	return out
}

// Groups returns the full composition view on date with day-over-day deltas per group.
func (e *Engine) Groups(date domain.Date, mode domain.GroupMode) domain.Composition {
	current := e.valued(date)
	previous := lo.SliceToMap(groupTotals(e.valued(date.Prev()), mode), func(g domain.GroupTotal) (string, decimal.Decimal) {
		return g.Key, g.Total
	})

	groups := lo.Map(groupTotals(current, mode), func(g domain.GroupTotal, _ int) domain.GroupView {
		prev := previous[g.Key]
		diff := g.Total.Sub(prev)
		view := domain.GroupView{
			Key:      g.Key,
			Total:    g.Total,
			Previous: prev,
			Diff:     diff,
			Rows:     rows(current, mode, g.Key),
		}
		if prev.IsPositive() {
			pct := domain.PercentChange(diff, prev)
			view.Percent = &pct
		}
		return view
	})

	return domain.Composition{
		Date:   date,
		Mode:   mode,
		Total:  e.valuer.TotalValue(date),
		Groups: groups,
	}
}

func (e *Engine) rowEntries(date domain.Date, mode domain.GroupMode, groupKey, rowKey string) []domain.LedgerEntry {
	return lo.Filter(e.ledger.EntriesUpTo(date), func(en domain.LedgerEntry, _ int) bool {
		ticker := en.DisplayTicker()
		return mode.GroupKey(en.Holder, ticker) == groupKey && mode.RowKey(en.Holder, ticker) == rowKey
	})
}

// SubBreakdown splits one row by sub-account. Sub-accounts with a non-positive amount are dropped.
// Ratios are shares of the summed value and add up to 1, or to 0 when every value is 0.
func (e *Engine) SubBreakdown(date domain.Date, mode domain.GroupMode, groupKey, rowKey string) []domain.SubBreakdown {
	var subs []domain.SubBreakdown
	index := make(map[string]int)
	for _, en := range e.rowEntries(date, mode, groupKey, rowKey) {
		sub := en.Sub()
		label := sub.Label()
		i, ok := index[label]
		if !ok {
			i = len(subs)
			index[label] = i
			subs = append(subs, domain.SubBreakdown{Label: label, Marked: sub.IsSet()})
		}
		subs[i].Amount = subs[i].Amount.Add(en.Amount)
		// Signed; clamped at zero once summed.
		subs[i].Value = subs[i].Value.Add(en.Amount.Mul(e.unitPrice(en.AssetID, date)))
	}

	subs = lo.Filter(subs, func(s domain.SubBreakdown, _ int) bool { return s.Amount.IsPositive() })
	for i := range subs {
		subs[i].Value = domain.PositivePart(subs[i].Value)
	}
	sort.SliceStable(subs, func(i, j int) bool { return subs[i].Value.GreaterThan(subs[j].Value) })

	total := lo.Reduce(subs, func(acc decimal.Decimal, s domain.SubBreakdown, _ int) decimal.Decimal {
		return acc.Add(s.Value)
	}, decimal.Zero)
	if total.IsZero() {
		total = decimal.NewFromInt(1)
	}
	for i := range subs {
		subs[i].Ratio = subs[i].Value.Div(total)
	}
	return subs
}

func (e *Engine) unitPrice(assetID string, date domain.Date) decimal.Decimal {
	return e.valuer.Value(assetID, decimal.NewFromInt(1), date)
}

// Adjust sets a sub-account of a row to target by appending a delta entry dated date.
// It returns nil when the sub-account already holds target.
func (e *Engine) Adjust(date domain.Date, mode domain.GroupMode, groupKey, rowKey string, sub domain.SubAccount, target decimal.Decimal) (*domain.LedgerEntry, error) {
	entries := e.rowEntries(date, mode, groupKey, rowKey)
	current := lo.Reduce(entries, func(acc decimal.Decimal, en domain.LedgerEntry, _ int) decimal.Decimal {
		if en.Sub() != sub {
			return acc
		}
		return acc.Add(en.Amount)
	}, decimal.Zero)

	delta := target.Sub(current)
	if delta.IsZero() {
		return nil, nil
	}

	holder, ticker := groupKey, rowKey
	if mode == domain.GroupByTicker {
		holder, ticker = rowKey, groupKey
	}
	assetID, ticker := domain.NormalizeAssetInput(ticker, "", "")
	if len(entries) > 0 {
		last := entries[len(entries)-1]
		assetID, ticker = last.AssetID, last.DisplayTicker()
	}

	added, err := e.ledger.Add(domain.EntryInput{
		Date:       date,
		Holder:     holder,
		AssetID:    assetID,
		Ticker:     ticker,
		Amount:     delta,
		Memo:       AdjustMemo,
		SubAccount: sub.Value(),
	})
	if err != nil {
		return nil, fmt.Errorf("adjusting %s/%s: %w", groupKey, rowKey, err)
	}
	return &added, nil
}
