// Package valuation prices positions and computes portfolio totals per date.
package valuation

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/holdings/internal/domain"
)

// PositionSource builds positions as of a date.
type PositionSource interface {
	Positions(date domain.Date) []domain.Position
}

// PriceSource looks up a cached unit price.
type PriceSource interface {
	Price(assetID string, date domain.Date) (decimal.Decimal, bool)
}

// Engine combines positions with cached prices. It never triggers network calls.
type Engine struct {
	positions PositionSource
	prices    PriceSource
}

// NewEngine creates a new valuation engine.
func NewEngine(positions PositionSource, prices PriceSource) *Engine {
	return &Engine{positions: positions, prices: prices}
}

// Positions returns the positions as of date.
func (e *Engine) Positions(date domain.Date) []domain.Position {
	return e.positions.Positions(date)
}

// UnitPrice returns the cached price of an asset on date, zero when unresolved.
func (e *Engine) UnitPrice(assetID string, date domain.Date) decimal.Decimal {
	p, ok := e.prices.Price(assetID, date)
	if !ok {
		return decimal.Zero
	}
	return p
}

// Value returns max(0, amount) × price of an asset on date.
func (e *Engine) Value(assetID string, amount decimal.Decimal, date domain.Date) decimal.Decimal {
	return domain.PositivePart(amount).Mul(e.UnitPrice(assetID, date))
}

// ValueOnDate returns the value of a position on date. Unresolved prices value at zero.
func (e *Engine) ValueOnDate(p domain.Position, date domain.Date) decimal.Decimal {
	return e.Value(p.AssetID, p.Amount, date)
}

// TotalValue sums position values on date, clamped to [0, domain.MaxTotal].
func (e *Engine) TotalValue(date domain.Date) decimal.Decimal {
	total := lo.Reduce(e.Positions(date), func(acc decimal.Decimal, p domain.Position, _ int) decimal.Decimal {
		return acc.Add(e.ValueOnDate(p, date))
	}, decimal.Zero)
	return domain.ClampTotal(total)
}

// DayChange compares the total on date with the total on the previous calendar day.
func (e *Engine) DayChange(date domain.Date) domain.DayChange {
	current := e.TotalValue(date)
	previous := e.TotalValue(date.Prev())
	change := current.Sub(previous)
	return domain.DayChange{
		Date:     date,
		Current:  current,
		Previous: previous,
		Change:   change,
		Percent:  domain.PercentChange(change, previous),
	}
}

// Month returns one calendar cell per day of month. Days after today are flagged Future.
func (e *Engine) Month(month domain.MonthKey, today domain.Date) []domain.DayCell {
	cells := make([]domain.DayCell, 0, month.Days())
	previous := e.TotalValue(month.First().Prev())
	for d := month.First(); !d.After(month.Last()); d = d.Add(1) {
		total := e.TotalValue(d)
		cells = append(cells, domain.DayCell{
			Date:    d,
			Future:  d.After(today),
			HasData: total.IsPositive() || previous.IsPositive(),
			Total:   total,
			Diff:    total.Sub(previous),
		})
		previous = total
	}
	return cells
}
