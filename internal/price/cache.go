package price

import (
	"fmt"
	"maps"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/holdings/internal/domain"
)

// History maps asset id to its resolved price per date.
type History map[string]map[domain.Date]decimal.Decimal

// FetchedMonths records which "YYYY-MM|assetId" ranges have been backfilled.
type FetchedMonths map[string]bool

// Cache is the date-indexed price table plus the month fetch ledger.
// Only positive prices are stored; a missing entry means unresolved.
type Cache struct {
	mu      sync.RWMutex
	history History
	months  FetchedMonths
}

// NewCache creates an empty price cache.
func NewCache() *Cache {
	return &Cache{
		history: make(History),
		months:  make(FetchedMonths),
	}
}

// monthKey formats: "{YYYY-MM}|{assetId}" e.g. "2024-01|bitcoin"
func monthKey(month domain.MonthKey, assetID string) string {
	return fmt.Sprintf("%s|%s", month, domain.NormalizeAssetID(assetID))
}

// Price returns the unit price of an asset on a date. Stablecoins are always 1.
func (c *Cache) Price(assetID string, date domain.Date) (decimal.Decimal, bool) {
	id := domain.NormalizeAssetID(assetID)
	if domain.IsStablecoin(id) {
		return decimal.NewFromInt(1), true
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.history[id][date]
	return p, ok
}

// Has reports whether a price is resolved for the asset on the date.
func (c *Cache) Has(assetID string, date domain.Date) bool {
	_, ok := c.Price(assetID, date)
	return ok
}

// Record stores a price. Non-positive prices and stablecoins are ignored.
// It reports whether the price was stored.
func (c *Cache) Record(assetID string, date domain.Date, price decimal.Decimal) bool {
	id := domain.NormalizeAssetID(assetID)
	if !price.IsPositive() || !domain.IsPriced(id) {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	byDate, ok := c.history[id]
	if !ok {
		byDate = make(map[domain.Date]decimal.Decimal)
		c.history[id] = byDate
	}
	byDate[date] = price
	return true
}

// IsMonthFetched reports whether the month was already backfilled for the asset.
func (c *Cache) IsMonthFetched(month domain.MonthKey, assetID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.months[monthKey(month, assetID)]
}

// MarkMonthFetched records that the month was backfilled for the asset.
func (c *Cache) MarkMonthFetched(month domain.MonthKey, assetID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.months[monthKey(month, assetID)] = true
}

// History returns a deep copy of the price table.
func (c *Cache) History() History {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(History, len(c.history))
	for id, byDate := range c.history {
		out[id] = maps.Clone(byDate)
	}
	return out
}

// Months returns a copy of the month fetch ledger.
func (c *Cache) Months() FetchedMonths {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.months)
}

// Restore replaces the cache contents. Non-positive prices in h are dropped.
func (c *Cache) Restore(h History, m FetchedMonths) {
	history := make(History, len(h))
	for id, byDate := range h {
		id = domain.NormalizeAssetID(id)
		if !domain.IsPriced(id) {
			continue
		}
		for d, p := range byDate {
			if !p.IsPositive() {
				continue
			}
			if history[id] == nil {
				history[id] = make(map[domain.Date]decimal.Decimal)
			}
			history[id][d] = p
		}
	}
	months := maps.Clone(m)
	if months == nil {
		months = make(FetchedMonths)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = history
	c.months = months
}

// Reset empties both the price table and the month fetch ledger.
func (c *Cache) Reset() {
	c.Restore(nil, nil)
}
