package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Position is the net holding of an asset under a holder as of a cutoff date.
// Only positions with a positive amount are ever produced.
type Position struct {
	Holder  string          `json:"name"`
	AssetID string          `json:"assetId"`
	Ticker  string          `json:"ticker"`
	Amount  decimal.Decimal `json:"amount"`
}

// DisplayTicker returns the position ticker, deriving it from the asset id when empty.
func (p Position) DisplayTicker() string { return DisplayTicker(p.Ticker, p.AssetID) }

// GroupMode selects the primary dimension of the composition view.
type GroupMode string

const (
	// GroupByHolder groups positions by holder name, rows are tickers.
	GroupByHolder GroupMode = "source"
	// GroupByTicker groups positions by ticker, rows are holders.
	GroupByTicker GroupMode = "ticker"
)

// ParseGroupMode parses a group mode, accepting "holder" as an alias of "source".
func ParseGroupMode(s string) (GroupMode, error) {
	switch s {
	case "source", "holder", "":
		return GroupByHolder, nil
	case "ticker":
		return GroupByTicker, nil
	default:
		return "", fmt.Errorf("unknown group mode %q", s)
	}
}

// GroupKey returns the group key for a holder/ticker pair under mode.
func (m GroupMode) GroupKey(holder, ticker string) string {
	if m == GroupByTicker {
		return ticker
	}
	return holder
}

// RowKey returns the complementary key for a holder/ticker pair under mode.
func (m GroupMode) RowKey(holder, ticker string) string {
	if m == GroupByTicker {
		return holder
	}
	return ticker
}

// GroupTotal is the value of one group on a date.
type GroupTotal struct {
	Key   string          `json:"key"`
	Total decimal.Decimal `json:"total"`
}

// Row is one line inside a group: a ticker within a holder or a holder within a ticker.
type Row struct {
	Title   string          `json:"title"`
	AssetID string          `json:"assetId"`
	Amount  decimal.Decimal `json:"amount"`
	Value   decimal.Decimal `json:"value"`
}

// SubBreakdown is the share of a row held in one sub-account.
type SubBreakdown struct {
	Label  string          `json:"sub"`
	Marked bool            `json:"marked"`
	Amount decimal.Decimal `json:"amount"`
	Value  decimal.Decimal `json:"value"`
	Ratio  decimal.Decimal `json:"ratio"`
}

// GroupView is a group of the composition view with its day-over-day delta.
type GroupView struct {
	Key      string           `json:"key"`
	Total    decimal.Decimal  `json:"total"`
	Previous decimal.Decimal  `json:"previous"`
	Diff     decimal.Decimal  `json:"diff"`
	Percent  *decimal.Decimal `json:"percent,omitempty"`
	Rows     []Row            `json:"rows"`
}

// Composition is the grouped view of all holdings on a date.
type Composition struct {
	Date   Date            `json:"date"`
	Mode   GroupMode       `json:"mode"`
	Total  decimal.Decimal `json:"total"`
	Groups []GroupView     `json:"groups"`
}

// DayChange is the total value on a date compared with the previous day.
type DayChange struct {
	Date     Date            `json:"date"`
	Current  decimal.Decimal `json:"current"`
	Previous decimal.Decimal `json:"previous"`
	Change   decimal.Decimal `json:"change"`
	Percent  decimal.Decimal `json:"percent"`
}

// DayCell is one day of the monthly calendar.
type DayCell struct {
	Date    Date            `json:"date"`
	Future  bool            `json:"future"`
	HasData bool            `json:"hasData"`
	Total   decimal.Decimal `json:"total"`
	Diff    decimal.Decimal `json:"diff"`
}
