package domain

import "github.com/shopspring/decimal"

// Candidate is an asset returned by the search chain.
type Candidate struct {
	ID      string           `json:"id"`
	Symbol  string           `json:"symbol"`
	Name    string           `json:"name"`
	Price   *decimal.Decimal `json:"price"`
	Chain   string           `json:"chain,omitempty"`
	Address string           `json:"address,omitempty"`
}

// PricePoint is a resolved unit price of an asset on a date.
type PricePoint struct {
	AssetID string          `json:"assetId"`
	Date    Date            `json:"date"`
	Price   decimal.Decimal `json:"price"`
}
