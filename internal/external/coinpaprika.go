package external

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/holdings/internal/domain"
)

// CoinPaprikaClient searches currencies and fetches USD tickers from CoinPaprika.
type CoinPaprikaClient struct {
	baseClient
}

// NewCoinPaprikaClient creates a new CoinPaprika API client.
func NewCoinPaprikaClient(baseURL string, opts ...ClientOption) *CoinPaprikaClient {
	return &CoinPaprikaClient{baseClient: newBaseClient("CoinPaprika", baseURL, opts)}
}

// Search returns up to SearchLimit currencies matching query. Each candidate is priced
// through a ticker call; a failed ticker leaves the price nil.
func (c *CoinPaprikaClient) Search(ctx context.Context, query string) ([]domain.Candidate, error) {
	const op = "paprika search"
	u := fmt.Sprintf("%s/search?q=%s&c=currencies&limit=%d", c.baseURL, url.QueryEscape(query), SearchLimit)

	var raw struct {
		Currencies []struct {
			ID     string `json:"id"`
			Name   string `json:"name"`
			Symbol string `json:"symbol"`
		} `json:"currencies"`
	}
	if err := c.getJSON(ctx, op, query, u, &raw); err != nil {
		return nil, err
	}

	out := make([]domain.Candidate, 0, min(len(raw.Currencies), SearchLimit))
	for _, cur := range raw.Currencies {
		if len(out) == SearchLimit {
			break
		}
		cand := domain.Candidate{
			ID:     cur.ID,
			Symbol: strings.ToUpper(cur.Symbol),
			Name:   cur.Name,
		}
		if price, err := c.TickerPrice(ctx, cur.ID); err == nil {
			cand.Price = &price
		}
		out = append(out, cand)
	}
	return out, nil
}

// TickerPrice returns the USD price of a CoinPaprika currency id.
func (c *CoinPaprikaClient) TickerPrice(ctx context.Context, id string) (decimal.Decimal, error) {
	const op = "paprika ticker"
	var raw struct {
		Quotes map[string]struct {
			Price *decimal.Decimal `json:"price"`
		} `json:"quotes"`
	}
	if err := c.getJSON(ctx, op, id, fmt.Sprintf("%s/tickers/%s?quotes=USD", c.baseURL, url.PathEscape(id)), &raw); err != nil {
		return decimal.Zero, err
	}
	usd, ok := raw.Quotes["USD"]
	if !ok || usd.Price == nil {
		return decimal.Zero, emptyError(op, id)
	}
	return *usd.Price, nil
}
