package external

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mtlprog/holdings/internal/domain"
)

// CoinCapClient searches assets on CoinCap.
type CoinCapClient struct {
	baseClient
}

// NewCoinCapClient creates a new CoinCap API client.
func NewCoinCapClient(baseURL string, opts ...ClientOption) *CoinCapClient {
	return &CoinCapClient{baseClient: newBaseClient("CoinCap", baseURL, opts)}
}

// Search returns up to SearchLimit assets matching query, priced when CoinCap reports a USD price.
func (c *CoinCapClient) Search(ctx context.Context, query string) ([]domain.Candidate, error) {
	const op = "coincap search"
	var raw struct {
		Data []struct {
			ID       string `json:"id"`
			Symbol   string `json:"symbol"`
			Name     string `json:"name"`
			PriceUSD string `json:"priceUsd"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, op, query, fmt.Sprintf("%s/assets?search=%s", c.baseURL, url.QueryEscape(query)), &raw); err != nil {
		return nil, err
	}

	out := make([]domain.Candidate, 0, min(len(raw.Data), SearchLimit))
	for _, a := range raw.Data {
		if len(out) == SearchLimit {
			break
		}
		out = append(out, domain.Candidate{
			ID:     a.ID,
			Symbol: strings.ToUpper(a.Symbol),
			Name:   a.Name,
			Price:  parseOptionalPrice(a.PriceUSD),
		})
	}
	return out, nil
}
