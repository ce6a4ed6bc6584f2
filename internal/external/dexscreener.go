package external

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/holdings/internal/domain"
)

// DexScreenerClient looks up on-chain token pairs.
type DexScreenerClient struct {
	baseClient
}

// NewDexScreenerClient creates a new DexScreener API client.
func NewDexScreenerClient(baseURL string, opts ...ClientOption) *DexScreenerClient {
	return &DexScreenerClient{baseClient: newBaseClient("DexScreener", baseURL, opts)}
}

type dexToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

type dexPair struct {
	ChainID    string    `json:"chainId"`
	PriceUSD   string    `json:"priceUsd"`
	BaseToken  *dexToken `json:"baseToken"`
	QuoteToken *dexToken `json:"quoteToken"`
}

type dexPairsResponse struct {
	Pairs []dexPair `json:"pairs"`
}

// TokenPairs returns the distinct tokens found in pairs trading the contract address.
func (c *DexScreenerClient) TokenPairs(ctx context.Context, address string) ([]domain.Candidate, error) {
	const op = "dex token pairs"
	var raw dexPairsResponse
	if err := c.getJSON(ctx, op, address, fmt.Sprintf("%s/latest/dex/tokens/%s", c.baseURL, url.PathEscape(address)), &raw); err != nil {
		return nil, err
	}
	return pairCandidates(raw.Pairs, func(p dexPair) *dexToken {
		if p.BaseToken != nil && strings.EqualFold(p.BaseToken.Address, address) {
			return p.BaseToken
		}
		if p.QuoteToken != nil {
			return p.QuoteToken
		}
		return p.BaseToken
	}), nil
}

// SearchPairs returns the distinct base tokens of pairs matching a free-text query.
func (c *DexScreenerClient) SearchPairs(ctx context.Context, query string) ([]domain.Candidate, error) {
	const op = "dex search"
	var raw dexPairsResponse
	if err := c.getJSON(ctx, op, query, fmt.Sprintf("%s/latest/dex/search?q=%s", c.baseURL, url.QueryEscape(query)), &raw); err != nil {
		return nil, err
	}
	return pairCandidates(raw.Pairs, func(p dexPair) *dexToken { return p.BaseToken }), nil
}

func pairCandidates(pairs []dexPair, pick func(dexPair) *dexToken) []domain.Candidate {
	seen := make(map[string]bool)
	var out []domain.Candidate
	for _, p := range pairs {
		if len(out) == SearchLimit {
			break
		}
		t := pick(p)
		if t == nil {
			continue
		}
		key := firstNonEmpty(t.Address, t.Symbol, t.Name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, domain.Candidate{
			ID:      firstNonEmpty(t.Address, key),
			Symbol:  strings.ToUpper(t.Symbol),
			Name:    firstNonEmpty(t.Name, t.Symbol, t.Address),
			Price:   parseOptionalPrice(p.PriceUSD),
			Chain:   p.ChainID,
			Address: t.Address,
		})
	}
	return out
}

func parseOptionalPrice(s string) *decimal.Decimal {
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
