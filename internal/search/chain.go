// Package search resolves free-text or contract-address queries to asset candidates
// through an ordered list of providers.
package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/holdings/internal/domain"
)

// MinQueryLength is the shortest query that is searched.
const MinQueryLength = 2

// MaxResults caps the candidates returned by a search.
const MaxResults = 10

// DefaultTimeout bounds each strategy call.
const DefaultTimeout = 6 * time.Second

// Strategy is one provider of the chain. An empty result or an error passes to the next strategy.
type Strategy interface {
	Name() string
	Search(ctx context.Context, query string) ([]domain.Candidate, error)
}

// Chain tries strategies in order and returns the first non-empty result.
type Chain struct {
	strategies []Strategy
	fallback   []domain.Candidate
	timeout    time.Duration
}

// NewChain creates a search chain. A non-positive timeout uses DefaultTimeout.
func NewChain(timeout time.Duration, strategies ...Strategy) *Chain {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Chain{
		strategies: strategies,
		fallback:   fallbackCandidates,
		timeout:    timeout,
	}
}

var fallbackCandidates = []domain.Candidate{
	{ID: "bitcoin", Symbol: "BTC", Name: "Bitcoin"},
	{ID: "ethereum", Symbol: "ETH", Name: "Ethereum"},
	{ID: "solana", Symbol: "SOL", Name: "Solana"},
	{ID: "tether", Symbol: "USDT", Name: "Tether"},
}

// Search runs the chain. Queries shorter than MinQueryLength return nil.
// When every strategy comes back empty the embedded fallback list is filtered instead.
func (c *Chain) Search(ctx context.Context, query string) []domain.Candidate {
	q := strings.TrimSpace(query)
	if len([]rune(q)) < MinQueryLength {
		return nil
	}

	for _, s := range c.strategies {
		if ctx.Err() != nil {
			break
		}
		found := c.run(ctx, s, q)
		if len(found) > 0 {
			return lo.Slice(found, 0, MaxResults)
		}
	}

	return lo.Filter(c.fallback, func(cand domain.Candidate, _ int) bool {
		return matches(cand.Symbol, cand.Name, q)
	})
}

func (c *Chain) run(ctx context.Context, s Strategy, q string) []domain.Candidate {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	found, err := s.Search(ctx, q)
	if err != nil {
		slog.Debug("search strategy failed", "strategy", s.Name(), "query", q, "error", err)
		return nil
	}
	return found
}

func matches(symbol, name, q string) bool {
	k := strings.ToLower(q)
	return strings.Contains(strings.ToLower(symbol), k) || strings.Contains(strings.ToLower(name), k)
}

// Quoter returns current USD prices for CoinGecko ids.
type Quoter interface {
	SimplePrices(ctx context.Context, ids []string) (map[string]decimal.Decimal, error)
}

var defaultSuggestions = []domain.Candidate{
	{ID: "tether", Symbol: "USDT", Name: "Tether"},
	{ID: "bitcoin", Symbol: "BTC", Name: "Bitcoin"},
	{ID: "ethereum", Symbol: "ETH", Name: "Ethereum"},
	{ID: "binancecoin", Symbol: "BNB", Name: "BNB"},
	{ID: "solana", Symbol: "SOL", Name: "Solana"},
}

// Suggestions returns the default candidates shown before typing, priced when the quote succeeds.
func Suggestions(ctx context.Context, quoter Quoter) []domain.Candidate {
	out := append([]domain.Candidate(nil), defaultSuggestions...)
	prices, err := quoter.SimplePrices(ctx, lo.Map(out, func(c domain.Candidate, _ int) string { return c.ID }))
	if err != nil {
		slog.Warn("pricing default suggestions failed", "error", err)
		return out
	}
	return withPrices(out, prices)
}

func withPrices(cands []domain.Candidate, prices map[string]decimal.Decimal) []domain.Candidate {
	return lo.Map(cands, func(c domain.Candidate, _ int) domain.Candidate {
		if p, ok := prices[c.ID]; ok {
			c.Price = &p
		}
		return c
	})
}
