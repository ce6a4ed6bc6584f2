package search

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/samber/lo"

	"github.com/mtlprog/holdings/internal/domain"
	"github.com/mtlprog/holdings/internal/external"
	"github.com/mtlprog/holdings/internal/state"
)

var (
	evmAddress    = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	solanaAddress = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
)

// IsContractAddress reports whether q looks like an EVM or Solana token address.
func IsContractAddress(q string) bool {
	return evmAddress.MatchString(q) || solanaAddress.MatchString(q)
}

// SearchFunc is a provider search call.
type SearchFunc func(ctx context.Context, query string) ([]domain.Candidate, error)

type funcStrategy struct {
	name string
	fn   SearchFunc
}

func (s funcStrategy) Name() string { return s.name }

func (s funcStrategy) Search(ctx context.Context, q string) ([]domain.Candidate, error) {
	return s.fn(ctx, q)
}

// Provider wraps a plain provider search as a Strategy.
func Provider(name string, fn SearchFunc) Strategy {
	return funcStrategy{name: name, fn: fn}
}

// ContractAddress looks up token pairs, but only for address-shaped queries.
func ContractAddress(lookup SearchFunc) Strategy {
	return funcStrategy{name: "contract-address", fn: func(ctx context.Context, q string) ([]domain.Candidate, error) {
		if !IsContractAddress(q) {
			return nil, nil
		}
		return lookup(ctx, q)
	}}
}

// CoinGecko searches by name or symbol and prices the hits with one batch quote.
// A failed quote keeps the candidates without prices.
func CoinGecko(search SearchFunc, quoter Quoter) Strategy {
	return funcStrategy{name: "coingecko", fn: func(ctx context.Context, q string) ([]domain.Candidate, error) {
		found, err := search(ctx, q)
		if err != nil || len(found) == 0 {
			return nil, err
		}
		found = lo.Slice(found, 0, MaxResults)
		prices, err := quoter.SimplePrices(ctx, lo.Map(found, func(c domain.Candidate, _ int) string { return c.ID }))
		if err != nil {
			slog.Debug("pricing search candidates failed", "query", q, "error", err)
			return found, nil
		}
		return withPrices(found, prices), nil
	}}
}

// TokenLister downloads a full token list.
type TokenLister interface {
	Tokens(ctx context.Context) ([]external.JupiterToken, error)
}

// minCachedTokens is the size below which the cached token list is refreshed.
const minCachedTokens = 100

// TokenList filters a token list cached in the state store by symbol or name substring.
type TokenList struct {
	lister TokenLister
	store  state.Store
}

// NewTokenList creates the token list strategy.
func NewTokenList(lister TokenLister, store state.Store) *TokenList {
	return &TokenList{lister: lister, store: store}
}

func (t *TokenList) Name() string { return "jupiter" }

func (t *TokenList) Search(ctx context.Context, q string) ([]domain.Candidate, error) {
	tokens, err := t.tokens(ctx)
	if err != nil {
		return nil, err
	}

	var out []domain.Candidate
	for _, tok := range tokens {
		if len(out) == MaxResults {
			break
		}
		if !matches(tok.Symbol, tok.Name, q) {
			continue
		}
		out = append(out, domain.Candidate{
			ID:      tok.Address,
			Symbol:  strings.ToUpper(tok.Symbol),
			Name:    lo.Ternary(tok.Name != "", tok.Name, tok.Symbol),
			Chain:   "solana",
			Address: tok.Address,
		})
	}
	return out, nil
}

func (t *TokenList) tokens(ctx context.Context) ([]external.JupiterToken, error) {
	var cached []external.JupiterToken
	if _, err := t.store.Read(ctx, state.KeyJupiterTokens, &cached); err != nil {
		slog.Warn("reading cached token list", "error", err)
		cached = nil
	}
	if len(cached) >= minCachedTokens {
		return cached, nil
	}

	fresh, err := t.lister.Tokens(ctx)
	if err != nil {
		if len(cached) > 0 {
			return cached, nil
		}
		return nil, fmt.Errorf("fetching token list: %w", err)
	}
	if err := t.store.Write(ctx, state.KeyJupiterTokens, fresh); err != nil {
		slog.Warn("caching token list", "error", err)
	}
	return fresh, nil
}

// Clients are the providers used by DefaultStrategies.
type Clients struct {
	CoinGecko   *external.CoinGeckoClient
	DexScreener *external.DexScreenerClient
	CoinPaprika *external.CoinPaprikaClient
	CoinCap     *external.CoinCapClient
	Jupiter     *external.JupiterClient
}

// DefaultStrategies returns the provider order: contract address, CoinGecko, CoinPaprika,
// CoinCap, DEX pair search, then the cached Jupiter token list.
func DefaultStrategies(c Clients, store state.Store) []Strategy {
	return []Strategy{
		ContractAddress(c.DexScreener.TokenPairs),
		CoinGecko(c.CoinGecko.Search, c.CoinGecko),
		Provider("coinpaprika", c.CoinPaprika.Search),
		Provider("coincap", c.CoinCap.Search),
		Provider("dexscreener", c.DexScreener.SearchPairs),
		NewTokenList(c.Jupiter, store),
	}
}
