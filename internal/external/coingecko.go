package external

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/holdings/internal/domain"
)

// SearchLimit caps the number of candidates any provider returns.
const SearchLimit = 10

// TimedPrice is one sample of a market chart series.
type TimedPrice struct {
	At    time.Time
	Price decimal.Decimal
}

// CoinGeckoClient fetches USD prices from the CoinGecko API.
type CoinGeckoClient struct {
	baseClient
	delay      time.Duration
	maxRetries int
}

// NewCoinGeckoClient creates a new CoinGecko API client.
// Requests answered with HTTP 429 are retried up to maxRetries times with exponential backoff.
func NewCoinGeckoClient(baseURL string, delay time.Duration, maxRetries int, opts ...ClientOption) *CoinGeckoClient {
	return &CoinGeckoClient{
		baseClient: newBaseClient("CoinGecko", baseURL, opts),
		delay:      delay,
		maxRetries: maxRetries,
	}
}

// MarketChartRange returns the USD price series of an asset between from and to.
func (c *CoinGeckoClient) MarketChartRange(ctx context.Context, id string, from, to time.Time) ([]TimedPrice, error) {
	const op = "market chart range"
	u := fmt.Sprintf("%s/coins/%s/market_chart/range?vs_currency=usd&from=%d&to=%d",
		c.baseURL, url.PathEscape(id), from.Unix(), to.Unix())

	// Parse: {"prices":[[1704067200000,42000.5],...],"market_caps":[...],...}
	var raw struct {
		Prices [][2]decimal.Decimal `json:"prices"`
	}
	if err := c.fetchJSON(ctx, op, id, u, &raw); err != nil {
		return nil, err
	}
	if len(raw.Prices) == 0 {
		return nil, emptyError(op, id)
	}

	series := make([]TimedPrice, 0, len(raw.Prices))
	for _, p := range raw.Prices {
		series = append(series, TimedPrice{
			At:    time.UnixMilli(p[0].IntPart()),
			Price: p[1],
		})
	}
	return series, nil
}

// SimplePrices returns the current USD price of each id. Ids without a quote are absent from the map.
func (c *CoinGeckoClient) SimplePrices(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	const op = "simple price"
	if len(ids) == 0 {
		return map[string]decimal.Decimal{}, nil
	}
	u := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", c.baseURL, url.QueryEscape(strings.Join(ids, ",")))

	// Parse: {"bitcoin":{"usd":45000},"ethereum":{"usd":2500},...}
	var raw map[string]map[string]decimal.Decimal
	if err := c.fetchJSON(ctx, op, strings.Join(ids, ","), u, &raw); err != nil {
		return nil, err
	}

	result := make(map[string]decimal.Decimal, len(raw))
	for id, quotes := range raw {
		usd, ok := quotes["usd"]
		if !ok {
			continue
		}
		result[id] = usd
	}
	return result, nil
}

// History returns the USD price of an asset on a calendar date.
func (c *CoinGeckoClient) History(ctx context.Context, id string, date domain.Date) (decimal.Decimal, error) {
	const op = "history"
	u := fmt.Sprintf("%s/coins/%s/history?date=%02d-%02d-%04d&localization=false",
		c.baseURL, url.PathEscape(id), date.Day(), int(date.Month()), date.Year())

	var raw struct {
		MarketData *struct {
			CurrentPrice map[string]decimal.Decimal `json:"current_price"`
		} `json:"market_data"`
	}
	if err := c.fetchJSON(ctx, op, id, u, &raw); err != nil {
		return decimal.Zero, err
	}
	if raw.MarketData == nil {
		return decimal.Zero, emptyError(op, id)
	}
	usd, ok := raw.MarketData.CurrentPrice["usd"]
	if !ok {
		return decimal.Zero, emptyError(op, id)
	}
	return usd, nil
}

// Search returns up to SearchLimit coins matching query, without prices.
func (c *CoinGeckoClient) Search(ctx context.Context, query string) ([]domain.Candidate, error) {
	const op = "search"
	u := fmt.Sprintf("%s/search?query=%s", c.baseURL, url.QueryEscape(query))

	var raw struct {
		Coins []struct {
			ID     string `json:"id"`
			Symbol string `json:"symbol"`
			Name   string `json:"name"`
		} `json:"coins"`
	}
	if err := c.fetchJSON(ctx, op, query, u, &raw); err != nil {
		return nil, err
	}

	out := make([]domain.Candidate, 0, min(len(raw.Coins), SearchLimit))
	for _, coin := range raw.Coins {
		if len(out) == SearchLimit {
			break
		}
		out = append(out, domain.Candidate{
			ID:     coin.ID,
			Symbol: strings.ToUpper(coin.Symbol),
			Name:   coin.Name,
		})
	}
	return out, nil
}

func (c *CoinGeckoClient) fetchJSON(ctx context.Context, op, asset, u string, dest any) error {
	body, err := c.fetchWithRetry(ctx, op, asset, u)
	if err != nil {
		return err
	}
	return decode(op, asset, body, dest)
}

func (c *CoinGeckoClient) fetchWithRetry(ctx context.Context, op, asset, u string) ([]byte, error) {
	var lastErr error
	for attempt := range c.maxRetries + 1 {
		if attempt > 0 {
			baseDelay := c.delay
			if baseDelay == 0 {
				baseDelay = 10 * time.Second
			}
			delay := baseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return nil, &FetchError{Op: op, Asset: asset, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		body, status, err := c.getRaw(ctx, op, asset, u)
		if err == nil {
			return body, nil
		}
		if status == http.StatusTooManyRequests {
			lastErr = &FetchError{Op: op, Asset: asset, Status: status,
				Err: fmt.Errorf("CoinGecko rate limited (attempt %d/%d)", attempt+1, c.maxRetries+1)}
			continue
		}
		return nil, err
	}

	return nil, lastErr
}

// IsRateLimited reports whether err is a provider 429 response.
func IsRateLimited(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Status == http.StatusTooManyRequests
}
