package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// ErrEmpty marks a well-formed response that carried no usable data.
var ErrEmpty = errors.New("empty response")

// FetchError describes a failed call to a price provider.
type FetchError struct {
	Op     string
	Asset  string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	msg := e.Op
	if e.Asset != "" {
		msg += " " + e.Asset
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

const (
	defaultTimeout   = 30 * time.Second
	defaultRateLimit = 5 // requests per second
)

// ClientOption configures a provider client.
type ClientOption func(*baseClient)

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *baseClient) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *baseClient) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *baseClient) {
		c.httpClient = hc
	}
}

type baseClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func newBaseClient(name, baseURL string, opts []ClientOption) baseClient {
	c := baseClient{
		name:       name,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultRateLimit),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// getRaw performs one rate-limited GET and returns the body of a 200 response.
func (c *baseClient) getRaw(ctx context.Context, op, asset, url string) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, &FetchError{Op: op, Asset: asset, Err: fmt.Errorf("rate limit wait: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, &FetchError{Op: op, Asset: asset, Err: fmt.Errorf("creating %s request: %w", c.name, err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &FetchError{Op: op, Asset: asset, Err: fmt.Errorf("%s request failed: %w", c.name, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &FetchError{Op: op, Asset: asset, Status: resp.StatusCode, Err: fmt.Errorf("reading %s response: %w", c.name, err)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, &FetchError{Op: op, Asset: asset, Status: resp.StatusCode, Err: fmt.Errorf("%s HTTP %d: %s", c.name, resp.StatusCode, truncate(body, 200))}
	}
	return body, resp.StatusCode, nil
}

func (c *baseClient) getJSON(ctx context.Context, op, asset, url string, dest any) error {
	body, _, err := c.getRaw(ctx, op, asset, url)
	if err != nil {
		return err
	}
	return decode(op, asset, body, dest)
}

func decode(op, asset string, body []byte, dest any) error {
	if err := json.Unmarshal(body, dest); err != nil {
		return &FetchError{Op: op, Asset: asset, Status: http.StatusOK, Err: fmt.Errorf("parsing response: %w", err)}
	}
	return nil
}

func emptyError(op, asset string) error {
	return &FetchError{Op: op, Asset: asset, Status: http.StatusOK, Err: ErrEmpty}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
