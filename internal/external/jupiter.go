package external

import (
	"context"
	"fmt"
)

// JupiterToken is one entry of the Jupiter Solana token list.
type JupiterToken struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
	Name    string `json:"name"`
}

// JupiterClient downloads the Jupiter token list.
type JupiterClient struct {
	baseClient
}

// NewJupiterClient creates a new Jupiter token list client.
func NewJupiterClient(baseURL string, opts ...ClientOption) *JupiterClient {
	return &JupiterClient{baseClient: newBaseClient("Jupiter", baseURL, opts)}
}

// Tokens returns the full token list.
func (c *JupiterClient) Tokens(ctx context.Context) ([]JupiterToken, error) {
	const op = "jupiter token list"
	var tokens []JupiterToken
	if err := c.getJSON(ctx, op, "", fmt.Sprintf("%s/all", c.baseURL), &tokens); err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, emptyError(op, "")
	}
	return tokens, nil
}
