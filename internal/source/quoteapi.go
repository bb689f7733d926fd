package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// QuoteAPIClient calls the unified bulk quote endpoint: one POST carrying
// every requested symbol, equities and funds alike.
type QuoteAPIClient struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

// NewQuoteAPIClient creates a client with the default transport timeout.
func NewQuoteAPIClient(endpoint, apiKey string) *QuoteAPIClient {
	return &QuoteAPIClient{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// FetchBulk posts the symbol list and returns the price map keyed by the
// upstream's namespaced symbols. Non-2xx responses fail the whole call.
func (c *QuoteAPIClient) FetchBulk(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	payload, err := json.Marshal(map[string][]string{"symbols": symbols})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote api: %v: %w", err, ErrSourceUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return nil, fmt.Errorf("quote api: status %d, body: %s: %w", resp.StatusCode, string(body), ErrSourceUnavailable)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var raw map[string]json.Number
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("quote api: decode: %v: %w", err, ErrSourceUnavailable)
	}

	out := make(map[string]decimal.Decimal, len(raw))
	for sym, num := range raw {
		p, err := decimal.NewFromString(num.String())
		if err != nil {
			// One unparsable price should not sink the batch.
			continue
		}
		out[sym] = p
	}
	return out, nil
}
