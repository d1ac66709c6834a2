package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"solana-perp-engine/internal/domain"
)

// Default configuration values.
const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 2
	DefaultRetryDelay = 500 * time.Millisecond
)

// Client fetches latest prices over the oracle HTTP API.
type Client struct {
	endpoint   string
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates a new oracle client.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:   endpoint,
		client:     &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// latestPriceResponse mirrors the oracle's latest-price payload.
type latestPriceResponse struct {
	Parsed []struct {
		ID    string     `json:"id"`
		Price priceField `json:"price"`
		EMA   priceField `json:"ema_price"`
	} `json:"parsed"`
}

type priceField struct {
	Price       string `json:"price"`
	Conf        string `json:"conf"`
	Expo        int32  `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

// GetLatestPrices fetches readings for the given tokens and returns a
// snapshot keyed by token symbol. Every requested feed must be present
// in the response; a partial snapshot is an error.
func (c *Client) GetLatestPrices(ctx context.Context, tokens []domain.Token) (Snapshot, error) {
	if len(tokens) == 0 {
		return Snapshot{}, nil
	}

	q := url.Values{}
	for _, t := range tokens {
		q.Add("ids[]", t.FeedID)
	}
	reqURL := c.endpoint + "/v2/updates/price/latest?" + q.Encode()

	var resp latestPriceResponse
	if err := c.get(ctx, reqURL, &resp); err != nil {
		return nil, err
	}

	byFeed := make(map[string]PricePoint, len(resp.Parsed))
	for _, p := range resp.Parsed {
		price, err := strconv.ParseInt(p.Price.Price, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse price for feed %s: %w", p.ID, err)
		}
		ema, err := strconv.ParseInt(p.EMA.Price, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse ema price for feed %s: %w", p.ID, err)
		}
		conf, err := strconv.ParseUint(p.Price.Conf, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse confidence for feed %s: %w", p.ID, err)
		}
		byFeed[p.ID] = PricePoint{
			FeedID:      p.ID,
			Price:       price,
			EMAPrice:    ema,
			Exponent:    p.Price.Expo,
			Confidence:  conf,
			PublishTime: p.Price.PublishTime,
		}
	}

	snap := make(Snapshot, len(tokens))
	for _, t := range tokens {
		p, ok := byFeed[t.FeedID]
		if !ok {
			return nil, fmt.Errorf("%w: %s (feed %s)", ErrFeedMissing, t.Symbol, t.FeedID)
		}
		snap[t.Symbol] = p
	}
	return snap, nil
}

// get performs a GET with bounded retries on transport errors.
func (c *Client) get(ctx context.Context, reqURL string, out interface{}) error {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
			continue
		}

		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
