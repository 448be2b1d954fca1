package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 60 * time.Second

// Debug carries per-call diagnostic metadata. It is reported through a
// side callback and never influences the primary result path.
type Debug struct {
	StatusCode int
	OK         bool
	Items      int
	PayloadKB  float64
	Metrics    *NetworkMetrics
}

// Client submits finalized recordings to the extraction endpoint.
type Client struct {
	url     string
	http    *tracedClient
	debugFn func(Debug)
}

// Option customizes the client.
type Option func(*Client)

// WithDebug installs a diagnostics callback invoked once per Submit,
// success or failure.
func WithDebug(fn func(Debug)) Option {
	return func(c *Client) { c.debugFn = fn }
}

// WithTimeout overrides the default request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http = newTracedClient(d) }
}

func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:  url,
		http: newTracedClient(defaultTimeout),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit posts one transport-encoded WAV payload and parses the
// structured response. Status codes map onto the package error values;
// there is no client-side retry.
func (c *Client) Submit(ctx context.Context, audioBase64, language string) (*Result, error) {
	body, err := json.Marshal(Request{
		AudioBase64:       audioBase64,
		PreferredLanguage: language,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.debug(Debug{PayloadKB: float64(len(body)) / 1024})
		return nil, fmt.Errorf("extraction request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.debug(Debug{
			StatusCode: resp.StatusCode,
			PayloadKB:  float64(len(body)) / 1024,
			Metrics:    resp.Metrics,
		})
		return nil, statusError(resp.StatusCode, resp.Body)
	}

	var result Result
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		c.debug(Debug{
			StatusCode: resp.StatusCode,
			PayloadKB:  float64(len(body)) / 1024,
			Metrics:    resp.Metrics,
		})
		return nil, fmt.Errorf("%w: parse response: %v", ErrUpstream, err)
	}
	c.debug(Debug{
		StatusCode: resp.StatusCode,
		OK:         true,
		Items:      len(result.Foods),
		PayloadKB:  float64(len(body)) / 1024,
		Metrics:    resp.Metrics,
	})
	return &result, nil
}

func (c *Client) debug(d Debug) {
	if c.debugFn != nil {
		c.debugFn(d)
	}
}

func statusError(code int, body []byte) error {
	var eb ErrorBody
	_ = json.Unmarshal(body, &eb)
	detail := strings.TrimSpace(eb.Error)
	if detail == "" {
		detail = strings.TrimSpace(string(body))
	}
	if len(detail) > 200 {
		detail = detail[:200]
	}

	switch code {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrTooShort, detail)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, detail)
	case http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %s", ErrOverloaded, detail)
	case http.StatusBadGateway:
		if strings.Contains(strings.ToLower(detail), "api key") {
			return fmt.Errorf("%w: %s", ErrUpstreamAuth, detail)
		}
		return fmt.Errorf("%w: %s", ErrUpstream, detail)
	default:
		return fmt.Errorf("%w: http %d: %s", ErrUpstream, code, detail)
	}
}
