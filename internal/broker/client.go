// Package broker is a small REST client for the broker's HTTP API: fetching
// the tradable instrument list and validating a stored credential against
// the broker's profile endpoint.
//
// Adapted from the teacher's internal/api.Client, same functional-options
// constructor shape, with a Do method added (the teacher's client carried
// maxRetries/retryBackoff fields but never exercised them; this adds the
// retry loop those fields were clearly meant for).
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Client talks to the broker's REST API.
type Client struct {
	baseURL    string
	credential func() string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// Option configures a Client.
type Option func(*Client)

// NewClient creates a REST client. credential is called for every request
// so a rotated token is picked up without reconstructing the client.
func NewClient(baseURL string, credential func() string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		credential: credential,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   3,
		retryBackoff: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// InstrumentRecord is one row of the broker's instrument list response.
type InstrumentRecord struct {
	Token  uint32 `json:"instrument_token"`
	Symbol string `json:"tradingsymbol"`
	Name   string `json:"name"`
}

// FetchInstruments retrieves the full tradable instrument list.
func (c *Client) FetchInstruments(ctx context.Context) ([]InstrumentRecord, error) {
	body, err := c.do(ctx, http.MethodGet, "/instruments", nil)
	if err != nil {
		return nil, err
	}
	var records []InstrumentRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("broker: decode instruments response: %w", err)
	}
	return records, nil
}

// Profile is the broker's account profile response, used to validate a
// credential is actually usable before the feed session starts with it.
type Profile struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

// FetchProfile validates the current credential by fetching the account
// profile. A non-2xx response means the credential is invalid or expired.
func (c *Client) FetchProfile(ctx context.Context) (Profile, error) {
	body, err := c.do(ctx, http.MethodGet, "/user/profile", nil)
	if err != nil {
		return Profile{}, err
	}
	var p Profile
	if err := json.Unmarshal(body, &p); err != nil {
		return Profile{}, fmt.Errorf("broker: decode profile response: %w", err)
	}
	return p, nil
}

// ProfileValidator confirms a rotated credential is actually usable before
// the rotator rebuilds the feed session with it.
type ProfileValidator interface {
	Validate(ctx context.Context) error
}

// Validate satisfies ProfileValidator by fetching the profile and
// discarding the result; any non-nil error means the credential is
// rejected by the broker.
func (c *Client) Validate(ctx context.Context) error {
	_, err := c.FetchProfile(ctx)
	return err
}

// do issues one request with fixed-interval retry on transport errors and
// 5xx responses. 4xx responses are returned immediately without retry:
// retrying a bad credential or bad request never succeeds.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryBackoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return nil, fmt.Errorf("broker: build request: %w", err)
		}
		req.Header.Set("Authorization", "token "+c.credential())

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			c.logger.Warn("broker request failed, retrying", "path", path, "attempt", attempt, "error", err)
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return respBody, nil
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("broker: %s %s: status %d", method, path, resp.StatusCode)
			c.logger.Warn("broker returned server error, retrying", "path", path, "status", resp.StatusCode, "attempt", attempt)
			continue
		default:
			return nil, fmt.Errorf("broker: %s %s: status %d: %s", method, path, resp.StatusCode, respBody)
		}
	}

	return nil, fmt.Errorf("broker: %s %s: exhausted retries: %w", method, path, lastErr)
}
