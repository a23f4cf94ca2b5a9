// Package weatherapi provides a client for the WeatherAPI.com forecast endpoint.
package weatherapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jpillora/backoff"
)

// maxBodyBytes caps the size of a forecast response.
const maxBodyBytes = 1 << 20

// ErrMissingAPIKey is returned when the client is built without an API key.
var ErrMissingAPIKey = errors.New("weatherapi: api key is required")

// =============================================================================
// Client
// =============================================================================

// Fetcher fetches raw forecast bodies for a location.
type Fetcher interface {
	FetchForecast(ctx context.Context, location string) ([]byte, error)
}

// Client calls GET /v1/forecast.json.
type Client struct {
	baseURL       string
	apiKey        string
	days          int
	retryAttempts int
	retryDelay    time.Duration
	httpClient    *http.Client
	logger        *slog.Logger
}

// Config holds WeatherAPI client configuration.
type Config struct {
	BaseURL       string // e.g., "http://api.weatherapi.com"
	APIKey        string
	Days          int
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// DefaultConfig returns default WeatherAPI client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:       "http://api.weatherapi.com",
		Days:          2,
		Timeout:       10 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Second,
	}
}

// NewClient creates a new WeatherAPI client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Days <= 0 {
		cfg.Days = def.Days
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:       cfg.BaseURL,
		apiKey:        cfg.APIKey,
		days:          cfg.Days,
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With("component", "weatherapi"),
	}, nil
}

// FetchForecast returns the raw forecast.json body for location.
// Transport errors, 429 and 5xx responses are retried; other error statuses
// are returned immediately as *ProviderError.
func (c *Client) FetchForecast(ctx context.Context, location string) ([]byte, error) {
	u := c.forecastURL(location)
	delay := c.getBackoff()

	var lastErr error
	for attempt := 1; attempt <= c.retryAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay.Duration()):
			}
		}

		body, err := c.do(ctx, u)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !retryable(err) || ctx.Err() != nil {
			break
		}
		c.logger.Warn("forecast request failed, retrying",
			"attempt", attempt,
			"max_attempts", c.retryAttempts,
			"error", err,
		)
	}

	return nil, lastErr
}

// getBackoff doubles the wait from retryDelay, with jitter, up to 8x.
func (c *Client) getBackoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    c.retryDelay,
		Max:    8 * c.retryDelay,
		Factor: 2,
		Jitter: true,
	}
}

func (c *Client) forecastURL(location string) string {
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("q", location)
	q.Set("days", strconv.Itoa(c.days))
	q.Set("aqi", "no")
	q.Set("alerts", "no")
	return c.baseURL + "/v1/forecast.json?" + q.Encode()
}

func (c *Client) do(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &transportError{err: redactKey(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &transportError{err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode >= 400 {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}

// =============================================================================
// Errors
// =============================================================================

// ProviderError is returned when WeatherAPI answers with an error status.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("weatherapi returned %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed when retried.
func (e *ProviderError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type transportError struct {
	err error
}

func (e *transportError) Error() string {
	return "weatherapi request failed: " + e.err.Error()
}

func (e *transportError) Unwrap() error {
	return e.err
}

// redactKey strips the api key from the request URL that *url.Error embeds
// in its message.
func redactKey(err error) error {
	var uErr *url.Error
	if !errors.As(err, &uErr) {
		return err
	}
	u, perr := url.Parse(uErr.URL)
	if perr != nil {
		return &url.Error{Op: uErr.Op, URL: "[redacted]", Err: uErr.Err}
	}
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return &url.Error{Op: uErr.Op, URL: u.String(), Err: uErr.Err}
}

func retryable(err error) bool {
	var pErr *ProviderError
	if errors.As(err, &pErr) {
		return pErr.Temporary()
	}
	var tErr *transportError
	return errors.As(err, &tErr)
}
