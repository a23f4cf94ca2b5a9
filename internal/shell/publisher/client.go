// Package publisher pushes telemetry snapshots to an IoT platform.
// The HTTP client speaks the ThingsBoard device telemetry API.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/artpar/agrotel/internal/core/domain"
)

// ErrMissingAccessToken is returned when the HTTP client has no device token.
var ErrMissingAccessToken = errors.New("publisher: access token is required")

// =============================================================================
// Client Interface
// =============================================================================

// Client pushes a single snapshot.
type Client interface {
	Publish(ctx context.Context, snapshot domain.Snapshot) error
}

// =============================================================================
// HTTP Client Implementation
// =============================================================================

// HTTPClient posts telemetry to {base}/api/v1/{token}/telemetry.
type HTTPClient struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	logger      *slog.Logger
}

// Config holds configuration for the HTTP client.
type Config struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

// DefaultConfig returns default publisher client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080",
		Timeout: 10 * time.Second,
	}
}

// NewHTTPClient creates a new telemetry push client.
func NewHTTPClient(cfg Config, logger *slog.Logger) (*HTTPClient, error) {
	if cfg.AccessToken == "" {
		return nil, ErrMissingAccessToken
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPClient{
		baseURL:     cfg.BaseURL,
		accessToken: cfg.AccessToken,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With("component", "publisher_client"),
	}, nil
}

// telemetryRequest is the timestamped ThingsBoard payload.
type telemetryRequest struct {
	TS     int64          `json:"ts"`
	Values map[string]any `json:"values"`
}

// Publish pushes one snapshot, timestamped with its fetch time.
func (c *HTTPClient) Publish(ctx context.Context, snapshot domain.Snapshot) error {
	payload := telemetryRequest{
		TS:     snapshot.FetchedAt.UnixMilli(),
		Values: snapshot.Telemetry.Flatten(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal telemetry: %w", err)
	}

	endpoint := c.baseURL + "/api/v1/" + url.PathEscape(c.accessToken) + "/telemetry"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send telemetry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("telemetry endpoint returned error %d: %s", resp.StatusCode, string(respBody))
	}

	c.logger.Debug("telemetry published", "snapshot_id", snapshot.ID)
	return nil
}

// =============================================================================
// No-Op Client (for development/testing)
// =============================================================================

// NoOpClient is a publisher that does nothing.
type NoOpClient struct{}

// NewNoOpClient creates a no-op publisher client.
func NewNoOpClient() *NoOpClient {
	return &NoOpClient{}
}

// Publish does nothing.
func (c *NoOpClient) Publish(ctx context.Context, snapshot domain.Snapshot) error {
	return nil
}
