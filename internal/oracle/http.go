// Package oracle queries the external "is OS-level location spoofing
// configured" endpoint. The guard only consumes the boolean; transient
// failures skip a poll cycle and are never fatal.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Options configure the HTTP oracle client.
type Options struct {
	URL     string
	Timeout time.Duration
}

// HTTPOracle asks a companion endpoint for the platform's mock-location
// setting. The endpoint responds with {"mock_enabled": <bool>}.
type HTTPOracle struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// New constructs the oracle client.
func New(opts Options, logger zerolog.Logger) *HTTPOracle {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &HTTPOracle{
		url:    opts.URL,
		client: &http.Client{Timeout: opts.Timeout},
		logger: logger.With().Str("component", "mock_oracle").Logger(),
	}
}

// IsMockEnabled performs the query.
func (o *HTTPOracle) IsMockEnabled(ctx context.Context) (bool, error) {
	if o.url == "" {
		return false, fmt.Errorf("oracle url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.url, nil)
	if err != nil {
		return false, fmt.Errorf("create oracle request: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("query mock oracle: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("mock oracle status %d", resp.StatusCode)
	}

	var payload struct {
		MockEnabled bool `json:"mock_enabled"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return false, fmt.Errorf("decode oracle response: %w", err)
	}
	return payload.MockEnabled, nil
}
