// Package locate resolves coarse device positions from network-based
// location services. Providers are plain HTTP endpoints returning a
// JSON body with latitude/longitude and optional city and country
// fields; a Chain tries them in order until one succeeds.
package locate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/lakmal-w/campustrack/internal/tracking"
)

// ErrExhausted is returned when every provider in the chain failed.
var ErrExhausted = errors.New("all network location providers failed")

const (
	defaultTimeout      = 5 * time.Second
	maxResponseBodySize = 1 << 16

	// network estimates are coarse; the reported accuracy when a
	// provider does not state one
	defaultNetworkAccuracy = 1000.0
)

type response struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	City      string  `json:"city,omitempty"`
	Country   string  `json:"country,omitempty"`
}

// WithLogger sets the logger used to report per-provider failures.
func WithLogger(logger *slog.Logger) func(*Chain) {
	return func(c *Chain) {
		c.logger = logger
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) func(*Chain) {
	return func(c *Chain) {
		c.client = client
	}
}

// WithTimeout sets the per-provider request timeout.
func WithTimeout(d time.Duration) func(*Chain) {
	return func(c *Chain) {
		c.timeout = d
	}
}

// Chain is an ordered list of network location endpoints. Locate tries
// each in turn and returns the first usable position.
type Chain struct {
	endpoints []string
	client    *http.Client
	logger    *slog.Logger
	timeout   time.Duration
	clock     func() time.Time
}

// NewChain creates a Chain over the given endpoint URLs.
func NewChain(endpoints []string, options ...func(*Chain)) *Chain {
	c := Chain{
		endpoints: endpoints,
		client:    &http.Client{},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		timeout:   defaultTimeout,
		clock:     time.Now,
	}

	for _, option := range options {
		option(&c)
	}

	return &c
}

// Locate tries each endpoint in order and returns the first valid
// position as a network-estimate sample. When every endpoint fails the
// error wraps ErrExhausted.
func (c *Chain) Locate(ctx context.Context) (tracking.PositionSample, error) {
	var lastErr error

	for _, endpoint := range c.endpoints {
		sample, err := c.query(ctx, endpoint)
		if err != nil {
			c.logger.Warn("network location provider failed",
				slog.String("endpoint", endpoint),
				slog.String("error", err.Error()))
			lastErr = err
			continue
		}
		return sample, nil
	}

	if lastErr != nil {
		return tracking.PositionSample{}, fmt.Errorf("%w: %w", ErrExhausted, lastErr)
	}
	return tracking.PositionSample{}, ErrExhausted
}

func (c *Chain) query(ctx context.Context, endpoint string) (tracking.PositionSample, error) {
	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(rctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return tracking.PositionSample{}, fmt.Errorf("building request: %w", err)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return tracking.PositionSample{}, fmt.Errorf("requesting location: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return tracking.PositionSample{}, fmt.Errorf("unexpected status %d", res.StatusCode)
	}

	var body response
	if err = json.NewDecoder(io.LimitReader(res.Body, maxResponseBodySize)).Decode(&body); err != nil {
		return tracking.PositionSample{}, fmt.Errorf("decoding response: %w", err)
	}

	accuracy := body.Accuracy
	if accuracy <= 0 {
		accuracy = defaultNetworkAccuracy
	}

	sample := tracking.PositionSample{
		Latitude:  body.Latitude,
		Longitude: body.Longitude,
		Accuracy:  accuracy,
		Timestamp: c.clock(),
		Source:    tracking.SourceNetworkEstimate,
		Quality:   tracking.QualityForAccuracy(accuracy),
	}
	if err = sample.Validate(); err != nil {
		return tracking.PositionSample{}, fmt.Errorf("provider returned unusable coordinates: %w", err)
	}

	return sample, nil
}
