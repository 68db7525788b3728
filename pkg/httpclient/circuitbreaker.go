package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned while the breaker rejects requests.
var ErrCircuitOpen = gobreaker.ErrOpenState

// CircuitBreakerConfig tunes the breaker placed in front of an upstream.
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs, metrics and error messages.
	Name string

	// MaxRequests is how many probing calls a half-open breaker lets through.
	MaxRequests uint32

	// Interval resets the failure counts of a closed breaker. Zero keeps them.
	Interval time.Duration

	// Timeout is how long an open breaker waits before probing again.
	Timeout time.Duration

	// FailureRatio and MinRequests decide when a closed breaker opens: once
	// at least MinRequests calls were made and the failed share reaches
	// FailureRatio.
	FailureRatio float64
	MinRequests  uint32
}

// DefaultCircuitBreakerConfig returns the settings used for the cart backend.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

var breakerState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "upstream_breaker_state",
		Help: "Breaker state per upstream: 0 closed, 1 half-open, 2 open.",
	},
	[]string{"breaker"},
)

var stateGauge = map[gobreaker.State]float64{
	gobreaker.StateClosed:   0,
	gobreaker.StateHalfOpen: 1,
	gobreaker.StateOpen:     2,
}

// CircuitBreakerClient sends requests through a Client guarded by a breaker.
// Upstream 5xx answers count as failures; 4xx answers are passed through.
type CircuitBreakerClient struct {
	name    string
	client  *Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

// NewCircuitBreakerClient guards client with a breaker built from cfg.
func NewCircuitBreakerClient(client *Client, cfg CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerClient {
	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:         cfg.Name,
		MaxRequests:  cfg.MaxRequests,
		Interval:     cfg.Interval,
		Timeout:      cfg.Timeout,
		ReadyToTrip:  tripWhen(cfg),
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("upstream breaker changed state",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			breakerState.WithLabelValues(name).Set(stateGauge[to])
		},
	})
	breakerState.WithLabelValues(cfg.Name).Set(stateGauge[gobreaker.StateClosed])

	return &CircuitBreakerClient{name: cfg.Name, client: client, breaker: breaker}
}

func tripWhen(cfg CircuitBreakerConfig) func(gobreaker.Counts) bool {
	return func(c gobreaker.Counts) bool {
		if c.Requests < cfg.MinRequests {
			return false
		}
		return float64(c.TotalFailures)/float64(c.Requests) >= cfg.FailureRatio
	}
}

// countsAsSuccess keeps requests abandoned by their caller, such as a
// browser navigating away mid-sync, from counting against the upstream.
func countsAsSuccess(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}

// Do sends req through the breaker. A 5xx answer is closed and returned as
// an error naming the breaker.
func (c *CircuitBreakerClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.client.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < http.StatusInternalServerError {
			return resp, nil
		}
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("%s: server error %d: %s", c.name, resp.StatusCode, snippet)
	})
}

// Get sends a GET for url through the breaker.
func (c *CircuitBreakerClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create GET request: %w", err)
	}
	return c.Do(ctx, req)
}

// State reports the breaker's current state.
func (c *CircuitBreakerClient) State() gobreaker.State {
	return c.breaker.State()
}
