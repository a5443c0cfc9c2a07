package resilience

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// NoTimeout as ClientConfig.Timeout leaves requests bounded only by their
// context and the transport.
const NoTimeout time.Duration = -1

const (
	defaultTimeout         = 10 * time.Second
	defaultMaxRetries      = 3
	defaultInitialInterval = 100 * time.Millisecond
	defaultMaxInterval     = 5 * time.Second
)

// ClientConfig holds configuration for the resilient HTTP client.
type ClientConfig struct {
	// Name identifies the client in the registry.
	Name string

	// Timeout bounds each HTTP call. Zero means 10 seconds; NoTimeout
	// disables the client-level limit.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	// Zero means 3. Ignored when SingleAttempt is set.
	MaxRetries uint64

	// SingleAttempt issues at most one request per Do call.
	SingleAttempt bool

	// InitialInterval and MaxInterval bound the exponential backoff.
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// CircuitBreaker configures the breaker. Nil means DefaultCircuitBreakerConfig.
	CircuitBreaker *CircuitBreakerConfig

	// Registry, when set, receives the client on construction so its
	// circuit state can be reported by health endpoints.
	Registry *Registry

	// Transport overrides the underlying round tripper (optional).
	Transport http.RoundTripper
}

// DefaultClientConfig returns a retrying client behind a tripping breaker.
func DefaultClientConfig(name string) ClientConfig {
	cb := DefaultCircuitBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         defaultTimeout,
		MaxRetries:      defaultMaxRetries,
		InitialInterval: defaultInitialInterval,
		MaxInterval:     defaultMaxInterval,
		CircuitBreaker:  &cb,
	}
}

// SingleAttemptClientConfig returns a client for live upstream reads: one
// request per call, no client-level timeout, and a breaker that only
// observes. Every call reaches the upstream and one failing resource never
// blocks requests for another.
func SingleAttemptClientConfig(name string) ClientConfig {
	cb := ObserveOnlyCircuitBreakerConfig(name)
	return ClientConfig{
		Name:           name,
		Timeout:        NoTimeout,
		SingleAttempt:  true,
		CircuitBreaker: &cb,
	}
}

// Client is an HTTP client with circuit breaker and retry logic.
type Client struct {
	name    string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	retries uint64
	initial time.Duration
	max     time.Duration
}

// NewClient creates a new resilient HTTP client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	switch {
	case timeout == 0:
		timeout = defaultTimeout
	case timeout < 0:
		timeout = 0
	}

	retries := cfg.MaxRetries
	if retries == 0 {
		retries = defaultMaxRetries
	}
	if cfg.SingleAttempt {
		retries = 0
	}

	initial := cfg.InitialInterval
	if initial == 0 {
		initial = defaultInitialInterval
	}
	maxInterval := cfg.MaxInterval
	if maxInterval == 0 {
		maxInterval = defaultMaxInterval
	}

	cb := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.CircuitBreaker != nil {
		cb = *cfg.CircuitBreaker
	}

	c := &Client{
		name:    cfg.Name,
		http:    &http.Client{Timeout: timeout, Transport: cfg.Transport},
		breaker: NewCircuitBreaker[*http.Response](cb), //nolint:bodyclose // type param, not response
		retries: retries,
		initial: initial,
		max:     maxInterval,
	}

	if cfg.Registry != nil {
		cfg.Registry.Register(cfg.Name, c)
	}

	return c
}

// Name returns the client name.
func (c *Client) Name() string {
	return c.name
}

// Do sends req through the breaker, retrying 5xx responses and transport
// errors with exponential backoff. A 5xx that survives every attempt is
// returned as a response, not an error.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoWithContext(req.Context(), req)
}

// DoWithContext is Do with an explicit context.
func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initial
	bo.MaxInterval = c.max
	bo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.retries), ctx)

	var last *http.Response
	replace := func(resp *http.Response) {
		if last != nil && last != resp {
			last.Body.Close()
		}
		last = resp
	}

	attempt := func() error {
		resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // closed by replace or the caller
			r, err := c.http.Do(req.Clone(ctx))
			if err != nil {
				return nil, err
			}
			if r.StatusCode >= http.StatusInternalServerError {
				return r, &ServerError{StatusCode: r.StatusCode}
			}
			return r, nil
		})

		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return backoff.Permanent(ErrCircuitOpen)
		case err != nil:
			if resp != nil {
				replace(resp)
			}
			return err
		}

		replace(resp)
		return nil
	}

	if err := backoff.Retry(attempt, policy); err != nil {
		if last != nil && !errors.Is(err, ErrCircuitOpen) {
			return last, nil
		}
		if last != nil {
			last.Body.Close()
		}
		return nil, err
	}

	return last, nil
}

// ServerError marks a 5xx response as a breaker failure.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}

// CircuitBreakerState returns the current state of the circuit breaker.
func (c *Client) CircuitBreakerState() gobreaker.State {
	return c.breaker.State()
}

// CircuitBreakerCounts returns the current counts of the circuit breaker.
func (c *Client) CircuitBreakerCounts() gobreaker.Counts {
	return c.breaker.Counts()
}
