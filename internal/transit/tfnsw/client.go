// Package tfnsw implements the departure-list client for the Transport for
// NSW trip planner API.
package tfnsw

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tripboard/tripboard/internal/provider/resilience"
	"github.com/tripboard/tripboard/internal/telemetry"
	"github.com/tripboard/tripboard/internal/transit"
)

const (
	// ProviderName identifies this transit provider.
	ProviderName = "tfnsw"

	// DefaultBaseURL is the departure-list endpoint.
	DefaultBaseURL = "https://transportnsw.info/api/trip/v1/departure-list-request"

	tracerName = "github.com/tripboard/tripboard/internal/transit/tfnsw"

	// maxBodyBytes caps how much of a response is read.
	maxBodyBytes = 8 << 20
)

// ClientConfig holds configuration for the departures client.
type ClientConfig struct {
	// APIKey is sent verbatim in the Authorization header.
	APIKey string

	// BaseURL is the departure-list endpoint (optional, defaults to DefaultBaseURL).
	BaseURL string

	// Location is the zone the date and time query parameters are rendered in.
	// Defaults to time.Local.
	Location *time.Location

	// HTTPClient is the HTTP client to use (optional).
	// If nil, a single-attempt resilient client is created.
	HTTPClient *resilience.Client

	// Registry records request outcomes for health reporting (optional).
	Registry *resilience.Registry

	// Metrics records request durations (optional).
	Metrics *telemetry.ProviderMetrics

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client fetches departure lists for one stop at a time. It holds no state
// between calls and never caches responses.
type Client struct {
	apiKey     string
	baseURL    string
	location   *time.Location
	httpClient *resilience.Client
	registry   *resilience.Registry
	metrics    *telemetry.ProviderMetrics
	tracer     trace.Tracer
	logger     zerolog.Logger
}

// NewClient creates a new departures client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	location := cfg.Location
	if location == nil {
		location = time.Local
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := resilience.SingleAttemptClientConfig(ProviderName)
		rc.Registry = cfg.Registry
		httpClient = resilience.NewClient(rc)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		location:   location,
		httpClient: httpClient,
		registry:   cfg.Registry,
		metrics:    cfg.Metrics,
		tracer:     otel.Tracer(tracerName),
		logger:     cfg.Logger.With().Str("provider", ProviderName).Logger(),
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Departures fetches and normalizes departures for a stop.
func (c *Client) Departures(ctx context.Context, stopID string, mode transit.Mode, now time.Time) ([]transit.Event, error) {
	payload, err := c.Fetch(ctx, stopID, mode, now)
	if err != nil {
		return nil, err
	}
	return Normalize(payload), nil
}

// Fetch performs one live departure-list request. The date and time query
// parameters are taken from now in the client's location.
func (c *Client) Fetch(ctx context.Context, stopID string, mode transit.Mode, now time.Time) (*Payload, error) {
	start := time.Now()

	ctx, span := c.tracer.Start(ctx, "tfnsw.Fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("transit.stop_id", stopID),
			attribute.String("transit.mode", string(mode)),
		),
	)
	defer span.End()

	payload, err := c.fetch(ctx, stopID, mode, now)
	c.metrics.RecordRequest(ProviderName, "departures", time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		if !errors.Is(err, transit.ErrInvalidRequest) && c.registry != nil {
			c.registry.RecordFailure(c.httpClient.Name(), err)
		}

		c.logger.Warn().
			Err(err).
			Str("stop_id", stopID).
			Str("mode", string(mode)).
			Dur("duration", time.Since(start)).
			Msg("departure fetch failed")
		return nil, err
	}

	if c.registry != nil {
		c.registry.RecordSuccess(c.httpClient.Name())
	}
	c.metrics.RecordSkipped(ProviderName, payload.Skipped)
	span.SetAttributes(attribute.Int("transit.events", len(payload.StopEvents)))

	if payload.Skipped > 0 {
		c.logger.Debug().
			Str("stop_id", stopID).
			Int("skipped", payload.Skipped).
			Msg("skipped undecodable stop events")
	}

	return payload, nil
}

func (c *Client) fetch(ctx context.Context, stopID string, mode transit.Mode, now time.Time) (*Payload, error) {
	reqURL, err := c.BuildURL(stopID, mode, now)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, &transit.FetchError{Kind: transit.ErrInvalidRequest, StopID: stopID, Err: fmt.Errorf("creating request: %w", err)}
	}

	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &transit.FetchError{Kind: transit.ErrHTTP, StopID: stopID, Err: fmt.Errorf("executing request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &transit.FetchError{Kind: transit.ErrHTTP, StopID: stopID, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &transit.FetchError{Kind: transit.ErrHTTP, StopID: stopID, Err: fmt.Errorf("reading response: %w", err)}
	}

	payload, err := Decode(body)
	if err != nil {
		var fe *transit.FetchError
		if errors.As(err, &fe) {
			fe.StopID = stopID
		}
		return nil, err
	}

	return payload, nil
}

// BuildURL renders the departure-list request URL for a stop.
func (c *Client) BuildURL(stopID string, mode transit.Mode, now time.Time) (string, error) {
	if err := validateStopID(stopID); err != nil {
		return "", &transit.FetchError{Kind: transit.ErrInvalidRequest, StopID: stopID, Err: err}
	}
	if !mode.Valid() {
		return "", &transit.FetchError{Kind: transit.ErrInvalidRequest, StopID: stopID, Err: transit.ErrUnknownMode}
	}

	base, err := url.Parse(c.baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		if err == nil {
			err = fmt.Errorf("base URL %q is not absolute", c.baseURL)
		}
		return "", &transit.FetchError{Kind: transit.ErrInvalidRequest, StopID: stopID, Err: err}
	}

	local := now.In(c.location)

	q := base.Query()
	q.Set("date", local.Format("20060102"))
	q.Set("debug", "false")
	q.Set("depArrMacro", "dep")
	q.Set("depType", "stopEvents")
	q.Set("name", stopID)
	q.Set("time", local.Format("1504"))
	q.Set("type", mode.QueryType())
	q.Set("excludedModes", mode.ExcludedModes())
	q.Set("accessible", "null")
	base.RawQuery = q.Encode()

	return base.String(), nil
}

// setHeaders sets common request headers.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Accept", "application/json")
}

func validateStopID(stopID string) error {
	if strings.TrimSpace(stopID) == "" {
		return errors.New("stop id is empty")
	}
	for _, r := range stopID {
		if unicode.IsControl(r) {
			return fmt.Errorf("stop id %q contains control characters", stopID)
		}
	}
	return nil
}
