package resilience_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripboard/tripboard/internal/provider/resilience"
)

// upstream serves status(n) for the n-th request, counting from 1.
func upstream(t *testing.T, delay time.Duration, status func(n int32) int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := hits.Add(1)
		if delay > 0 {
			time.Sleep(delay)
		}
		w.WriteHeader(status(n))
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func always(code int) func(int32) int {
	return func(int32) int { return code }
}

func get(ctx context.Context, t *testing.T, client *resilience.Client, url string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	require.NoError(t, err)
	resp, err := client.Do(req)
	if resp != nil {
		t.Cleanup(func() { resp.Body.Close() })
	}
	return resp, err
}

func fastRetries(name string, retries uint64) resilience.ClientConfig {
	cb := resilience.ObserveOnlyCircuitBreakerConfig(name)
	return resilience.ClientConfig{
		Name:            name,
		Timeout:         5 * time.Second,
		MaxRetries:      retries,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     50 * time.Millisecond,
		CircuitBreaker:  &cb,
	}
}

func TestClient_Ok(t *testing.T) {
	server, hits := upstream(t, 0, always(http.StatusOK))
	client := resilience.NewClient(resilience.DefaultClientConfig("tfnsw"))

	resp, err := get(context.Background(), t, client, server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, "tfnsw", client.Name())
}

func TestClient_RetriesServerErrors(t *testing.T) {
	server, hits := upstream(t, 0, func(n int32) int {
		if n < 3 {
			return http.StatusServiceUnavailable
		}
		return http.StatusOK
	})
	client := resilience.NewClient(fastRetries("tfnsw", 5))

	resp, err := get(context.Background(), t, client, server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), hits.Load())
}

func TestClient_ClientErrorsNotRetried(t *testing.T) {
	server, hits := upstream(t, 0, always(http.StatusBadRequest))
	client := resilience.NewClient(fastRetries("tfnsw", 3))

	resp, err := get(context.Background(), t, client, server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_ExhaustedRetriesReturnLastResponse(t *testing.T) {
	server, hits := upstream(t, 0, always(http.StatusBadGateway))
	client := resilience.NewClient(fastRetries("tfnsw", 2))

	resp, err := get(context.Background(), t, client, server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, int32(3), hits.Load())
}

func TestClient_TrippingBreakerRejects(t *testing.T) {
	server, hits := upstream(t, 0, always(http.StatusInternalServerError))

	cb := resilience.CircuitBreakerConfig{
		Name:             "tfnsw",
		HalfOpenRequests: 1,
		OpenFor:          time.Second,
		ReadyToTrip:      resilience.TripOnFailureRatio,
	}
	client := resilience.NewClient(resilience.ClientConfig{
		Name:           "tfnsw",
		Timeout:        time.Second,
		SingleAttempt:  true,
		CircuitBreaker: &cb,
	})

	for i := 0; i < 5; i++ {
		_, _ = get(context.Background(), t, client, server.URL)
	}
	assert.Equal(t, gobreaker.StateOpen, client.CircuitBreakerState())

	_, err := get(context.Background(), t, client, server.URL)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(5), hits.Load(), "an open circuit does not call the server")
}

func TestClient_ClientTimeout(t *testing.T) {
	server, _ := upstream(t, 500*time.Millisecond, always(http.StatusOK))

	cfg := fastRetries("tfnsw", 0)
	cfg.SingleAttempt = true
	cfg.Timeout = 100 * time.Millisecond
	client := resilience.NewClient(cfg)

	_, err := get(context.Background(), t, client, server.URL)
	assert.Error(t, err)
}

func TestClient_ContextCancellation(t *testing.T) {
	server, _ := upstream(t, time.Second, always(http.StatusOK))
	client := resilience.NewClient(resilience.SingleAttemptClientConfig("tfnsw"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := get(ctx, t, client, server.URL)
	assert.Error(t, err)
}

func TestClient_SingleAttemptReturnsServerError(t *testing.T) {
	server, hits := upstream(t, 0, always(http.StatusInternalServerError))
	client := resilience.NewClient(resilience.SingleAttemptClientConfig("tfnsw"))

	resp, err := get(context.Background(), t, client, server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_SingleAttemptNeverOpens(t *testing.T) {
	server, hits := upstream(t, 0, always(http.StatusBadGateway))
	client := resilience.NewClient(resilience.SingleAttemptClientConfig("tfnsw"))

	for i := 0; i < 20; i++ {
		resp, err := get(context.Background(), t, client, server.URL)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	}

	assert.Equal(t, int32(20), hits.Load(), "every call reaches the server")
	assert.Equal(t, gobreaker.StateClosed, client.CircuitBreakerState())
	assert.Equal(t, uint32(20), client.CircuitBreakerCounts().ConsecutiveFailures)
}

func TestClient_NoTimeoutWaitsForSlowServer(t *testing.T) {
	server, _ := upstream(t, 150*time.Millisecond, always(http.StatusOK))
	client := resilience.NewClient(resilience.SingleAttemptClientConfig("tfnsw"))

	resp, err := get(context.Background(), t, client, server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClientConfigs(t *testing.T) {
	def := resilience.DefaultClientConfig("tfnsw")
	assert.Equal(t, "tfnsw", def.Name)
	assert.Equal(t, 10*time.Second, def.Timeout)
	assert.Equal(t, uint64(3), def.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, def.InitialInterval)
	assert.Equal(t, 5*time.Second, def.MaxInterval)
	assert.False(t, def.SingleAttempt)
	require.NotNil(t, def.CircuitBreaker)

	live := resilience.SingleAttemptClientConfig("tfnsw")
	assert.Equal(t, "tfnsw", live.Name)
	assert.True(t, live.SingleAttempt)
	assert.Equal(t, resilience.NoTimeout, live.Timeout)
	require.NotNil(t, live.CircuitBreaker)
	assert.False(t, live.CircuitBreaker.ReadyToTrip(gobreaker.Counts{Requests: 10, TotalFailures: 10}))
}

func TestCircuitBreakerConfigs(t *testing.T) {
	def := resilience.DefaultCircuitBreakerConfig("tfnsw")
	assert.Equal(t, "tfnsw", def.Name)
	assert.Equal(t, uint32(1), def.HalfOpenRequests)
	assert.Equal(t, time.Minute, def.OpenFor)
	require.NotNil(t, def.ReadyToTrip)

	observe := resilience.ObserveOnlyCircuitBreakerConfig("tfnsw")
	assert.Equal(t, def.OpenFor, observe.OpenFor)
	assert.False(t, observe.ReadyToTrip(gobreaker.Counts{Requests: 100, TotalFailures: 100, ConsecutiveFailures: 100}))
}

func TestTripOnFailureRatio(t *testing.T) {
	tests := []struct {
		name   string
		counts gobreaker.Counts
		want   bool
	}{
		{"no requests", gobreaker.Counts{}, false},
		{"too few requests", gobreaker.Counts{Requests: 4, TotalFailures: 4}, false},
		{"below half failing", gobreaker.Counts{Requests: 10, TotalFailures: 4}, false},
		{"half failing", gobreaker.Counts{Requests: 10, TotalFailures: 5}, true},
		{"five of five failing", gobreaker.Counts{Requests: 5, TotalFailures: 5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resilience.TripOnFailureRatio(tt.counts))
		})
	}
	assert.False(t, resilience.NeverTrip(gobreaker.Counts{Requests: 5, TotalFailures: 5}))
}

func TestServerError(t *testing.T) {
	err := &resilience.ServerError{StatusCode: http.StatusBadGateway}
	assert.Equal(t, "server error: Bad Gateway", err.Error())
}
