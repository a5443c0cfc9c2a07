package tfnsw_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripboard/tripboard/internal/provider/resilience"
	"github.com/tripboard/tripboard/internal/transit"
	"github.com/tripboard/tripboard/internal/transit/tfnsw"
)

func sydney(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Australia/Sydney")
	require.NoError(t, err)
	return loc
}

func newTestClient(t *testing.T, serverURL string, registry *resilience.Registry) *tfnsw.Client {
	t.Helper()
	return tfnsw.NewClient(tfnsw.ClientConfig{
		APIKey:   "test-key",
		BaseURL:  serverURL,
		Location: sydney(t),
		Registry: registry,
		Logger:   zerolog.Nop(),
	})
}

func TestClient_Name(t *testing.T) {
	client := tfnsw.NewClient(tfnsw.ClientConfig{APIKey: "****", Logger: zerolog.Nop()})
	assert.Equal(t, "tfnsw", client.Name())
}

func TestClient_BuildURL(t *testing.T) {
	client := newTestClient(t, tfnsw.DefaultBaseURL, nil)

	// 2025-10-15 21:05 UTC is 08:05 on the 16th in Sydney (AEDT).
	now := time.Date(2025, 10, 15, 21, 5, 0, 0, time.UTC)

	tests := []struct {
		mode      transit.Mode
		queryType string
		excluded  string
	}{
		{transit.ModeBus, "stop", "2,9,11,1,4,7"},
		{transit.ModeLightRail, "platform", "2,9,11,1,5,7"},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			raw, err := client.BuildURL("G203519", tt.mode, now)
			require.NoError(t, err)

			u, err := url.Parse(raw)
			require.NoError(t, err)
			assert.Equal(t, "transportnsw.info", u.Host)
			assert.Equal(t, "/api/trip/v1/departure-list-request", u.Path)

			q := u.Query()
			assert.Equal(t, "20251016", q.Get("date"))
			assert.Equal(t, "0805", q.Get("time"))
			assert.Equal(t, "G203519", q.Get("name"))
			assert.Equal(t, tt.queryType, q.Get("type"))
			assert.Equal(t, tt.excluded, q.Get("excludedModes"))
			assert.Equal(t, "false", q.Get("debug"))
			assert.Equal(t, "dep", q.Get("depArrMacro"))
			assert.Equal(t, "stopEvents", q.Get("depType"))
			assert.Equal(t, "null", q.Get("accessible"))
		})
	}
}

func TestClient_BuildURL_EscapesStopID(t *testing.T) {
	client := newTestClient(t, tfnsw.DefaultBaseURL, nil)

	raw, err := client.BuildURL("Town Hall&x=1", transit.ModeBus, time.Now())
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "Town Hall&x=1", u.Query().Get("name"))
	assert.Empty(t, u.Query().Get("x"))
}

func TestClient_InvalidRequest(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)

	for _, stopID := range []string{"", "   ", "G20\n3519"} {
		_, err := client.Fetch(context.Background(), stopID, transit.ModeBus, time.Now())
		assert.ErrorIs(t, err, transit.ErrInvalidRequest, "stop id %q", stopID)
	}

	_, err := client.Fetch(context.Background(), "G203519", transit.Mode("ferry"), time.Now())
	assert.ErrorIs(t, err, transit.ErrInvalidRequest)

	bad := tfnsw.NewClient(tfnsw.ClientConfig{BaseURL: "::not a url", Logger: zerolog.Nop()})
	_, err = bad.Fetch(context.Background(), "G203519", transit.ModeBus, time.Now())
	assert.ErrorIs(t, err, transit.ErrInvalidRequest)

	assert.Equal(t, int32(0), hits.Load(), "invalid requests never reach the network")
}

func TestClient_Departures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "203294", r.URL.Query().Get("name"))
		assert.Equal(t, "platform", r.URL.Query().Get("type"))

		resp := map[string]interface{}{
			"stopEvents": []map[string]interface{}{
				{
					"id":                   "second",
					"departureTime":        "2025-10-16T08:12:00.000Z",
					"departureTimePlanned": "2025-10-16T08:12:00.000Z",
					"isCancelled":          false,
					"transportation": map[string]interface{}{
						"disassembledName": "L2",
						"description":      "Randwick Light Rail",
						"destination":      map[string]string{"name": "Randwick"},
					},
				},
				{
					"id":            "cancelled",
					"departureTime": "2025-10-16T08:01:00.000Z",
					"isCancelled":   true,
				},
				{
					"id":            "first",
					"departureTime": "2025-10-16T08:04:00.000Z",
					"isCancelled":   false,
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	registry := resilience.NewRegistry()
	client := newTestClient(t, server.URL, registry)

	events, err := client.Departures(context.Background(), "203294", transit.ModeLightRail, time.Now())
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "first", events[0].ID)
	assert.Equal(t, "second", events[1].ID)
	assert.Equal(t, "L2", events[1].Line)

	health := registry.Health("tfnsw")
	require.NotNil(t, health)
	assert.NotNil(t, health.LastSuccessAt)
	assert.Nil(t, health.LastFailureAt)
}

func TestClient_ServerErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	registry := resilience.NewRegistry()
	client := newTestClient(t, server.URL, registry)

	_, err := client.Fetch(context.Background(), "G203519", transit.ModeBus, time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, transit.ErrHTTP)

	var fe *transit.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusInternalServerError, fe.StatusCode)
	assert.Equal(t, "G203519", fe.StopID)
	assert.Equal(t, int32(1), hits.Load())

	health := registry.Health("tfnsw")
	require.NotNil(t, health)
	assert.NotNil(t, health.LastFailureAt)
	assert.NotEmpty(t, health.LastError)
}

func TestClient_FailingStopDoesNotBlockOthers(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Query().Get("name") == "G200001" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"stopEvents":[{"id":"ok","departureTime":"2025-10-16T08:04:00Z"}]}`))
	}))
	defer server.Close()

	registry := resilience.NewRegistry()
	client := newTestClient(t, server.URL, registry)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := client.Fetch(ctx, "G200001", transit.ModeBus, time.Now())
		require.ErrorIs(t, err, transit.ErrHTTP)
	}

	health := registry.Health("tfnsw")
	require.NotNil(t, health)
	assert.True(t, health.IsUnhealthy(), "a run of failures is reported")

	payload, err := client.Fetch(ctx, "G203519", transit.ModeBus, time.Now())
	require.NoError(t, err)
	require.Len(t, payload.StopEvents, 1)
	assert.Equal(t, int32(6), hits.Load(), "every fetch is a live request")

	health = registry.Health("tfnsw")
	require.NotNil(t, health)
	assert.True(t, health.IsHealthy())
}

func TestClient_NonOKStatus(t *testing.T) {
	for _, status := range []int{http.StatusNoContent, http.StatusUnauthorized, http.StatusNotFound} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}))

		client := newTestClient(t, server.URL, nil)
		_, err := client.Fetch(context.Background(), "G203519", transit.ModeBus, time.Now())
		assert.ErrorIs(t, err, transit.ErrHTTP, "status %d", status)

		server.Close()
	}
}

func TestClient_DecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error": "no stop"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)

	_, err := client.Fetch(context.Background(), "G203519", transit.ModeBus, time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, transit.ErrDecode)

	var fe *transit.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "G203519", fe.StopID)
}

func TestClient_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	serverURL := server.URL
	server.Close()

	client := newTestClient(t, serverURL, nil)

	_, err := client.Fetch(context.Background(), "G203519", transit.ModeBus, time.Now())
	assert.ErrorIs(t, err, transit.ErrHTTP)
}

func TestClient_ImplementsProvider(t *testing.T) {
	var _ transit.Provider = tfnsw.NewClient(tfnsw.ClientConfig{Logger: zerolog.Nop()})
}
