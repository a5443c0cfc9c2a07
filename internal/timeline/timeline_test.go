package timeline_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripboard/tripboard/internal/stop"
	"github.com/tripboard/tripboard/internal/timeline"
	"github.com/tripboard/tripboard/internal/transit"
	"github.com/tripboard/tripboard/internal/transit/tfnsw"
)

var now = time.Date(2025, 10, 16, 8, 0, 0, 0, time.UTC)

// fakeProvider returns canned events and counts calls.
type fakeProvider struct {
	events []transit.Event
	err    error
	calls  atomic.Int32

	mu      sync.Mutex
	stopIDs []string
}

func (p *fakeProvider) Departures(_ context.Context, stopID string, _ transit.Mode, _ time.Time) ([]transit.Event, error) {
	p.calls.Add(1)
	p.mu.Lock()
	p.stopIDs = append(p.stopIDs, stopID)
	p.mu.Unlock()
	return p.events, p.err
}

func (p *fakeProvider) Name() string { return "fake" }

func departuresAt(offsets ...time.Duration) []transit.Event {
	events := make([]transit.Event, 0, len(offsets))
	for i, off := range offsets {
		t := now.Add(off)
		events = append(events, transit.Event{
			ID:                 string(rune('a' + i)),
			Line:               "333",
			Destination:        "Bondi Beach",
			DepartureTime:      t,
			ScheduledDeparture: t.Add(-3 * time.Minute),
			EstimatedDeparture: t,
		})
	}
	return events
}

func manualConfig() timeline.Config {
	return timeline.Config{Request: stop.Request{Mode: transit.ModeBus, StopID: "G203519"}}
}

func TestBuild_FifteenSnapshotsFromOneFetch(t *testing.T) {
	provider := &fakeProvider{events: departuresAt(10*time.Minute, 20*time.Minute)}
	builder := timeline.NewBuilder(timeline.BuilderConfig{Provider: provider, Logger: zerolog.Nop()})

	tl := builder.Build(context.Background(), manualConfig(), now)

	require.Len(t, tl.Snapshots, 15)
	assert.Equal(t, int32(1), provider.calls.Load())

	for i, snap := range tl.Snapshots {
		assert.True(t, now.Add(time.Duration(i)*2*time.Minute).Equal(snap.AsOf()), "snapshot %d", i)
		assert.Equal(t, timeline.StateDeparture, snap.State())

		ev, ok := snap.Departure()
		require.True(t, ok)
		assert.Equal(t, "a", ev.ID, "every snapshot shows the soonest departure")

		// Labels are computed once at build time.
		assert.Equal(t, "10 Mins", snap.Display().Countdown)
		assert.Equal(t, "Late 3 mins", snap.Display().Delay)
		assert.Equal(t, "Bus", snap.Display().ModeLabel)
		assert.Empty(t, snap.StopName(), "manual resolution has no stop name")
	}

	assert.True(t, tl.Snapshots[14].AsOf().Equal(now.Add(28*time.Minute)))
	assert.True(t, tl.RefreshAt.Equal(now.Add(30*time.Minute)))
	assert.Equal(t, stop.SourceManual, tl.Resolution.Source)
	assert.False(t, tl.Failed())
}

func TestBuild_HorizonRoundsUp(t *testing.T) {
	provider := &fakeProvider{events: departuresAt(5 * time.Minute)}
	builder := timeline.NewBuilder(timeline.BuilderConfig{Provider: provider, Logger: zerolog.Nop()})

	cfg := manualConfig()
	cfg.Horizon = 5 * time.Minute
	cfg.Step = 2 * time.Minute

	tl := builder.Build(context.Background(), cfg, now)
	require.Len(t, tl.Snapshots, 3)
	assert.True(t, tl.RefreshAt.Equal(now.Add(6*time.Minute)))
}

func TestBuild_EmptyResult(t *testing.T) {
	provider := &fakeProvider{events: nil}
	builder := timeline.NewBuilder(timeline.BuilderConfig{Provider: provider, Logger: zerolog.Nop()})

	tl := builder.Build(context.Background(), manualConfig(), now)

	require.Len(t, tl.Snapshots, 15)
	for _, snap := range tl.Snapshots {
		assert.Equal(t, timeline.StateEmpty, snap.State())
		_, ok := snap.Departure()
		assert.False(t, ok)
		assert.NoError(t, snap.Err())
	}
}

func TestBuild_HTTP500CollapsesToOneErrorSnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := tfnsw.NewClient(tfnsw.ClientConfig{BaseURL: server.URL, Logger: zerolog.Nop()})
	builder := timeline.NewBuilder(timeline.BuilderConfig{Provider: client, Logger: zerolog.Nop()})

	tl := builder.Build(context.Background(), manualConfig(), now)

	require.Len(t, tl.Snapshots, 1)
	snap := tl.Snapshots[0]
	assert.Equal(t, timeline.StateError, snap.State())
	assert.True(t, snap.AsOf().Equal(now))
	require.Error(t, snap.Err())
	assert.NotEmpty(t, snap.Err().Error())
	assert.ErrorIs(t, snap.Err(), transit.ErrHTTP)

	_, ok := snap.Departure()
	assert.False(t, ok)
	assert.True(t, tl.Failed())
	assert.True(t, tl.RefreshAt.Equal(now.Add(2*time.Minute)))
}

func TestBuild_AutomaticCarriesStopName(t *testing.T) {
	ctx := context.Background()
	dir, err := stop.NewDirectory(ctx, stop.NewRecordStore(stop.NewMemoryBlobStore()), zerolog.Nop())
	require.NoError(t, err)
	_, err = dir.Seed(ctx, stop.SampleRecords())
	require.NoError(t, err)

	provider := &fakeProvider{events: departuresAt(time.Minute)}
	builder := timeline.NewBuilder(timeline.BuilderConfig{
		Resolver: stop.NewResolver(dir, stop.StaticPosition{Latitude: -33.8600, Longitude: 151.2110}),
		Provider: provider,
		Logger:   zerolog.Nop(),
	})

	cfg := timeline.Config{Request: stop.Request{Mode: transit.ModeBus, Automatic: true}}
	tl := builder.Build(ctx, cfg, now)

	require.Len(t, tl.Snapshots, 15)
	assert.Equal(t, "Circular Quay", tl.Snapshots[0].StopName())
	assert.Equal(t, "1 Min", tl.Snapshots[0].Display().Countdown)
	assert.Equal(t, []string{"G200066"}, provider.stopIDs)
}

func TestSnapshotConstructorsAreExclusive(t *testing.T) {
	dep := timeline.NewDepartureSnapshot(now, transit.Event{ID: "x"}, timeline.Display{}, "")
	assert.Equal(t, timeline.StateDeparture, dep.State())
	assert.NoError(t, dep.Err())

	errSnap := timeline.NewErrorSnapshot(now, nil)
	assert.Equal(t, timeline.StateError, errSnap.State())
	_, ok := errSnap.Departure()
	assert.False(t, ok)

	empty := timeline.NewEmptySnapshot(now, "Town Hall")
	assert.Equal(t, timeline.StateEmpty, empty.State())
	assert.Equal(t, "Town Hall", empty.StopName())
}

func TestTimeline_At(t *testing.T) {
	provider := &fakeProvider{events: departuresAt(10 * time.Minute)}
	builder := timeline.NewBuilder(timeline.BuilderConfig{Provider: provider, Logger: zerolog.Nop()})
	tl := builder.Build(context.Background(), manualConfig(), now)

	tests := []struct {
		at       time.Time
		expected time.Time
	}{
		{now.Add(-time.Hour), now},
		{now, now},
		{now.Add(50 * time.Second), now},
		{now.Add(70 * time.Second), now.Add(2 * time.Minute)},
		{now.Add(time.Minute), now},
		{now.Add(time.Hour), now.Add(28 * time.Minute)},
	}

	for _, tt := range tests {
		assert.True(t, tt.expected.Equal(tl.At(tt.at).AsOf()), "at %s", tt.at)
	}

	var nilTimeline *timeline.Timeline
	assert.Equal(t, timeline.StateEmpty, nilTimeline.At(now).State())
}

func TestConfig_CacheKey(t *testing.T) {
	assert.Equal(t, "manual:bus:G203519", manualConfig().CacheKey())

	auto := timeline.Config{Request: stop.Request{Mode: transit.ModeLightRail, Automatic: true}}
	assert.Equal(t, "auto:lightRail", auto.CacheKey())

	auto.Key = "home"
	assert.Equal(t, "home", auto.CacheKey())
}
