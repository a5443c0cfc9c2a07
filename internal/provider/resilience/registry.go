package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// FailingAfter is the run of consecutive failures at which a provider is
// reported failing even though its circuit is closed.
const FailingAfter = 5

// HealthState classifies an upstream provider for status reporting.
type HealthState int

const (
	HealthOK HealthState = iota
	HealthDegraded
	HealthFailing
)

func (s HealthState) String() string {
	switch s {
	case HealthOK:
		return "ok"
	case HealthDegraded:
		return "degraded"
	case HealthFailing:
		return "failing"
	default:
		return "unknown"
	}
}

// ProviderHealth is a point-in-time view of one registered provider.
type ProviderHealth struct {
	Name         string
	CircuitState gobreaker.State
	Counts       gobreaker.Counts

	// LastSuccessAt and LastFailureAt are nil until the first outcome of
	// that kind is recorded.
	LastSuccessAt *time.Time
	LastFailureAt *time.Time
	LastError     string
}

// State derives the provider's HealthState from its circuit and its
// current failure streak.
func (h *ProviderHealth) State() HealthState {
	switch {
	case h.CircuitState == gobreaker.StateOpen, h.Counts.ConsecutiveFailures >= FailingAfter:
		return HealthFailing
	case h.CircuitState == gobreaker.StateHalfOpen, h.Counts.ConsecutiveFailures > 0:
		return HealthDegraded
	default:
		return HealthOK
	}
}

// IsHealthy reports a closed circuit with no failure since the last success.
func (h *ProviderHealth) IsHealthy() bool { return h.State() == HealthOK }

// IsDegraded reports a half-open circuit, or a closed one whose latest
// requests failed without reaching FailingAfter.
func (h *ProviderHealth) IsDegraded() bool { return h.State() == HealthDegraded }

// IsUnhealthy reports an open circuit or FailingAfter consecutive failures.
func (h *ProviderHealth) IsUnhealthy() bool { return h.State() == HealthFailing }

// Registry tracks the upstream clients of one process. Composition roots
// create it with NewRegistry and hand it to each client config.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*tracked
}

type tracked struct {
	client      *Client
	lastSuccess time.Time
	lastFailure time.Time
	lastErr     string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*tracked)}
}

// Register tracks client under name, replacing any earlier registration.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = &tracked{client: client}
}

// RecordSuccess stamps the last successful fetch of name.
func (r *Registry) RecordSuccess(name string) {
	r.record(name, func(t *tracked, now time.Time) { t.lastSuccess = now })
}

// RecordFailure stamps the last failed fetch of name and keeps err's text.
func (r *Registry) RecordFailure(name string, err error) {
	r.record(name, func(t *tracked, now time.Time) {
		t.lastFailure = now
		if err != nil {
			t.lastErr = err.Error()
		}
	})
}

// record is a no-op for names that were never registered.
func (r *Registry) record(name string, apply func(*tracked, time.Time)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.clients[name]; ok {
		apply(t, time.Now())
	}
}

// Health returns the view of name, or nil if it is not registered.
func (r *Registry) Health(name string) *ProviderHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.clients[name]
	if !ok {
		return nil
	}
	return t.view(name)
}

// Providers returns the view of every registered provider, ordered by name.
func (r *Registry) Providers() []*ProviderHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	views := make([]*ProviderHealth, 0, len(r.clients))
	for name, t := range r.clients {
		views = append(views, t.view(name))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Name < views[j].Name })
	return views
}

// Healthy reports whether no registered provider is failing. Degraded
// providers still count as healthy.
func (r *Registry) Healthy() bool {
	for _, h := range r.Providers() {
		if h.IsUnhealthy() {
			return false
		}
	}
	return true
}

func (t *tracked) view(name string) *ProviderHealth {
	return &ProviderHealth{
		Name:          name,
		CircuitState:  t.client.CircuitBreakerState(),
		Counts:        t.client.CircuitBreakerCounts(),
		LastSuccessAt: stamp(t.lastSuccess),
		LastFailureAt: stamp(t.lastFailure),
		LastError:     t.lastErr,
	}
}

func stamp(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
