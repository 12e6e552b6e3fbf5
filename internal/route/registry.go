package route

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// Registry owns all registered routes. Routes may be added and removed at
// runtime; health and metrics persist for a route's registered lifetime.
type Registry struct {
	routes *xsync.Map[string, *Route]

	mu      sync.Mutex // guards seq allocation
	nextSeq uint64

	onEvent EventFunc
}

// NewRegistry creates an empty Registry. onEvent may be nil.
func NewRegistry(onEvent EventFunc) *Registry {
	return &Registry{
		routes:  xsync.NewMap[string, *Route](),
		onEvent: onEvent,
	}
}

const (
	defaultProbeInterval = 30 * time.Second
	defaultProbeTimeout  = 5 * time.Second
)

// Register adds a route from its definition. Routes start healthy until
// the first probe says otherwise, so a freshly configured route is
// immediately selectable. Registering an existing id is rejected.
func (g *Registry) Register(def Definition) (*Route, error) {
	if def.ID == "" {
		return nil, fmt.Errorf("route: definition missing id")
	}
	switch def.Kind {
	case KindDirect, KindProxy, KindTunnel, KindLoadBalanced:
	default:
		return nil, fmt.Errorf("route %s: unknown kind %q", def.ID, def.Kind)
	}
	if def.Weight < 0 || def.Weight > 100 {
		return nil, fmt.Errorf("route %s: weight %d out of range [0,100]", def.ID, def.Weight)
	}
	if def.ProbeInterval <= 0 {
		def.ProbeInterval = defaultProbeInterval
	}
	if def.ProbeTimeout <= 0 {
		def.ProbeTimeout = defaultProbeTimeout
	}

	g.mu.Lock()
	g.nextSeq++
	seq := g.nextSeq
	g.mu.Unlock()

	r := &Route{
		ID:            def.ID,
		Name:          def.Name,
		Kind:          def.Kind,
		Endpoints:     append([]string(nil), def.Endpoints...),
		Weight:        def.Weight,
		ProbeTarget:   def.ProbeTarget,
		ProbeInterval: def.ProbeInterval,
		ProbeTimeout:  def.ProbeTimeout,
		seq:           seq,
	}
	r.healthy.Store(true)

	if _, loaded := g.routes.LoadOrStore(def.ID, r); loaded {
		return nil, fmt.Errorf("route %s: already registered", def.ID)
	}
	g.emit(Event{Type: EventRegistered, Route: r.View(), IsHealthy: true, At: time.Now()})
	return r, nil
}

// Unregister removes a route by id. Returns false when the id is unknown.
func (g *Registry) Unregister(id string) bool {
	r, ok := g.routes.LoadAndDelete(id)
	if !ok {
		return false
	}
	g.emit(Event{Type: EventUnregistered, Route: r.View(), IsHealthy: r.Healthy(), At: time.Now()})
	return true
}

// Get returns a registered route.
func (g *Registry) Get(id string) (*Route, bool) {
	return g.routes.Load(id)
}

// All returns every registered route in registration order.
func (g *Registry) All() []*Route {
	var out []*Route
	g.routes.Range(func(_ string, r *Route) bool {
		out = append(out, r)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// HealthyRoutes returns routes whose last-known probe verdict is healthy,
// in registration order. This never triggers a probe.
func (g *Registry) HealthyRoutes() []*Route {
	var out []*Route
	g.routes.Range(func(_ string, r *Route) bool {
		if r.Healthy() {
			out = append(out, r)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// RecordOutcome folds one completed request into a route's metrics:
// request/error counts, the latency blend, and a throughput sample when
// the request had a measurable duration. Unknown ids are ignored.
func (g *Registry) RecordOutcome(id string, o Outcome) {
	r, ok := g.routes.Load(id)
	if !ok {
		return
	}
	r.requestCount.Add(1)
	if !o.Success {
		r.errorCount.Add(1)
	}
	r.blendLatency(o.Latency)
	if o.Duration > 0 && o.Bytes > 0 {
		bps := int64(float64(o.Bytes) / o.Duration.Seconds())
		r.throughputBps.Store(bps)
	}
}

// applyProbeResult writes a probe verdict back to a route and emits a
// health-changed event when the verdict flipped. Called only by the
// health monitor.
func (g *Registry) applyProbeResult(r *Route, latency time.Duration, success bool, now time.Time) {
	if success {
		r.blendLatency(latency)
	}
	was := r.healthy.Swap(success)
	r.lastCheckedNs.Store(now.UnixNano())
	if was != success {
		g.emit(Event{
			Type:       EventHealthChanged,
			Route:      r.View(),
			WasHealthy: was,
			IsHealthy:  success,
			At:         now,
		})
	}
}

func (g *Registry) emit(ev Event) {
	if g.onEvent != nil {
		g.onEvent(ev)
	}
}

// Stats is the registry-wide aggregate view.
type Stats struct {
	RouteCount    int          `json:"route_count"`
	CountByKind   map[Kind]int `json:"count_by_kind"`
	HealthyCount  int          `json:"healthy_count"`
	TotalRequests int64        `json:"total_requests"`
	TotalErrors   int64        `json:"total_errors"`
	// AverageLatency is the mean of per-route latency averages over routes
	// with at least one sample.
	AverageLatency time.Duration `json:"average_latency_ns"`
}

// Stats aggregates across all registered routes.
func (g *Registry) Stats() Stats {
	s := Stats{CountByKind: make(map[Kind]int)}
	var latencySum time.Duration
	var latencyRoutes int64
	g.routes.Range(func(_ string, r *Route) bool {
		s.RouteCount++
		s.CountByKind[r.Kind]++
		if r.Healthy() {
			s.HealthyCount++
		}
		s.TotalRequests += r.requestCount.Load()
		s.TotalErrors += r.errorCount.Load()
		if avg := r.AvgLatency(); avg > 0 {
			latencySum += avg
			latencyRoutes++
		}
		return true
	})
	if latencyRoutes > 0 {
		s.AverageLatency = latencySum / time.Duration(latencyRoutes)
	}
	return s
}
