// Package route owns the set of candidate egress routes: registration,
// periodic health probing, rolling per-route metrics, and the
// multi-strategy route selector.
package route

import (
	"sync/atomic"
	"time"
)

// Kind is a route's egress mechanism.
type Kind string

const (
	KindDirect       Kind = "direct"
	KindProxy        Kind = "proxy"
	KindTunnel       Kind = "tunnel"
	KindLoadBalanced Kind = "load_balanced"
)

// latencySmoothing is the blend factor for the per-route latency average:
// new = old*(1-f) + sample*f. The 0.5 ratio preserves the original
// (old+sample)/2 behavior while keeping the factor a single named knob.
const latencySmoothing = 0.5

// Definition is the plain-data form a route is registered from.
type Definition struct {
	ID        string
	Name      string
	Kind      Kind
	Endpoints []string
	// Weight is the relative preference for weighted selection, 0-100.
	Weight int

	ProbeTarget   string
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
}

// Route is a registered routing option. Health and metrics fields use
// atomics so probe write-back never contends with selection reads.
type Route struct {
	// Static after registration.
	ID        string
	Name      string
	Kind      Kind
	Endpoints []string
	Weight    int

	ProbeTarget   string
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration

	seq uint64 // registration order, for deterministic tie-breaks

	// Health state. healthy is mutated only by the probe cycle.
	healthy       atomic.Bool
	lastCheckedNs atomic.Int64

	// Rolling metrics, updated incrementally (O(1) per update).
	requestCount  atomic.Int64
	errorCount    atomic.Int64
	avgLatencyNs  atomic.Int64 // 0 = no sample yet
	throughputBps atomic.Int64
}

// Healthy returns the last-known probe verdict.
func (r *Route) Healthy() bool { return r.healthy.Load() }

// LastCheckedAt returns when the route was last probed (zero time if never).
func (r *Route) LastCheckedAt() time.Time {
	ns := r.lastCheckedNs.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// AvgLatency returns the blended latency average (0 = no sample yet).
func (r *Route) AvgLatency() time.Duration {
	return time.Duration(r.avgLatencyNs.Load())
}

// RequestCount returns the number of recorded request outcomes.
func (r *Route) RequestCount() int64 { return r.requestCount.Load() }

// ErrorCount returns the number of recorded failures.
func (r *Route) ErrorCount() int64 { return r.errorCount.Load() }

// ErrorRatePercent returns errors as a percentage of requests.
func (r *Route) ErrorRatePercent() float64 {
	reqs := r.requestCount.Load()
	if reqs == 0 {
		return 0
	}
	return float64(r.errorCount.Load()) / float64(reqs) * 100
}

// ThroughputBps returns the most recent throughput sample in bytes/sec.
func (r *Route) ThroughputBps() int64 { return r.throughputBps.Load() }

// blendLatency folds a sample into the rolling average. The first sample
// seeds the average directly.
func (r *Route) blendLatency(sample time.Duration) {
	if sample <= 0 {
		return
	}
	for {
		old := r.avgLatencyNs.Load()
		var next int64
		if old == 0 {
			next = int64(sample)
		} else {
			next = int64(float64(old)*(1-latencySmoothing) + float64(sample)*latencySmoothing)
		}
		if r.avgLatencyNs.CompareAndSwap(old, next) {
			return
		}
	}
}

// View is an immutable copy of a route's state for callers outside the
// registry (decisions, alerts, API responses).
type View struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Kind          Kind          `json:"kind"`
	Endpoints     []string      `json:"endpoints"`
	Weight        int           `json:"weight"`
	Healthy       bool          `json:"healthy"`
	LastCheckedAt time.Time     `json:"last_checked_at"`
	ProbeTarget   string        `json:"probe_target"`
	RequestCount  int64         `json:"request_count"`
	ErrorCount    int64         `json:"error_count"`
	AvgLatency    time.Duration `json:"avg_latency_ns"`
	ThroughputBps int64         `json:"throughput_bps"`
}

// View captures the route's current state.
func (r *Route) View() View {
	return View{
		ID:            r.ID,
		Name:          r.Name,
		Kind:          r.Kind,
		Endpoints:     append([]string(nil), r.Endpoints...),
		Weight:        r.Weight,
		Healthy:       r.healthy.Load(),
		LastCheckedAt: r.LastCheckedAt(),
		ProbeTarget:   r.ProbeTarget,
		RequestCount:  r.requestCount.Load(),
		ErrorCount:    r.errorCount.Load(),
		AvgLatency:    r.AvgLatency(),
		ThroughputBps: r.throughputBps.Load(),
	}
}

// Outcome is the result of one completed request attributed to a route.
type Outcome struct {
	Success  bool
	Latency  time.Duration
	Bytes    int64
	Duration time.Duration
}

// EventType identifies a registry lifecycle event.
type EventType string

const (
	EventRegistered    EventType = "route_registered"
	EventUnregistered  EventType = "route_unregistered"
	EventHealthChanged EventType = "route_health_changed"
)

// Event is a registry notification. For EventHealthChanged both the old
// and new verdicts are carried.
type Event struct {
	Type       EventType
	Route      View
	WasHealthy bool
	IsHealthy  bool
	At         time.Time
}

// EventFunc receives registry events synchronously; keep handlers light.
type EventFunc func(Event)
