package route

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/wayfinder-proxy/wayfinder/internal/netutil"
	"github.com/wayfinder-proxy/wayfinder/internal/scanloop"
)

// probeLookahead is subtracted from a route's next-due time so the scan
// loop can batch probes slightly ahead of the true deadline.
const probeLookahead = 2 * time.Second

// Monitor runs periodic reachability probes against each route's probe
// target, each on the route's own interval. Probes for different routes
// run concurrently (bounded by a semaphore) and never block selection,
// which only reads the last-known healthy flag.
type Monitor struct {
	registry *Registry
	probe    netutil.ProbeFunc

	sem      chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// MonitorConfig configures a Monitor.
type MonitorConfig struct {
	Registry *Registry
	// Probe executes one reachability check. Injectable for testing; nil
	// picks the standard HTTP prober.
	Probe netutil.ProbeFunc
	// Concurrency caps simultaneous in-flight probes. <= 0 picks 8.
	Concurrency int
}

// NewMonitor creates a Monitor. Call Start to begin probing.
func NewMonitor(cfg MonitorConfig) *Monitor {
	conc := cfg.Concurrency
	if conc <= 0 {
		conc = 8
	}
	probe := cfg.Probe
	if probe == nil {
		probe = netutil.StdProbe()
	}
	return &Monitor{
		registry: cfg.Registry,
		probe:    probe,
		sem:      make(chan struct{}, conc),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the background scan loop.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		scanloop.Run(m.stopCh, scanloop.Config{
			Interval:  scanloop.DefaultInterval,
			Jitter:    scanloop.DefaultJitter,
			Immediate: true,
		}, m.ProbeAll)
	}()
}

// Stop signals the scan loop to stop and waits for in-flight probes to
// finish. Pending probe results land before Stop returns but flips they
// cause are discarded by shutdown ordering (the observer stops after).
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

// ProbeAll scans all routes and probes those due per their own interval.
// Spawned probes are bounded by the semaphore; a hanging probe for one
// route delays neither other routes' probes nor this scan.
func (m *Monitor) ProbeAll() {
	now := time.Now()
	for _, r := range m.registry.All() {
		select {
		case <-m.stopCh:
			return
		default:
		}

		if r.ProbeTarget == "" {
			continue // unprobeable; keeps its last-known (initial) verdict
		}
		if last := r.lastCheckedNs.Load(); last > 0 {
			nextDue := time.Unix(0, last).Add(r.ProbeInterval).Add(-probeLookahead)
			if now.Before(nextDue) {
				continue
			}
		}

		select {
		case m.sem <- struct{}{}:
		case <-m.stopCh:
			return
		}

		m.wg.Add(1)
		go func(r *Route) {
			defer m.wg.Done()
			defer func() { <-m.sem }()
			m.probeRoute(r)
		}(r)
	}
}

// probeRoute executes one timeout-bounded probe and writes the verdict
// back. A failed probe marks the route unhealthy but never removes it.
func (m *Monitor) probeRoute(r *Route) {
	ctx, cancel := context.WithTimeout(context.Background(), r.ProbeTimeout)
	defer cancel()

	latency, err := m.probe(ctx, r.ProbeTarget)
	now := time.Now()
	if err != nil {
		log.Printf("[probe] route %s unreachable: %v", r.ID, err)
		m.registry.applyProbeResult(r, 0, false, now)
		return
	}
	m.registry.applyProbeResult(r, latency, true, now)
}
