// Package observe implements the passive network observer: it subscribes
// to connection-tracker and route-registry events, derives performance and
// security alerts, and produces point-in-time snapshots and optimization
// recommendations.
package observe

import (
	"sort"
	"sync"
	"time"

	"github.com/wayfinder-proxy/wayfinder/internal/route"
	"github.com/wayfinder-proxy/wayfinder/internal/track"
)

// Entry is one ring-buffer event as seen by the observer.
type Entry struct {
	Type         string    `json:"type"`
	At           time.Time `json:"at"`
	ConnectionID string    `json:"connection_id,omitempty"`
	Destination  string    `json:"destination,omitempty"`
	RouteID      string    `json:"route_id,omitempty"`
	Detail       string    `json:"detail,omitempty"`
}

// Default thresholds; overridable through Config closures.
const (
	DefaultRingCapacity          = 1000
	DefaultLatencyAlertThreshold = 2 * time.Second
	DefaultConnectTimeout        = 30 * time.Second
	DefaultDestinationCeiling    = 50
	defaultAlertRetention        = 10 * time.Minute
	eventQueueSize               = 256
)

// Config wires an Observer.
type Config struct {
	// TrackerStats and RegistryStats feed Snapshot. Either may be nil.
	TrackerStats  func() track.Stats
	RegistryStats func() route.Stats
	// ListActive feeds the connect-timeout sweep. May be nil.
	ListActive func() []track.Record

	// Threshold closures are read per event for hot reload; nil falls
	// back to the defaults above.
	LatencyAlertThreshold func() time.Duration
	ConnectTimeout        func() time.Duration
	DestinationCeiling    func() int
	AlertRetention        func() time.Duration

	// RingCapacity bounds the event buffer. <= 0 picks 1000.
	RingCapacity int
}

// Observer consumes lifecycle and health events over per-producer queues,
// preserving each producer's ordering with one consumer goroutine per
// queue.
type Observer struct {
	mu     sync.Mutex
	ring   []Entry // fixed-capacity circular buffer
	head   int     // next write position
	filled bool

	alerts      map[uint64]*Alert
	perDestOpen map[string]int // open connections per destination

	trackerCh  chan track.Event
	registryCh chan route.Event
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup

	trackerStats  func() track.Stats
	registryStats func() route.Stats
	listActive    func() []track.Record

	latencyThreshold func() time.Duration
	connectTimeout   func() time.Duration
	destCeiling      func() int
	alertRetention   func() time.Duration
}

// New creates an Observer. Call Start to begin consuming events.
func New(cfg Config) *Observer {
	capacity := cfg.RingCapacity
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	o := &Observer{
		ring:             make([]Entry, capacity),
		alerts:           make(map[uint64]*Alert),
		perDestOpen:      make(map[string]int),
		trackerCh:        make(chan track.Event, eventQueueSize),
		registryCh:       make(chan route.Event, eventQueueSize),
		stopCh:           make(chan struct{}),
		trackerStats:     cfg.TrackerStats,
		registryStats:    cfg.RegistryStats,
		listActive:       cfg.ListActive,
		latencyThreshold: cfg.LatencyAlertThreshold,
		connectTimeout:   cfg.ConnectTimeout,
		destCeiling:      cfg.DestinationCeiling,
		alertRetention:   cfg.AlertRetention,
	}
	if o.latencyThreshold == nil {
		o.latencyThreshold = func() time.Duration { return DefaultLatencyAlertThreshold }
	}
	if o.connectTimeout == nil {
		o.connectTimeout = func() time.Duration { return DefaultConnectTimeout }
	}
	if o.destCeiling == nil {
		o.destCeiling = func() int { return DefaultDestinationCeiling }
	}
	if o.alertRetention == nil {
		o.alertRetention = func() time.Duration { return defaultAlertRetention }
	}
	return o
}

// TrackerEventFunc returns the callback the tracker emits into. Delivery
// is fire-and-forget: after Stop, events are discarded.
func (o *Observer) TrackerEventFunc() track.EventFunc {
	return func(ev track.Event) {
		select {
		case o.trackerCh <- ev:
		case <-o.stopCh:
		}
	}
}

// RegistryEventFunc returns the callback the route registry emits into.
func (o *Observer) RegistryEventFunc() route.EventFunc {
	return func(ev route.Event) {
		select {
		case o.registryCh <- ev:
		case <-o.stopCh:
		}
	}
}

// Start launches one consumer per producer queue.
func (o *Observer) Start() {
	o.wg.Add(2)
	go func() {
		defer o.wg.Done()
		for {
			select {
			case ev := <-o.trackerCh:
				o.onTrackerEvent(ev)
			case <-o.stopCh:
				return
			}
		}
	}()
	go func() {
		defer o.wg.Done()
		for {
			select {
			case ev := <-o.registryCh:
				o.onRegistryEvent(ev)
			case <-o.stopCh:
				return
			}
		}
	}()
}

// Stop halts the consumers. Queued events are discarded.
func (o *Observer) Stop() {
	o.stopOnce.Do(func() { close(o.stopCh) })
	o.wg.Wait()
}

func (o *Observer) onTrackerEvent(ev track.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec := ev.Record
	o.appendLocked(Entry{
		Type:         string(ev.Type),
		At:           ev.At,
		ConnectionID: rec.ID,
		Destination:  rec.Destination,
		Detail:       string(rec.State),
	})

	switch ev.Type {
	case track.EventCreated:
		o.perDestOpen[rec.Destination]++
		o.checkSecurityLocked(rec)
	case track.EventUpdated:
		if terminalState(rec.State) {
			o.decayDestLocked(rec.Destination)
		}
		o.checkPerformanceLocked(rec, ev.At)
	case track.EventClosed:
		o.decayDestLocked(rec.Destination)
	}
}

func terminalState(s track.State) bool {
	return s == track.StateClosed || s == track.StateError
}

func (o *Observer) decayDestLocked(dest string) {
	if n := o.perDestOpen[dest]; n > 1 {
		o.perDestOpen[dest] = n - 1
	} else {
		delete(o.perDestOpen, dest)
	}
}

func (o *Observer) checkSecurityLocked(rec track.Record) {
	if frag, ok := matchesSuspicious(rec.Destination); ok {
		o.upsertAlert(AlertSuspiciousDestination, rec.Destination, func(a *Alert) {
			a.Category = CategorySecurity
			a.Severity = SeverityMedium
			a.Destination = rec.Destination
			a.SuggestedAction = "review destination " + rec.Destination + " (matched " + frag + ")"
			a.addAffected(rec.ID)
		})
	}

	ceiling := o.destCeiling()
	if open := o.perDestOpen[rec.Destination]; open > ceiling {
		o.upsertAlert(AlertConnectionFlood, rec.Destination, func(a *Alert) {
			a.Category = CategorySecurity
			a.Severity = SeverityHigh
			a.Destination = rec.Destination
			a.Threshold = float64(ceiling)
			a.Observed = float64(open)
			a.SuggestedAction = "throttle connections to " + rec.Destination
			a.addAffected(rec.ID)
		})
	}
}

func (o *Observer) checkPerformanceLocked(rec track.Record, at time.Time) {
	if thr := o.latencyThreshold(); rec.Latency > thr {
		o.upsertAlert(AlertHighLatency, rec.Destination, func(a *Alert) {
			a.Category = CategoryPerformance
			a.Severity = SeverityMedium
			a.Destination = rec.Destination
			a.Threshold = float64(thr.Milliseconds())
			a.Observed = float64(rec.Latency.Milliseconds())
			a.SuggestedAction = "investigate latency to " + rec.Destination
			a.addAffected(rec.ID)
		})
	}

	if rec.State == track.StateConnecting {
		if timeout := o.connectTimeout(); at.Sub(rec.StartedAt) > timeout {
			o.raiseConnectTimeoutLocked(rec, timeout, at)
		}
	}
}

func (o *Observer) raiseConnectTimeoutLocked(rec track.Record, timeout time.Duration, at time.Time) {
	o.upsertAlert(AlertConnectTimeout, rec.ID, func(a *Alert) {
		a.Category = CategoryPerformance
		a.Severity = SeverityHigh
		a.Destination = rec.Destination
		a.Threshold = timeout.Seconds()
		a.Observed = at.Sub(rec.StartedAt).Seconds()
		a.SuggestedAction = "connection " + rec.ID + " stuck connecting, consider closing"
		a.addAffected(rec.ID)
	})
}

func (o *Observer) onRegistryEvent(ev route.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.appendLocked(Entry{
		Type:    string(ev.Type),
		At:      ev.At,
		RouteID: ev.Route.ID,
		Detail:  healthDetail(ev),
	})

	if ev.Type == route.EventHealthChanged && !ev.IsHealthy {
		o.upsertAlert(AlertRouteFailure, ev.Route.ID, func(a *Alert) {
			a.Category = CategoryPerformance
			a.Severity = SeverityHigh
			a.RouteID = ev.Route.ID
			a.SuggestedAction = "route " + ev.Route.Name + " failed health check, verify " + ev.Route.ProbeTarget
		})
	}
}

func healthDetail(ev route.Event) string {
	if ev.Type != route.EventHealthChanged {
		return string(ev.Route.Kind)
	}
	if ev.IsHealthy {
		return "recovered"
	}
	return "unhealthy"
}

// appendLocked writes into the circular buffer, evicting the oldest entry
// once full.
func (o *Observer) appendLocked(e Entry) {
	o.ring[o.head] = e
	o.head++
	if o.head == len(o.ring) {
		o.head = 0
		o.filled = true
	}
}

// RecentEvents returns up to limit events, newest first.
func (o *Observer) RecentEvents(limit int) []Entry {
	return o.eventsWhere(limit, func(Entry) bool { return true })
}

// EventsByType returns up to limit events of one type, newest first.
func (o *Observer) EventsByType(eventType string, limit int) []Entry {
	return o.eventsWhere(limit, func(e Entry) bool { return e.Type == eventType })
}

func (o *Observer) eventsWhere(limit int, keep func(Entry) bool) []Entry {
	o.mu.Lock()
	defer o.mu.Unlock()

	size := o.head
	if o.filled {
		size = len(o.ring)
	}
	if limit <= 0 || limit > size {
		limit = size
	}
	out := make([]Entry, 0, limit)
	for i := 1; i <= size && len(out) < limit; i++ {
		idx := (o.head - i + len(o.ring)) % len(o.ring)
		if keep(o.ring[idx]) {
			out = append(out, o.ring[idx])
		}
	}
	return out
}

// ActiveAlerts returns all current alerts, newest-refreshed first.
func (o *Observer) ActiveAlerts() []Alert {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.alertsLocked()
}

func (o *Observer) alertsLocked() []Alert {
	out := make([]Alert, 0, len(o.alerts))
	for _, a := range o.alerts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out
}

// MaintenanceTick is the scheduler callback: it expires stale alerts and
// re-checks long-connecting records the update stream missed.
func (o *Observer) MaintenanceTick() {
	now := time.Now()

	var stuck []track.Record
	if o.listActive != nil {
		timeout := o.connectTimeout()
		for _, rec := range o.listActive() {
			if rec.State == track.StateConnecting && now.Sub(rec.StartedAt) > timeout {
				stuck = append(stuck, rec)
			}
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for _, rec := range stuck {
		o.raiseConnectTimeoutLocked(rec, o.connectTimeout(), now)
	}

	retention := o.alertRetention()
	for key, a := range o.alerts {
		if now.Sub(a.LastSeen) > retention {
			delete(o.alerts, key)
		}
	}
}
