package track

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/wayfinder-proxy/wayfinder/internal/netutil"
)

// DefaultRetention is how long closed records are kept before the sweep
// removes them. Cumulative counters survive record removal.
const DefaultRetention = 5 * time.Minute

const defaultObservationDecayWindow = 10 * time.Minute

// slot wraps a record with its own lock so concurrent mutations of
// different connections never contend and no caller observes a record
// mid-transition.
type slot struct {
	mu  sync.Mutex
	rec Record
}

// Tracker is the connection-lifecycle system of record.
type Tracker struct {
	records *xsync.Map[string, *slot]

	total          atomic.Int64 // created, never decremented
	active         atomic.Int64 // not yet closed/errored
	everConnected  atomic.Int64 // reached connected at least once
	errored        atomic.Int64
	closedBytesIn  atomic.Int64 // folded on terminal transition
	closedBytesOut atomic.Int64
	latencySumNs   atomic.Int64
	latencyCount   atomic.Int64

	activeByKind  map[Kind]*atomic.Int64
	createdByKind map[Kind]*atomic.Int64

	observations *ObservationTable
	decayWindow  func() time.Duration

	onEvent EventFunc
}

// Config configures a Tracker.
type Config struct {
	// OnEvent is called synchronously from mutation paths; keep it light.
	OnEvent EventFunc
	// MaxObservedDomains bounds the latency observation table. <= 0 picks
	// a default of 1024.
	MaxObservedDomains int
	// ObservationDecayWindow is read per sample for hot reload. Nil falls
	// back to 10m.
	ObservationDecayWindow func() time.Duration
}

// New creates a Tracker.
func New(cfg Config) *Tracker {
	maxDomains := cfg.MaxObservedDomains
	if maxDomains <= 0 {
		maxDomains = 1024
	}
	decay := cfg.ObservationDecayWindow
	if decay == nil {
		decay = func() time.Duration { return defaultObservationDecayWindow }
	}
	t := &Tracker{
		records:       xsync.NewMap[string, *slot](),
		activeByKind:  make(map[Kind]*atomic.Int64, len(Kinds)),
		createdByKind: make(map[Kind]*atomic.Int64, len(Kinds)),
		observations:  NewObservationTable(maxDomains),
		decayWindow:   decay,
		onEvent:       cfg.OnEvent,
	}
	for _, k := range Kinds {
		t.activeByKind[k] = &atomic.Int64{}
		t.createdByKind[k] = &atomic.Int64{}
	}
	return t
}

// Create allocates a record in state connecting and returns its id. kind
// is the route kind the selector decided for this connection; it is fixed
// for the record's lifetime.
func (t *Tracker) Create(destination string, port int, protocol Protocol, kind Kind) string {
	now := time.Now()
	rec := Record{
		ID:             uuid.NewString(),
		Destination:    destination,
		Port:           port,
		Protocol:       protocol,
		Kind:           kind,
		State:          StateConnecting,
		StartedAt:      now,
		LastActivityAt: now,
	}
	t.records.Store(rec.ID, &slot{rec: rec})

	t.total.Add(1)
	t.active.Add(1)
	if c, ok := t.createdByKind[kind]; ok {
		c.Add(1)
	}
	if c, ok := t.activeByKind[kind]; ok {
		c.Add(1)
	}

	t.emit(Event{Type: EventCreated, Record: rec, At: now})
	return rec.ID
}

// Update merges a partial patch into a record and refreshes its activity
// timestamp. Unknown ids and terminal records are no-ops. A state change
// that would move backward is ignored; a change into closed/error folds
// byte counters into cumulative totals and decrements the active count.
func (t *Tracker) Update(id string, p Patch) {
	s, ok := t.records.Load(id)
	if !ok {
		return
	}

	s.mu.Lock()
	rec := &s.rec
	if terminal(rec.State) {
		s.mu.Unlock()
		return
	}

	now := time.Now()
	rec.LastActivityAt = now

	if p.BytesIn != nil && *p.BytesIn > rec.BytesIn {
		rec.BytesIn = *p.BytesIn
	}
	if p.BytesOut != nil && *p.BytesOut > rec.BytesOut {
		rec.BytesOut = *p.BytesOut
	}
	if p.Latency != nil && *p.Latency > 0 {
		rec.Latency = *p.Latency
		t.latencySumNs.Add(int64(*p.Latency))
		t.latencyCount.Add(1)
	}
	if p.ProxyChain != nil {
		rec.ProxyChain = append([]string(nil), p.ProxyChain...)
	}
	if p.Geo != nil {
		geoCopy := *p.Geo
		rec.Geo = &geoCopy
	}
	if p.State != nil {
		t.applyStateLocked(rec, *p.State, now)
	}

	snapshot := cloneRecord(rec)
	s.mu.Unlock()

	// Feed the per-domain observation table outside the slot lock.
	if p.Latency != nil && *p.Latency > 0 {
		t.observations.Observe(netutil.ExtractDomain(snapshot.Destination), *p.Latency, t.decayWindow())
	}

	t.emit(Event{Type: EventUpdated, Record: snapshot, At: now})
}

// applyStateLocked transitions rec to next if the move is legal, adjusting
// counters. Caller holds the slot lock.
func (t *Tracker) applyStateLocked(rec *Record, next State, now time.Time) {
	if next != StateError && stateRank(next) <= stateRank(rec.State) {
		return // backward or same-rank move, ignored
	}
	prev := rec.State
	rec.State = next

	if next == StateConnected && prev == StateConnecting {
		t.everConnected.Add(1)
	}
	if terminal(next) {
		rec.ClosedAt = now
		t.active.Add(-1)
		if c, ok := t.activeByKind[rec.Kind]; ok {
			c.Add(-1)
		}
		t.closedBytesIn.Add(rec.BytesIn)
		t.closedBytesOut.Add(rec.BytesOut)
		if next == StateError {
			t.errored.Add(1)
		}
	}
}

// Close transitions a record to closed and emits EventClosed. Unknown ids
// and already-terminal records are no-ops; a second Close emits nothing.
func (t *Tracker) Close(id, reason string) {
	s, ok := t.records.Load(id)
	if !ok {
		return
	}

	s.mu.Lock()
	if terminal(s.rec.State) {
		s.mu.Unlock()
		return
	}
	now := time.Now()
	s.rec.LastActivityAt = now
	s.rec.CloseReason = reason
	t.applyStateLocked(&s.rec, StateClosed, now)
	snapshot := cloneRecord(&s.rec)
	s.mu.Unlock()

	t.emit(Event{Type: EventClosed, Record: snapshot, Reason: reason, At: now})
}

// Get returns a copy of a record.
func (t *Tracker) Get(id string) (Record, bool) {
	s, ok := t.records.Load(id)
	if !ok {
		return Record{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneRecord(&s.rec), true
}

// ListActive returns copies of records in state connecting or connected.
func (t *Tracker) ListActive() []Record {
	var out []Record
	t.records.Range(func(_ string, s *slot) bool {
		s.mu.Lock()
		if s.rec.Active() {
			out = append(out, cloneRecord(&s.rec))
		}
		s.mu.Unlock()
		return true
	})
	return out
}

// ListByKind returns copies of all retained records of the given kind.
func (t *Tracker) ListByKind(kind Kind) []Record {
	var out []Record
	t.records.Range(func(_ string, s *slot) bool {
		s.mu.Lock()
		if s.rec.Kind == kind {
			out = append(out, cloneRecord(&s.rec))
		}
		s.mu.Unlock()
		return true
	})
	return out
}

// ActiveByKind returns the number of not-yet-terminal connections of a kind.
func (t *Tracker) ActiveByKind(kind Kind) int64 {
	if c, ok := t.activeByKind[kind]; ok {
		return c.Load()
	}
	return 0
}

// ObservedLatency resolves the latency EWMA for a destination domain. It
// satisfies the classifier's LatencyLookup dependency.
func (t *Tracker) ObservedLatency(domain string) (time.Duration, bool) {
	return t.observations.Lookup(domain)
}

// Sweep removes closed/errored records whose terminal transition is older
// than retention, returning how many were removed. Cumulative counters are
// untouched.
func (t *Tracker) Sweep(retention time.Duration) int {
	cutoff := time.Now().Add(-retention)
	removed := 0
	t.records.Range(func(id string, s *slot) bool {
		s.mu.Lock()
		expired := terminal(s.rec.State) && !s.rec.ClosedAt.IsZero() && s.rec.ClosedAt.Before(cutoff)
		s.mu.Unlock()
		if expired {
			t.records.Delete(id)
			removed++
		}
		return true
	})
	return removed
}

// Shutdown releases the observation table.
func (t *Tracker) Shutdown() {
	t.observations.Close()
}

func (t *Tracker) emit(ev Event) {
	if t.onEvent != nil {
		t.onEvent(ev)
	}
}

func cloneRecord(r *Record) Record {
	cp := *r
	if r.ProxyChain != nil {
		cp.ProxyChain = append([]string(nil), r.ProxyChain...)
	}
	if r.Geo != nil {
		geoCopy := *r.Geo
		cp.Geo = &geoCopy
	}
	return cp
}

// Stats is the aggregate connection view.
type Stats struct {
	TotalConnections  int64         `json:"total_connections"`
	ActiveConnections int64         `json:"active_connections"`
	ErrorConnections  int64         `json:"error_connections"`
	AverageLatency    time.Duration `json:"average_latency_ns"`
	// SuccessRate is everConnected / total, 0 when no connections exist.
	SuccessRate        float64        `json:"success_rate"`
	CumulativeBytesIn  int64          `json:"cumulative_bytes_in"`
	CumulativeBytesOut int64          `json:"cumulative_bytes_out"`
	ActiveByKind       map[Kind]int64 `json:"active_by_kind"`
}

// Stats returns the aggregate counters. Reads are eventually consistent
// with respect to in-flight mutations.
func (t *Tracker) Stats() Stats {
	s := Stats{
		TotalConnections:   t.total.Load(),
		ActiveConnections:  t.active.Load(),
		ErrorConnections:   t.errored.Load(),
		CumulativeBytesIn:  t.closedBytesIn.Load(),
		CumulativeBytesOut: t.closedBytesOut.Load(),
		ActiveByKind:       make(map[Kind]int64, len(Kinds)),
	}
	if n := t.latencyCount.Load(); n > 0 {
		s.AverageLatency = time.Duration(t.latencySumNs.Load() / n)
	}
	if s.TotalConnections > 0 {
		s.SuccessRate = float64(t.everConnected.Load()) / float64(s.TotalConnections)
	}
	for _, k := range Kinds {
		s.ActiveByKind[k] = t.activeByKind[k].Load()
	}
	return s
}

// DestinationCount pairs a destination with its retained-record count.
type DestinationCount struct {
	Destination string `json:"destination"`
	Count       int    `json:"count"`
}

// DetailedStats breaks retained records down by state and kind.
type DetailedStats struct {
	Stats
	ByState map[State]int64 `json:"by_state"`
	// CreatedByKind counts all created connections per kind, including
	// swept ones.
	CreatedByKind map[Kind]int64 `json:"created_by_kind"`
	// TopDestinations lists up to 10 destinations by retained-record count.
	TopDestinations []DestinationCount `json:"top_destinations"`
	// AverageClosedDuration averages StartedAt..ClosedAt over retained
	// closed records.
	AverageClosedDuration time.Duration `json:"average_closed_duration_ns"`
}

// DetailedStats scans retained records for the per-state/per-destination
// breakdown on top of Stats.
func (t *Tracker) DetailedStats() DetailedStats {
	ds := DetailedStats{
		Stats:         t.Stats(),
		ByState:       make(map[State]int64),
		CreatedByKind: make(map[Kind]int64, len(Kinds)),
	}
	for _, k := range Kinds {
		ds.CreatedByKind[k] = t.createdByKind[k].Load()
	}

	destCounts := make(map[string]int)
	var closedDurSum time.Duration
	var closedCount int64
	t.records.Range(func(_ string, s *slot) bool {
		s.mu.Lock()
		ds.ByState[s.rec.State]++
		destCounts[s.rec.Destination]++
		if s.rec.State == StateClosed && !s.rec.ClosedAt.IsZero() {
			closedDurSum += s.rec.ClosedAt.Sub(s.rec.StartedAt)
			closedCount++
		}
		s.mu.Unlock()
		return true
	})
	if closedCount > 0 {
		ds.AverageClosedDuration = closedDurSum / time.Duration(closedCount)
	}

	tops := make([]DestinationCount, 0, len(destCounts))
	for dest, n := range destCounts {
		tops = append(tops, DestinationCount{Destination: dest, Count: n})
	}
	sort.Slice(tops, func(i, j int) bool {
		if tops[i].Count != tops[j].Count {
			return tops[i].Count > tops[j].Count
		}
		return tops[i].Destination < tops[j].Destination
	})
	if len(tops) > 10 {
		tops = tops[:10]
	}
	ds.TopDestinations = tops
	return ds
}
