package track

import (
	"math"
	"sync"
	"time"

	"github.com/maypok86/otter"
)

// DomainObservation holds the TD-EWMA latency statistics for one
// destination domain, fed by connection latency samples.
type DomainObservation struct {
	Ewma        time.Duration
	LastUpdated time.Time
}

// ObservationTable is a bounded, thread-safe per-domain latency table
// backed by an otter cache, which handles LRU eviction. The classifier
// reads it to evaluate the high-latency condition.
type ObservationTable struct {
	mu    sync.Mutex
	cache otter.Cache[string, DomainObservation]
}

// NewObservationTable creates a table bounded to maxEntries domains.
func NewObservationTable(maxEntries int) *ObservationTable {
	cache, err := otter.MustBuilder[string, DomainObservation](maxEntries).
		Cost(func(_ string, _ DomainObservation) uint32 { return 1 }).
		Build()
	if err != nil {
		panic("track: failed to create observation table: " + err.Error())
	}
	return &ObservationTable{cache: cache}
}

// Observe records a latency sample for a domain using TD-EWMA:
//
//	weight = exp(-Δt / decayWindow)
//	newEwma = oldEwma * weight + sample * (1 - weight)
//
// The first sample for a domain sets the EWMA to the raw value.
func (t *ObservationTable) Observe(domain string, sample, decayWindow time.Duration) {
	if domain == "" || sample <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	old, found := t.cache.Get(domain)
	if !found {
		t.cache.Set(domain, DomainObservation{Ewma: sample, LastUpdated: now})
		return
	}

	decay := decayWindow.Seconds()
	if decay <= 0 {
		decay = 1 // prevent division by zero
	}
	weight := math.Exp(-now.Sub(old.LastUpdated).Seconds() / decay)
	ewma := time.Duration(float64(old.Ewma)*weight + float64(sample)*(1-weight))
	t.cache.Set(domain, DomainObservation{Ewma: ewma, LastUpdated: now})
}

// Lookup returns the latency EWMA for a domain, if observed.
func (t *ObservationTable) Lookup(domain string) (time.Duration, bool) {
	obs, ok := t.cache.Get(domain)
	if !ok {
		return 0, false
	}
	return obs.Ewma, true
}

// Size returns the number of domains with observations.
func (t *ObservationTable) Size() int {
	return t.cache.Size()
}

// Close releases the underlying cache.
func (t *ObservationTable) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.Close()
}
