package observe

import (
	"fmt"
	"log"
	"time"

	"github.com/wayfinder-proxy/wayfinder/internal/route"
	"github.com/wayfinder-proxy/wayfinder/internal/track"
)

// EntryStatsAggregated is the event type of the periodic aggregation
// heartbeat folded into the event stream.
const EntryStatsAggregated = "stats_aggregated"

// Snapshot is an immutable point-in-time aggregate for dashboards and
// health endpoints.
type Snapshot struct {
	At                time.Time   `json:"at"`
	Connections       track.Stats `json:"connections"`
	Routes            route.Stats `json:"routes"`
	PerformanceAlerts []Alert     `json:"performance_alerts"`
	SecurityAlerts    []Alert     `json:"security_alerts"`
	EventCount        int         `json:"event_count"`
}

// Snapshot aggregates tracker stats, registry stats, and both alert lists.
func (o *Observer) Snapshot() Snapshot {
	s := Snapshot{At: time.Now()}
	if o.trackerStats != nil {
		s.Connections = o.trackerStats()
	}
	if o.registryStats != nil {
		s.Routes = o.registryStats()
	}

	o.mu.Lock()
	for _, a := range o.alertsLocked() {
		if a.Category == CategorySecurity {
			s.SecurityAlerts = append(s.SecurityAlerts, a)
		} else {
			s.PerformanceAlerts = append(s.PerformanceAlerts, a)
		}
	}
	s.EventCount = o.head
	if o.filled {
		s.EventCount = len(o.ring)
	}
	o.mu.Unlock()
	return s
}

// AggregationTick is the scheduler callback for the periodic stats
// aggregation: it folds a snapshot summary into the event stream and
// logs a heartbeat line.
func (o *Observer) AggregationTick() {
	s := o.Snapshot()
	detail := fmt.Sprintf(
		"connections total=%d active=%d routes=%d healthy=%d alerts=%d",
		s.Connections.TotalConnections,
		s.Connections.ActiveConnections,
		s.Routes.RouteCount,
		s.Routes.HealthyCount,
		len(s.PerformanceAlerts)+len(s.SecurityAlerts),
	)

	o.mu.Lock()
	o.appendLocked(Entry{Type: EntryStatsAggregated, At: s.At, Detail: detail})
	o.mu.Unlock()

	log.Printf("[observe] %s", detail)
}

// Recommendation thresholds.
const (
	recommendLatencyThreshold = time.Second
	recommendHealthyRatio     = 0.8
)

// Recommendations derives static-rule suggestions from the current
// snapshot.
func (o *Observer) Recommendations() []string {
	return recommendationsFor(o.Snapshot())
}

func recommendationsFor(s Snapshot) []string {
	var recs []string
	if s.Routes.AverageLatency > recommendLatencyThreshold {
		recs = append(recs, "average route latency is high, optimize routes")
	}
	if s.Routes.RouteCount > 0 {
		ratio := float64(s.Routes.HealthyCount) / float64(s.Routes.RouteCount)
		if ratio < recommendHealthyRatio {
			recs = append(recs, "several routes are unhealthy, check proxy servers")
		}
	}
	if len(s.SecurityAlerts) > 0 {
		recs = append(recs, "active security alerts present, review security alerts")
	}
	return recs
}
