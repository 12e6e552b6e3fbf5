package observe

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"
)

// Category separates performance alerts from security alerts.
type Category string

const (
	CategoryPerformance Category = "performance"
	CategorySecurity    Category = "security"
)

// AlertKind identifies what triggered an alert.
type AlertKind string

const (
	AlertHighLatency           AlertKind = "high_latency"
	AlertConnectTimeout        AlertKind = "connect_timeout"
	AlertRouteFailure          AlertKind = "route_failure"
	AlertSuspiciousDestination AlertKind = "suspicious_destination"
	AlertConnectionFlood       AlertKind = "connection_flood"
)

// Severity ranks an alert. Security alerts use it as the risk level.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert is a derived, deduplicated observation. Repeated breaches of the
// same (kind, affected-set) update an existing alert in place.
type Alert struct {
	ID       string    `json:"id"`
	Kind     AlertKind `json:"kind"`
	Category Category  `json:"category"`
	Severity Severity  `json:"severity"`

	Threshold float64 `json:"threshold"`
	Observed  float64 `json:"observed"`

	// AffectedConnections lists connection ids implicated by this alert
	// (bounded; oldest dropped first).
	AffectedConnections []string `json:"affected_connections,omitempty"`
	Destination         string   `json:"destination,omitempty"`
	RouteID             string   `json:"route_id,omitempty"`

	SuggestedAction string    `json:"suggested_action"`
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
	Count           int       `json:"count"`
}

const maxAffectedConnections = 16

// dedupKey collapses alerts of the same kind over the same affected set.
func dedupKey(kind AlertKind, affected string) uint64 {
	return xxh3.HashString(string(kind) + "\x00" + affected)
}

// upsertAlert refreshes an existing alert or creates a new one. Caller
// holds the observer lock.
func (o *Observer) upsertAlert(kind AlertKind, affected string, build func(a *Alert)) {
	key := dedupKey(kind, affected)
	now := time.Now()
	a, ok := o.alerts[key]
	if !ok {
		a = &Alert{
			ID:        uuid.NewString(),
			Kind:      kind,
			FirstSeen: now,
		}
		o.alerts[key] = a
	}
	a.LastSeen = now
	a.Count++
	build(a)
}

// addAffected appends a connection id, deduping and bounding the list.
func (a *Alert) addAffected(connID string) {
	if connID == "" {
		return
	}
	for _, id := range a.AffectedConnections {
		if id == connID {
			return
		}
	}
	a.AffectedConnections = append(a.AffectedConnections, connID)
	if len(a.AffectedConnections) > maxAffectedConnections {
		a.AffectedConnections = a.AffectedConnections[len(a.AffectedConnections)-maxAffectedConnections:]
	}
}

// suspiciousFragments is the default substring list checked against new
// connection destinations. Matches raise a medium-risk security alert.
var suspiciousFragments = []string{
	".onion",
	"torrent",
	"miner",
	"xmr-pool",
	"coinhive",
	"botnet",
	"stratum",
}

func matchesSuspicious(destination string) (string, bool) {
	d := strings.ToLower(destination)
	for _, frag := range suspiciousFragments {
		if strings.Contains(d, frag) {
			return frag, true
		}
	}
	return "", false
}
