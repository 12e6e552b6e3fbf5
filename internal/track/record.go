// Package track owns the authoritative record of every in-flight and
// recently-closed logical connection: lifecycle mutation, aggregate
// statistics, and the per-domain latency observation table.
package track

import "time"

// Protocol is the application protocol of a connection.
type Protocol string

const (
	ProtocolHTTP  Protocol = "http"
	ProtocolHTTPS Protocol = "https"
	ProtocolWS    Protocol = "ws"
	ProtocolWSS   Protocol = "wss"
)

// Kind is the egress route kind a connection was assigned at creation.
type Kind string

const (
	KindDirect Kind = "direct"
	KindProxy  Kind = "proxy"
	KindTunnel Kind = "tunnel"
)

// Kinds lists all connection kinds in a stable order.
var Kinds = []Kind{KindDirect, KindProxy, KindTunnel}

// State is a connection's lifecycle state. Transitions move forward only,
// except error, which is terminal from any non-terminal state.
type State string

const (
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateIdle       State = "idle"
	StateClosed     State = "closed"
	StateError      State = "error"
)

// stateRank orders states for the forward-only transition check.
func stateRank(s State) int {
	switch s {
	case StateConnecting:
		return 0
	case StateConnected:
		return 1
	case StateIdle:
		return 2
	case StateClosed, StateError:
		return 3
	}
	return -1
}

func terminal(s State) bool { return s == StateClosed || s == StateError }

// GeoInfo carries optional geo enrichment for a connection.
type GeoInfo struct {
	Country string
	Region  string
	Blocked bool
}

// Record is one observed logical connection. Callers always receive copies;
// the tracker owns the authoritative value.
type Record struct {
	ID             string
	Destination    string
	Port           int
	Protocol       Protocol
	Kind           Kind
	State          State
	StartedAt      time.Time
	LastActivityAt time.Time
	ClosedAt       time.Time // zero until terminal
	BytesIn        int64
	BytesOut       int64
	Latency        time.Duration // most recent sample; 0 = none yet
	ProxyChain     []string
	Geo            *GeoInfo
	CloseReason    string
}

// Active reports whether the record counts toward the active set.
func (r *Record) Active() bool {
	return r.State == StateConnecting || r.State == StateConnected
}

// Patch is a partial update applied by Update. Nil fields are left
// untouched. Byte counters are absolute values and may only grow.
type Patch struct {
	State      *State
	BytesIn    *int64
	BytesOut   *int64
	Latency    *time.Duration
	ProxyChain []string
	Geo        *GeoInfo
}

// EventType identifies a tracker lifecycle event.
type EventType string

const (
	EventCreated EventType = "connection_created"
	EventUpdated EventType = "connection_updated"
	EventClosed  EventType = "connection_closed"
)

// Event is a connection lifecycle notification. Record is a copy taken
// after the mutation was applied.
type Event struct {
	Type   EventType
	Record Record
	Reason string // close reason, when Type is EventClosed
	At     time.Time
}

// EventFunc receives lifecycle events synchronously from mutation paths.
// Handlers must stay lightweight and non-blocking; push heavy work to
// async queues.
type EventFunc func(Event)
