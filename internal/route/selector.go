package route

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/maypok86/otter"

	"github.com/wayfinder-proxy/wayfinder/internal/classify"
	"github.com/wayfinder-proxy/wayfinder/internal/geo"
)

var (
	// ErrNoRouteAvailable means no route is currently healthy.
	ErrNoRouteAvailable = errors.New("no route available")
	// ErrNoSuitableRoute means healthy routes exist but none (including
	// the direct fallback) suits the destination's classification.
	ErrNoSuitableRoute = errors.New("no suitable route")
)

// Confidence scoring constants. Base confidence plus the alignment,
// health, and latency bonuses is capped at 1.0.
const (
	confidenceBase       = 0.5
	confidenceFallback   = 0.5
	confidenceAlignment  = 0.3
	confidenceHealthy    = 0.1
	confidenceLowLatency = 0.1

	lowLatencyThreshold = 300 * time.Millisecond
)

// historyCap bounds the per-destination selection history.
const historyCap = 10

// Decision is the selector's output for one destination.
type Decision struct {
	Route  View
	Reason string
	// Confidence is 0.0-1.0; higher means classification, health and
	// latency all agree with the pick.
	Confidence float64
	// Alternatives are the other suitable routes, excluding the chosen one.
	Alternatives []View
	// Strategy is the strategy that made the pick.
	Strategy Strategy
}

// ActiveCountFunc resolves how many connections of a route kind are
// currently active. Fed by the connection tracker.
type ActiveCountFunc func(kind Kind) int64

// destState is the per-destination selection memory: the round-robin
// cursor and a short history of chosen route ids.
type destState struct {
	mu      sync.Mutex
	cursor  int
	history []string
}

func (st *destState) record(routeID string) {
	st.history = append(st.history, routeID)
	if len(st.history) > historyCap {
		st.history = st.history[len(st.history)-historyCap:]
	}
}

// Selector picks one concrete route for a destination by filtering the
// healthy pool to suitable candidates and applying a selection strategy.
type Selector struct {
	registry   *Registry
	classifier *classify.Classifier
	geo        *geo.Tables
	active     ActiveCountFunc

	defaultStrategy func() Strategy
	states          otter.Cache[string, *destState]
}

// SelectorConfig wires a Selector.
type SelectorConfig struct {
	Registry   *Registry
	Classifier *classify.Classifier
	Geo        *geo.Tables
	// ActiveCount feeds the least-connections strategy. Nil means every
	// kind reports zero.
	ActiveCount ActiveCountFunc
	// DefaultStrategy is read per call for hot reload. Nil picks weighted.
	DefaultStrategy func() Strategy
	// MaxDestinationStates bounds the per-destination state cache. <= 0
	// picks 4096.
	MaxDestinationStates int
}

// NewSelector creates a Selector.
func NewSelector(cfg SelectorConfig) *Selector {
	maxStates := cfg.MaxDestinationStates
	if maxStates <= 0 {
		maxStates = 4096
	}
	states, err := otter.MustBuilder[string, *destState](maxStates).
		Cost(func(_ string, _ *destState) uint32 { return 1 }).
		Build()
	if err != nil {
		panic("route: failed to create selector state cache: " + err.Error())
	}
	defStrategy := cfg.DefaultStrategy
	if defStrategy == nil {
		defStrategy = func() Strategy { return StrategyWeighted }
	}
	activeCount := cfg.ActiveCount
	if activeCount == nil {
		activeCount = func(Kind) int64 { return 0 }
	}
	g := cfg.Geo
	if g == nil {
		g = geo.NewTables()
	}
	return &Selector{
		registry:        cfg.Registry,
		classifier:      cfg.Classifier,
		geo:             g,
		active:          activeCount,
		defaultStrategy: defStrategy,
		states:          states,
	}
}

// Shutdown releases the per-destination state cache.
func (s *Selector) Shutdown() {
	s.states.Close()
}

// Select decides how traffic to destination should egress. strategy
// overrides the configured default when non-empty. The two sentinel
// errors are the component's only user-visible failures; the caller (the
// proxy listener) applies its own retry policy.
func (s *Selector) Select(destination string, strategy Strategy) (Decision, error) {
	healthy := s.registry.HealthyRoutes()
	if len(healthy) == 0 {
		return Decision{}, fmt.Errorf("select %s: %w", destination, ErrNoRouteAvailable)
	}

	res := s.classifier.Classify(destination)

	suitable := make([]*Route, 0, len(healthy))
	for _, r := range healthy {
		if suitableForAction(r.Kind, res) {
			suitable = append(suitable, r)
		}
	}

	if len(suitable) == 0 {
		return s.directFallback(destination, healthy, res)
	}

	if strategy == "" {
		strategy = s.defaultStrategy()
	}
	pick, ok := strategies[strategy]
	if !ok {
		pick = pickWeighted
		strategy = StrategyWeighted
	}

	st := s.destinationState(destination)
	st.mu.Lock()
	chosen, strategyReason := pick(s, destination, suitable, st)
	st.record(chosen.ID)
	st.mu.Unlock()

	return Decision{
		Route:        chosen.View(),
		Reason:       buildReason(res, strategyReason, chosen),
		Confidence:   confidence(res, chosen),
		Alternatives: alternatives(suitable, chosen),
		Strategy:     strategy,
	}, nil
}

// directFallback handles the no-suitable-route path: a healthy direct
// route is used with reduced confidence, otherwise selection fails.
func (s *Selector) directFallback(destination string, healthy []*Route, res classify.Result) (Decision, error) {
	for _, r := range healthy {
		if r.Kind == KindDirect {
			return Decision{
				Route:      r.View(),
				Reason:     "no suitable route, defaulting to direct",
				Confidence: confidenceFallback,
				Strategy:   StrategyWeighted,
			}, nil
		}
	}
	return Decision{}, fmt.Errorf("select %s (classified %s): %w", destination, res.Action, ErrNoSuitableRoute)
}

// suitableForAction applies the per-kind eligibility rules.
func suitableForAction(kind Kind, res classify.Result) bool {
	switch kind {
	case KindLoadBalanced:
		return true
	case KindDirect:
		return res.Action == classify.ActionDirect
	case KindProxy:
		return res.Action == classify.ActionProxy || res.AiService
	case KindTunnel:
		return res.Action == classify.ActionTunnel || res.Action == classify.ActionBlock
	}
	return false
}

// kindAligned reports whether the chosen kind is what the classification
// asked for (the +0.3 confidence signal).
func kindAligned(kind Kind, action classify.Action) bool {
	switch action {
	case classify.ActionDirect:
		return kind == KindDirect
	case classify.ActionProxy:
		return kind == KindProxy
	case classify.ActionTunnel, classify.ActionBlock:
		return kind == KindTunnel
	}
	return false
}

func confidence(res classify.Result, chosen *Route) float64 {
	c := confidenceBase
	if kindAligned(chosen.Kind, res.Action) {
		c += confidenceAlignment
	}
	if chosen.Healthy() {
		c += confidenceHealthy
	}
	if avg := chosen.AvgLatency(); avg > 0 && avg < lowLatencyThreshold {
		c += confidenceLowLatency
	}
	if c > 1.0 {
		c = 1.0
	}
	return c
}

// buildReason concatenates the human-readable triggers behind a decision.
func buildReason(res classify.Result, strategyReason string, chosen *Route) string {
	parts := make([]string, 0, 3)
	if res.MatchedRule != nil {
		parts = append(parts, fmt.Sprintf("rule %q: %s", res.MatchedRule.Pattern, res.Reason))
	} else {
		parts = append(parts, "no rule matched, default direct")
	}
	if strategyReason != "" {
		parts = append(parts, strategyReason)
	}
	if avg := chosen.AvgLatency(); avg > 0 && avg < lowLatencyThreshold {
		parts = append(parts, "low latency")
	}
	return strings.Join(parts, "; ")
}

func alternatives(suitable []*Route, chosen *Route) []View {
	if len(suitable) <= 1 {
		return nil
	}
	out := make([]View, 0, len(suitable)-1)
	for _, r := range suitable {
		if r.ID != chosen.ID {
			out = append(out, r.View())
		}
	}
	return out
}

// History returns the recent route ids selected for a destination, oldest
// first.
func (s *Selector) History(destination string) []string {
	st, ok := s.states.Get(destination)
	if !ok {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]string(nil), st.history...)
}

func (s *Selector) destinationState(destination string) *destState {
	if st, ok := s.states.Get(destination); ok {
		return st
	}
	st := &destState{}
	if s.states.SetIfAbsent(destination, st) {
		return st
	}
	// Lost the insert race, or the cache rejected the entry under
	// pressure. Reuse the winner when present; otherwise this call runs
	// on the local state.
	if cur, ok := s.states.Get(destination); ok {
		return cur
	}
	return st
}
