package route

import (
	"fmt"
	"time"
)

// Strategy names a route-selection algorithm.
type Strategy string

const (
	StrategyRoundRobin       Strategy = "round-robin"
	StrategyWeighted         Strategy = "weighted"
	StrategyLeastConnections Strategy = "least-connections"
	StrategyFastestResponse  Strategy = "fastest-response"
	StrategyGeoProximity     Strategy = "geo-proximity"
)

// ParseStrategy validates a strategy string from configuration.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyRoundRobin, StrategyWeighted, StrategyLeastConnections,
		StrategyFastestResponse, StrategyGeoProximity:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("route: unknown strategy %q", s)
}

// strategyFunc picks one route from a non-empty candidate list. Candidates
// arrive in registration order; st is locked by the caller.
type strategyFunc func(s *Selector, destination string, candidates []*Route, st *destState) (*Route, string)

var strategies = map[Strategy]strategyFunc{
	StrategyRoundRobin:       pickRoundRobin,
	StrategyWeighted:         pickWeighted,
	StrategyLeastConnections: pickLeastConnections,
	StrategyFastestResponse:  pickFastestResponse,
	StrategyGeoProximity:     pickGeoProximity,
}

// pickRoundRobin cycles through candidates using the destination's cursor,
// so N calls over N stable candidates visit each exactly once.
func pickRoundRobin(_ *Selector, _ string, candidates []*Route, st *destState) (*Route, string) {
	idx := st.cursor % len(candidates)
	st.cursor++
	return candidates[idx], fmt.Sprintf("round-robin position %d", idx)
}

// Weighted scoring thresholds.
const (
	weightedLatencyPenaltyThreshold = time.Second
	weightedLatencyPenalty          = 20.0
	weightedErrorRateFactor         = 2.0
	weightedThroughputBonusBps      = 1 << 20 // 1 MB/s
	weightedThroughputBonus         = 10.0
	weightedUnhealthyPenalty        = 50.0
)

// weightedScore computes the weighted-strategy score, clamped at zero.
func weightedScore(r *Route) float64 {
	score := float64(r.Weight)
	if r.AvgLatency() > weightedLatencyPenaltyThreshold {
		score -= weightedLatencyPenalty
	}
	score -= weightedErrorRateFactor * r.ErrorRatePercent()
	if r.ThroughputBps() > weightedThroughputBonusBps {
		score += weightedThroughputBonus
	}
	if !r.Healthy() {
		score -= weightedUnhealthyPenalty
	}
	if score < 0 {
		score = 0
	}
	return score
}

// pickWeighted takes the max score; ties keep registration order.
func pickWeighted(_ *Selector, _ string, candidates []*Route, _ *destState) (*Route, string) {
	best := candidates[0]
	bestScore := weightedScore(best)
	for _, r := range candidates[1:] {
		if score := weightedScore(r); score > bestScore {
			best, bestScore = r, score
		}
	}
	return best, fmt.Sprintf("weighted score %.1f", bestScore)
}

// pickLeastConnections takes the route kind with the fewest active
// connections; ties keep registration order.
func pickLeastConnections(s *Selector, _ string, candidates []*Route, _ *destState) (*Route, string) {
	best := candidates[0]
	bestCount := s.active(best.Kind)
	for _, r := range candidates[1:] {
		if n := s.active(r.Kind); n < bestCount {
			best, bestCount = r, n
		}
	}
	return best, fmt.Sprintf("least connections (%d active)", bestCount)
}

// pickFastestResponse takes the minimum latency average. Routes without a
// sample lose to measured ones; all-unmeasured keeps registration order.
func pickFastestResponse(_ *Selector, _ string, candidates []*Route, _ *destState) (*Route, string) {
	best := candidates[0]
	bestLatency := measuredLatency(best)
	for _, r := range candidates[1:] {
		if lat := measuredLatency(r); lat < bestLatency {
			best, bestLatency = r, lat
		}
	}
	if bestLatency == unmeasuredLatency {
		return best, "fastest response (no samples yet)"
	}
	return best, fmt.Sprintf("fastest response (%s avg)", bestLatency)
}

const unmeasuredLatency = time.Duration(1<<63 - 1)

func measuredLatency(r *Route) time.Duration {
	if avg := r.AvgLatency(); avg > 0 {
		return avg
	}
	return unmeasuredLatency
}

// pickGeoProximity prefers a suitable direct route for local-TLD
// destinations, and falls back to weighted otherwise.
func pickGeoProximity(s *Selector, destination string, candidates []*Route, st *destState) (*Route, string) {
	if s.geo.IsLocal(destination) {
		for _, r := range candidates {
			if r.Kind == KindDirect {
				return r, "local destination, direct preferred"
			}
		}
	}
	r, reason := pickWeighted(s, destination, candidates, st)
	return r, "geo-proximity fallback: " + reason
}
