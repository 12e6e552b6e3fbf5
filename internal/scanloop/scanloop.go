// Package scanloop implements the jittered periodic loop behind the
// health monitor. Jitter keeps independent loops from synchronizing
// their scans.
package scanloop

import (
	"math/rand/v2"
	"time"
)

// DefaultInterval and DefaultJitter define the standard scan cadence.
const (
	DefaultInterval = 13 * time.Second
	DefaultJitter   = 4 * time.Second
)

// Config tunes one loop.
type Config struct {
	// Interval is the minimum gap between passes. <= 0 picks one second.
	Interval time.Duration
	// Jitter widens each gap by random([0, Jitter)). Negative is treated
	// as zero.
	Jitter time.Duration
	// Immediate runs the first pass right away instead of after the
	// first interval. Route monitors want an early verdict at startup.
	Immediate bool
}

// Run executes fn on a jittered period until stopCh is closed. It blocks;
// callers run it on their own goroutine.
func Run(stopCh <-chan struct{}, cfg Config, fn func()) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	jitter := cfg.Jitter
	if jitter < 0 {
		jitter = 0
	}

	if cfg.Immediate {
		select {
		case <-stopCh:
			return
		default:
		}
		fn()
	}

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		gap := interval
		if jitter > 0 {
			gap += time.Duration(rand.Int64N(int64(jitter)))
		}

		timer.Reset(gap)
		select {
		case <-stopCh:
			return
		case <-timer.C:
		}
		fn()
	}
}
