package track

import (
	"log"
	"time"
)

// Sweeper periodically removes retained terminal records. It is registered
// with the central scheduler; Tick is the scheduler callback.
type Sweeper struct {
	tracker   *Tracker
	retention func() time.Duration
}

// NewSweeper creates a Sweeper. retention is read per sweep so runtime
// config changes apply; nil falls back to DefaultRetention.
func NewSweeper(tracker *Tracker, retention func() time.Duration) *Sweeper {
	if retention == nil {
		retention = func() time.Duration { return DefaultRetention }
	}
	return &Sweeper{tracker: tracker, retention: retention}
}

// Tick runs one retention sweep.
func (s *Sweeper) Tick() {
	if removed := s.tracker.Sweep(s.retention()); removed > 0 {
		log.Printf("[track] swept %d expired connection records", removed)
	}
}
