// Package sched centralizes the periodic maintenance tasks (stats
// aggregation, retention sweeps, alert maintenance, journal flushes) into
// one cron runner so shutdown is a single coordinated stop instead of
// clearing scattered timers.
package sched

import (
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs registered callbacks on fixed periods.
type Scheduler struct {
	cron *cron.Cron
}

// New creates a stopped Scheduler; register tasks, then Start.
func New() *Scheduler {
	return &Scheduler{cron: cron.New()}
}

// Every registers fn to run on the given period. The name shows up in
// panic logs. Registration after Start is allowed by the underlying
// runner but tasks are expected to be wired before Start.
func (s *Scheduler) Every(name string, period time.Duration, fn func()) error {
	if period <= 0 {
		return fmt.Errorf("sched: task %s: period must be positive", name)
	}
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", period), func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[sched] task %s panicked: %v", name, r)
			}
		}()
		fn()
	})
	if err != nil {
		return fmt.Errorf("sched: register task %s: %w", name, err)
	}
	return nil
}

// Start begins running registered tasks.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for any running task to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
