package journal

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/wayfinder-proxy/wayfinder/internal/track"
)

// Service buffers closed connection records and flushes them to the repo
// in batches. Enqueue never blocks the tracker's event path: when the
// queue is full the record is dropped and counted.
type Service struct {
	repo      *Repo
	queue     chan Row
	batchSize int
	dropped   atomic.Int64

	stopOnce sync.Once
	stopped  chan struct{}
}

// NewService creates a Service over an opened repo. queueSize <= 0 picks
// 4096; batchSize <= 0 picks 512.
func NewService(repo *Repo, queueSize, batchSize int) *Service {
	if queueSize <= 0 {
		queueSize = 4096
	}
	if batchSize <= 0 {
		batchSize = 512
	}
	return &Service{
		repo:      repo,
		queue:     make(chan Row, queueSize),
		batchSize: batchSize,
		stopped:   make(chan struct{}),
	}
}

// Record converts a terminal connection record into a journal row and
// enqueues it. Non-terminal records are ignored.
func (s *Service) Record(rec track.Record) {
	if rec.State != track.StateClosed && rec.State != track.StateError {
		return
	}
	row := Row{
		ID:          rec.ID,
		ClosedAtNs:  rec.ClosedAt.UnixNano(),
		Destination: rec.Destination,
		Port:        rec.Port,
		Protocol:    string(rec.Protocol),
		Kind:        string(rec.Kind),
		State:       string(rec.State),
		BytesIn:     rec.BytesIn,
		BytesOut:    rec.BytesOut,
		LatencyNs:   int64(rec.Latency),
		CloseReason: rec.CloseReason,
	}
	if !rec.ClosedAt.IsZero() {
		row.DurationNs = rec.ClosedAt.Sub(rec.StartedAt).Nanoseconds()
	}
	if rec.Geo != nil {
		row.Country = rec.Geo.Country
	}

	select {
	case s.queue <- row:
	default:
		s.dropped.Add(1)
	}
}

// TrackerEventFunc adapts Record into a tracker event callback that
// journals terminal transitions. A connection can reach closed or error
// through Close or through an Update state patch; both paths land here
// and Record screens out everything non-terminal.
func (s *Service) TrackerEventFunc() track.EventFunc {
	return func(ev track.Event) {
		switch ev.Type {
		case track.EventClosed:
			s.Record(ev.Record)
		case track.EventUpdated:
			if ev.Record.State == track.StateClosed || ev.Record.State == track.StateError {
				s.Record(ev.Record)
			}
		}
	}
}

// FlushTick is the scheduler callback: it drains up to batchSize queued
// rows and writes them in one transaction.
func (s *Service) FlushTick() {
	rows := s.drain(s.batchSize)
	if len(rows) == 0 {
		return
	}
	if err := s.repo.Insert(rows); err != nil {
		log.Printf("[journal] flush of %d rows failed: %v", len(rows), err)
	}
}

// Dropped returns how many rows were discarded due to queue overflow.
func (s *Service) Dropped() int64 {
	return s.dropped.Load()
}

// Stop drains everything still queued and closes the repo.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		for {
			rows := s.drain(s.batchSize)
			if len(rows) == 0 {
				break
			}
			if err := s.repo.Insert(rows); err != nil {
				log.Printf("[journal] final flush failed: %v", err)
				break
			}
		}
		if err := s.repo.Close(); err != nil {
			log.Printf("[journal] close failed: %v", err)
		}
		close(s.stopped)
	})
}

func (s *Service) drain(max int) []Row {
	rows := make([]Row, 0, max)
	for len(rows) < max {
		select {
		case row := <-s.queue:
			rows = append(rows, row)
		default:
			return rows
		}
	}
	return rows
}
