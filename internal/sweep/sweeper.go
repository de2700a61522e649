// Package sweep periodically abandons assessment sessions that have gone
// idle past a configured timeout.
package sweep

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"
)

// Abandoner is the slice of the assessment engine the sweeper needs.
type Abandoner interface {
	AbandonIdleSessions(ctx context.Context, olderThan time.Duration) (int, error)
}

// Sweeper runs the idle-session sweep on a fixed interval.
type Sweeper struct {
	scheduler   *gocron.Scheduler
	eng         Abandoner
	idleTimeout time.Duration
}

// New builds a sweeper. A zero or negative idleTimeout disables sweeping;
// Start becomes a no-op.
func New(eng Abandoner, interval, idleTimeout time.Duration) *Sweeper {
	s := gocron.NewScheduler(time.UTC)
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	sw := &Sweeper{scheduler: s, eng: eng, idleTimeout: idleTimeout}
	if idleTimeout > 0 {
		s.Every(interval).Do(sw.runOnce)
	}
	return sw
}

// Start launches the scheduler in the background.
func (s *Sweeper) Start() {
	if s.idleTimeout <= 0 {
		return
	}
	s.scheduler.StartAsync()
}

// Stop terminates the scheduler.
func (s *Sweeper) Stop() {
	s.scheduler.Stop()
}

func (s *Sweeper) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	n, err := s.eng.AbandonIdleSessions(ctx, s.idleTimeout)
	if err != nil {
		log.Printf("sweep: abandoning idle sessions: %v", err)
		return
	}
	if n > 0 {
		log.Printf("sweep: abandoned %d idle session(s)", n)
	}
}
