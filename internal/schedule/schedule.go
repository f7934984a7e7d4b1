// Package schedule drives recurring update passes from a six-field cron
// expression (seconds included).
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"updagent/internal/logging"
)

// DefaultExpr fires once a day at 01:00:00.
const DefaultExpr = "0 0 1 * * ?"

var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Scheduler runs a pass whenever its cron expression comes due. Passes run
// in the scheduler goroutine, so a stop request waits for the pass in flight.
type Scheduler struct {
	schedule cron.Schedule
	expr     string
	log      logging.Logger

	// Tick is the poll interval; Now is the clock. Both overridable in tests.
	Tick time.Duration
	Now  func() time.Time
}

func New(expr string) (*Scheduler, error) {
	if expr == "" {
		expr = DefaultExpr
	}
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("SCHED_PARSE: %q: %w", expr, err)
	}
	return &Scheduler{
		schedule: sched,
		expr:     expr,
		log:      logging.New("schedule"),
		Tick:     time.Second,
		Now:      time.Now,
	}, nil
}

func (s *Scheduler) Expr() string { return s.expr }

// NextAfter reports the first firing time strictly after t.
func (s *Scheduler) NextAfter(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Run loops until ctx is cancelled, invoking pass at each due time. A panic
// inside pass is logged and the loop keeps going; a cancelled ctx stops the
// loop after the current pass returns.
func (s *Scheduler) Run(ctx context.Context, pass func(context.Context)) error {
	next := s.schedule.Next(s.Now())
	s.log.WithField("at", next).Info("next pass scheduled")

	ticker := time.NewTicker(s.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			now := s.Now()
			if now.Before(next) {
				continue
			}
			s.runPass(ctx, pass)
			next = s.schedule.Next(s.Now())
			s.log.WithField("at", next).Info("next pass scheduled")
		}
	}
}

func (s *Scheduler) runPass(ctx context.Context, pass func(context.Context)) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Errorf("pass panicked: %v", rec)
		}
	}()
	pass(ctx)
}
