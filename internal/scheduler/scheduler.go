// Package scheduler runs the periodic jobs: the rate limiter sweep and the
// optional pending-email drain.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/heartbeathq/heartbeat/internal/logger"
)

const sweepSpec = "@every 15m"

// Sweeper is implemented by the rate limiter.
type Sweeper interface {
	Sweep() int
}

// Drainer is implemented by the dispatch service.
type Drainer interface {
	DrainPending(ctx context.Context) error
}

type Scheduler struct {
	cron *cron.Cron
	log  *logrus.Entry
}

func New() *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  logger.Component("scheduler"),
	}
}

// AddSweepJob removes expired rate limit windows every 15 minutes.
func (s *Scheduler) AddSweepJob(sw Sweeper) error {
	_, err := s.cron.AddFunc(sweepSpec, func() {
		if n := sw.Sweep(); n > 0 {
			s.log.WithField("removed", n).Debug("rate limit windows swept")
		}
	})
	return err
}

// AddDrainJob advances pending invitation sends on the given cron spec. Each
// run gets a minute before it is cut off.
func (s *Scheduler) AddDrainJob(spec string, d Drainer) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := d.DrainPending(ctx); err != nil {
			s.log.WithError(err).Warn("pending email drain failed")
		}
	})
	return err
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started")
}

// Stop halts scheduling and waits for any running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped")
}
