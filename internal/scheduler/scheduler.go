// Package scheduler provides cron-based maintenance scheduling for Boothflow.
//
// It drives the periodic stale-work sweeps: requeueing transformation jobs
// and outbox messages orphaned by a crashed worker process.
package scheduler

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultRecoverySchedule runs the stale-work sweeps every five minutes.
const DefaultRecoverySchedule = "*/5 * * * *"

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Use standard 5-field cron parser (min, hour, dom, month, dow) and enable recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// ScheduleSweep registers a named maintenance sweep. Sweep failures are
// logged, never fatal; the next tick retries.
func (s *Scheduler) ScheduleSweep(expr, name string, sweep func() error) error {
	return s.AddJob(expr, func() {
		if err := sweep(); err != nil {
			slog.Error("Scheduler: maintenance sweep failed", "sweep", name, "error", err)
		}
	})
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
