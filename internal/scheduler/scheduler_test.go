package scheduler

import (
	"errors"
	"testing"
)

func TestSchedulerAddJob(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	// Should add a valid cron job without error
	if err := s.AddJob("* * * * *", func() {}); err != nil {
		t.Errorf("Expected no error adding job, got %v", err)
	}
}

func TestSchedulerRejectsInvalidExpression(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	if err := s.AddJob("not-a-cron", func() {}); err == nil {
		t.Error("Expected error for invalid cron expression")
	}
}

func TestScheduleSweepAcceptsFailingSweep(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	err := s.ScheduleSweep(DefaultRecoverySchedule, "stale-jobs", func() error {
		return errors.New("db unavailable")
	})
	if err != nil {
		t.Errorf("Expected sweep registration to succeed, got %v", err)
	}
}
