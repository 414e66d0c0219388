package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"fintrack/internal/log"
)

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

func TestAddJobRejectsInvalidSchedule(t *testing.T) {
	s := New(log.Discard(), time.UTC)
	defer s.Stop()

	if err := s.AddJob("every morning", &countingJob{}); err == nil {
		t.Fatal("expected an error for an invalid schedule")
	}
}

func TestAddJobAcceptsScheduleForms(t *testing.T) {
	s := New(log.Discard(), time.UTC)
	defer s.Stop()

	for _, schedule := range []string{"0 0 8 * * *", "30 7 * * 1-5", "@daily", "@every 1h"} {
		if err := s.AddJob(schedule, &countingJob{}); err != nil {
			t.Fatalf("AddJob(%q): %v", schedule, err)
		}
	}
}

func TestNextUsesLocation(t *testing.T) {
	rome, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	s := New(log.Discard(), rome)
	if err := s.AddJob("0 0 8 * * *", &countingJob{}); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	s.Start()
	defer s.Stop()

	next := s.Next()
	if len(next) != 1 {
		t.Fatalf("expected one entry, got %d", len(next))
	}
	if got := next[0].In(rome); got.Hour() != 8 || got.Minute() != 0 {
		t.Fatalf("next run = %v, want 08:00 Rome time", got)
	}
}

func TestScheduledJobRuns(t *testing.T) {
	s := New(log.Discard(), time.UTC)
	job := &countingJob{}
	if err := s.AddJob("@every 1s", job); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	s.Start()

	deadline := time.Now().Add(3 * time.Second)
	for job.runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	s.Stop()

	if job.runs.Load() == 0 {
		t.Fatal("expected the job to run at least once")
	}
}

func TestRunNow(t *testing.T) {
	s := New(log.Discard(), time.UTC)
	defer s.Stop()

	job := &countingJob{err: errors.New("boom")}
	if err := s.RunNow(job); err == nil || err.Error() != "boom" {
		t.Fatalf("RunNow error = %v, want boom", err)
	}
	if job.runs.Load() != 1 {
		t.Fatalf("runs = %d, want 1", job.runs.Load())
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := New(log.Discard(), time.UTC)
	s.Start()
	s.Stop()
	s.Stop()
}
