// Package scheduler runs background jobs on cron schedules.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"fintrack/internal/log"
)

// Parser accepts standard five-field specs, an optional leading seconds
// field and descriptors such as @daily.
var Parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Job represents a scheduled job
type Job interface {
	Run(ctx context.Context) error
	Name() string
}

// Scheduler manages background jobs
type Scheduler struct {
	cron   *cron.Cron
	log    *log.Logger
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// New creates a scheduler evaluating schedules in loc. Overlapping runs of
// the same job are skipped.
func New(logger *log.Logger, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	logger = logger.WithComponent(log.ComponentScheduler)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(Parser),
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})),
		),
		log:    logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("Scheduler started")
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.once.Do(func() {
		s.cancel()
		<-s.cron.Stop().Done()
		s.log.Info("Scheduler stopped")
	})
}

// AddJob registers job under schedule, for example "0 0 8 * * *" for every
// day at 08:00 or "@every 30s".
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.execute(job)
	})
	if err != nil {
		return err
	}

	s.log.Info("Job registered", "schedule", schedule, log.FieldJob, job.Name())
	return nil
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info("Running job immediately", log.FieldJob, job.Name())
	return job.Run(s.ctx)
}

// Next returns the next activation of every registered job.
func (s *Scheduler) Next() []time.Time {
	entries := s.cron.Entries()
	next := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		next = append(next, e.Next)
	}
	return next
}

func (s *Scheduler) execute(job Job) {
	start := time.Now()
	s.log.Debug("Running job", log.FieldJob, job.Name())

	if err := job.Run(s.ctx); err != nil {
		s.log.Error("Job failed",
			log.FieldJob, job.Name(),
			log.FieldError, err,
			log.FieldDuration, time.Since(start).Milliseconds())
		return
	}
	s.log.Debug("Job completed",
		log.FieldJob, job.Name(),
		log.FieldDuration, time.Since(start).Milliseconds())
}

// cronLogger adapts log.Logger to cron.Logger.
type cronLogger struct {
	l *log.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append([]interface{}{log.FieldError, err}, keysAndValues...)...)
}
