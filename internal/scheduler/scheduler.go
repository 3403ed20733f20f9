// Package scheduler runs the periodic alert and accuracy jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"CoinFlow/internal/domain/models"
	"CoinFlow/pkg/config"
	"CoinFlow/pkg/logger"
)

// Job is one unit of periodic work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// JobFunc adapts a function to Job.
type JobFunc struct {
	JobName string
	Fn      func(ctx context.Context) error
}

func (j JobFunc) Name() string                  { return j.JobName }
func (j JobFunc) Run(ctx context.Context) error { return j.Fn(ctx) }

type entry struct {
	spec    string
	timeout time.Duration
	job     Job
	id      cron.EntryID
}

// Scheduler wraps robfig/cron. A tick that is still running when the next one is due is skipped,
// and a panicking job is recovered and logged.
type Scheduler struct {
	cron   *cron.Cron
	logger *logger.Logger

	mu      sync.Mutex
	entries map[string]*entry
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(l *logger.Logger) *Scheduler {
	cl := logger.NewCronLogger(l)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(config.ScheduleParser),
			cron.WithLogger(cl),
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  l.With(logger.String("component", "scheduler")),
		entries: make(map[string]*entry),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add registers job under spec. Each run gets its own context bounded by timeout.
func (s *Scheduler) Add(spec string, timeout time.Duration, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[job.Name()]; ok {
		return fmt.Errorf("job %s already registered", job.Name())
	}

	e := &entry{spec: spec, timeout: timeout, job: job}
	id, err := s.cron.AddFunc(spec, func() { s.run(e) })
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", job.Name(), spec, err)
	}
	e.id = id
	s.entries[job.Name()] = e
	s.logger.Info("job registered", logger.String("job", job.Name()), logger.String("schedule", spec))
	return nil
}

func (s *Scheduler) run(e *entry) {
	ctx := s.ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	err := e.job.Run(ctx)
	fields := []logger.Field{
		logger.String("job", e.job.Name()),
		logger.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		s.logger.Error("job failed", append(fields, logger.Error(err))...)
		return
	}
	s.logger.Debug("job finished", fields...)
}

// Start begins ticking. With runNow every job also runs once immediately, in the background.
func (s *Scheduler) Start(runNow bool) {
	s.cron.Start()
	s.logger.Info("scheduler started", logger.Int("jobs", len(s.entries)))
	if !runNow {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		// Through the cron chain, so the first scheduled tick skips if this is still running.
		go s.cron.Entry(e.id).WrappedJob.Run()
	}
}

// JobInfo describes a registered job for the admin API.
type JobInfo struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	Timeout  string    `json:"timeout,omitempty"`
	NextRun  time.Time `json:"next_run"`
}

// RunNow runs a registered job synchronously, outside its schedule. The
// run is bounded by ctx, the job timeout and scheduler shutdown.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrJobNotFound, name)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()
	if e.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	err := e.job.Run(ctx)
	s.logger.Info("job run on demand",
		logger.String("job", name), logger.Duration("elapsed", time.Since(start)), logger.Error(err))
	return err
}

// Next reports the next scheduled run of a job. It is zero until Start.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(e.id).Next, true
}

// Jobs lists registered jobs ordered by name.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	s.mu.Unlock()
	sort.Strings(names)

	out := make([]JobInfo, 0, len(names))
	for _, name := range names {
		next, ok := s.Next(name)
		if !ok {
			continue
		}
		s.mu.Lock()
		e := s.entries[name]
		s.mu.Unlock()
		info := JobInfo{Name: name, Schedule: e.spec, NextRun: next}
		if e.timeout > 0 {
			info.Timeout = e.timeout.String()
		}
		out = append(out, info)
	}
	return out
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}
