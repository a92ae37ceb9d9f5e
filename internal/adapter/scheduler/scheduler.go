package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc is one run of a job.
type JobFunc func(ctx context.Context) error

// JobID identifies a scheduled job.
type JobID = cron.EntryID

// OverlapPolicy decides what happens when a job is due while still running.
type OverlapPolicy int

const (
	// AllowOverlap runs concurrently.
	AllowOverlap OverlapPolicy = iota
	// SkipIfRunning drops the due run.
	SkipIfRunning
	// DelayIfRunning waits for the previous run to finish.
	DelayIfRunning
)

// JobOptions tune a job.
type JobOptions struct {
	Name          string
	Timeout       time.Duration
	OverlapPolicy OverlapPolicy
}

// JobHooks observe job runs. Any of them may be nil.
type JobHooks struct {
	OnJobStart  func(name string)
	OnJobFinish func(name string, d time.Duration, err error)
}

// Config configures Scheduler.
type Config struct {
	Logger   *slog.Logger
	JobHooks JobHooks
}

// Scheduler runs cron jobs until stopped or until its parent context ends.
type Scheduler struct {
	cron   *cron.Cron
	log    *slog.Logger
	hooks  JobHooks
	ctx    context.Context
	cancel context.CancelFunc

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

// New creates a Scheduler bound to parent.
func New(parent context.Context, cfg Config) *Scheduler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cronLogger{log: log.With(slog.String("component", "cron"))}),
		),
		log:    log,
		hooks:  cfg.JobHooks,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Add schedules job. spec accepts six-field cron expressions and descriptors
// like "@hourly" or "@every 5m".
func (s *Scheduler) Add(spec string, job JobFunc, opts JobOptions) (JobID, error) {
	if opts.Name == "" {
		opts.Name = "unnamed"
	}
	var wrappers []cron.JobWrapper
	switch opts.OverlapPolicy {
	case SkipIfRunning:
		wrappers = append(wrappers, cron.SkipIfStillRunning(cronLogger{log: s.log}))
	case DelayIfRunning:
		wrappers = append(wrappers, cron.DelayIfStillRunning(cronLogger{log: s.log}))
	}
	id, err := s.cron.AddJob(spec, cron.NewChain(wrappers...).Then(cron.FuncJob(func() {
		s.run(job, opts)
	})))
	if err != nil {
		return 0, fmt.Errorf("schedule %s %q: %w", opts.Name, spec, err)
	}
	s.log.Info("job scheduled", slog.String("name", opts.Name), slog.String("spec", spec), slog.Int("id", int(id)))
	return id, nil
}

// Remove unschedules a job. A running invocation finishes normally.
func (s *Scheduler) Remove(id JobID) {
	s.cron.Remove(id)
}

// Start begins running jobs. Later calls are no-ops.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.cron.Start()
		go func() {
			<-s.ctx.Done()
			s.stopOnce.Do(s.stop)
		}()
	})
}

// Stop cancels running jobs and waits for them.
func (s *Scheduler) Stop() {
	_ = s.StopContext(context.Background())
}

// StopContext is Stop bounded by ctx. Shutdown continues in the background
// when ctx ends first.
func (s *Scheduler) StopContext(ctx context.Context) error {
	s.cancel()
	go s.stopOnce.Do(s.stop)
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		s.log.Warn("scheduler stop deadline exceeded")
		return ctx.Err()
	}
}

func (s *Scheduler) stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
	close(s.done)
}

// Running reports whether the scheduler has not been stopped.
func (s *Scheduler) Running() bool {
	return s.ctx.Err() == nil
}

func (s *Scheduler) run(job JobFunc, opts JobOptions) {
	if s.ctx.Err() != nil {
		return
	}
	ctx := s.ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	if s.hooks.OnJobStart != nil {
		s.hooks.OnJobStart(opts.Name)
	}

	start := time.Now()
	err := safeRun(ctx, job)
	dur := time.Since(start)

	if err != nil {
		s.log.Error("job failed", slog.String("name", opts.Name), slog.Duration("dur", dur), slog.Any("error", err))
	} else {
		s.log.Debug("job done", slog.String("name", opts.Name), slog.Duration("dur", dur))
	}
	if s.hooks.OnJobFinish != nil {
		s.hooks.OnJobFinish(opts.Name, dur, err)
	}
}

func safeRun(ctx context.Context, job JobFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return job(ctx)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug(msg, kv...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error(msg, append([]interface{}{slog.Any("error", err)}, kv...)...)
}
