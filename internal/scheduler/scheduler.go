package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/riskibarqy/fixture-harvester/internal/platform/logging"
	"github.com/riskibarqy/fixture-harvester/internal/usecase"
	"github.com/robfig/cron/v3"
)

// ErrNotRunning is returned by Trigger before Start or after Stop.
var ErrNotRunning = errors.New("scheduler is not running")

// Runner is one full harvest.
type Runner interface {
	Run(ctx context.Context) (usecase.RunSummary, error)
}

type Config struct {
	// Spec accepts standard five-field expressions, an optional leading
	// seconds field and descriptors such as @hourly or @every 30m.
	Spec       string
	RunOnStart bool
	Logger     *logging.Logger
}

// Scheduler re-runs full snapshots on a cron schedule. A tick that fires
// while the previous run is still going is skipped.
type Scheduler struct {
	cron       *cron.Cron
	runner     Runner
	spec       string
	runOnStart bool
	logger     *logging.Logger

	mu      sync.Mutex
	ctx     context.Context
	job     cron.Job
	started bool
	stopped bool
	running atomic.Bool
	// background tracks runs started outside cron's own entry loop.
	background sync.WaitGroup
}

func New(runner Runner, cfg Config) (*Scheduler, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	spec := strings.TrimSpace(cfg.Spec)
	if spec == "" {
		return nil, fmt.Errorf("schedule spec is required")
	}

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}

	cronLogger := cronLogger{logger: logger}
	s := &Scheduler{
		cron:       cron.New(cron.WithParser(parser), cron.WithLogger(cronLogger)),
		runner:     runner,
		spec:       spec,
		runOnStart: cfg.RunOnStart,
		logger:     logger,
		ctx:        context.Background(),
	}
	s.job = cron.NewChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)).Then(cron.FuncJob(s.runOnce))
	return s, nil
}

// Start registers the job and returns immediately. Runs use ctx, so
// canceling it aborts an in-flight run.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler already started")
	}

	if _, err := s.cron.AddJob(s.spec, s.job); err != nil {
		return fmt.Errorf("schedule harvest: %w", err)
	}
	s.ctx = ctx
	s.started = true
	s.cron.Start()
	s.logger.InfoContext(ctx, "harvest scheduled", "schedule", s.spec, "run_on_start", s.runOnStart)

	if s.runOnStart {
		s.spawnLocked()
	}
	return nil
}

// Trigger starts an out-of-schedule run in the background. It returns
// ErrNotRunning when the scheduler is not started (or already stopped) and
// usecase.ErrRunLocked while another run is in flight.
func (s *Scheduler) Trigger() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.stopped {
		return ErrNotRunning
	}
	if s.running.Load() {
		return usecase.ErrRunLocked
	}
	s.spawnLocked()
	return nil
}

// Stop prevents new runs and waits for the running one, scheduled or not, or
// until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronDone := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.background.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for running harvest: %w", ctx.Err())
	}
}

// spawnLocked must be called with s.mu held so Add never races Stop's Wait.
func (s *Scheduler) spawnLocked() {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		s.job.Run()
	}()
}

func (s *Scheduler) runOnce() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx.Err() != nil {
		return
	}

	s.running.Store(true)
	defer s.running.Store(false)
	summary, err := s.runner.Run(ctx)
	switch {
	case err == nil:
		return
	case errors.Is(err, usecase.ErrRunLocked):
		s.logger.InfoContext(ctx, "scheduled harvest skipped, lock held", "run_id", summary.RunID)
	default:
		s.logger.ErrorContext(ctx, "scheduled harvest failed", "run_id", summary.RunID, "error", err)
	}
}

// cronLogger routes cron's own messages into the structured logger.
type cronLogger struct {
	logger *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
