package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs the daemon's periodic tasks: each job executes once at
// startup (bootstrap pass), then on its interval. A job never overlaps
// itself; a tick that fires while the previous pass is still running is
// skipped. Stop cancels the run context so in-flight passes can bail out
// at their next context check; checkpoint writes are the commit point, so
// interrupting a pass mid-way is always safe.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger

	mu     sync.Mutex
	jobs   []*job
	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type job struct {
	name string
	fn   func(context.Context) error

	// running guards against overlapping passes.
	running sync.Mutex
}

func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		logger: logger,
	}
}

// Add registers a job to run every interval. The job does not start until
// Start is called.
func (s *Scheduler) Add(name string, every time.Duration, fn func(context.Context) error) error {
	j := &job{name: name, fn: fn}

	s.mu.Lock()
	s.jobs = append(s.jobs, j)
	s.mu.Unlock()

	_, err := s.cron.AddFunc("@every "+every.String(), func() {
		s.runJob(s.runContext(), j)
	})
	return err
}

// runContext is the context cron-fired passes run under. It descends from
// the context given to Start, so both caller cancellation and Stop reach
// every pass.
func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx == nil {
		return context.Background()
	}
	return s.runCtx
}

// Start runs every job's bootstrap pass sequentially, then starts the cron
// loop. The given context cancels bootstrap passes and is checked before
// each scheduled run.
func (s *Scheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.runCtx, s.cancel = runCtx, cancel
	jobs := make([]*job, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.Unlock()

	for _, j := range jobs {
		if runCtx.Err() != nil {
			return
		}
		s.runJob(runCtx, j)
	}

	s.cron.Start()
	s.logger.Info("Scheduler started", zap.Int("jobs", len(jobs)))
}

// Stop cancels the run context, halts the ticker and waits for in-flight
// passes to observe the cancellation and return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) runJob(ctx context.Context, j *job) {
	if !j.running.TryLock() {
		s.logger.Debug("Skipping tick, previous pass still running", zap.String("job", j.name))
		return
	}
	s.wg.Add(1)
	defer s.wg.Done()
	defer j.running.Unlock()

	start := time.Now()
	if err := j.fn(ctx); err != nil {
		s.logger.Error("Job pass failed",
			zap.String("job", j.name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return
	}
	s.logger.Debug("Job pass completed",
		zap.String("job", j.name),
		zap.Duration("duration", time.Since(start)))
}
