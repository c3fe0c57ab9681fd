package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"reswatch/internal/config"
	"reswatch/internal/domain"
	"reswatch/internal/events"
	"reswatch/internal/metrics"
	"reswatch/internal/models"

	"github.com/rs/zerolog"
)

// Status is the operator-facing snapshot of the loop.
type Status struct {
	Running     bool `json:"running"`
	ActiveJobs  int  `json:"active_jobs"`
	TrackedJobs int  `json:"tracked_jobs"`
}

// Scheduler drives the tick loop: every tick it loads the non-terminal
// jobs, picks the ones whose interval has elapsed, and dispatches them to
// the Processor under a global concurrency ceiling. Ticks never block on
// in-flight processing.
type Scheduler struct {
	cfg    config.SchedulerConfig
	repo   domain.Repository
	proc   *Processor
	state  *runtimeState
	logger *zerolog.Logger

	// sem bounds in-flight processors. Acquire is non-blocking: when the
	// ceiling is hit the tick stops scanning and later ticks pick up the
	// remaining due jobs.
	sem chan struct{}

	mu      sync.Mutex
	running bool
	tracked int // job count from the last scan
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(
	cfg config.SchedulerConfig,
	repo domain.Repository,
	creds domain.CredentialStore,
	client domain.AvailabilityClient,
	notify domain.Notifier,
	publisher domain.EventPublisher,
	syncWorker domain.SyncWorker,
	logger *zerolog.Logger,
) *Scheduler {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = models.DefaultMaxConcurrent
	}
	state := newRuntimeState()
	return &Scheduler{
		cfg:    cfg,
		repo:   repo,
		proc:   NewProcessor(repo, creds, client, notify, publisher, syncWorker, state, logger),
		state:  state,
		logger: logger,
		sem:    make(chan struct{}, maxConcurrent),
	}
}

// Start launches the tick loop. It returns immediately; Stop shuts the
// loop down and waits for in-flight jobs to settle.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go s.run(loopCtx)

	s.logger.Info().
		Int("tick_interval_sec", s.tickInterval()).
		Int("max_concurrent", cap(s.sem)).
		Msg("scheduler started")
	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info().Msg("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Duration(s.tickInterval()) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	metrics.IncTick()

	jobs, err := s.repo.GetActiveWatchJobs(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("load active jobs")
		return
	}
	s.mu.Lock()
	s.tracked = len(jobs)
	s.mu.Unlock()

	now := time.Now()
	for i := range jobs {
		job := jobs[i]
		if !s.due(ctx, &job, now) {
			continue
		}

		select {
		case s.sem <- struct{}{}:
		default:
			// Ceiling reached. Remaining due jobs wait for a later tick;
			// every tick re-scans, so nothing starves.
			s.logger.Debug().Msg("concurrency ceiling reached, deferring remaining jobs")
			return
		}

		s.state.SetLastPoll(job.ID, now)
		metrics.JobStarted()
		s.wg.Add(1)
		go func(j models.WatchJob) {
			defer func() {
				<-s.sem
				metrics.JobFinished()
				s.wg.Done()
			}()
			s.proc.Process(ctx, &j)
		}(job)
	}
}

// due applies the release-window policy and any backoff already folded
// into the job's last-poll time.
func (s *Scheduler) due(ctx context.Context, job *models.WatchJob, now time.Time) bool {
	last, ok := s.state.LastPoll(job.ID)
	if !ok {
		return true
	}

	releaseRule := ""
	if job.MonitoringStrategy == models.StrategyReleaseTime {
		restaurant, err := s.repo.GetRestaurantByID(ctx, job.RestaurantID)
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("load restaurant for release rule")
		} else {
			releaseRule = restaurant.ReleaseRule
		}
	}

	return now.Sub(last) >= effectiveInterval(job, releaseRule, now)
}

// ResumeJob returns a paused job to monitoring and clears its runtime
// state so it polls on the next tick.
func (s *Scheduler) ResumeJob(ctx context.Context, jobID string) error {
	job, err := s.repo.GetWatchJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("resume job: %w", err)
	}
	if job.Status != models.StatusPaused {
		return fmt.Errorf("resume job: status is %s, only paused jobs can be resumed", job.Status)
	}

	if err := s.repo.UpdateWatchJobStatus(ctx, jobID, models.StatusMonitoring); err != nil {
		return fmt.Errorf("resume job: %w", err)
	}
	s.state.Clear(jobID)
	s.proc.publish(events.EventJobUpdated, jobID, models.StatusMonitoring)
	s.logger.Info().Str("job_id", jobID).Msg("job resumed")
	return nil
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	running := s.running
	tracked := s.tracked
	s.mu.Unlock()

	return Status{
		Running:     running,
		ActiveJobs:  len(s.sem),
		TrackedJobs: tracked,
	}
}

func (s *Scheduler) tickInterval() int {
	if s.cfg.TickIntervalSec > 0 {
		return s.cfg.TickIntervalSec
	}
	return models.DefaultTickIntervalSec
}
