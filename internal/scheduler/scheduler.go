package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every job interval.
type TickFunc func(ctx context.Context, bucket time.Time) error

// StatusRecorder receives per-job outcomes. After degradedThreshold
// consecutive failures the job is additionally marked degraded.
type StatusRecorder interface {
	RecordSuccess(ctx context.Context, job string, at time.Time)
	RecordFailure(ctx context.Context, job string, err error)
	RecordDegraded(ctx context.Context, job string)
}

const degradedThreshold = 3

// Options tune scheduler behaviour across all jobs.
type Options struct {
	AlignToBucket bool
	StartupDelay  time.Duration
}

type job struct {
	name     string
	interval time.Duration
	tick     TickFunc

	inFlight atomic.Bool
	failures int
}

// Scheduler drives a set of named periodic jobs, each on its own
// timer. A tick that arrives while the previous run of the same job is
// still in flight is skipped, never queued, so a slow upstream cannot
// build a backlog.
type Scheduler struct {
	opts     Options
	recorder StatusRecorder
	logger   zerolog.Logger
	jobs     []*job
}

// New constructs a Scheduler instance. recorder may be nil.
func New(opts Options, recorder StatusRecorder, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		opts:     opts,
		recorder: recorder,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}
}

// Register adds a named job. A non-positive interval disables the job.
// Register must not be called after Run.
func (s *Scheduler) Register(name string, interval time.Duration, tick TickFunc) {
	if interval <= 0 {
		s.logger.Info().Str("job", name).Msg("job disabled by zero interval")
		return
	}
	s.jobs = append(s.jobs, &job{name: name, interval: interval, tick: tick})
}

// Run blocks, driving every registered job until ctx is cancelled.
// In-flight ticks are drained before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	var wg sync.WaitGroup
	for _, j := range s.jobs {
		wg.Add(1)
		go func(j *job) {
			defer wg.Done()
			s.runJob(ctx, &wg, j)
		}(j)
	}

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

func (s *Scheduler) runJob(ctx context.Context, wg *sync.WaitGroup, j *job) {
	logger := s.logger.With().Str("job", j.name).Logger()

	next := s.nextTick(time.Now().UTC(), j.interval)
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = s.nextTick(time.Now().UTC(), j.interval)
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		logger.Debug().Time("next_bucket", next).Msg("waiting for next bucket")

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			timer.Stop()
		}

		bucket := s.bucketStart(next, j.interval)
		if !j.inFlight.CompareAndSwap(false, true) {
			logger.Warn().Time("bucket", bucket).Msg("previous run still in flight; tick skipped")
			next = next.Add(j.interval)
			continue
		}

		wg.Add(1)
		go func(bucket time.Time) {
			defer wg.Done()
			defer j.inFlight.Store(false)
			s.execute(ctx, logger, j, bucket)
		}(bucket)

		next = next.Add(j.interval)
	}
}

func (s *Scheduler) execute(ctx context.Context, logger zerolog.Logger, j *job, bucket time.Time) {
	logger.Info().Time("bucket", bucket).Msg("executing scheduled tick")

	err := j.tick(ctx, bucket)
	if err == nil {
		j.failures = 0
		if s.recorder != nil {
			s.recorder.RecordSuccess(ctx, j.name, bucket)
		}
		return
	}

	j.failures++
	logger.Error().Err(err).Time("bucket", bucket).Int("consecutive_failures", j.failures).Msg("tick execution failed")

	if s.recorder == nil {
		return
	}
	s.recorder.RecordFailure(ctx, j.name, err)
	if j.failures >= degradedThreshold {
		s.recorder.RecordDegraded(ctx, j.name)
	}
}

func (s *Scheduler) nextTick(now time.Time, interval time.Duration) time.Time {
	if !s.opts.AlignToBucket {
		return now.Add(interval)
	}
	bucket := now.Truncate(interval)
	if !bucket.After(now) {
		bucket = bucket.Add(interval)
	}
	return bucket
}

func (s *Scheduler) bucketStart(t time.Time, interval time.Duration) time.Time {
	if !s.opts.AlignToBucket {
		return t
	}
	return t.Truncate(interval)
}
