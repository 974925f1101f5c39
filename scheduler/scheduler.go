package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plateflow/plateflow/internal/metrics"
)

// Default monitor loop tuning.
const (
	DefaultMonitorInterval = 5 * time.Second
	DefaultSubmitCap       = 2000
)

// Config tunes the monitor loop.
type Config struct {
	// MonitorInterval is the sleep between poll iterations.
	MonitorInterval time.Duration
	// SubmitCap is the in-flight submission ceiling handed to the engine.
	SubmitCap int
}

func (c Config) withDefaults() Config {
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = DefaultMonitorInterval
	}
	if c.SubmitCap <= 0 {
		c.SubmitCap = DefaultSubmitCap
	}
	return c
}

// Scheduler registers the jobs of a submission with an execution engine and
// drives the blocking monitor loop until the submission is terminal.
type Scheduler struct {
	engine    Engine
	logger    *zap.Logger
	collector *metrics.Collector
	config    Config
}

// New creates a scheduler on top of an engine. A nil logger disables log
// output; a nil collector disables metrics.
func New(engine Engine, logger *zap.Logger, cfg Config, collector *metrics.Collector) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		engine:    engine,
		logger:    logger.With(zap.String("component", "scheduler")),
		collector: collector,
		config:    cfg.withDefaults(),
	}
}

// Submit registers every job of the submission with the engine, sets the
// in-flight ceiling, and polls until the whole submission reaches a terminal
// state. The loop runs one extra iteration after the aggregate state first
// turns terminal so the final progress call can settle statuses.
//
// A failing job does not abort the loop; failures are aggregated into the
// report logged at the end and can be read off the returned table. Errors
// talking to the engine are fatal and returned unmodified.
func (s *Scheduler) Submit(ctx context.Context, sub *Submission) (StatusTable, error) {
	monitorID := uuid.NewString()
	logger := s.logger.With(
		zap.String("monitor_id", monitorID),
		zap.Int64("submission_id", sub.ID),
		zap.String("step", sub.Step),
	)

	logger.Debug("set in-flight submission ceiling", zap.Int("cap", s.config.SubmitCap))
	s.engine.SetInFlightLimit(s.config.SubmitCap)

	jobs := sub.Jobs()
	for _, job := range jobs {
		if err := s.engine.Add(job); err != nil {
			return nil, err
		}
	}
	if s.collector != nil {
		for _, job := range jobs {
			s.collector.JobSubmitted(sub.Step, string(job.Phase))
		}
	}
	logger.Info("jobs registered with engine", zap.Int("jobs", len(jobs)))

	started := time.Now()
	settleNext := false
	var table StatusTable
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.config.MonitorInterval):
		}

		if err := s.engine.Progress(ctx); err != nil {
			return nil, err
		}

		var err error
		table, err = s.snapshot(jobs)
		if err != nil {
			return nil, err
		}
		s.report(logger, table, time.Since(started))
		if s.collector != nil {
			s.collector.MonitorIteration(sub.Step)
		}

		if settleNext {
			break
		}
		if table.Aggregate().Terminal() {
			settleNext = true
			// One more progress call so the final iteration does not
			// report a stale snapshot.
			if err := s.engine.Progress(ctx); err != nil {
				return nil, err
			}
		}
	}

	s.logFailures(logger, sub, table)
	sub.markTerminal()
	return table, nil
}

func (s *Scheduler) snapshot(jobs []*Job) (StatusTable, error) {
	table := make(StatusTable, len(jobs))
	for _, job := range jobs {
		st, err := s.engine.Status(job)
		if err != nil {
			return nil, err
		}
		table[job.Name] = st
	}
	return table, nil
}

func (s *Scheduler) report(logger *zap.Logger, table StatusTable, elapsed time.Duration) {
	counts := table.Counts()
	logger.Info("progress",
		zap.Duration("elapsed", elapsed),
		zap.Int("created", counts[StateCreated]),
		zap.Int("submitted", counts[StateSubmitted]),
		zap.Int("running", counts[StateRunning]),
		zap.Int("terminated", counts[StateTerminated]),
		zap.Int("stopped", counts[StateStopped]),
	)
}

// logFailures emits the failure report: one entry per job with a non-zero
// exit code or a stopped terminal state.
func (s *Scheduler) logFailures(logger *zap.Logger, sub *Submission, table StatusTable) {
	failures := table.Failures()
	if len(failures) == 0 {
		logger.Info("all jobs terminated successfully", zap.Int("jobs", len(table)))
		return
	}
	for _, st := range failures {
		logger.Error("job failed",
			zap.String("job", st.Name),
			zap.String("state", string(st.State)),
			zap.Int("exit_code", st.ExitCode),
			zap.Duration("elapsed", st.ElapsedTime),
			zap.Int("max_memory_mb", st.MaxMemoryMB),
		)
		if s.collector != nil {
			s.collector.JobFailed(sub.Step, string(st.Phase))
		}
	}
	logger.Warn("submission finished with failures",
		zap.Int("failed", len(failures)),
		zap.Int("jobs", len(table)),
	)
}
