// Package localengine runs jobs as local processes. It implements the
// scheduler's engine contract for single-machine deployments and tests;
// cluster deployments plug in a batch-system backed engine instead. This
// package is internal and should not be imported by external projects.
package localengine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/plateflow/plateflow/scheduler"
)

// submitRate caps process spawns per second so a large submission does not
// fork-storm the machine.
const submitRate = 50

// Engine executes jobs as local child processes, bounded by the in-flight
// limit. The collect job of a submission starts only once every run job is
// terminal.
type Engine struct {
	logger  *zap.Logger
	logDir  string
	group   *errgroup.Group
	limiter *rate.Limiter

	mu    sync.Mutex
	tasks map[string]*task
	order []string
}

type task struct {
	job         *scheduler.Job
	state       scheduler.JobState
	exitCode    int
	started     time.Time
	elapsed     time.Duration
	cpuTime     time.Duration
	maxMemoryMB int
}

// New creates an engine. Job output is written to per-job files under
// logDir; an empty logDir discards output. A nil logger disables log
// output.
func New(logDir string, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		logger:  logger.With(zap.String("component", "local_engine")),
		logDir:  logDir,
		group:   &errgroup.Group{},
		limiter: rate.NewLimiter(rate.Limit(submitRate), submitRate),
		tasks:   make(map[string]*task),
	}
}

// Add implements scheduler.Engine.
func (e *Engine) Add(job *scheduler.Job) error {
	if len(job.Command) == 0 {
		return fmt.Errorf("job %q has an empty command", job.Name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.tasks[job.Name]; ok {
		return fmt.Errorf("job %q already added", job.Name)
	}
	e.tasks[job.Name] = &task{job: job, state: scheduler.StateCreated}
	e.order = append(e.order, job.Name)
	return nil
}

// SetInFlightLimit implements scheduler.Engine. It must be called before the
// first Progress call.
func (e *Engine) SetInFlightLimit(n int) {
	e.group.SetLimit(n)
}

// Progress implements scheduler.Engine: it starts every startable job that
// fits under the in-flight limit. Finished processes record their own
// terminal state, so there is nothing to reap here.
func (e *Engine) Progress(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, name := range e.order {
		t := e.tasks[name]
		if t.state != scheduler.StateCreated {
			continue
		}
		if t.job.Phase == scheduler.PhaseCollect && !e.runJobsTerminalLocked() {
			continue
		}
		if !e.limiter.Allow() {
			break
		}
		if !e.group.TryGo(func() error {
			e.execute(t)
			return nil
		}) {
			break
		}
		t.state = scheduler.StateSubmitted
		e.logger.Debug("job submitted", zap.String("job", name))
	}
	return nil
}

// runJobsTerminalLocked reports whether every run job reached a terminal
// state. Callers must hold the mutex.
func (e *Engine) runJobsTerminalLocked() bool {
	for _, t := range e.tasks {
		if t.job.Phase == scheduler.PhaseRun && !t.state.Terminal() {
			return false
		}
	}
	return true
}

// Status implements scheduler.Engine.
func (e *Engine) Status(job *scheduler.Job) (scheduler.JobStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tasks[job.Name]
	if !ok {
		return scheduler.JobStatus{}, fmt.Errorf("unknown job %q", job.Name)
	}
	st := scheduler.JobStatus{
		Name:        t.job.Name,
		Phase:       t.job.Phase,
		State:       t.state,
		ExitCode:    t.exitCode,
		ElapsedTime: t.elapsed,
		CPUTime:     t.cpuTime,
		MaxMemoryMB: t.maxMemoryMB,
	}
	if t.state == scheduler.StateRunning {
		st.ElapsedTime = time.Since(t.started)
	}
	return st, nil
}

// Wait blocks until every started process has finished.
func (e *Engine) Wait() error {
	return e.group.Wait()
}

// execute runs one job to completion and records its terminal state. A
// walltime request bounds the process lifetime; overrunning it stops the
// job.
func (e *Engine) execute(t *task) {
	ctx := context.Background()
	if t.job.Resources.Walltime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.job.Resources.Walltime)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, t.job.Command[0], t.job.Command[1:]...)
	stdout, stderr, closeLogs, err := e.openLogs(t.job.Name)
	if err != nil {
		e.finish(t, scheduler.StateStopped, -1, 0, 0, 0)
		e.logger.Error("cannot open job log files", zap.String("job", t.job.Name), zap.Error(err))
		return
	}
	defer closeLogs()
	if stdout != nil {
		cmd.Stdout = stdout
		cmd.Stderr = stderr
	}

	started := time.Now()
	e.mu.Lock()
	t.state = scheduler.StateRunning
	t.started = started
	e.mu.Unlock()

	runErr := cmd.Run()
	elapsed := time.Since(started)

	state := scheduler.StateTerminated
	exitCode := 0
	var cpu time.Duration
	var memMB int
	if ps := cmd.ProcessState; ps != nil {
		exitCode = ps.ExitCode()
		cpu = ps.UserTime() + ps.SystemTime()
		memMB = maxRSSMB(ps)
	}
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		state = scheduler.StateStopped
		e.logger.Warn("job exceeded its walltime",
			zap.String("job", t.job.Name),
			zap.Duration("walltime", t.job.Resources.Walltime),
		)
	case runErr != nil && exitCode < 0:
		// The process never ran or was killed by a signal.
		state = scheduler.StateStopped
		e.logger.Error("job did not run", zap.String("job", t.job.Name), zap.Error(runErr))
	}

	e.finish(t, state, exitCode, elapsed, cpu, memMB)
}

func (e *Engine) finish(t *task, state scheduler.JobState, exitCode int, elapsed, cpu time.Duration, memMB int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t.state = state
	t.exitCode = exitCode
	t.elapsed = elapsed
	t.cpuTime = cpu
	t.maxMemoryMB = memMB
}

// openLogs opens the per-job stdout and stderr files.
func (e *Engine) openLogs(name string) (stdout, stderr *os.File, closeLogs func(), err error) {
	if e.logDir == "" {
		return nil, nil, func() {}, nil
	}
	if err := os.MkdirAll(e.logDir, 0o755); err != nil {
		return nil, nil, nil, err
	}
	stdout, err = os.Create(filepath.Join(e.logDir, name+".out"))
	if err != nil {
		return nil, nil, nil, err
	}
	stderr, err = os.Create(filepath.Join(e.logDir, name+".err"))
	if err != nil {
		stdout.Close()
		return nil, nil, nil, err
	}
	return stdout, stderr, func() {
		stdout.Close()
		stderr.Close()
	}, nil
}
