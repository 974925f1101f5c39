package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plateflow/plateflow/testutil"
)

// scriptedEngine walks each job through a fixed state sequence, advancing
// one step per Progress call.
type scriptedEngine struct {
	scripts       map[string][]JobStatus
	position      map[string]int
	added         []*Job
	inFlightLimit int
	progressCalls int
	progressErr   error
	statusErr     error
}

func newScriptedEngine() *scriptedEngine {
	return &scriptedEngine{
		scripts:  make(map[string][]JobStatus),
		position: make(map[string]int),
	}
}

// script registers a job's state sequence; the last entry repeats forever.
func (e *scriptedEngine) script(name string, states ...JobStatus) {
	e.scripts[name] = states
}

func (e *scriptedEngine) Add(job *Job) error {
	e.added = append(e.added, job)
	return nil
}

func (e *scriptedEngine) SetInFlightLimit(n int) {
	e.inFlightLimit = n
}

func (e *scriptedEngine) Progress(ctx context.Context) error {
	e.progressCalls++
	if e.progressErr != nil {
		return e.progressErr
	}
	for name := range e.scripts {
		if e.position[name] < len(e.scripts[name])-1 {
			e.position[name]++
		}
	}
	return nil
}

func (e *scriptedEngine) Status(job *Job) (JobStatus, error) {
	if e.statusErr != nil {
		return JobStatus{}, e.statusErr
	}
	script := e.scripts[job.Name]
	st := script[e.position[job.Name]]
	st.Name = job.Name
	st.Phase = job.Phase
	return st, nil
}

func testSubmission(t *testing.T, runJobs int) *Submission {
	t.Helper()
	sub := NewSubmission(7, "jterator")
	for i := 1; i <= runJobs; i++ {
		job, err := NewRunJob("jterator", sub.ID, 3, i, 1, Resources{Cores: 1})
		require.NoError(t, err)
		require.NoError(t, sub.AddRunJob(job))
	}
	return sub
}

func fastScheduler(e Engine) *Scheduler {
	return New(e, nil, Config{MonitorInterval: time.Millisecond}, nil)
}

func TestScheduler_AggregatesFailures(t *testing.T) {
	engine := newScriptedEngine()
	sub := testSubmission(t, 5)

	for i, job := range sub.Jobs() {
		final := JobStatus{State: StateTerminated}
		if i == 2 {
			final.ExitCode = 1
		}
		engine.script(job.Name,
			JobStatus{State: StateSubmitted},
			JobStatus{State: StateRunning},
			final,
		)
	}

	table, err := fastScheduler(engine).Submit(context.Background(), sub)
	require.NoError(t, err)

	require.Len(t, table, 5)
	failures := table.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "jterator_run_000003", failures[0].Name)
	assert.Equal(t, 1, failures[0].ExitCode)
	assert.True(t, sub.Terminal())
	assert.Equal(t, DefaultSubmitCap, engine.inFlightLimit)
}

func TestScheduler_SettleIteration(t *testing.T) {
	engine := newScriptedEngine()
	sub := testSubmission(t, 1)

	// Terminal after the second Progress call. The loop must still run one
	// extra iteration with an interposed Progress call to settle status.
	engine.script(sub.Jobs()[0].Name,
		JobStatus{State: StateRunning},
		JobStatus{State: StateRunning},
		JobStatus{State: StateTerminated},
	)

	_, err := fastScheduler(engine).Submit(context.Background(), sub)
	require.NoError(t, err)

	// Two loop iterations until terminal, one settle progress, one final
	// iteration.
	assert.GreaterOrEqual(t, engine.progressCalls, 4)
}

func TestScheduler_StoppedJobIsFailure(t *testing.T) {
	engine := newScriptedEngine()
	sub := testSubmission(t, 2)

	engine.script(sub.Jobs()[0].Name, JobStatus{State: StateTerminated})
	engine.script(sub.Jobs()[1].Name, JobStatus{State: StateStopped})

	table, err := fastScheduler(engine).Submit(context.Background(), sub)
	require.NoError(t, err)

	assert.Equal(t, StateStopped, table.Aggregate())
	require.Len(t, table.Failures(), 1)
	assert.Equal(t, StateStopped, table.Failures()[0].State)
}

func TestScheduler_EngineErrorPropagatesUnmodified(t *testing.T) {
	engine := newScriptedEngine()
	sub := testSubmission(t, 1)
	engine.script(sub.Jobs()[0].Name, JobStatus{State: StateRunning})

	engineErr := errors.New("connection to broker lost")
	engine.progressErr = engineErr

	_, err := fastScheduler(engine).Submit(context.Background(), sub)
	require.Error(t, err)
	assert.Same(t, engineErr, err)
}

func TestScheduler_ContextCancellation(t *testing.T) {
	engine := newScriptedEngine()
	sub := testSubmission(t, 1)
	engine.script(sub.Jobs()[0].Name, JobStatus{State: StateRunning})

	ctx := testutil.CancelledContext()

	_, err := New(engine, nil, Config{MonitorInterval: time.Hour}, nil).Submit(ctx, sub)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSubmission_TerminalRejectsNewJobs(t *testing.T) {
	engine := newScriptedEngine()
	sub := testSubmission(t, 1)
	engine.script(sub.Jobs()[0].Name, JobStatus{State: StateTerminated})

	_, err := fastScheduler(engine).Submit(context.Background(), sub)
	require.NoError(t, err)

	job, err := NewRunJob("jterator", sub.ID, 3, 2, 0, Resources{})
	require.NoError(t, err)
	require.Error(t, sub.AddRunJob(job))

	collect, err := NewCollectJob("jterator", sub.ID, 3, 0, Resources{})
	require.NoError(t, err)
	require.Error(t, sub.SetCollectJob(collect))
}

func TestSubmission_SingleCollectJob(t *testing.T) {
	sub := NewSubmission(1, "jterator")

	collect, err := NewCollectJob("jterator", sub.ID, 3, 0, Resources{})
	require.NoError(t, err)
	require.NoError(t, sub.SetCollectJob(collect))
	require.Error(t, sub.SetCollectJob(collect))

	assert.Equal(t, DefaultCollectWalltime, collect.Resources.Walltime)
	assert.Equal(t, DefaultCollectMemoryMB, collect.Resources.MemoryMB)
	assert.Equal(t, []string{"jterator", "3", "collect"}, collect.Command)
}

func TestNewRunJob_CommandAndName(t *testing.T) {
	job, err := NewRunJob("align", 11, 3, 42, 2, Resources{Cores: 4})
	require.NoError(t, err)

	assert.Equal(t, "align_run_000042", job.Name)
	assert.Equal(t, []string{"align", "-v", "-v", "3", "run", "--job", "42"}, job.Command)
	assert.Equal(t, PhaseRun, job.Phase)
	assert.Equal(t, int64(11), job.SubmissionID)
}

func TestStatusTable_Aggregate(t *testing.T) {
	tests := []struct {
		name   string
		states []JobState
		want   JobState
	}{
		{name: "empty", states: nil, want: StateCreated},
		{name: "all terminated", states: []JobState{StateTerminated, StateTerminated}, want: StateTerminated},
		{name: "stopped among terminal", states: []JobState{StateTerminated, StateStopped}, want: StateStopped},
		{name: "stopped among running", states: []JobState{StateStopped, StateRunning}, want: StateRunning},
		{name: "submitted only", states: []JobState{StateSubmitted, StateCreated}, want: StateSubmitted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := make(StatusTable)
			for i, state := range tt.states {
				table[string(rune('a'+i))] = JobStatus{State: state}
			}
			assert.Equal(t, tt.want, table.Aggregate())
		})
	}
}
