package localengine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plateflow/plateflow/scheduler"
	"github.com/plateflow/plateflow/testutil"
)

func shellJob(name string, phase scheduler.Phase, script string, res scheduler.Resources) *scheduler.Job {
	return &scheduler.Job{
		Name:      name,
		Phase:     phase,
		Command:   []string{"/bin/sh", "-c", script},
		Resources: res,
	}
}

// drive polls the engine until every job is terminal, calling check on each
// snapshot when given.
func drive(t *testing.T, e *Engine, jobs []*scheduler.Job, check func(scheduler.StatusTable)) scheduler.StatusTable {
	t.Helper()
	ctx := testutil.TestContextWithTimeout(t, 10*time.Second)
	for {
		require.NoError(t, ctx.Err(), "jobs did not finish in time")
		require.NoError(t, e.Progress(ctx))

		table := make(scheduler.StatusTable, len(jobs))
		for _, job := range jobs {
			st, err := e.Status(job)
			require.NoError(t, err)
			table[job.Name] = st
		}
		if check != nil {
			check(table)
		}
		if table.Aggregate().Terminal() {
			require.NoError(t, e.Wait())
			return table
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEngine_RunsJobs(t *testing.T) {
	e := New("", nil)
	e.SetInFlightLimit(4)

	jobs := []*scheduler.Job{
		shellJob("align_run_000001", scheduler.PhaseRun, "exit 0", scheduler.Resources{}),
		shellJob("align_run_000002", scheduler.PhaseRun, "exit 0", scheduler.Resources{}),
		shellJob("align_run_000003", scheduler.PhaseRun, "exit 3", scheduler.Resources{}),
	}
	for _, job := range jobs {
		require.NoError(t, e.Add(job))
	}

	table := drive(t, e, jobs, nil)
	assert.Equal(t, scheduler.StateTerminated, table.Aggregate())
	assert.Equal(t, 0, table["align_run_000001"].ExitCode)
	assert.Equal(t, 3, table["align_run_000003"].ExitCode)

	failures := table.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "align_run_000003", failures[0].Name)
}

func TestEngine_CollectWaitsForRunJobs(t *testing.T) {
	e := New("", nil)
	e.SetInFlightLimit(4)

	run := shellJob("jterator_run_000001", scheduler.PhaseRun, "sleep 0.1", scheduler.Resources{})
	collect := shellJob("jterator_collect", scheduler.PhaseCollect, "exit 0", scheduler.Resources{})
	require.NoError(t, e.Add(run))
	require.NoError(t, e.Add(collect))

	table := drive(t, e, []*scheduler.Job{run, collect}, func(table scheduler.StatusTable) {
		// Once the collect job leaves Created, the run job must already be
		// terminal.
		if table["jterator_collect"].State != scheduler.StateCreated {
			assert.True(t, table["jterator_run_000001"].State.Terminal())
		}
	})
	assert.Equal(t, scheduler.StateTerminated, table.Aggregate())
}

func TestEngine_WalltimeStopsJob(t *testing.T) {
	e := New("", nil)
	e.SetInFlightLimit(1)

	job := shellJob("corilla_run_000001", scheduler.PhaseRun, "sleep 5",
		scheduler.Resources{Walltime: 50 * time.Millisecond})
	require.NoError(t, e.Add(job))

	table := drive(t, e, []*scheduler.Job{job}, nil)
	assert.Equal(t, scheduler.StateStopped, table[job.Name].State)
	assert.True(t, table[job.Name].Failed())
}

func TestEngine_InFlightLimit(t *testing.T) {
	e := New("", nil)
	e.SetInFlightLimit(1)

	jobs := []*scheduler.Job{
		shellJob("align_run_000001", scheduler.PhaseRun, "sleep 0.05", scheduler.Resources{}),
		shellJob("align_run_000002", scheduler.PhaseRun, "sleep 0.05", scheduler.Resources{}),
	}
	for _, job := range jobs {
		require.NoError(t, e.Add(job))
	}

	drive(t, e, jobs, func(table scheduler.StatusTable) {
		counts := table.Counts()
		active := counts[scheduler.StateSubmitted] + counts[scheduler.StateRunning]
		assert.LessOrEqual(t, active, 1)
	})
}

func TestEngine_MissingBinary(t *testing.T) {
	e := New("", nil)
	e.SetInFlightLimit(1)

	job := &scheduler.Job{
		Name:    "broken_run_000001",
		Phase:   scheduler.PhaseRun,
		Command: []string{"/nonexistent/plateflow-step"},
	}
	require.NoError(t, e.Add(job))

	table := drive(t, e, []*scheduler.Job{job}, nil)
	assert.Equal(t, scheduler.StateStopped, table[job.Name].State)
}

func TestEngine_WritesLogFiles(t *testing.T) {
	logDir := t.TempDir()
	e := New(logDir, nil)
	e.SetInFlightLimit(1)

	job := shellJob("illuminati_run_000001", scheduler.PhaseRun, "echo hello", scheduler.Resources{})
	require.NoError(t, e.Add(job))
	drive(t, e, []*scheduler.Job{job}, nil)

	out, err := os.ReadFile(filepath.Join(logDir, "illuminati_run_000001.out"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(out))
}

func TestEngine_AddValidation(t *testing.T) {
	e := New("", nil)

	require.Error(t, e.Add(&scheduler.Job{Name: "empty"}))

	job := shellJob("align_run_000001", scheduler.PhaseRun, "exit 0", scheduler.Resources{})
	require.NoError(t, e.Add(job))
	require.Error(t, e.Add(job))

	_, err := e.Status(&scheduler.Job{Name: "unknown"})
	require.Error(t, err)
}
