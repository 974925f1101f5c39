package scheduler

import (
	"context"
	"sort"
	"time"
)

// JobStatus is one engine snapshot of a job.
type JobStatus struct {
	// Name is the job name.
	Name string
	// Phase is the job's phase.
	Phase Phase
	// State is the job's lifecycle state.
	State JobState
	// ExitCode is the job's exit code, meaningful once terminated.
	ExitCode int
	// ElapsedTime is the wall-clock time the job has consumed.
	ElapsedTime time.Duration
	// CPUTime is the CPU time the job has consumed.
	CPUTime time.Duration
	// MaxMemoryMB is the job's peak memory use in megabytes.
	MaxMemoryMB int
}

// Failed reports whether the job reached a terminal state unsuccessfully:
// stopped, or terminated with a non-zero exit code.
func (st JobStatus) Failed() bool {
	switch st.State {
	case StateStopped:
		return true
	case StateTerminated:
		return st.ExitCode != 0
	}
	return false
}

// Engine is the execution engine collaborator that actually runs jobs in
// parallel on the cluster. It owns the run→collect dependency barrier and
// any retry policy.
type Engine interface {
	// Add registers a job with the engine.
	Add(job *Job) error
	// SetInFlightLimit caps the number of simultaneously submitted jobs.
	// The cap is advisory toward the engine, not hard admission control.
	SetInFlightLimit(n int)
	// Progress advances the engine's state machine by one step: submit
	// pending jobs, reap finished ones, refresh states.
	Progress(ctx context.Context) error
	// Status returns the engine's current view of a job.
	Status(job *Job) (JobStatus, error)
}

// StatusTable maps job names to their latest status snapshot.
type StatusTable map[string]JobStatus

// Aggregate derives the submission-level state from the table: Stopped if
// every job is terminal and any was stopped, Terminated if every job
// terminated, otherwise the most advanced non-terminal picture.
func (t StatusTable) Aggregate() JobState {
	if len(t) == 0 {
		return StateCreated
	}
	allTerminal := true
	anyStopped := false
	anyRunning := false
	anySubmitted := false
	for _, st := range t {
		switch st.State {
		case StateStopped:
			anyStopped = true
		case StateTerminated:
		case StateRunning:
			allTerminal = false
			anyRunning = true
		case StateSubmitted:
			allTerminal = false
			anySubmitted = true
		default:
			allTerminal = false
		}
	}
	switch {
	case allTerminal && anyStopped:
		return StateStopped
	case allTerminal:
		return StateTerminated
	case anyRunning:
		return StateRunning
	case anySubmitted:
		return StateSubmitted
	}
	return StateCreated
}

// Failures returns the failed jobs of the table, ordered by name.
func (t StatusTable) Failures() []JobStatus {
	var out []JobStatus
	for _, st := range t {
		if st.Failed() {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Counts tallies the jobs of the table per state.
func (t StatusTable) Counts() map[JobState]int {
	counts := make(map[JobState]int)
	for _, st := range t {
		counts[st.State]++
	}
	return counts
}
