package scheduler

import (
	"fmt"
	"strconv"
	"time"
)

// JobState is the lifecycle state of a job:
// Created → Submitted → Running → {Terminated | Stopped}.
type JobState string

const (
	// StateCreated means the job exists but has not been handed to the
	// engine yet.
	StateCreated JobState = "created"
	// StateSubmitted means the engine has accepted the job.
	StateSubmitted JobState = "submitted"
	// StateRunning means the job is executing.
	StateRunning JobState = "running"
	// StateTerminated means the job finished; the exit code tells whether
	// it succeeded.
	StateTerminated JobState = "terminated"
	// StateStopped means the engine halted the job before completion.
	StateStopped JobState = "stopped"
)

// Terminal reports whether the state is final.
func (s JobState) Terminal() bool {
	return s == StateTerminated || s == StateStopped
}

// Phase distinguishes the parallel run phase from the fan-in collect phase.
type Phase string

const (
	// PhaseRun marks a job of the parallel phase.
	PhaseRun Phase = "run"
	// PhaseCollect marks the single fan-in job.
	PhaseCollect Phase = "collect"
)

// Resources describes the compute resources requested for a job.
type Resources struct {
	// Walltime is the wall-clock time allocated for the job.
	Walltime time.Duration
	// MemoryMB is the amount of memory allocated for the job in megabytes.
	MemoryMB int
	// Cores is the number of CPU cores allocated for the job.
	Cores int
}

// Validate checks that requested resources are sensible.
func (r Resources) Validate() error {
	if r.Cores < 0 {
		return fmt.Errorf("the value of \"cores\" must be positive")
	}
	if r.MemoryMB < 0 {
		return fmt.Errorf("the value of \"memory\" must be positive")
	}
	return nil
}

// Collect phase defaults, generous because fusion is IO-bound and runs once.
const (
	DefaultCollectWalltime = 2 * time.Hour
	DefaultCollectMemoryMB = 4000
)

// Job is the submission wrapper around a batch: the backing command plus the
// requested resources, correlated to its submission.
type Job struct {
	// Name identifies the job, e.g. "jterator_run_000004".
	Name string
	// Phase is the job's phase.
	Phase Phase
	// BatchID is the one-based id of the backing run batch, zero for the
	// collect job.
	BatchID int
	// Command is the command line the engine executes.
	Command []string
	// Resources are the requested compute resources.
	Resources Resources
	// SubmissionID references the persisted submission record.
	SubmissionID int64
}

// NewRunJob builds the job for one run batch of a step. verbosity adds that
// many "-v" flags to the backing command.
func NewRunJob(step string, submissionID, experimentID int64, batchID, verbosity int, res Resources) (*Job, error) {
	if err := res.Validate(); err != nil {
		return nil, err
	}
	command := commandPrefix(step, experimentID, verbosity)
	command = append(command, "run", "--job", strconv.Itoa(batchID))
	return &Job{
		Name:         fmt.Sprintf("%s_run_%06d", step, batchID),
		Phase:        PhaseRun,
		BatchID:      batchID,
		Command:      command,
		Resources:    res,
		SubmissionID: submissionID,
	}, nil
}

// NewCollectJob builds the fan-in job of a step. Zero resource fields fall
// back to the collect defaults.
func NewCollectJob(step string, submissionID, experimentID int64, verbosity int, res Resources) (*Job, error) {
	if err := res.Validate(); err != nil {
		return nil, err
	}
	if res.Walltime == 0 {
		res.Walltime = DefaultCollectWalltime
	}
	if res.MemoryMB == 0 {
		res.MemoryMB = DefaultCollectMemoryMB
	}
	command := commandPrefix(step, experimentID, verbosity)
	command = append(command, "collect")
	return &Job{
		Name:         fmt.Sprintf("%s_collect", step),
		Phase:        PhaseCollect,
		Command:      command,
		Resources:    res,
		SubmissionID: submissionID,
	}, nil
}

func commandPrefix(step string, experimentID int64, verbosity int) []string {
	command := []string{step}
	for i := 0; i < verbosity; i++ {
		command = append(command, "-v")
	}
	return append(command, strconv.FormatInt(experimentID, 10))
}

// Submission groups all jobs created by one planning-and-submit pass. The
// collect job, if any, implicitly depends on every run job; the engine
// enforces that barrier. Once the submission has been observed terminal, no
// further job may join it.
type Submission struct {
	// ID references the persisted submission record.
	ID int64
	// Step is the step the submission belongs to.
	Step string

	runJobs  []*Job
	collect  *Job
	terminal bool
}

// NewSubmission creates an empty submission for a step.
func NewSubmission(id int64, step string) *Submission {
	return &Submission{ID: id, Step: step}
}

// AddRunJob appends a run job to the submission.
func (s *Submission) AddRunJob(job *Job) error {
	if s.terminal {
		return fmt.Errorf("submission %d is terminal, no job may join it", s.ID)
	}
	s.runJobs = append(s.runJobs, job)
	return nil
}

// SetCollectJob sets the single fan-in job of the submission.
func (s *Submission) SetCollectJob(job *Job) error {
	if s.terminal {
		return fmt.Errorf("submission %d is terminal, no job may join it", s.ID)
	}
	if s.collect != nil {
		return fmt.Errorf("submission %d already has a collect job", s.ID)
	}
	s.collect = job
	return nil
}

// Jobs returns every job of the submission, run jobs first, then the
// collect job.
func (s *Submission) Jobs() []*Job {
	jobs := make([]*Job, 0, len(s.runJobs)+1)
	jobs = append(jobs, s.runJobs...)
	if s.collect != nil {
		jobs = append(jobs, s.collect)
	}
	return jobs
}

// Terminal reports whether the submission has been observed terminal.
func (s *Submission) Terminal() bool {
	return s.terminal
}

func (s *Submission) markTerminal() {
	s.terminal = true
}
