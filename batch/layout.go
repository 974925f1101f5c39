package batch

import (
	"fmt"
	"os"
	"path/filepath"
)

// StepLayout fixes the on-disk layout of one step's working data under the
// experiment root. Directory creation and removal are explicit lifecycle
// calls owned by the planner: Ensure on step init, Remove on step teardown.
type StepLayout struct {
	root string
	step string
}

// NewStepLayout creates the layout for a step under the experiment root.
func NewStepLayout(root, step string) StepLayout {
	return StepLayout{root: root, step: step}
}

// Root returns the experiment root directory.
func (l StepLayout) Root() string {
	return l.root
}

// WorkflowDir returns the directory holding workflow-related data of the
// experiment.
func (l StepLayout) WorkflowDir() string {
	return filepath.Join(l.root, "workflow")
}

// StepDir returns the directory holding the step's data.
func (l StepLayout) StepDir() string {
	return filepath.Join(l.WorkflowDir(), l.step)
}

// JobDescriptionsDir returns the directory holding the step's job
// description files.
func (l StepLayout) JobDescriptionsDir() string {
	return filepath.Join(l.StepDir(), "job_descriptions")
}

// LogDir returns the directory holding the step's job log files.
func (l StepLayout) LogDir() string {
	return filepath.Join(l.StepDir(), "log")
}

// Ensure creates the step's directories if absent.
func (l StepLayout) Ensure() error {
	for _, dir := range []string{l.JobDescriptionsDir(), l.LogDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create step directory: %w", err)
		}
	}
	return nil
}

// Remove deletes the step directory and everything beneath it.
func (l StepLayout) Remove() error {
	if err := os.RemoveAll(l.StepDir()); err != nil {
		return fmt.Errorf("remove step directory: %w", err)
	}
	return nil
}
