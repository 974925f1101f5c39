package workflow

import (
	"go.uber.org/zap"

	"github.com/plateflow/plateflow/types"
)

// Step describes one processing step of a workflow stage, together with its
// opaque argument map. Arguments are interpreted by the step's planner, not
// by this package.
type Step struct {
	name StepName
	args map[string]any
}

// NewStep creates a step description. It fails with UNKNOWN_STEP if the step
// name is not registered.
func NewStep(r *Registry, name StepName, args map[string]any) (*Step, error) {
	if err := r.ValidateStep(name); err != nil {
		return nil, err
	}
	if args == nil {
		args = make(map[string]any)
	}
	return &Step{name: name, args: args}, nil
}

// Name returns the step name.
func (s *Step) Name() StepName {
	return s.name
}

// Args returns the step's argument map.
func (s *Step) Args() map[string]any {
	return s.args
}

// Stage describes one workflow stage as an ordered, append-only sequence of
// steps.
type Stage struct {
	registry *Registry
	name     StageName
	steps    []*Step
}

// NewStage creates an empty stage description. It fails with UNKNOWN_STAGE
// if the stage name is not registered.
func NewStage(r *Registry, name StageName) (*Stage, error) {
	if err := r.ValidateStage(name); err != nil {
		return nil, err
	}
	return &Stage{registry: r, name: name}, nil
}

// Name returns the stage name.
func (st *Stage) Name() StageName {
	return st.name
}

// Steps returns the steps added so far, in insertion order.
func (st *Stage) Steps() []*Step {
	out := make([]*Step, len(st.steps))
	copy(out, st.steps)
	return out
}

// AddStep appends a step to the stage. It fails with DUPLICATE_STEP if a
// step of the same name is already present, with UNKNOWN_STEP if the step is
// not an allowed step of this stage, and with MISSING_UPSTREAM_STEP if a
// required intra-stage predecessor has not been added yet.
func (st *Stage) AddStep(step *Step) error {
	if err := st.registry.ValidateStepInStage(step.name, st.name); err != nil {
		return err
	}
	for _, existing := range st.steps {
		if existing.name == step.name {
			return types.NewErrorf(
				types.ErrDuplicateStep, "step %q already exists", step.name,
			)
		}
	}
	for _, dep := range st.registry.StepDependencies(step.name) {
		if !st.hasStep(dep) {
			return types.NewErrorf(
				types.ErrMissingUpstreamStep,
				"step %q requires upstream step %q", step.name, dep,
			)
		}
	}
	st.steps = append(st.steps, step)
	return nil
}

func (st *Stage) hasStep(name StepName) bool {
	for _, s := range st.steps {
		if s.name == name {
			return true
		}
	}
	return false
}

// Description is a validated workflow description: an ordered, append-only
// sequence of stages. Insertion order is the sole ordering mechanism; once a
// stage has been added it can neither be removed nor reordered.
type Description struct {
	registry *Registry
	logger   *zap.Logger
	stages   []*Stage
}

// NewDescription creates an empty workflow description validated against the
// given registry. A nil logger disables warning output.
func NewDescription(r *Registry, logger *zap.Logger) *Description {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Description{
		registry: r,
		logger:   logger.With(zap.String("component", "workflow_description")),
	}
}

// Registry returns the registry the description is validated against.
func (d *Description) Registry() *Registry {
	return d.registry
}

// Stages returns the stages added so far, in insertion order.
func (d *Description) Stages() []*Stage {
	out := make([]*Stage, len(d.stages))
	copy(out, d.stages)
	return out
}

// StageNames returns the names of the stages added so far, in insertion
// order.
func (d *Description) StageNames() []StageName {
	names := make([]StageName, len(d.stages))
	for i, st := range d.stages {
		names[i] = st.name
	}
	return names
}

// AddStage appends a stage to the workflow.
//
// It fails with UNKNOWN_STAGE if the stage is not registered, with
// DUPLICATE_STAGE if a stage of the same name is already present, with
// ORDER_VIOLATION if an already-added stage declares the new stage as a
// required upstream (the new stage would have to come earlier, and
// reordering is not permitted), and with INCOMPLETE_STAGE if one of the
// registry-required steps of the stage has not been described.
//
// A declared upstream stage that has not been added yet is reported as a
// warning only; cross-stage inputs may have been produced by an earlier
// submission.
func (d *Description) AddStage(stage *Stage) error {
	if err := d.registry.ValidateStage(stage.name); err != nil {
		return err
	}
	for _, existing := range d.stages {
		if existing.name == stage.name {
			return types.NewErrorf(
				types.ErrDuplicateStage, "stage %q already exists", stage.name,
			)
		}
	}
	for _, step := range stage.steps {
		if err := d.registry.ValidateStepInStage(step.name, stage.name); err != nil {
			return err
		}
	}
	for _, dep := range d.registry.StageDependencies(stage.name) {
		if !d.hasStage(dep) {
			d.logger.Warn("stage requires upstream stage",
				zap.String("stage", string(stage.name)),
				zap.String("upstream", string(dep)),
			)
		}
	}
	for _, existing := range d.stages {
		for _, dep := range d.registry.StageDependencies(existing.name) {
			if dep == stage.name {
				return types.NewErrorf(
					types.ErrOrderViolation,
					"stage %q must be upstream of stage %q", stage.name, existing.name,
				)
			}
		}
	}
	for _, required := range d.registry.StepsFor(stage.name) {
		if !stage.hasStep(required) {
			return types.NewErrorf(
				types.ErrIncompleteStage,
				"stage %q requires step %q", stage.name, required,
			)
		}
	}
	d.stages = append(d.stages, stage)
	return nil
}

func (d *Description) hasStage(name StageName) bool {
	for _, st := range d.stages {
		if st.name == name {
			return true
		}
	}
	return false
}
