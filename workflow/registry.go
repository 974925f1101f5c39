package workflow

import (
	"strings"

	"github.com/plateflow/plateflow/types"
)

// StageName identifies a top-level workflow stage.
type StageName string

// Canonical workflow stages.
const (
	StageImageConversion    StageName = "image_conversion"
	StageImagePreprocessing StageName = "image_preprocessing"
	StagePyramidCreation    StageName = "pyramid_creation"
	StageImageAnalysis      StageName = "image_analysis"
)

// StepName identifies a processing step within a stage.
type StepName string

// Canonical workflow steps.
const (
	StepMetaExtract StepName = "metaextract"
	StepMetaConfig  StepName = "metaconfig"
	StepImExtract   StepName = "imextract"
	StepCorilla     StepName = "corilla"
	StepAlign       StepName = "align"
	StepIlluminati  StepName = "illuminati"
	StepJterator    StepName = "jterator"
)

// StageSpec declares one stage of a registry table: its name, the steps it
// is composed of (in required order), and the stages that must run upstream.
type StageSpec struct {
	// Name is the stage name.
	Name StageName
	// Steps lists the steps of the stage in execution order. Every listed
	// step is required for the stage to be complete.
	Steps []StepName
	// Upstream lists the stages that must be added before this one.
	Upstream []StageName
}

// Registry is a static table of known stages, their steps, and the
// inter-stage and intra-stage dependency sets. It is the sole source of
// truth for workflow validation.
type Registry struct {
	stages    []StageName
	specs     map[StageName]StageSpec
	stepDeps  map[StepName][]StepName
	stepStage map[StepName]StageName
}

// NewRegistry builds a registry from a stage table and an intra-stage step
// dependency table. The order of stages in the table is informational only;
// ordering of a concrete workflow is determined by insertion order at
// description time.
func NewRegistry(stages []StageSpec, stepDeps map[StepName][]StepName) *Registry {
	r := &Registry{
		specs:     make(map[StageName]StageSpec, len(stages)),
		stepDeps:  stepDeps,
		stepStage: make(map[StepName]StageName),
	}
	for _, spec := range stages {
		r.stages = append(r.stages, spec.Name)
		r.specs[spec.Name] = spec
		for _, step := range spec.Steps {
			r.stepStage[step] = spec.Name
		}
	}
	return r
}

// Canonical returns the registry for the canonical plateflow workflow:
// image conversion, image preprocessing, pyramid creation and image
// analysis, with their respective steps and dependencies.
func Canonical() *Registry {
	return NewRegistry(
		[]StageSpec{
			{
				Name:  StageImageConversion,
				Steps: []StepName{StepMetaExtract, StepMetaConfig, StepImExtract},
			},
			{
				Name:     StageImagePreprocessing,
				Steps:    []StepName{StepCorilla, StepAlign},
				Upstream: []StageName{StageImageConversion},
			},
			{
				Name:     StagePyramidCreation,
				Steps:    []StepName{StepIlluminati},
				Upstream: []StageName{StageImageConversion, StageImagePreprocessing},
			},
			{
				Name:     StageImageAnalysis,
				Steps:    []StepName{StepJterator},
				Upstream: []StageName{StageImageConversion, StageImagePreprocessing},
			},
		},
		map[StepName][]StepName{
			StepMetaConfig: {StepMetaExtract},
			StepImExtract:  {StepMetaConfig},
		},
	)
}

// Stages returns the names of all registered stages.
func (r *Registry) Stages() []StageName {
	out := make([]StageName, len(r.stages))
	copy(out, r.stages)
	return out
}

// StepsFor returns the required steps of the given stage, in order.
func (r *Registry) StepsFor(stage StageName) []StepName {
	spec, ok := r.specs[stage]
	if !ok {
		return nil
	}
	out := make([]StepName, len(spec.Steps))
	copy(out, spec.Steps)
	return out
}

// StageDependencies returns the stages that must be upstream of the given
// stage.
func (r *Registry) StageDependencies(stage StageName) []StageName {
	spec, ok := r.specs[stage]
	if !ok {
		return nil
	}
	out := make([]StageName, len(spec.Upstream))
	copy(out, spec.Upstream)
	return out
}

// StepDependencies returns the steps that must precede the given step within
// its stage.
func (r *Registry) StepDependencies(step StepName) []StepName {
	deps := r.stepDeps[step]
	out := make([]StepName, len(deps))
	copy(out, deps)
	return out
}

// ValidateStage fails with UNKNOWN_STAGE if the stage is not registered.
func (r *Registry) ValidateStage(name StageName) error {
	if _, ok := r.specs[name]; !ok {
		return types.NewErrorf(
			types.ErrUnknownStage,
			"unknown stage %q, known stages are: %s", name, joinStages(r.stages),
		)
	}
	return nil
}

// ValidateStep fails with UNKNOWN_STEP if the step is not registered for any
// stage.
func (r *Registry) ValidateStep(name StepName) error {
	if _, ok := r.stepStage[name]; !ok {
		return types.NewErrorf(
			types.ErrUnknownStep,
			"unknown step %q, known steps are: %s", name, joinSteps(r.allSteps()),
		)
	}
	return nil
}

// ValidateStepInStage fails with UNKNOWN_STEP if the step is not one of the
// allowed steps of the given stage.
func (r *Registry) ValidateStepInStage(step StepName, stage StageName) error {
	spec, ok := r.specs[stage]
	if !ok {
		return r.ValidateStage(stage)
	}
	for _, s := range spec.Steps {
		if s == step {
			return nil
		}
	}
	return types.NewErrorf(
		types.ErrUnknownStep,
		"unknown step %q for stage %q, known steps are: %s",
		step, stage, joinSteps(spec.Steps),
	)
}

func (r *Registry) allSteps() []StepName {
	var steps []StepName
	for _, stage := range r.stages {
		steps = append(steps, r.specs[stage].Steps...)
	}
	return steps
}

func joinStages(names []StageName) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = string(n)
	}
	return strings.Join(parts, ", ")
}

func joinSteps(names []StepName) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = string(n)
	}
	return strings.Join(parts, ", ")
}
