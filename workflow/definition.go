package workflow

import (
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Definition is the serializable form of a workflow description, as written
// by operators in YAML or JSON. Building a Description from a Definition
// runs the full validation, so a file that decodes successfully can still be
// rejected.
type Definition struct {
	// Stages lists the stage definitions in execution order.
	Stages []StageDefinition `json:"stages" yaml:"stages"`
}

// StageDefinition is the serializable form of one workflow stage.
type StageDefinition struct {
	// Name is the stage name.
	Name string `json:"name" yaml:"name"`
	// Steps lists the step definitions in execution order.
	Steps []StepDefinition `json:"steps" yaml:"steps"`
}

// StepDefinition is the serializable form of one workflow step.
type StepDefinition struct {
	// Name is the step name.
	Name string `json:"name" yaml:"name"`
	// Args holds the step's arguments as key-value pairs.
	Args map[string]any `json:"args,omitempty" yaml:"args,omitempty"`
}

// Build constructs a validated Description from the definition.
func (def *Definition) Build(r *Registry, logger *zap.Logger) (*Description, error) {
	d := NewDescription(r, logger)
	for _, stageDef := range def.Stages {
		stage, err := NewStage(r, StageName(stageDef.Name))
		if err != nil {
			return nil, err
		}
		for _, stepDef := range stageDef.Steps {
			step, err := NewStep(r, StepName(stepDef.Name), stepDef.Args)
			if err != nil {
				return nil, err
			}
			if err := stage.AddStep(step); err != nil {
				return nil, err
			}
		}
		if err := d.AddStage(stage); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Definition converts the description back to its serializable form.
func (d *Description) Definition() *Definition {
	def := &Definition{}
	for _, stage := range d.stages {
		stageDef := StageDefinition{Name: string(stage.name)}
		for _, step := range stage.steps {
			stageDef.Steps = append(stageDef.Steps, StepDefinition{
				Name: string(step.name),
				Args: step.args,
			})
		}
		def.Stages = append(def.Stages, stageDef)
	}
	return def
}

// FromYAML creates a validated Description from YAML bytes.
func FromYAML(r *Registry, data []byte, logger *zap.Logger) (*Description, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow definition: %w", err)
	}
	return def.Build(r, logger)
}

// FromJSON creates a validated Description from JSON bytes.
func FromJSON(r *Registry, data []byte, logger *zap.Logger) (*Description, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow definition: %w", err)
	}
	return def.Build(r, logger)
}

// LoadFromYAMLFile loads and validates a workflow description from a YAML
// file.
func LoadFromYAMLFile(r *Registry, filename string, logger *zap.Logger) (*Description, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return FromYAML(r, data, logger)
}

// ToYAML converts the definition to a YAML string.
func (def *Definition) ToYAML() (string, error) {
	data, err := yaml.Marshal(def)
	if err != nil {
		return "", fmt.Errorf("failed to marshal to YAML: %w", err)
	}
	return string(data), nil
}
