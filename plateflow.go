// Package plateflow provides a top-level convenience entry point for working
// with workflow descriptions.
//
// Usage:
//
//	import "github.com/plateflow/plateflow"
//
//	d, err := plateflow.LoadWorkflow("workflow.yaml", logger)
//	d, err := plateflow.ParseWorkflow(yamlBytes, logger)
//
// This is a thin wrapper around the [workflow] package using the canonical
// stage and step tables. Use the workflow package directly to validate
// against a custom registry.
package plateflow

import (
	"go.uber.org/zap"

	"github.com/plateflow/plateflow/workflow"
)

// Definition is the serializable form of a workflow description.
type Definition = workflow.Definition

// Description is a validated workflow description.
type Description = workflow.Description

// Canonical returns the canonical stage and step dependency tables.
func Canonical() *workflow.Registry {
	return workflow.Canonical()
}

// LoadWorkflow loads and validates a workflow description from a YAML file
// against the canonical tables.
func LoadWorkflow(filename string, logger *zap.Logger) (*Description, error) {
	return workflow.LoadFromYAMLFile(workflow.Canonical(), filename, logger)
}

// ParseWorkflow parses and validates a workflow description from YAML bytes
// against the canonical tables.
func ParseWorkflow(data []byte, logger *zap.Logger) (*Description, error) {
	return workflow.FromYAML(workflow.Canonical(), data, logger)
}
