// Copyright (c) Plateflow Authors.
// Licensed under the MIT License.

/*
Package workflow models multi-stage image-analysis workflows and validates
their step ordering before anything is submitted to a cluster.

A workflow is an ordered sequence of stages; a stage is an ordered sequence
of steps. Steps can be arranged in arbitrary order in principle, and broken
dependencies would only surface mid-run when a step finds its required input
missing. The point of this package is to reject such a workflow up front:
a Registry carries the static dependency tables, and Description enforces
them at construction time, so an incorrectly ordered workflow can never be
submitted in the first place.

Ordering is driven by insertion order plus the registry tables rather than a
general graph solver. The stage/step universe is small and fixed, which keeps
validation linear in the number of stages and steps.

Dependency policy: a stage missing one of its registry-required steps is a
hard failure (INCOMPLETE_STAGE), while a stage whose declared upstream stage
has not been added yet only logs a warning. The operator is trusted but
informed.
*/
package workflow
