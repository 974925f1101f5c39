// Copyright (c) Plateflow Authors.
// Licensed under the MIT License.

/*
Package batch turns a workflow step into serializable units of parallel work.

A Batch describes the inputs and outputs of a single job. A planning pass
produces a Set: run batches with dense one-based ids for the parallel phase,
plus at most one collect batch for the fan-in phase. The Store persists a Set
as one JSON file per batch under the step's job-descriptions directory, with
all paths stored relative to the experiment root so descriptions stay
portable, and converts them back to absolute paths on load.

Input and output path collections come in exactly three shapes: a flat list,
a one-level-nested list of lists, or a mapping to lists. PathValue is the
tagged union that enforces this on the wire and in memory.
*/
package batch
