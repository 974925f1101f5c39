// Copyright (c) Plateflow Authors.
// Licensed under the MIT License.

/*
Package scheduler submits the jobs of one planning pass to an execution
engine and monitors them until every job reaches a terminal state.

The engine owns parallel execution, dependency wiring between the run and
collect phases, and any retry policy. This package only drives a blocking,
single-threaded poll loop: sleep, step the engine, collect per-job status,
report. A failing job never aborts the loop; failures are aggregated into a
report once the whole submission is terminal. Errors talking to the engine
are fatal and propagate unmodified.
*/
package scheduler
