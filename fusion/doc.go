// Copyright (c) Plateflow Authors.
// Licensed under the MIT License.

// Package fusion combines the per-batch data fragments produced by the run
// phase of an analysis step into a single experiment-level data file.
//
// The fragment store itself is abstracted behind the Opener, Reader and
// Writer interfaces so the fusion pass never depends on a concrete file
// format. Fuse performs the fan-in copy; Merge carries datasets of a
// previous result file over into a fresh one.
package fusion
