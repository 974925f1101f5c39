// Copyright (c) Plateflow Authors.
// Licensed under the MIT License.

/*
Package types provides the shared type contracts of the plateflow core.

types is the lowest-level public package and depends on nothing else in the
module. It defines the structured error system used by workflow validation,
batch planning, job persistence and dataset fusion, so that callers can
dispatch on error codes without importing the package that raised the error.
*/
package types
