// Copyright (c) Plateflow Authors.
// Licensed under the MIT License.

// Package config loads the plateflow configuration from defaults, an
// optional YAML file and environment variable overrides, in that order of
// precedence.
package config
