package batch

import (
	"fmt"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/plateflow/plateflow/types"
)

// MaxRunJobs is the maximum number of run batches per step, bounded by the
// six-digit id field of the job description filename.
const MaxRunJobs = 1000000

// Batch is the serializable description of one job: its one-based id (run
// batches only), its input and output path collections, and for a collect
// batch optionally the input keys that are removed during collection.
type Batch struct {
	// ID is the one-based job identifier number. Zero for a collect batch.
	ID int `json:"id,omitempty"`
	// Inputs maps input keys to path collections required to run the job.
	Inputs map[string]PathValue `json:"inputs"`
	// Outputs maps output keys to path collections produced by the job.
	Outputs map[string]PathValue `json:"outputs"`
	// Removals names the input keys whose files are removed during the
	// collect phase.
	Removals []string `json:"removals,omitempty"`
}

// mapPaths applies f to every input and output path of the batch, returning
// a new batch with the same shapes.
func (b *Batch) mapPaths(f func(string) (string, error)) (*Batch, error) {
	out := &Batch{
		ID:       b.ID,
		Inputs:   make(map[string]PathValue, len(b.Inputs)),
		Outputs:  make(map[string]PathValue, len(b.Outputs)),
		Removals: append([]string(nil), b.Removals...),
	}
	if len(b.Removals) == 0 {
		out.Removals = nil
	}
	for key, value := range b.Inputs {
		mapped, err := value.mapPaths(f)
		if err != nil {
			return nil, fmt.Errorf("inputs key %q: %w", key, err)
		}
		out.Inputs[key] = mapped
	}
	for key, value := range b.Outputs {
		mapped, err := value.mapPaths(f)
		if err != nil {
			return nil, fmt.Errorf("outputs key %q: %w", key, err)
		}
		out.Outputs[key] = mapped
	}
	return out, nil
}

// ToRelative returns a copy of the batch with every path made relative to
// the experiment root, the form in which batches are persisted.
func (b *Batch) ToRelative(root string) (*Batch, error) {
	return b.mapPaths(func(p string) (string, error) {
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return "", err
		}
		return rel, nil
	})
}

// ToAbsolute returns a copy of the batch with every root-relative path
// joined onto the experiment root, the in-memory form.
func (b *Batch) ToAbsolute(root string) (*Batch, error) {
	return b.mapPaths(func(p string) (string, error) {
		if filepath.IsAbs(p) {
			return p, nil
		}
		return filepath.Join(root, p), nil
	})
}

// InputFiles returns every input path of the batch as a flat list.
func (b *Batch) InputFiles() []string {
	return flattenPathMap(b.Inputs)
}

// OutputFiles returns every output path of the batch as a flat list.
func (b *Batch) OutputFiles() []string {
	return flattenPathMap(b.Outputs)
}

func flattenPathMap(m map[string]PathValue) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var out []string
	for _, key := range keys {
		out = append(out, m[key].Flatten()...)
	}
	return out
}

// Set groups the batches of one planning pass: the run batches of the
// parallel phase and at most one collect batch for the fan-in phase. The
// collect batch implicitly depends on all run batches.
type Set struct {
	// Run holds the run batches, with dense ids 1..N.
	Run []*Batch
	// Collect is the fan-in batch, nil when the step has no collect phase.
	Collect *Batch
}

// Validate checks the invariants of the set: at least one run batch, dense
// one-based run ids not exceeding MaxRunJobs, and input/output mappings
// present on every batch.
func (s *Set) Validate() error {
	if len(s.Run) == 0 {
		return types.NewError(types.ErrNoDescriptionsFound, "set contains no run batches")
	}
	if len(s.Run) > MaxRunJobs {
		return types.NewErrorf(
			types.ErrMalformedShape,
			"too many run batches: %d exceeds the limit of %d", len(s.Run), MaxRunJobs,
		)
	}
	for i, b := range s.Run {
		if b.ID != i+1 {
			return types.NewErrorf(
				types.ErrMalformedShape,
				"run batch at position %d has id %d, ids must be dense from 1", i, b.ID,
			)
		}
		if err := checkBatchIO(b); err != nil {
			return err
		}
	}
	if s.Collect != nil {
		if err := checkBatchIO(s.Collect); err != nil {
			return err
		}
	}
	return nil
}

func checkBatchIO(b *Batch) error {
	if b.Inputs == nil {
		return types.NewError(types.ErrMalformedShape, "batch has no inputs mapping")
	}
	if b.Outputs == nil {
		return types.NewError(types.ErrMalformedShape, "batch has no outputs mapping")
	}
	for key, value := range b.Inputs {
		if value.Shape() == ShapeNone {
			return types.NewErrorf(
				types.ErrMalformedShape, "inputs key %q has no shape", key,
			)
		}
	}
	for key, value := range b.Outputs {
		if value.Shape() == ShapeNone {
			return types.NewErrorf(
				types.ErrMalformedShape, "outputs key %q has no shape", key,
			)
		}
	}
	return nil
}

// InputFiles returns every input path of the run batches as a flat list.
func (s *Set) InputFiles() []string {
	var out []string
	for _, b := range s.Run {
		out = append(out, b.InputFiles()...)
	}
	return out
}

// OutputFiles returns every output path the step should create, including
// the collect batch's outputs.
func (s *Set) OutputFiles() []string {
	var out []string
	for _, b := range s.Run {
		out = append(out, b.OutputFiles()...)
	}
	if s.Collect != nil {
		out = append(out, s.Collect.OutputFiles()...)
	}
	return out
}

// ToYAML renders the set in YAML for operator inspection.
func (s *Set) ToYAML() (string, error) {
	type entry struct {
		ID       int                 `yaml:"id,omitempty"`
		Inputs   map[string][]string `yaml:"inputs"`
		Outputs  map[string][]string `yaml:"outputs"`
		Removals []string            `yaml:"removals,omitempty"`
	}
	flatten := func(b *Batch) entry {
		e := entry{
			ID:       b.ID,
			Inputs:   make(map[string][]string, len(b.Inputs)),
			Outputs:  make(map[string][]string, len(b.Outputs)),
			Removals: b.Removals,
		}
		for key, value := range b.Inputs {
			e.Inputs[key] = value.Flatten()
		}
		for key, value := range b.Outputs {
			e.Outputs[key] = value.Flatten()
		}
		return e
	}
	doc := make(map[string]any, 2)
	run := make([]entry, len(s.Run))
	for i, b := range s.Run {
		run[i] = flatten(b)
	}
	doc["run"] = run
	if s.Collect != nil {
		doc["collect"] = flatten(s.Collect)
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal batch set: %w", err)
	}
	return string(data), nil
}
