package batch

import (
	"fmt"
	"path/filepath"

	"github.com/plateflow/plateflow/types"
)

// Planner produces the batches of one planning pass from a step's arguments
// and its addressable inputs. Implementations decide how work is partitioned
// and whether the step has a collect phase.
type Planner interface {
	// CreateBatches returns the run batches (dense ids 1..N) and the
	// optional collect batch for the step.
	CreateBatches(args map[string]any) (*Set, error)
}

// Chunk splits items into sublists of length n; the last sublist may be
// shorter. A non-positive n is treated as 1.
func Chunk(items []string, n int) [][]string {
	if n < 1 {
		n = 1
	}
	var out [][]string
	for i := 0; i < len(items); i += n {
		end := i + n
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}

// FanOutPlanner is a generic planner for steps whose work splits evenly over
// their input files. It partitions the addressable inputs into chunks of
// BatchSize and emits one run batch per chunk, each writing one dataset
// fragment. When CollectOutput is set, a collect batch fans the fragments
// into a single fused file.
type FanOutPlanner struct {
	// Step is the step name, used in fragment filenames.
	Step string
	// Inputs are the absolute paths of the step's addressable input files.
	Inputs []string
	// BatchSize is the number of input files per run batch. A "batch_size"
	// entry in the step arguments overrides it.
	BatchSize int
	// OutputDir is the absolute path of the directory fragments are
	// written to.
	OutputDir string
	// CollectOutput is the absolute path of the fused output file. Empty
	// means the step has no collect phase.
	CollectOutput string
	// RemoveFragments marks the fragment inputs of the collect batch as
	// removable after fusion.
	RemoveFragments bool
}

var _ Planner = (*FanOutPlanner)(nil)

// CreateBatches implements Planner.
func (p *FanOutPlanner) CreateBatches(args map[string]any) (*Set, error) {
	size := p.BatchSize
	if raw, ok := args["batch_size"]; ok {
		parsed, err := intArg(raw)
		if err != nil {
			return nil, fmt.Errorf("argument \"batch_size\": %w", err)
		}
		size = parsed
	}
	if size < 1 {
		size = 1
	}

	set := &Set{}
	var fragments []string
	for i, chunk := range Chunk(p.Inputs, size) {
		id := i + 1
		if id > MaxRunJobs {
			return nil, types.NewErrorf(
				types.ErrMalformedShape,
				"planning would exceed the limit of %d run batches", MaxRunJobs,
			)
		}
		fragment := p.fragmentPath(id)
		fragments = append(fragments, fragment)
		set.Run = append(set.Run, &Batch{
			ID:      id,
			Inputs:  map[string]PathValue{"image_files": List(chunk...)},
			Outputs: map[string]PathValue{"data_file": List(fragment)},
		})
	}

	if p.CollectOutput != "" {
		collect := &Batch{
			Inputs:  map[string]PathValue{"data_files": List(fragments...)},
			Outputs: map[string]PathValue{"data_file": List(p.CollectOutput)},
		}
		if p.RemoveFragments {
			collect.Removals = []string{"data_files"}
		}
		set.Collect = collect
	}

	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

func (p *FanOutPlanner) fragmentPath(id int) string {
	return filepath.Join(p.OutputDir, fmt.Sprintf("%s_%06d.data.h5", p.Step, id))
}

func intArg(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("expected an integer, got %T", raw)
	}
}
