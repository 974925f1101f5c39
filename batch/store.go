package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/plateflow/plateflow/types"
)

// Store persists the batches of one step as JSON job description files.
// Every run batch is written as <step>_run_<%06d>.job.json and the collect
// batch, if any, as <step>_collect.job.json. Paths are stored relative to
// the experiment root and converted back to absolute form on load.
type Store struct {
	step   string
	root   string
	dir    string
	logger *zap.Logger
}

// NewStore creates a store for the given step. root is the experiment root
// that persisted paths are made relative to; dir is the directory the job
// description files live in, normally StepLayout.JobDescriptionsDir. A nil
// logger disables log output.
func NewStore(step, root, dir string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		step:   step,
		root:   root,
		dir:    dir,
		logger: logger.With(zap.String("component", "job_store"), zap.String("step", step)),
	}
}

// RunJobFilename returns the absolute path of the description file for the
// run batch with the given one-based id. The id field is six digits wide,
// which limits a step to MaxRunJobs run batches.
func (s *Store) RunJobFilename(id int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_run_%06d.job.json", s.step, id))
}

// CollectJobFilename returns the absolute path of the collect batch's
// description file.
func (s *Store) CollectJobFilename() string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_collect.job.json", s.step))
}

// Write persists every batch of the set, creating the storage directory if
// absent. Paths are made relative to the experiment root before writing.
func (s *Store) Write(set *Set) error {
	if err := set.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create job descriptions directory: %w", err)
	}

	for _, b := range set.Run {
		rel, err := b.ToRelative(s.root)
		if err != nil {
			return fmt.Errorf("run batch %d: %w", b.ID, err)
		}
		if err := s.writeFile(s.RunJobFilename(b.ID), rel); err != nil {
			return err
		}
	}
	if set.Collect != nil {
		rel, err := set.Collect.ToRelative(s.root)
		if err != nil {
			return fmt.Errorf("collect batch: %w", err)
		}
		if err := s.writeFile(s.CollectJobFilename(), rel); err != nil {
			return err
		}
	}

	s.logger.Info("wrote job descriptions",
		zap.Int("run", len(set.Run)),
		zap.Bool("collect", set.Collect != nil),
	)
	return nil
}

func (s *Store) writeFile(filename string, b *Batch) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job description: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("write job description: %w", err)
	}
	return nil
}

// ReadAll loads every persisted batch of the step. It fails with
// NO_DESCRIPTIONS_FOUND when no run description files exist, and omits the
// collect batch when no collect file exists. Every path is converted to
// absolute form before returning.
func (s *Store) ReadAll() (*Set, error) {
	runFiles, err := filepath.Glob(filepath.Join(s.dir, "*_run_*.job.json"))
	if err != nil {
		return nil, fmt.Errorf("glob run job files: %w", err)
	}
	if len(runFiles) == 0 {
		return nil, types.NewError(
			types.ErrNoDescriptionsFound, "no job descriptor files found",
		)
	}
	sort.Strings(runFiles)

	set := &Set{}
	for _, f := range runFiles {
		b, err := s.Read(f)
		if err != nil {
			return nil, err
		}
		set.Run = append(set.Run, b)
	}

	collectFiles, err := filepath.Glob(filepath.Join(s.dir, "*_collect.job.json"))
	if err != nil {
		return nil, fmt.Errorf("glob collect job files: %w", err)
	}
	if len(collectFiles) > 0 {
		b, err := s.Read(collectFiles[0])
		if err != nil {
			return nil, err
		}
		set.Collect = b
	}

	return set, nil
}

// Read loads a single batch from its description file, converting paths to
// absolute form. It fails with MISSING_DESCRIPTION when the file does not
// exist, which signals that planning was never run for the step.
func (s *Store) Read(filename string) (*Batch, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.NewErrorf(
				types.ErrMissingDescription,
				"job description file does not exist: %s, initialize the step first",
				filename,
			).WithCause(err)
		}
		return nil, fmt.Errorf("read job description: %w", err)
	}
	var b Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode job description %s: %w", filename, err)
	}
	return b.ToAbsolute(s.root)
}
