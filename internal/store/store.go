// Package store persists experiments, submissions and task states in a
// relational database. This package is internal and should not be imported
// by external projects.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Experiment is the persisted record of one experiment: a named image
// dataset rooted at a directory.
type Experiment struct {
	ID        int64     `gorm:"primaryKey"`
	Name      string    `gorm:"uniqueIndex;size:255;not null"`
	RootPath  string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Submission is the persisted record of one planning-and-submit pass of a
// step.
type Submission struct {
	ID           int64     `gorm:"primaryKey"`
	ExperimentID int64     `gorm:"index;not null"`
	StepName     string    `gorm:"size:128;not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

// Task is the persisted status of one job of a submission, updated as the
// monitor loop observes state changes.
type Task struct {
	ID           int64  `gorm:"primaryKey"`
	SubmissionID int64  `gorm:"uniqueIndex:idx_tasks_submission_name;not null"`
	Name         string `gorm:"uniqueIndex:idx_tasks_submission_name;size:255;not null"`
	Type         string `gorm:"size:16;not null"`
	State        string `gorm:"size:16;not null"`
	ExitCode     int
	ElapsedMS    int64
	CPUTimeMS    int64
	MaxMemoryMB  int
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// Store wraps the database handle.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open opens the sqlite database at the given path, migrating the schema. A
// nil logger disables log output.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %q: %w", path, err)
	}
	if err := db.AutoMigrate(&Experiment{}, &Submission{}, &Task{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}
	logger.Info("database opened", zap.String("path", path))
	return &Store{
		db:     db,
		logger: logger.With(zap.String("component", "store")),
	}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateExperiment registers an experiment. Names are unique.
func (s *Store) CreateExperiment(ctx context.Context, name, rootPath string) (*Experiment, error) {
	exp := &Experiment{Name: name, RootPath: rootPath}
	if err := s.db.WithContext(ctx).Create(exp).Error; err != nil {
		return nil, fmt.Errorf("failed to create experiment %q: %w", name, err)
	}
	return exp, nil
}

// Experiment loads an experiment by id.
func (s *Store) Experiment(ctx context.Context, id int64) (*Experiment, error) {
	var exp Experiment
	err := s.db.WithContext(ctx).First(&exp, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("no experiment with id %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &exp, nil
}

// ExperimentByName loads an experiment by its unique name.
func (s *Store) ExperimentByName(ctx context.Context, name string) (*Experiment, error) {
	var exp Experiment
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&exp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("no experiment named %q", name)
	}
	if err != nil {
		return nil, err
	}
	return &exp, nil
}

// CreateSubmission registers a new submission of a step for an experiment.
func (s *Store) CreateSubmission(ctx context.Context, experimentID int64, step string) (*Submission, error) {
	if _, err := s.Experiment(ctx, experimentID); err != nil {
		return nil, err
	}
	sub := &Submission{ExperimentID: experimentID, StepName: step}
	if err := s.db.WithContext(ctx).Create(sub).Error; err != nil {
		return nil, fmt.Errorf("failed to create submission: %w", err)
	}
	s.logger.Debug("submission created",
		zap.Int64("submission_id", sub.ID),
		zap.Int64("experiment_id", experimentID),
		zap.String("step", step),
	)
	return sub, nil
}

// LatestSubmission loads the most recent submission of a step for an
// experiment.
func (s *Store) LatestSubmission(ctx context.Context, experimentID int64, step string) (*Submission, error) {
	var sub Submission
	err := s.db.WithContext(ctx).
		Where("experiment_id = ? AND step_name = ?", experimentID, step).
		Order("id DESC").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("no submission of step %q for experiment %d", step, experimentID)
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// RecordTaskStatus upserts one task status row, keyed by submission and
// task name.
func (s *Store) RecordTaskStatus(ctx context.Context, task *Task) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "submission_id"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"state", "exit_code", "elapsed_ms", "cpu_time_ms", "max_memory_mb", "updated_at",
		}),
	}).Create(task).Error
	if err != nil {
		return fmt.Errorf("failed to record status of task %q: %w", task.Name, err)
	}
	return nil
}

// SubmissionTasks loads every task of a submission, ordered by name.
func (s *Store) SubmissionTasks(ctx context.Context, submissionID int64) ([]Task, error) {
	var tasks []Task
	err := s.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("name").
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}
