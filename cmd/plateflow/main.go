// Command plateflow plans, submits and monitors the steps of an image
// analysis workflow.
//
// Usage:
//
//	plateflow init --name <experiment> --root <dir>   # register an experiment
//	plateflow check --file workflow.yaml              # validate a workflow definition
//	plateflow plan --experiment <name> --step <step>  # write job descriptions
//	plateflow submit --experiment <name> --step <step>
//	plateflow status --experiment <name> --step <step>
//	plateflow version
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/plateflow/plateflow/batch"
	"github.com/plateflow/plateflow/config"
	"github.com/plateflow/plateflow/internal/localengine"
	"github.com/plateflow/plateflow/internal/metrics"
	"github.com/plateflow/plateflow/internal/store"
	"github.com/plateflow/plateflow/scheduler"
	"github.com/plateflow/plateflow/workflow"
)

// Version information, injected at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = runInit(os.Args[2:])
	case "check":
		err = runCheck(os.Args[2:])
	case "plan":
		err = runPlan(os.Args[2:])
	case "submit":
		err = runSubmit(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	case "version":
		fmt.Printf("plateflow %s (%s)\n", Version, GitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env bundles what every command needs: configuration, a logger and the
// experiment database.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *store.Store
}

func setup(configPath string) (*env, error) {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	logger, err := cfg.BuildLogger()
	if err != nil {
		return nil, err
	}
	db, err := store.Open(cfg.Database.Path, logger)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, db: db}, nil
}

func (e *env) close() {
	e.db.Close()
	e.logger.Sync()
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	name := fs.String("name", "", "Experiment name")
	root := fs.String("root", "", "Experiment root directory")
	fs.Parse(args)

	if *name == "" || *root == "" {
		return fmt.Errorf("both --name and --root are required")
	}
	absRoot, err := filepath.Abs(*root)
	if err != nil {
		return err
	}

	e, err := setup(*configPath)
	if err != nil {
		return err
	}
	defer e.close()

	exp, err := e.db.CreateExperiment(context.Background(), *name, absRoot)
	if err != nil {
		return err
	}
	fmt.Printf("experiment %q registered with id %d\n", exp.Name, exp.ID)
	return nil
}

func runCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	file := fs.String("file", "workflow.yaml", "Workflow definition file")
	fs.Parse(args)

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	d, err := workflow.LoadFromYAMLFile(workflow.Canonical(), *file, logger)
	if err != nil {
		return err
	}
	fmt.Printf("%s: valid workflow with %d stages\n", *file, len(d.Stages()))
	return nil
}

func runPlan(args []string) error {
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	experiment := fs.String("experiment", "", "Experiment name")
	step := fs.String("step", "", "Step name")
	inputs := fs.String("inputs", "", "Glob pattern of input files, relative to the experiment root")
	batchSize := fs.Int("batch-size", 10, "Input files per run batch")
	fs.Parse(args)

	if *experiment == "" || *step == "" || *inputs == "" {
		return fmt.Errorf("--experiment, --step and --inputs are required")
	}

	e, err := setup(*configPath)
	if err != nil {
		return err
	}
	defer e.close()

	if err := workflow.Canonical().ValidateStep(workflow.StepName(*step)); err != nil {
		return err
	}

	exp, err := e.db.ExperimentByName(context.Background(), *experiment)
	if err != nil {
		return err
	}
	layout := batch.NewStepLayout(exp.RootPath, *step)
	if err := layout.Ensure(); err != nil {
		return err
	}

	files, err := filepath.Glob(filepath.Join(exp.RootPath, *inputs))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no input files match %q under %s", *inputs, exp.RootPath)
	}

	planner := &batch.FanOutPlanner{
		Step:            *step,
		Inputs:          files,
		BatchSize:       *batchSize,
		OutputDir:       layout.StepDir(),
		CollectOutput:   filepath.Join(exp.RootPath, "data.h5"),
		RemoveFragments: e.cfg.Fusion.DeleteFragments,
	}
	set, err := planner.CreateBatches(nil)
	if err != nil {
		return err
	}

	jobStore := batch.NewStore(*step, exp.RootPath, layout.JobDescriptionsDir(), e.logger)
	if err := jobStore.Write(set); err != nil {
		return err
	}
	fmt.Printf("planned %d run batches for step %q\n", len(set.Run), *step)
	return nil
}

func runSubmit(args []string) error {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	experiment := fs.String("experiment", "", "Experiment name")
	step := fs.String("step", "", "Step name")
	verbosity := fs.Int("verbosity", 0, "Verbosity passed to the step jobs")
	fs.Parse(args)

	if *experiment == "" || *step == "" {
		return fmt.Errorf("both --experiment and --step are required")
	}

	e, err := setup(*configPath)
	if err != nil {
		return err
	}
	defer e.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exp, err := e.db.ExperimentByName(ctx, *experiment)
	if err != nil {
		return err
	}
	layout := batch.NewStepLayout(exp.RootPath, *step)
	jobStore := batch.NewStore(*step, exp.RootPath, layout.JobDescriptionsDir(), e.logger)
	set, err := jobStore.ReadAll()
	if err != nil {
		return err
	}

	rec, err := e.db.CreateSubmission(ctx, exp.ID, *step)
	if err != nil {
		return err
	}

	sub := scheduler.NewSubmission(rec.ID, *step)
	runRes := scheduler.Resources{
		Walltime: e.cfg.Resources.RunWalltime,
		MemoryMB: e.cfg.Resources.RunMemoryMB,
		Cores:    e.cfg.Resources.RunCores,
	}
	for _, b := range set.Run {
		job, err := scheduler.NewRunJob(*step, rec.ID, exp.ID, b.ID, *verbosity, runRes)
		if err != nil {
			return err
		}
		if err := sub.AddRunJob(job); err != nil {
			return err
		}
	}
	if set.Collect != nil {
		collect, err := scheduler.NewCollectJob(*step, rec.ID, exp.ID, *verbosity, scheduler.Resources{
			Walltime: e.cfg.Resources.CollectWalltime,
			MemoryMB: e.cfg.Resources.CollectMemoryMB,
			Cores:    1,
		})
		if err != nil {
			return err
		}
		if err := sub.SetCollectJob(collect); err != nil {
			return err
		}
	}

	engine := localengine.New(layout.LogDir(), e.logger)
	collector := metrics.NewCollector("plateflow")
	sched := scheduler.New(engine, e.logger, scheduler.Config{
		MonitorInterval: e.cfg.Scheduler.MonitorInterval,
		SubmitCap:       e.cfg.Scheduler.SubmitCap,
	}, collector)

	table, err := sched.Submit(ctx, sub)
	if err != nil {
		return err
	}
	if err := recordStatuses(ctx, e.db, rec.ID, table); err != nil {
		return err
	}

	if failures := table.Failures(); len(failures) > 0 {
		return fmt.Errorf("%d of %d jobs failed, see %s", len(failures), len(table), layout.LogDir())
	}
	fmt.Printf("submission %d finished: %d jobs succeeded\n", rec.ID, len(table))
	return nil
}

func recordStatuses(ctx context.Context, db *store.Store, submissionID int64, table scheduler.StatusTable) error {
	for _, st := range table {
		err := db.RecordTaskStatus(ctx, &store.Task{
			SubmissionID: submissionID,
			Name:         st.Name,
			Type:         string(st.Phase),
			State:        string(st.State),
			ExitCode:     st.ExitCode,
			ElapsedMS:    st.ElapsedTime.Milliseconds(),
			CPUTimeMS:    st.CPUTime.Milliseconds(),
			MaxMemoryMB:  st.MaxMemoryMB,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	experiment := fs.String("experiment", "", "Experiment name")
	step := fs.String("step", "", "Step name")
	fs.Parse(args)

	if *experiment == "" || *step == "" {
		return fmt.Errorf("both --experiment and --step are required")
	}

	e, err := setup(*configPath)
	if err != nil {
		return err
	}
	defer e.close()

	ctx := context.Background()
	exp, err := e.db.ExperimentByName(ctx, *experiment)
	if err != nil {
		return err
	}
	sub, err := e.db.LatestSubmission(ctx, exp.ID, *step)
	if err != nil {
		return err
	}
	tasks, err := e.db.SubmissionTasks(ctx, sub.ID)
	if err != nil {
		return err
	}

	fmt.Printf("submission %d of step %q (%s)\n", sub.ID, *step, sub.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("%-32s %-8s %-12s %8s %10s %8s\n", "NAME", "TYPE", "STATE", "EXIT", "TIME", "MEM_MB")
	for _, task := range tasks {
		fmt.Printf("%-32s %-8s %-12s %8d %9dms %8d\n",
			task.Name, task.Type, task.State, task.ExitCode, task.ElapsedMS, task.MaxMemoryMB)
	}
	return nil
}

func printUsage() {
	fmt.Println(`plateflow - image analysis workflow orchestration

Usage:
  plateflow <command> [options]

Commands:
  init      Register an experiment
  check     Validate a workflow definition file
  plan      Partition a step's inputs into job descriptions
  submit    Submit the planned jobs of a step and monitor them
  status    Show the latest submission of a step
  version   Show version information
  help      Show this help message

Common options:
  --config <path>   Path to configuration file (YAML)

Examples:
  plateflow init --name screen-a --root /data/screen-a
  plateflow check --file workflow.yaml
  plateflow plan --experiment screen-a --step jterator --inputs 'images/*.png'
  plateflow submit --experiment screen-a --step jterator
  plateflow status --experiment screen-a --step jterator`)
}
