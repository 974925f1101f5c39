package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete plateflow configuration.
type Config struct {
	// Log configures the logger.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Database configures the experiment database.
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Scheduler configures the submit-and-monitor loop.
	Scheduler SchedulerConfig `yaml:"scheduler" env:"SCHEDULER"`

	// Resources are the default compute resources per job.
	Resources ResourcesConfig `yaml:"resources" env:"RESOURCES"`

	// Fusion configures the dataset fusion pass.
	Fusion FusionConfig `yaml:"fusion" env:"FUSION"`
}

// LogConfig configures the logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format is json or console.
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths lists the log sinks.
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

// DatabaseConfig configures the experiment database.
type DatabaseConfig struct {
	// Path is the sqlite database file.
	Path string `yaml:"path" env:"PATH"`
}

// SchedulerConfig configures the submit-and-monitor loop.
type SchedulerConfig struct {
	// MonitorInterval is the sleep between poll iterations.
	MonitorInterval time.Duration `yaml:"monitor_interval" env:"MONITOR_INTERVAL"`
	// SubmitCap is the in-flight submission ceiling.
	SubmitCap int `yaml:"submit_cap" env:"SUBMIT_CAP"`
	// LogDir receives per-job output files.
	LogDir string `yaml:"log_dir" env:"LOG_DIR"`
}

// ResourcesConfig holds the default compute resources per job.
type ResourcesConfig struct {
	// RunWalltime bounds the lifetime of one run job.
	RunWalltime time.Duration `yaml:"run_walltime" env:"RUN_WALLTIME"`
	// RunMemoryMB is the memory requested per run job in megabytes.
	RunMemoryMB int `yaml:"run_memory_mb" env:"RUN_MEMORY_MB"`
	// RunCores is the number of cores requested per run job.
	RunCores int `yaml:"run_cores" env:"RUN_CORES"`
	// CollectWalltime bounds the lifetime of the collect job.
	CollectWalltime time.Duration `yaml:"collect_walltime" env:"COLLECT_WALLTIME"`
	// CollectMemoryMB is the memory requested for the collect job in
	// megabytes.
	CollectMemoryMB int `yaml:"collect_memory_mb" env:"COLLECT_MEMORY_MB"`
}

// FusionConfig configures the dataset fusion pass.
type FusionConfig struct {
	// DeleteFragments removes fragment files after a successful fusion.
	DeleteFragments bool `yaml:"delete_fragments" env:"DELETE_FRAGMENTS"`
}

// Loader loads configuration with builder-style options.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the default environment prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "PLATEFLOW"}
}

// WithConfigPath sets the YAML file to load.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a validation function run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load builds the configuration: defaults, then the YAML file, then
// environment variables.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}
	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
	return nil
}

// MustLoad loads the configuration from a file, panicking on error.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	var errs []string
	if c.Database.Path == "" {
		errs = append(errs, "database path must not be empty")
	}
	if c.Scheduler.MonitorInterval <= 0 {
		errs = append(errs, "monitor_interval must be positive")
	}
	if c.Scheduler.SubmitCap <= 0 {
		errs = append(errs, "submit_cap must be positive")
	}
	if c.Resources.RunCores <= 0 {
		errs = append(errs, "run_cores must be positive")
	}
	if c.Resources.RunMemoryMB <= 0 || c.Resources.CollectMemoryMB <= 0 {
		errs = append(errs, "memory must be positive")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("unknown log level %q", c.Log.Level))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
