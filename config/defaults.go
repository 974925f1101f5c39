package config

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultConfig returns the configuration used when neither a file nor
// environment variables override a value.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			OutputPaths: []string{"stderr"},
		},
		Database: DatabaseConfig{
			Path: "plateflow.db",
		},
		Scheduler: SchedulerConfig{
			MonitorInterval: 5 * time.Second,
			SubmitCap:       2000,
			LogDir:          "log",
		},
		Resources: ResourcesConfig{
			RunWalltime:     time.Hour,
			RunMemoryMB:     2000,
			RunCores:        1,
			CollectWalltime: 2 * time.Hour,
			CollectMemoryMB: 4000,
		},
		Fusion: FusionConfig{
			DeleteFragments: true,
		},
	}
}

// BuildLogger constructs a zap logger from the log section.
func (c *Config) BuildLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.Encoding = c.Log.Format
	if len(c.Log.OutputPaths) > 0 {
		zapCfg.OutputPaths = c.Log.OutputPaths
	}
	if c.Log.Format == "console" {
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	return zapCfg.Build()
}
