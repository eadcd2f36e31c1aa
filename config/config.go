package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the full groupkit configuration.
type Config struct {
	// Log is the structured logging configuration.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Orchestration tunes the group control loop.
	Orchestration OrchestrationConfig `yaml:"orchestration" env:"ORCHESTRATION"`

	// Redis configures the checkpoint backend when redis is selected.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Checkpoint selects and configures checkpoint persistence.
	Checkpoint CheckpointConfig `yaml:"checkpoint" env:"CHECKPOINT"`

	// Telemetry configures distributed tracing.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Metrics configures Prometheus exposition.
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
}

// LogConfig configures zap.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format is json or console.
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths lists sinks, e.g. stdout or file paths.
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// EnableCaller annotates entries with the call site.
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// OrchestrationConfig tunes the manager's control loop.
type OrchestrationConfig struct {
	// DispatchRetries is how many times a failed turn dispatch is retried.
	DispatchRetries int `yaml:"dispatch_retries" env:"DISPATCH_RETRIES"`
	// DispatchBackoff is the delay between dispatch retries.
	DispatchBackoff time.Duration `yaml:"dispatch_backoff" env:"DISPATCH_BACKOFF"`
	// ResponseTimeout bounds the wait for a participant reply; zero waits
	// indefinitely.
	ResponseTimeout time.Duration `yaml:"response_timeout" env:"RESPONSE_TIMEOUT"`
	// BufferSize is the per-participant mailbox depth.
	BufferSize int `yaml:"buffer_size" env:"BUFFER_SIZE"`
}

// RedisConfig configures the Redis connection.
type RedisConfig struct {
	Addr      string `yaml:"addr" env:"ADDR"`
	Password  string `yaml:"password" env:"PASSWORD"`
	DB        int    `yaml:"db" env:"DB"`
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// CheckpointConfig selects checkpoint persistence.
type CheckpointConfig struct {
	// Backend is one of memory, file, redis.
	Backend string `yaml:"backend" env:"BACKEND"`
	// Dir is the base directory of the file backend.
	Dir string `yaml:"dir" env:"DIR"`
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
}

// Validate checks for values the runtime cannot work with.
func (c *Config) Validate() error {
	var errs []string

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("unknown log level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("unknown log format %q", c.Log.Format))
	}

	if c.Orchestration.DispatchRetries < 0 {
		errs = append(errs, "dispatch_retries must not be negative")
	}
	if c.Orchestration.DispatchBackoff < 0 {
		errs = append(errs, "dispatch_backoff must not be negative")
	}
	if c.Orchestration.ResponseTimeout < 0 {
		errs = append(errs, "response_timeout must not be negative")
	}
	if c.Orchestration.BufferSize < 0 {
		errs = append(errs, "buffer_size must not be negative")
	}

	switch c.Checkpoint.Backend {
	case "", "memory", "file", "redis":
	default:
		errs = append(errs, fmt.Sprintf("unknown checkpoint backend %q", c.Checkpoint.Backend))
	}
	if c.Checkpoint.Backend == "file" && c.Checkpoint.Dir == "" {
		errs = append(errs, "checkpoint dir is required for the file backend")
	}
	if c.Checkpoint.Backend == "redis" && c.Redis.Addr == "" {
		errs = append(errs, "redis addr is required for the redis backend")
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.OTLPEndpoint == "" {
			errs = append(errs, "otlp_endpoint is required when telemetry is enabled")
		}
		if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
			errs = append(errs, "sample_rate must be between 0 and 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
