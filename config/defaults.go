package config

import "time"

// DefaultConfig returns a configuration suitable for local development.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:       "info",
			Format:      "json",
			OutputPaths: []string{"stdout"},
		},
		Orchestration: OrchestrationConfig{
			DispatchRetries: 1,
			DispatchBackoff: 100 * time.Millisecond,
			ResponseTimeout: 0,
			BufferSize:      64,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "groupkit:",
		},
		Checkpoint: CheckpointConfig{
			Backend: "memory",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			ServiceName: "groupkit",
			SampleRate:  1.0,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}
