// Copyright (c) GroupKit Authors.
// Licensed under the MIT License.

/*
Package config provides the groupkit configuration surface: typed config
structs with defaults, YAML file loading and environment overrides.

Precedence is defaults, then YAML file, then environment variables:

	cfg, err := config.NewLoader().
	    WithConfigPath("groupkit.yaml").
	    WithEnvPrefix("GROUPKIT").
	    Load()

Environment keys follow the struct shape, e.g. GROUPKIT_REDIS_ADDR or
GROUPKIT_ORCHESTRATION_RESPONSE_TIMEOUT.
*/
package config
