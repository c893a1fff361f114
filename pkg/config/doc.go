// Package config loads the configuration of ECL nodes and tools.
//
// Files are YAML, or TOML when the extension is .toml. Unknown keys are
// rejected in both formats.
//
// # Configuration Precedence
//
// Values are applied in this order, later overriding earlier:
//
//  1. Default values (defaults.go)
//  2. Values from the file
//  3. ECL_SECTION_FIELD environment variables, e.g. ECL_ENGINE_GAS_LIMIT
//     or ECL_TELEMETRY_LOGGING_LEVEL
//  4. Validation (fails fast if invalid)
//
// Validation errors list every offending field:
//
//	configuration validation failed with 2 errors:
//	  - gateway.mode: managed mode requires mana.enabled
//	  - storage.path: path is required for sqlite storage
//
// # Example Configuration
//
//	engine:
//	  gas_limit: 50000
//	  timeout: 5s
//
//	mana:
//	  enabled: true
//	  base_allowance: 10000
//	  sweep_schedule: "*/10 * * * *"
//
//	gateway:
//	  mode: managed
//	  damping: [0.8, 0.8, 0.8, 0.8, 1, 1]
//
//	storage:
//	  type: sqlite
//	  path: data/ecl.db
//
//	telemetry:
//	  logging:
//	    level: debug
//	    format: console
//	  metrics:
//	    enabled: true
//
//	policies:
//	  dir: ./policies
//	  watch: true
//
//	audit:
//	  enabled: true
//	  path: data/audit.db
//	  retention:
//	    max_age: 720h
//	    schedule: "0 3 * * *"
//
// The same configuration in TOML uses one table per section:
//
//	[engine]
//	gas_limit = 50000
//	timeout = "5s"
//
//	[storage]
//	type = "bolt"
//	path = "data/ecl.bolt"
//
// The CLI installs the loaded configuration with SetConfig and reads it
// back with GetConfig. Tests pass explicit *Config values instead.
package config
