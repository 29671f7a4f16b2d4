// Package config holds the process configuration for cmd/datafold: where
// the embedded store lives, which schema directories to load, the
// Argon2id security tier, and the orchestrator's retry tuning.
//
// Grounded on the teacher's cmd/warren/main.go flag defaults (data-dir,
// bind-addr style string flags with sane local defaults) plus apply.go's
// convention of reading a declarative YAML file from disk with
// gopkg.in/yaml.v3.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/datafold/datafold/pkg/security"
	"github.com/datafold/datafold/pkg/types"
)

// Config is the full set of knobs cmd/datafold needs to wire up the core
// (pkg/storage through pkg/orchestrator) and the security core.
type Config struct {
	DataDir          string   `yaml:"dataDir"`
	SchemaDirs       []string `yaml:"schemaDirs"`
	SecurityLevel    string   `yaml:"securityLevel"`
	MasterPassphrase string   `yaml:"masterPassphrase"`
	MetricsAddr      string   `yaml:"metricsAddr"`
	BusBufferSize    int      `yaml:"busBufferSize"`
	MaxRetries       int      `yaml:"maxRetries"`
	RetryDelayMS     int      `yaml:"retryDelayMs"`
}

// Default returns the built-in defaults, matching a local single-process
// run out of the box.
func Default() Config {
	return Config{
		DataDir:       "./datafold-data",
		SchemaDirs:    []string{"data/schemas", "available_schemas"},
		SecurityLevel: string(security.SecurityLevelStandard),
		MetricsAddr:   "127.0.0.1:9090",
		BusBufferSize: 64,
		MaxRetries:    3,
		RetryDelayMS:  100,
	}
}

// Load reads a YAML config file at path and overlays it onto Default().
// A missing path is not an error: callers get the defaults, configurable
// entirely by flags.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, types.WrapError(types.ErrStorage, err, "failed to read config file %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, types.WrapError(types.ErrSerialization, err, "failed to parse config file %s", path)
	}
	return cfg, nil
}

// SecurityLevelValue resolves the configured SecurityLevel string to a
// security.SecurityLevel, falling back to Standard for an empty or
// unrecognized value.
func (c Config) SecurityLevelValue() security.SecurityLevel {
	switch security.SecurityLevel(c.SecurityLevel) {
	case security.SecurityLevelInteractive, security.SecurityLevelStandard, security.SecurityLevelSensitive:
		return security.SecurityLevel(c.SecurityLevel)
	default:
		return security.SecurityLevelStandard
	}
}
