// Environment-variable overlay for the driver. CLI flags are parsed by
// hand (config.go is not involved in that, see main.go); this
// struct only absorbs the ambient C67_* variables that extend what was
// passed on the command line, decoded with caarlos0/env so the struct
// tags stay the single source of truth for names and defaults.
package main

import "github.com/caarlos0/env/v6"

// EnvConfig holds the environment overrides layered on top of parsed
// CLI flags. IncludePath entries are appended after -I directories;
// Trace, if true, is equivalent to passing -v.
type EnvConfig struct {
	IncludePath []string `env:"C67_INCLUDE_PATH" envSeparator:":"`
	Trace       bool     `env:"C67_TRACE" envDefault:"false"`
}

// LoadEnvConfig reads C67_* variables, returning a zero EnvConfig if
// none are set.
func LoadEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
