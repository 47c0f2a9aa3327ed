// Package config loads environment-driven configuration structs.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Validator is implemented by configuration structs that check their own
// invariants after parsing.
type Validator interface {
	Validate() error
}

// Load parses environment variables into cfg using its `env` tags and then
// runs cfg.Validate when cfg implements Validator.
func Load(cfg any) error {
	return LoadWithEnvironment(cfg, nil)
}

// LoadWithEnvironment is Load reading from environ instead of the process
// environment when environ is non-nil.
func LoadWithEnvironment(cfg any, environ map[string]string) error {
	opts := env.Options{Environment: environ}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if v, ok := cfg.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}
	return nil
}
