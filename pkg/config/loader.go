package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Validator is implemented by configs with invariants that env tags cannot
// express. Load calls it after parsing.
type Validator interface {
	Validate() error
}

// Option adjusts how Load reads variables.
type Option func(*env.Options)

// WithPrefix prepends prefix to every variable name.
func WithPrefix(prefix string) Option {
	return func(o *env.Options) { o.Prefix = prefix }
}

// FromMap reads variables from vars instead of the process environment.
func FromMap(vars map[string]string) Option {
	return func(o *env.Options) { o.Environment = vars }
}

// Load fills cfg from `env` tags. Durations use Go syntax ("2s", "750ms");
// slices split on commas unless envSeparator says otherwise.
func Load(cfg any, opts ...Option) error {
	var o env.Options
	for _, opt := range opts {
		opt(&o)
	}

	if err := env.ParseWithOptions(cfg, o); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if v, ok := cfg.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("validate config: %w", err)
		}
	}
	return nil
}
