package config

import (
	"context"
	"fmt"
)

// Loader resolves a Config from some source: a file, the environment,
// flags, or a mix of them. Implementations start from Default and do not
// validate.
type Loader interface {
	Load(ctx context.Context) (*Config, error)
}

// LoadValidated loads from l and runs Validate on the result.
func LoadValidated(ctx context.Context, l Loader) (*Config, error) {
	cfg, err := l.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
