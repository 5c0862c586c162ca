// Package fileloader reads a single YAML config file with no environment or
// flag overrides. Unknown keys are rejected, which catches misspelt settings
// that the layered viper loader would silently ignore.
package fileloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/cbexpiry/internal/config"
)

var _ config.Loader = (*StrictLoader)(nil)

// StrictLoader decodes one YAML file over config.Default.
type StrictLoader struct {
	path string
}

// NewStrictLoader creates a StrictLoader for the file at path.
func NewStrictLoader(path string) *StrictLoader {
	return &StrictLoader{path: path}
}

// Load decodes the file over config.Default, so keys missing from the file
// keep their default values. An empty file yields the defaults. The result is
// not validated.
func (l *StrictLoader) Load(_ context.Context) (*config.Config, error) {
	if l.path == "" {
		return nil, errors.New("no config file given")
	}

	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	defer f.Close()

	cfg := config.Default()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config %s: %w", l.path, err)
	}

	return &cfg, nil
}
