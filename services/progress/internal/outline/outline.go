// Package outline loads the course section graph from a YAML, JSON or TOML
// file.
package outline

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/example/lems/internal/progression"
)

// Load reads and validates the outline at path. An empty path yields the
// built-in three-section outline.
func Load(path string) (progression.Outline, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return progression.DefaultOutline(), nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return progression.Outline{}, fmt.Errorf("read outline %s: %w", path, err)
	}

	var o progression.Outline
	if err := v.Unmarshal(&o); err != nil {
		return progression.Outline{}, fmt.Errorf("decode outline %s: %w", path, err)
	}
	if err := o.Validate(); err != nil {
		return progression.Outline{}, fmt.Errorf("outline %s: %w", path, err)
	}
	return o, nil
}
