package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadOptions reads a single-connection Options from a YAML file,
// replacing the teacher's hand-rolled line-based YAML walker
// (internal/config/parser.go in the teacher tree) with the real
// dependency the teacher's own go.mod already lists. The returned
// Options has every default filled (Resolved).
func LoadOptions(path string) (Options, error) {
	var o Options
	data, err := os.ReadFile(path)
	if err != nil {
		return o, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &o); err != nil {
		return o, fmt.Errorf("config: parse %s: %w", path, err)
	}
	o.path = absPath(path)
	return o.Resolved(), nil
}

// LoadClusterOptions reads a ClusterOptions from a YAML file the same
// way LoadOptions does, including the per-node RedisOptions block.
func LoadClusterOptions(path string) (ClusterOptions, error) {
	var c ClusterOptions
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.path = absPath(path)
	return c.Resolved(), nil
}

// LoadSeedFile reads a cluster orchestrator seed file: a bare YAML
// list of "host:port" strings. NewClusterFromFile does not read this
// format; it loads a full ClusterOptions through LoadClusterOptions.
func LoadSeedFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read seed file %s: %w", path, err)
	}
	var seeds []string
	if err := yaml.Unmarshal(data, &seeds); err != nil {
		return nil, fmt.Errorf("config: parse seed file %s: %w", path, err)
	}
	return seeds, nil
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
