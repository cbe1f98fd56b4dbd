package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source looks up a named value.
type Source interface {
	Lookup(key string) (string, bool)
}

// EnvSource reads the process environment.
type EnvSource struct{}

// Lookup implements Source.
func (EnvSource) Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// MapSource is a fixed set of values, keyed like environment variables.
type MapSource map[string]string

// Lookup implements Source.
func (m MapSource) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// InputKey normalizes an input name the way the Actions runner does when it
// exports inputs: upper case, spaces and dashes replaced by underscores.
func InputKey(name string) string {
	key := strings.ToUpper(strings.TrimSpace(name))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(key)
}

// LoadFile reads a YAML mapping of input names to values, for example:
//
//	branch: gh-pages
//	folder: build
//	cname: docs.example.com
func LoadFile(path string) (MapSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	inputs := make(MapSource, len(raw))
	for k, v := range raw {
		inputs[InputKey(k)] = v
	}
	return inputs, nil
}

// inputs resolves action inputs from the environment first and an optional
// file second.
type inputs struct {
	env  Source
	file Source
}

// get returns INPUT_<NAME>, then <NAME>, then the file value.
func (in inputs) get(name string) string {
	key := InputKey(name)
	if v, ok := in.env.Lookup("INPUT_" + key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if v, ok := in.env.Lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if in.file != nil {
		if v, ok := in.file.Lookup(key); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// ambient returns a runner-provided variable such as GITHUB_SHA.
func (in inputs) ambient(key string) string {
	v, _ := in.env.Lookup(key)
	return strings.TrimSpace(v)
}
